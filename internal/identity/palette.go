package identity

import "hash/fnv"

// neonPalette is the fixed set of display colors assigned to users who
// don't carry one from their profile claims (spec §3: "assigned once from
// a fixed neon palette by hashing id").
var neonPalette = []string{
	"#FF6EC7", "#39FF14", "#00F0FF", "#FFD700", "#FF3131",
	"#BC13FE", "#04D9FF", "#FF9F1C", "#0AFFB4", "#FF36AB",
	"#7DF9FF", "#FE019A",
}

// AssignColor deterministically maps a user id onto the neon palette.
func AssignColor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return neonPalette[h.Sum32()%uint32(len(neonPalette))]
}
