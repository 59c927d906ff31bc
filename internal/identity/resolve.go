package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
)

var (
	// ErrNoCredential is returned when neither a token nor, in development
	// mode, a userId query parameter was presented.
	ErrNoCredential = errors.New("no credential presented")
)

// Resolver turns an admission request's query string into a durable
// store.User, handling both the token path and the development-mode
// fallback (spec §4.1 steps 2 and 4).
type Resolver struct {
	verifier *Verifier
	store    store.CanvasStore
	devMode  bool
}

func NewResolver(verifier *Verifier, canvasStore store.CanvasStore, devMode bool) *Resolver {
	return &Resolver{verifier: verifier, store: canvasStore, devMode: devMode}
}

// Resolve implements admission steps 2 and 4: identity resolution followed
// by getOrCreateUser with avatar color backfill. It never returns a User
// without a non-empty AvatarColor.
func (r *Resolver) Resolve(ctx context.Context, query url.Values) (*store.User, error) {
	var profile store.User

	if token := ExtractToken(query); token != "" {
		claims, err := r.verifier.Verify(token)
		if err != nil {
			return nil, fmt.Errorf("verify token: %w", err)
		}
		if err := checkNotExpired(claims); err != nil {
			return nil, err
		}
		profile = store.User{
			ID:          claims.UserID,
			Username:    claims.Username,
			Email:       claims.Email,
			DisplayName: claims.DisplayName,
		}
	} else if r.devMode {
		userID := ExtractDevUserID(query)
		if userID == "" {
			return nil, ErrNoCredential
		}
		profile = store.User{ID: userID, Username: userID, DisplayName: userID}
	} else {
		return nil, ErrNoCredential
	}

	profile.AvatarColor = AssignColor(profile.ID)

	user, err := r.store.GetOrCreateUser(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	if user.AvatarColor == "" {
		user.AvatarColor = AssignColor(user.ID)
	}
	return user, nil
}
