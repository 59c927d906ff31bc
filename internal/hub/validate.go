package hub

import (
	"fmt"
	"regexp"

	"github.com/odin-collab/canvas-ws-hub/internal/store"
)

var (
	canvasIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,100}$`)
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	colorPattern    = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)

	validShapeTypes = map[string]store.ShapeType{
		"rectangle": store.ShapeRectangle,
		"circle":    store.ShapeCircle,
		"text":      store.ShapeText,
		"line":      store.ShapeLine,
		"polygon":   store.ShapePolygon,
		"image":     store.ShapeImage,
	}
)

const (
	maxCoordinate  = 1e6
	maxTextLength  = 10000
	maxBatchSize   = 100
)

func isValidCanvasID(id string) bool {
	return canvasIDPattern.MatchString(id) || uuidPattern.MatchString(id)
}

func isValidColor(c string) bool {
	return c == "" || colorPattern.MatchString(c)
}

func validateShapeType(t string) (store.ShapeType, error) {
	st, ok := validShapeTypes[t]
	if !ok {
		return "", fmt.Errorf("unknown shape type: %q", t)
	}
	return st, nil
}

func validateCoordinate(name string, v float64) error {
	if v > maxCoordinate || v < -maxCoordinate {
		return fmt.Errorf("%s out of range: %v", name, v)
	}
	return nil
}

func validatePositive(name string, v *float64) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be > 0, got %v", name, *v)
	}
	return nil
}

func validateNonNegative(name string, v *float64) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%s must be >= 0, got %v", name, *v)
	}
	return nil
}

func validateOpacity(v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("opacity must be in [0,1], got %v", *v)
	}
	return nil
}

func validateTextContent(s string) error {
	if len(s) > maxTextLength {
		return fmt.Errorf("textContent exceeds %d characters", maxTextLength)
	}
	return nil
}

func validateColor(name, c string) error {
	if !isValidColor(c) {
		return fmt.Errorf("%s is not a valid color: %q", name, c)
	}
	return nil
}

// validateShapeCreate applies the uniform validation rules (spec §4.6) to a
// shape-creation payload.
func validateShapeCreate(p shapeCreateInput) error {
	if _, err := validateShapeType(p.Type); err != nil {
		return err
	}
	if err := validateCoordinate("x", p.X); err != nil {
		return err
	}
	if err := validateCoordinate("y", p.Y); err != nil {
		return err
	}
	if err := validateCoordinate("width", derefOr(p.Width, 0)); err != nil {
		return err
	}
	if err := validateCoordinate("height", derefOr(p.Height, 0)); err != nil {
		return err
	}
	if err := validatePositive("width", p.Width); err != nil {
		return err
	}
	if err := validatePositive("height", p.Height); err != nil {
		return err
	}
	if err := validatePositive("radius", p.Radius); err != nil {
		return err
	}
	if err := validateNonNegative("borderRadius", p.BorderRadius); err != nil {
		return err
	}
	if err := validateOpacity(p.Opacity); err != nil {
		return err
	}
	if err := validateTextContent(p.TextContent); err != nil {
		return err
	}
	if err := validateColor("color", p.Color); err != nil {
		return err
	}
	if err := validateColor("strokeColor", p.StrokeColor); err != nil {
		return err
	}
	return nil
}

// shapeCreateInput is the subset of wire.ShapeCreatePayload validation
// cares about, decoupled from the wire package so validation can be unit
// tested without constructing JSON.
type shapeCreateInput struct {
	Type         string
	X, Y         float64
	Width        *float64
	Height       *float64
	Radius       *float64
	BorderRadius *float64
	Opacity      *float64
	TextContent  string
	Color        string
	StrokeColor  string
}

func derefOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// validateShapeUpdateFields applies the same rules to whichever fields are
// present on an update.
func validateShapeUpdateFields(f updateFields) error {
	if f.X != nil {
		if err := validateCoordinate("x", *f.X); err != nil {
			return err
		}
	}
	if f.Y != nil {
		if err := validateCoordinate("y", *f.Y); err != nil {
			return err
		}
	}
	if f.Width != nil {
		if err := validateCoordinate("width", *f.Width); err != nil {
			return err
		}
		if err := validatePositive("width", f.Width); err != nil {
			return err
		}
	}
	if f.Height != nil {
		if err := validateCoordinate("height", *f.Height); err != nil {
			return err
		}
		if err := validatePositive("height", f.Height); err != nil {
			return err
		}
	}
	if err := validatePositive("radius", f.Radius); err != nil {
		return err
	}
	if err := validateNonNegative("borderRadius", f.BorderRadius); err != nil {
		return err
	}
	if err := validateOpacity(f.Opacity); err != nil {
		return err
	}
	if f.TextContent != nil {
		if err := validateTextContent(*f.TextContent); err != nil {
			return err
		}
	}
	if f.Color != nil {
		if err := validateColor("color", *f.Color); err != nil {
			return err
		}
	}
	if f.StrokeColor != nil {
		if err := validateColor("strokeColor", *f.StrokeColor); err != nil {
			return err
		}
	}
	return nil
}

// updateFields mirrors wire.ShapeUpdateFields, used so validation doesn't
// depend on the wire package's json tags.
type updateFields struct {
	X, Y         *float64
	Width        *float64
	Height       *float64
	Radius       *float64
	BorderRadius *float64
	Opacity      *float64
	TextContent  *string
	Color        *string
	StrokeColor  *string
}
