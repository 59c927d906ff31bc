package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidCanvasID(t *testing.T) {
	assert.True(t, isValidCanvasID("abc-123_ok"))
	assert.True(t, isValidCanvasID("3f6e9a10-5b2c-4a1e-9c3d-8f7a6b5c4d3e"))
	assert.False(t, isValidCanvasID("ab"), "below minimum length")
	assert.False(t, isValidCanvasID("has a space"))
}

func TestIsValidColor(t *testing.T) {
	assert.True(t, isValidColor(""), "empty color is allowed (unset)")
	assert.True(t, isValidColor("#abc"))
	assert.True(t, isValidColor("#aabbcc"))
	assert.True(t, isValidColor("#aabbccdd"))
	assert.False(t, isValidColor("red"))
	assert.False(t, isValidColor("#ggg"))
}

func TestValidateShapeType(t *testing.T) {
	st, err := validateShapeType("rectangle")
	assert.NoError(t, err)
	assert.Equal(t, "rectangle", string(st))

	_, err = validateShapeType("blob")
	assert.Error(t, err)
}

func TestValidateCoordinate(t *testing.T) {
	assert.NoError(t, validateCoordinate("x", 100))
	assert.NoError(t, validateCoordinate("x", -maxCoordinate))
	assert.Error(t, validateCoordinate("x", maxCoordinate+1))
	assert.Error(t, validateCoordinate("x", -maxCoordinate-1))
}

func TestValidatePositive(t *testing.T) {
	assert.NoError(t, validatePositive("width", nil), "nil is left untouched by the validator")
	v := 10.0
	assert.NoError(t, validatePositive("width", &v))
	zero := 0.0
	assert.Error(t, validatePositive("width", &zero))
	neg := -1.0
	assert.Error(t, validatePositive("width", &neg))
}

func TestValidateOpacity(t *testing.T) {
	ok := 0.5
	assert.NoError(t, validateOpacity(&ok))
	tooHigh := 1.1
	assert.Error(t, validateOpacity(&tooHigh))
	tooLow := -0.1
	assert.Error(t, validateOpacity(&tooLow))
}

func TestValidateTextContent(t *testing.T) {
	assert.NoError(t, validateTextContent("hello"))
	long := make([]byte, maxTextLength+1)
	assert.Error(t, validateTextContent(string(long)))
}

func TestValidateShapeCreate_RejectsUnknownType(t *testing.T) {
	err := validateShapeCreate(shapeCreateInput{Type: "blob", X: 0, Y: 0})
	assert.Error(t, err)
}

func TestValidateShapeCreate_AcceptsMinimalRectangle(t *testing.T) {
	width, height := 10.0, 20.0
	err := validateShapeCreate(shapeCreateInput{
		Type:   "rectangle",
		X:      0,
		Y:      0,
		Width:  &width,
		Height: &height,
		Color:  "#ff0000",
	})
	assert.NoError(t, err)
}

func TestValidateShapeCreate_RejectsOutOfRangeCoordinate(t *testing.T) {
	err := validateShapeCreate(shapeCreateInput{Type: "circle", X: maxCoordinate + 1, Y: 0})
	assert.Error(t, err)
}

func TestValidateShapeUpdateFields_OnlyChecksPresentFields(t *testing.T) {
	assert.NoError(t, validateShapeUpdateFields(updateFields{}), "an empty update has nothing to validate")

	badOpacity := 2.0
	err := validateShapeUpdateFields(updateFields{Opacity: &badOpacity})
	assert.Error(t, err)
}

func TestValidateShapeUpdateFields_RejectsNonPositiveWidth(t *testing.T) {
	zero := 0.0
	err := validateShapeUpdateFields(updateFields{Width: &zero})
	assert.Error(t, err)
}
