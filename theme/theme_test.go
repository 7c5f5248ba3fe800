package theme

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPalette(t *testing.T) {
	p := Default()
	assert.Equal(t, "Plasma", p.Name)
	require.Len(t, p.Colors, 8)
	assert.Equal(t, RGB{13, 8, 135}, p.Lookup(0))
	assert.Equal(t, RGB{240, 249, 33}, p.Lookup(1))
	assert.Equal(t, "#0d0887", p.Index(-3).Hex())
}

func TestParseGPL(t *testing.T) {
	p, err := ParseGPL(strings.NewReader("GIMP Palette\nName: Two\nColumns: 2\n# comment\n0 0 0 black\n300 1 1 bad\n255 255 255\n"))
	require.NoError(t, err)
	assert.Equal(t, "Two", p.Name)
	assert.Equal(t, []RGB{{0, 0, 0}, {255, 255, 255}}, p.Colors)
	assert.Equal(t, RGB{127, 127, 127}, p.Lookup(0.5))

	_, err = ParseGPL(strings.NewReader("GIMP Palette\n"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	p, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "Plasma", p.Name)

	p, err = LoadOrDefault("/nonexistent/palette.gpl")
	assert.Error(t, err)
	assert.Equal(t, "Plasma", p.Name)
}
