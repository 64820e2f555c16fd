package world

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/dragonrealm/internal/model"
)

func TestBoundsClamp(t *testing.T) {
	b := DefaultConfig().Bounds()

	tests := []struct {
		name string
		in   model.Position
		want model.Position
	}{
		{"inside", model.Position{X: 100, Y: 200}, model.Position{X: 100, Y: 200}},
		{"left of world", model.Position{X: -50, Y: 200}, model.Position{X: 24, Y: 200}},
		{"below world", model.Position{X: 100, Y: 9000}, model.Position{X: 100, Y: 576}},
		{"corner", model.Position{X: 5000, Y: -5000}, model.Position{X: 776, Y: 24}},
		{"nan", model.Position{X: math.NaN(), Y: math.Inf(1)}, model.Position{X: 400, Y: 300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Clamp(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, b.Contains(got))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Margin = 400
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Dragons = append(cfg.Dragons, model.Dragon{ID: "red", Name: "Again"})
	assert.Error(t, cfg.Validate())
}

func TestCatalog(t *testing.T) {
	c := NewCatalog(DefaultConfig().Dragons)

	d, err := c.Get("blue")
	require.NoError(t, err)
	assert.Equal(t, "Frost", d.Name)

	_, err = c.Get("purple")
	assert.ErrorIs(t, err, model.ErrUnknownAvatar)
	assert.Len(t, c.All(), 4)
}
