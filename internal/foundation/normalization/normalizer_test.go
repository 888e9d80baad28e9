package normalization

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type effect string

const (
	effectFade  effect = "fade"
	effectSlide effect = "slide"
	effectNone  effect = "none"
)

func newEffects() *Normalizer[effect] {
	return NewNormalizer(map[string]effect{
		"fade":  effectFade,
		"Slide": effectSlide,
		"none":  effectNone,
	}, effectFade)
}

func TestNormalize(t *testing.T) {
	n := newEffects()
	tests := []struct {
		name  string
		input string
		want  effect
	}{
		{"exact", "none", effectNone},
		{"case folded key", "slide", effectSlide},
		{"padded mixed case", "  SLIDE ", effectSlide},
		{"unknown falls back", "wipe", effectFade},
		{"empty falls back", "", effectFade},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, n.Normalize(tt.input))
		})
	}
}

func TestNormalizeWithError(t *testing.T) {
	n := newEffects()

	v, err := n.NormalizeWithError(" Fade")
	require.NoError(t, err)
	require.Equal(t, effectFade, v)

	v, err = n.NormalizeWithError("wipe")
	require.Error(t, err)
	require.Empty(t, v)
	require.Contains(t, err.Error(), "[fade none slide]")
}

func TestValidKeysIsACopy(t *testing.T) {
	n := newEffects()
	keys := n.ValidKeys()
	require.Equal(t, []string{"fade", "none", "slide"}, keys)

	keys[0] = "mutated"
	require.Equal(t, "fade", n.ValidKeys()[0])
}
