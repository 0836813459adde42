package normalization

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type flavor string

const (
	flavorAlpha flavor = "alpha"
	flavorBeta  flavor = "beta"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer("flavor", map[string]flavor{
		"alpha": flavorAlpha,
		"beta":  flavorBeta,
	}, flavorAlpha)

	tests := []struct {
		name     string
		input    string
		expected flavor
	}{
		{"exact match", "beta", flavorBeta},
		{"case insensitive", "BETA", flavorBeta},
		{"with spaces", "  beta  ", flavorBeta},
		{"invalid input", "gamma", flavorAlpha},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizer_Parse(t *testing.T) {
	n := NewNormalizer("flavor", map[string]flavor{"alpha": flavorAlpha, "beta": flavorBeta}, flavorAlpha)

	v, err := n.Parse("")
	require.NoError(t, err)
	require.Equal(t, flavorAlpha, v)

	v, err = n.Parse(" Beta")
	require.NoError(t, err)
	require.Equal(t, flavorBeta, v)

	_, err = n.Parse("gamma")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid flavor")
	require.Contains(t, err.Error(), "[alpha beta]")
}
