package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpiweekFromSourceID(t *testing.T) {
	t.Run("state id", func(t *testing.T) {
		epi, err := EpiweekFromSourceID("ma-202501")
		require.NoError(t, err)
		assert.Equal(t, 202501, epi)
	})

	t.Run("hyphenated region keeps only the suffix", func(t *testing.T) {
		epi, err := EpiweekFromSourceID("hhs-region-4-202053")
		require.NoError(t, err)
		assert.Equal(t, 202053, epi)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, id := range []string{"", "ma", "ma-", "ma-2025", "ma-999999", "ma-202153"} {
			_, err := EpiweekFromSourceID(id)
			assert.Error(t, err, "id %q", id)
		}
	})
}
