package domain

import (
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDay(t *testing.T) {
	t.Run("truncates to UTC midnight", func(t *testing.T) {
		d := NewDay(time.Date(2025, 1, 6, 15, 42, 7, 999, time.UTC))
		assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), d.Time)
	})

	t.Run("converts zones before truncating", func(t *testing.T) {
		est := time.FixedZone("EST", -5*3600)
		d := NewDay(time.Date(2025, 1, 6, 22, 0, 0, 0, est))
		// 22:00 EST is 03:00 UTC the next day.
		assert.Equal(t, "2025-01-07", d.String())
	})
}

func TestParseDay(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		d, err := ParseDay("2024-12-30")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), d.Time)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, s := range []string{"", "2024-13-01", "2024/12/30", "20241230", "yesterday"} {
			_, err := ParseDay(s)
			assert.Error(t, err, "input %q", s)
		}
	})
}

func TestDayJSON(t *testing.T) {
	t.Run("marshals as plain date", func(t *testing.T) {
		d, err := ParseDay("2025-01-06")
		require.NoError(t, err)

		out, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Equal(t, `"2025-01-06"`, string(out))
	})

	t.Run("round trips", func(t *testing.T) {
		var d Day
		require.NoError(t, json.Unmarshal([]byte(`"2020-12-28"`), &d))
		assert.Equal(t, "2020-12-28", d.String())
	})

	t.Run("rejects timestamps", func(t *testing.T) {
		var d Day
		assert.Error(t, json.Unmarshal([]byte(`"2025-01-06T00:00:00Z"`), &d))
	})

	t.Run("rejects non-strings", func(t *testing.T) {
		var d Day
		assert.Error(t, json.Unmarshal([]byte(`20250106`), &d))
	})
}

func TestDaySQL(t *testing.T) {
	t.Run("value stores text", func(t *testing.T) {
		d, err := ParseDay("2025-01-06")
		require.NoError(t, err)

		v, err := d.Value()
		require.NoError(t, err)
		assert.Equal(t, driver.Value("2025-01-06"), v)
	})

	t.Run("scan variants", func(t *testing.T) {
		expected := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

		var fromString Day
		require.NoError(t, fromString.Scan("2025-01-06"))
		assert.Equal(t, expected, fromString.Time)

		var fromBytes Day
		require.NoError(t, fromBytes.Scan([]byte("2025-01-06")))
		assert.Equal(t, expected, fromBytes.Time)

		var fromTime Day
		require.NoError(t, fromTime.Scan(time.Date(2025, 1, 6, 13, 30, 0, 0, time.UTC)))
		assert.Equal(t, expected, fromTime.Time)

		var fromNil Day
		require.NoError(t, fromNil.Scan(nil))
		assert.True(t, fromNil.IsZero())
	})

	t.Run("scan rejects other types", func(t *testing.T) {
		var d Day
		assert.Error(t, d.Scan(42))
	})
}
