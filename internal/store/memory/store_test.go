package memory

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func obs(sourceID string, region string, epi int, value *float64) domain.Observation {
	return domain.Observation{
		Date:     domain.NewDay(time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)),
		Region:   region,
		Value:    value,
		Metric:   domain.MetricILI,
		SourceID: sourceID,
		Epiweek:  epi,
	}
}

func TestSaveAndReadAll(t *testing.T) {
	s := NewStore()

	n, err := s.Save(context.Background(), []domain.Observation{
		obs("ny-202502", "NY", 202502, f64(3.1)),
		obs("ma-202502", "MA", 202502, f64(1.8)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Ordered by source_id for deterministic reads.
	assert.Equal(t, "ma-202502", rows[0].SourceID)
	assert.Equal(t, "ny-202502", rows[1].SourceID)
}

func TestSaveUpsertsBySourceID(t *testing.T) {
	s := NewStore()

	_, err := s.Save(context.Background(), []domain.Observation{obs("ma-202502", "MA", 202502, f64(1.8))})
	require.NoError(t, err)

	n, err := s.Save(context.Background(), []domain.Observation{obs("ma-202502", "MA", 202502, f64(2.4))})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Value)
	assert.Equal(t, 2.4, *rows[0].Value)
}

func TestSaveKeepsNilValues(t *testing.T) {
	s := NewStore()

	_, err := s.Save(context.Background(), []domain.Observation{obs("vt-202502", "VT", 202502, nil)})
	require.NoError(t, err)

	rows, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Value)
}

func TestReadAllEmpty(t *testing.T) {
	s := NewStore()

	rows, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPingAndClose(t *testing.T) {
	s := NewStore()
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}
