package domain

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/fluview-etl/internal/epiweek"
)

// MetricILI is the metric label for weighted influenza-like illness
// percentages, the only metric this pipeline ingests today. The column
// exists so the same table can carry other surveillance metrics later.
const MetricILI = "ili"

// Columns lists the canonical observation columns in wire order. The CSV
// export and both SQL schemas follow this order.
var Columns = []string{"date", "region", "value", "metric", "source_id", "epiweek"}

// Observation is one cleaned surveillance row: a metric reading for a region
// and epiweek. Date is always the Monday of Epiweek. Value is nil when the
// upstream measurement could not be coerced to a number.
type Observation struct {
	Date     Day      `json:"date" csv:"date"`
	Region   string   `json:"region" csv:"region"`
	Value    *float64 `json:"value" csv:"value"`
	Metric   string   `json:"metric" csv:"metric"`
	SourceID string   `json:"source_id" csv:"source_id"`
	Epiweek  int      `json:"epiweek" csv:"epiweek"`
}

// RawRecord is a weakly typed upstream record as decoded from the Delphi
// API's JSON. Only the normalizer consumes this shape and assumes field
// names; everything downstream works with Observation.
type RawRecord map[string]any

// EpiweekFromSourceID recovers the epiweek encoded in a source_id of the
// form "<region>-<epiweek>". Region labels may themselves contain hyphens
// ("hhs-region-4"), so only the suffix after the last hyphen is parsed.
// Legacy rows stored before the epiweek column existed are repaired with
// this.
func EpiweekFromSourceID(id string) (int, error) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 {
		return 0, fmt.Errorf("source_id %q has no epiweek suffix", id)
	}
	epi, err := epiweek.Parse(id[i+1:])
	if err != nil {
		return 0, fmt.Errorf("source_id %q: %w", id, err)
	}
	return epi, nil
}
