package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/fluview-etl/internal/epiweek"
)

// DiscardReason classifies why the normalizer dropped a raw record.
type DiscardReason string

const (
	// DiscardMissingEpiweek marks records with no epiweek field at all.
	DiscardMissingEpiweek DiscardReason = "missing_epiweek"
	// DiscardBadEpiweek marks records whose epiweek is not an integer.
	DiscardBadEpiweek DiscardReason = "bad_epiweek"
	// DiscardInvalidEpiweek marks records whose epiweek names a week that
	// does not exist, such as week 53 of a 52-week year.
	DiscardInvalidEpiweek DiscardReason = "invalid_epiweek"
)

// Discard describes one raw record the normalizer dropped.
type Discard struct {
	Index  int
	Reason DiscardReason
	Detail string
}

// NormalizeResult carries the normalized rows together with drop
// diagnostics. Dropped records are not errors; callers log and count them.
type NormalizeResult struct {
	Observations []Observation
	Dropped      []Discard
}

// Normalize maps raw FluView records onto the canonical schema. Per record:
// the "wili" field becomes Value (nil when it fails numeric coercion), the
// region is uppercased, Date is the ISO Monday of the epiweek, and SourceID
// is "<region-lower>-<epiweek>". Records without a recoverable epiweek are
// dropped, never erred. The function is pure: identical input yields
// identical output, and empty input yields an empty (non-nil) row list.
func Normalize(raw []RawRecord) NormalizeResult {
	result := NormalizeResult{Observations: make([]Observation, 0, len(raw))}

	for i, rec := range raw {
		epiRaw, ok := rec["epiweek"]
		if !ok || epiRaw == nil {
			result.Dropped = append(result.Dropped, Discard{Index: i, Reason: DiscardMissingEpiweek})
			continue
		}
		epi, err := coerceInt(epiRaw)
		if err != nil {
			result.Dropped = append(result.Dropped, Discard{Index: i, Reason: DiscardBadEpiweek, Detail: err.Error()})
			continue
		}
		monday, err := epiweek.Monday(epi)
		if err != nil {
			result.Dropped = append(result.Dropped, Discard{Index: i, Reason: DiscardInvalidEpiweek, Detail: err.Error()})
			continue
		}

		region := strings.ToUpper(coerceString(rec["region"]))
		result.Observations = append(result.Observations, Observation{
			Date:     NewDay(monday),
			Region:   region,
			Value:    coerceFloat(rec["wili"]),
			Metric:   MetricILI,
			SourceID: strings.ToLower(region) + "-" + strconv.Itoa(epi),
			Epiweek:  epi,
		})
	}

	return result
}

// coerceInt accepts the numeric shapes JSON decoding produces for an
// epiweek: float64 (the default for JSON numbers), integer types, a
// json.Number, or a digit string.
func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("coerce int: %v is not an integer", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("coerce int: %w", err)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("coerce int: %w", err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("coerce int: unsupported type %T", v)
	}
}

// coerceFloat parses a measurement value, returning nil for anything that
// is not a finite number. A nil result keeps the row with a missing value.
func coerceFloat(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// coerceString renders the region field as text; missing values become "".
func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
