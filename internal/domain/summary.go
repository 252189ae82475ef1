package domain

import (
	"math"
	"sort"
	"strings"
)

// Summary describes a set of observations: row count, value and date
// extremes, and the distinct regions present. Pointer fields are nil when
// the set is empty (or, for Min/Max, when no row has a usable value), so
// callers can tell "no data" from "data present but zero-valued".
type Summary struct {
	Count   int      `json:"count"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Start   *Day     `json:"start"`
	End     *Day     `json:"end"`
	Regions []string `json:"regions"`
}

// SummaryStats computes a Summary over obs. Min and Max consider only
// non-nil values; Start and End cover every row; Regions is sorted and
// deduplicated. Empty input returns count zero with all extremes nil.
func SummaryStats(obs []Observation) Summary {
	s := Summary{Count: len(obs), Regions: []string{}}
	if len(obs) == 0 {
		return s
	}

	seen := make(map[string]struct{})
	for i := range obs {
		o := &obs[i]
		if o.Value != nil {
			if s.Min == nil || *o.Value < *s.Min {
				v := *o.Value
				s.Min = &v
			}
			if s.Max == nil || *o.Value > *s.Max {
				v := *o.Value
				s.Max = &v
			}
		}
		if s.Start == nil || o.Date.Before(s.Start.Time) {
			d := o.Date
			s.Start = &d
		}
		if s.End == nil || o.Date.After(s.End.Time) {
			d := o.Date
			s.End = &d
		}
		seen[o.Region] = struct{}{}
	}

	for region := range seen {
		s.Regions = append(s.Regions, region)
	}
	sort.Strings(s.Regions)
	return s
}

// RegionMeans groups obs by region and returns the arithmetic mean of
// non-nil values per region, rounded to six decimal places. Regions whose
// rows all lack a value are absent from the result, not present with zero.
func RegionMeans(obs []Observation) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, o := range obs {
		if o.Value == nil {
			continue
		}
		sums[o.Region] += *o.Value
		counts[o.Region]++
	}

	means := make(map[string]float64, len(counts))
	for region, n := range counts {
		means[region] = math.Round(sums[region]/float64(n)*1e6) / 1e6
	}
	return means
}

// FilterOptions selects observations; zero-valued fields leave that
// dimension unfiltered.
type FilterOptions struct {
	Region    string
	Metric    string
	StartWeek int
	EndWeek   int
}

// Filter returns the observations matching opts: region equality after
// uppercasing, metric equality, and inclusive epiweek bounds.
func Filter(obs []Observation, opts FilterOptions) []Observation {
	region := strings.ToUpper(opts.Region)

	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if region != "" && o.Region != region {
			continue
		}
		if opts.Metric != "" && o.Metric != opts.Metric {
			continue
		}
		if opts.StartWeek != 0 && o.Epiweek < opts.StartWeek {
			continue
		}
		if opts.EndWeek != 0 && o.Epiweek > opts.EndWeek {
			continue
		}
		out = append(out, o)
	}
	return out
}

// SortByDate orders observations by date ascending, preserving input order
// within a date.
func SortByDate(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Date.Before(obs[j].Date.Time)
	})
}
