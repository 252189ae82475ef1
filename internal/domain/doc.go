// Package domain models cleaned influenza surveillance observations.
//
// # Data Source
//
// Observations originate from the CDC FluView surveillance system, fetched
// through the CMU Delphi Epidata API (https://api.delphi.cmu.edu/). Each raw
// record reports a region and an epiweek along with "wili", the percentage of
// outpatient visits for influenza-like illness weighted by state population.
//
// # Epiweeks
//
// An epiweek is encoded as YYYYWW using ISO-8601 week numbering: week 1 is
// the week containing the year's first Thursday, weeks start on Monday, and
// a year has 52 or 53 weeks. The week-numbering year can differ from the
// calendar year near boundaries (2024-12-30 sits in epiweek 202501). The
// canonical date of an observation is always the Monday of its epiweek, so
// chart axes line up across regions. Conversion lives in the epiweek package.
//
// # Identity
//
// SourceID is "<region-lower>-<epiweek>", e.g. "ma-202501". The key is
// deterministic, so re-ingesting a week overwrites the earlier row via the
// store's upsert instead of duplicating it.
//
// # Missing Measurements
//
// A raw record whose epiweek cannot be recovered is dropped by the
// normalizer and reported in [NormalizeResult.Dropped]. A record whose
// measurement fails numeric coercion keeps its row with a nil Value,
// distinguishing "no measurement" from "no week".
package domain
