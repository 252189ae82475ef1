// Package export renders cleaned observations as CSV for the download
// endpoint and run archives.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/jszwec/csvutil"
)

// EncodeCSV writes obs to w with the canonical column header. The header is
// written even for zero rows, so consumers always see the schema. Missing
// values render as empty cells.
func EncodeCSV(w io.Writer, obs []domain.Observation) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if err := enc.EncodeHeader(domain.Observation{}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := enc.Encode(obs); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// SortForExport orders observations by region, then date, the order the CSV
// download serves. Input order is preserved within ties.
func SortForExport(obs []domain.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].Region != obs[j].Region {
			return obs[i].Region < obs[j].Region
		}
		return obs[i].Date.Before(obs[j].Date.Time)
	})
}
