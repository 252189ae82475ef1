// Command validate checks stored observations for internal consistency:
// canonical region casing, source_id composition, and epiweek/date
// agreement. It opens the store configured through the environment, the
// same one the service uses, and exits nonzero when any check fails.
//
// Usage:
//
//	go run ./cmd/validate
//	STORAGE_DRIVER=postgres POSTGRES_DSN=... go run ./cmd/validate
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/fluview-etl/internal/config"
	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/epiweek"
	"github.com/couchcryptid/fluview-etl/internal/observability"
	"github.com/couchcryptid/fluview-etl/internal/store"
)

// maxReported caps per-check output so one systemic problem does not
// flood the terminal.
const maxReported = 20

// phase tracks pass/fail for one validation pass over the data.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)

	ctx := context.Background()
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	obs, err := st.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("read observations: %w", err)
	}

	fmt.Printf("validating %d observations from %s store\n", len(obs), cfg.StorageDriver)

	phases := []*phase{
		checkRegions(obs),
		checkSourceIDs(obs),
		checkEpiweekDates(obs),
	}

	failed := 0
	for _, p := range phases {
		if p.passed() {
			fmt.Printf("PASS %s\n", p.name)
			continue
		}
		failed++
		fmt.Printf("FAIL %s (%d problems)\n", p.name, len(p.errors))
		for i, msg := range p.errors {
			if i == maxReported {
				fmt.Printf("  ... %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Printf("  %s\n", msg)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(phases))
	}
	fmt.Println("all checks passed")
	return nil
}

// checkRegions verifies regions are stored uppercase and non-empty.
func checkRegions(obs []domain.Observation) *phase {
	p := &phase{name: "region casing"}
	for _, o := range obs {
		if o.Region == "" {
			p.errorf("%s: empty region", o.SourceID)
			continue
		}
		if o.Region != strings.ToUpper(o.Region) {
			p.errorf("%s: region %q is not uppercase", o.SourceID, o.Region)
		}
	}
	return p
}

// checkSourceIDs verifies every source_id is "<region-lower>-<epiweek>".
func checkSourceIDs(obs []domain.Observation) *phase {
	p := &phase{name: "source_id composition"}
	for _, o := range obs {
		want := strings.ToLower(o.Region) + "-" + strconv.Itoa(o.Epiweek)
		if o.SourceID != want {
			p.errorf("%s: want %q for region %q epiweek %d", o.SourceID, want, o.Region, o.Epiweek)
		}
	}
	return p
}

// checkEpiweekDates verifies each date is the Monday of its row's
// epiweek. Rows the legacy backfill had to skip carry a zero epiweek and
// show up here as findings, not crashes.
func checkEpiweekDates(obs []domain.Observation) *phase {
	p := &phase{name: "epiweek and date agreement"}
	for _, o := range obs {
		monday, err := epiweek.Monday(o.Epiweek)
		if err != nil {
			p.errorf("%s: epiweek %d: %v", o.SourceID, o.Epiweek, err)
			continue
		}
		if o.Date.IsZero() {
			p.errorf("%s: missing date", o.SourceID)
			continue
		}
		if !o.Date.Equal(monday) {
			p.errorf("%s: date %s is not the Monday of epiweek %d (%s)", o.SourceID, o.Date, o.Epiweek, domain.NewDay(monday))
		}
	}
	return p
}
