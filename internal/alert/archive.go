package alert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/parquet-go/parquet-go"

	"marketdesk/internal/domain"
)

// FiredRecord is the Parquet schema for the fired-alert archive.
type FiredRecord struct {
	ID          string  `parquet:"id"`
	Symbol      string  `parquet:"symbol"`
	Kind        string  `parquet:"kind"`
	TargetPrice float64 `parquet:"target_price"`
	FiredPrice  float64 `parquet:"fired_price"`
	FiredAt     int64   `parquet:"fired_at,timestamp(millisecond)"`
	Note        string  `parquet:"note"`
}

// Archive keeps an append-only Parquet record of fired alerts, one file per
// day. It outlives ClearFired, which only trims the live store.
type Archive struct {
	mu  sync.Mutex
	dir string
}

// NewArchive creates an Archive rooted at <dataDir>/alerts/fired.
func NewArchive(dataDir string) *Archive {
	return &Archive{dir: filepath.Join(dataDir, "alerts", "fired")}
}

// Append merges the given fired alerts into their per-day archive files,
// deduplicating by alert id.
func (ar *Archive) Append(alerts []domain.Alert) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	groups := make(map[string][]FiredRecord)
	for _, a := range alerts {
		if !a.Fired || a.FiredAt == nil {
			continue
		}
		rec := FiredRecord{
			ID:          a.ID,
			Symbol:      a.Symbol,
			Kind:        string(a.Kind),
			TargetPrice: a.TargetPrice.InexactFloat64(),
			FiredAt:     a.FiredAt.UnixMilli(),
			Note:        a.Note,
		}
		if a.FiredPrice != nil {
			rec.FiredPrice = a.FiredPrice.InexactFloat64()
		}
		date := a.FiredAt.UTC().Format("2006-01-02")
		groups[date] = append(groups[date], rec)
	}

	for date, records := range groups {
		path := ar.path(date)

		existing, _ := parquet.ReadFile[FiredRecord](path)
		merged := mergeFiredRecords(existing, records)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating archive dir: %w", err)
		}
		if err := parquet.WriteFile(path, merged); err != nil {
			return fmt.Errorf("writing archive for %s: %w", date, err)
		}
	}
	return nil
}

// Read returns the archived fired alerts for a date (YYYY-MM-DD), sorted by
// fire time. A missing day yields an empty slice.
func (ar *Archive) Read(date string) ([]FiredRecord, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	records, err := parquet.ReadFile[FiredRecord](ar.path(date))
	if err != nil {
		if os.IsNotExist(err) {
			return []FiredRecord{}, nil
		}
		return nil, fmt.Errorf("reading archive for %s: %w", date, err)
	}
	return records, nil
}

func (ar *Archive) path(date string) string {
	return filepath.Join(ar.dir, date+".parquet")
}

// mergeFiredRecords deduplicates by alert id, preferring incoming records.
// Results are sorted by fire time.
func mergeFiredRecords(existing, incoming []FiredRecord) []FiredRecord {
	seen := make(map[string]FiredRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = r
	}
	for _, r := range incoming {
		seen[r.ID] = r
	}

	merged := make([]FiredRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].FiredAt < merged[j].FiredAt
	})
	return merged
}
