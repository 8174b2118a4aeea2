package ingest

import (
	"github.com/opensource-identity/harrier/internal/domain"
)

// Key is the natural key a file's rows are merged on.
type Key struct {
	IDPEntityID string
	IDPEventID  string
}

// Aggregated is one merged record plus the physical rows that produced it.
// Persistence failures are attributed to LastRow.
type Aggregated struct {
	Signal   *domain.FraudSignal
	FirstRow int
	LastRow  int
}

// Aggregator merges parsed records sharing a natural key. Rows are consumed
// in file order: the first row seen for a key supplies the scalar identity
// fields, every row contributes its contra-indicator counts and score.
// The merge is only final once the whole file has been consumed, since later
// rows can still add counts to an earlier key.
type Aggregator struct {
	order []Key
	byKey map[Key]*Aggregated
}

// NewAggregator creates an empty aggregator for one upload.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byKey: make(map[Key]*Aggregated),
	}
}

// Add merges one parsed record under its natural key.
func (a *Aggregator) Add(signal *domain.FraudSignal, rowNumber int) {
	key := Key{IDPEntityID: signal.IDPEntityID, IDPEventID: signal.IDPEventID}

	existing, ok := a.byKey[key]
	if !ok {
		a.byKey[key] = &Aggregated{
			Signal:   signal,
			FirstRow: rowNumber,
			LastRow:  rowNumber,
		}
		a.order = append(a.order, key)
		return
	}

	// First row wins for scalar identity fields; count fields accumulate.
	existing.Signal.ContraScore += signal.ContraScore
	for code, count := range signal.ContraIndicators {
		existing.Signal.ContraIndicators[code] += count
	}
	existing.LastRow = rowNumber
}

// Records returns the merged records in first-seen file order.
func (a *Aggregator) Records() []*Aggregated {
	records := make([]*Aggregated, 0, len(a.order))
	for _, key := range a.order {
		records = append(records, a.byKey[key])
	}
	return records
}

// Len returns the number of distinct natural keys seen.
func (a *Aggregator) Len() int {
	return len(a.byKey)
}
