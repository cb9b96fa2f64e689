// Package registry holds the process-wide, observable collection of accepted
// bills. The snapshot mirrors backend state at the last refresh and is
// replaced wholesale; readers never observe a partial list. Bills enter only
// via a successful save or list fetch and are never deleted locally.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/koushikb/bill-intake/internal/models"
)

var (
	// ErrUnknownBill is returned when a display key resolves to no entry
	ErrUnknownBill = errors.New("no bill with that key")

	// ErrScoreInFlight is returned when a risk-score request for the same
	// bill is already outstanding
	ErrScoreInFlight = errors.New("risk scoring already in progress for this bill")
)

// Service is the slice of the backend client the registry depends on.
type Service interface {
	List(ctx context.Context) ([]models.Bill, error)
	RiskScore(ctx context.Context, bill models.Bill) ([]models.Bill, error)
}

// Entry pairs a bill with its synthesized display key. The key correlates UI
// selection across refreshes; it is not a backend identity.
type Entry struct {
	Key  string      `json:"id"`
	Bill models.Bill `json:"bill"`
}

// DisplayKey synthesizes the deterministic display key for a bill at a given
// position in the backend response. The same backend ordering always yields
// the same keys.
func DisplayKey(invoiceNumber, vendor string, index int) string {
	return fmt.Sprintf("%s-%s-%d", invoiceNumber, vendor, index)
}

// Registry is the shared bill snapshot: single writer, many readers.
type Registry struct {
	mu          sync.RWMutex
	entries     []Entry
	selectedKey string

	scoringMu sync.Mutex
	scoring   map[string]struct{}

	service Service
	logger  *zap.Logger
}

// New creates an empty registry over the given backend service.
func New(service Service, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		scoring: make(map[string]struct{}),
		service: service,
		logger:  logger,
	}
}

// Refresh fetches the full list and replaces the snapshot atomically. A
// failed fetch degrades to an empty snapshot rather than surfacing an error;
// a transient outage shows "no bills", not a broken view.
func (r *Registry) Refresh(ctx context.Context) {
	bills, err := r.service.List(ctx)
	if err != nil {
		r.logger.Warn("List fetch failed, degrading to empty snapshot", zap.Error(err))
		r.replace(nil)
		return
	}
	r.replace(bills)
}

// ScoreRisk asks the backend to score the bill behind the given display key,
// then replaces the snapshot with the returned full list. A second request
// for the same key while one is outstanding is suppressed; requests for
// different keys run independently.
func (r *Registry) ScoreRisk(ctx context.Context, key string) error {
	r.mu.RLock()
	entry, ok := r.lookup(key)
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownBill
	}

	r.scoringMu.Lock()
	if _, busy := r.scoring[key]; busy {
		r.scoringMu.Unlock()
		return ErrScoreInFlight
	}
	r.scoring[key] = struct{}{}
	r.scoringMu.Unlock()

	defer func() {
		r.scoringMu.Lock()
		delete(r.scoring, key)
		r.scoringMu.Unlock()
	}()

	bills, err := r.service.RiskScore(ctx, entry.Bill)
	if err != nil {
		// The snapshot stays as-is; only refresh failures degrade it.
		return fmt.Errorf("risk scoring failed: %w", err)
	}

	r.replace(bills)

	r.logger.Info("Risk score updated",
		zap.String("key", key),
		zap.Int("bill_count", len(bills)))

	return nil
}

// Upsert appends a locally accepted bill so it is visible before the next
// wholesale refresh.
func (r *Registry) Upsert(bill models.Bill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		Key:  DisplayKey(bill.InvoiceNumber, bill.Vendor, len(r.entries)),
		Bill: bill,
	})
}

// Snapshot returns a copy of the current entries.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.entries...)
}

// Filter returns entries whose vendor, invoice number or item contains the
// query, case-insensitively. A pure read-side projection: it never mutates
// the snapshot or triggers a refetch.
func (r *Registry) Filter(query string) []Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return r.Snapshot()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if strings.Contains(strings.ToLower(e.Bill.Vendor), query) ||
			strings.Contains(strings.ToLower(e.Bill.InvoiceNumber), query) ||
			strings.Contains(strings.ToLower(e.Bill.Item), query) {
			matched = append(matched, e)
		}
	}
	return matched
}

// Select marks the entry with the given key as the current selection.
func (r *Registry) Select(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lookup(key); !ok {
		return ErrUnknownBill
	}
	r.selectedKey = key
	return nil
}

// Selected re-resolves the held selection against the current snapshot.
// Object identity is not preserved across replaces, so the selection is a
// key, not a reference; a selection whose key vanished reports not-found.
func (r *Registry) Selected() (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selectedKey == "" {
		return Entry{}, false
	}
	return r.lookup(r.selectedKey)
}

// ClearSelection drops the held selection.
func (r *Registry) ClearSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectedKey = ""
}

// replace swaps in a new snapshot built from the backend ordering and
// re-resolves the held selection by key.
func (r *Registry) replace(bills []models.Bill) {
	entries := make([]Entry, len(bills))
	for i, b := range bills {
		entries[i] = Entry{
			Key:  DisplayKey(b.InvoiceNumber, b.Vendor, i),
			Bill: b,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	if r.selectedKey != "" {
		if _, ok := r.lookup(r.selectedKey); !ok {
			r.selectedKey = ""
		}
	}
}

// lookup finds an entry by key. Caller holds at least a read lock.
func (r *Registry) lookup(key string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}
