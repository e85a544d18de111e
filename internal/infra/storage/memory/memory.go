package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/zerofail/internal/core/domain"
	"github.com/vietddude/zerofail/internal/infra/storage"
)

// MemoryStorage keeps delivery records and signals in process memory.
// It is the default backend when no database is configured.
type MemoryStorage struct {
	records map[string]*domain.DeliveryRecord
	signals []domain.EscalationSignal
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*domain.DeliveryRecord),
	}
}

// -----------------------------------------------------------------------------
// Delivery Repository
// -----------------------------------------------------------------------------

type DeliveryRepo struct {
	store *MemoryStorage
}

func NewDeliveryRepo(store *MemoryStorage) *DeliveryRepo {
	return &DeliveryRepo{store: store}
}

func (r *DeliveryRepo) Save(ctx context.Context, rec *domain.DeliveryRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *rec
	r.store.records[rec.ID] = &cp
	return nil
}

func (r *DeliveryRepo) Get(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rec, ok := r.store.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *DeliveryRepo) Recent(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	all := r.snapshot()
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt > all[j].CreatedAt
		}
		return all[i].ID > all[j].ID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *DeliveryRepo) SummaryBySource(ctx context.Context, since int64) ([]domain.SourceSummary, error) {
	return storage.Summarize(r.snapshot(), since), nil
}

func (r *DeliveryRepo) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, rec := range r.store.records {
		if rec.CreatedAt < cutoff {
			delete(r.store.records, id)
			n++
		}
	}
	return n, nil
}

func (r *DeliveryRepo) snapshot() []*domain.DeliveryRecord {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.DeliveryRecord, 0, len(r.store.records))
	for _, rec := range r.store.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// -----------------------------------------------------------------------------
// Signal Repository
// -----------------------------------------------------------------------------

type SignalRepo struct {
	store *MemoryStorage
	limit int
}

// NewSignalRepo keeps at most limit signals; 0 means unbounded.
func NewSignalRepo(store *MemoryStorage, limit int) *SignalRepo {
	return &SignalRepo{store: store, limit: limit}
}

func (r *SignalRepo) SaveSignal(ctx context.Context, s domain.EscalationSignal) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.signals = append(r.store.signals, s)
	if r.limit > 0 && len(r.store.signals) > r.limit {
		r.store.signals = r.store.signals[len(r.store.signals)-r.limit:]
	}
	return nil
}

func (r *SignalRepo) RecentSignals(ctx context.Context, limit int) ([]domain.EscalationSignal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := len(r.store.signals)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.EscalationSignal, 0, n)
	for i := len(r.store.signals) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.store.signals[i])
	}
	return out, nil
}

var (
	_ storage.DeliveryRepository = (*DeliveryRepo)(nil)
	_ storage.SignalRepository   = (*SignalRepo)(nil)
)
