package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"watch-deal-finder/internal/models"
)

// MemoryStore keeps deal documents in a map. Used for dry runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemory() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) UpsertDeals(ctx context.Context, deals []*models.Deal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	for _, batch := range batches(deals, defaultBatchSize) {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		for _, d := range batch {
			doc, err := encodeDeal(d)
			if err != nil {
				return written, err
			}
			if old, ok := m.docs[d.ID]; ok {
				if doc, err = mergeDocuments(old, doc); err != nil {
					return written, err
				}
			}
			m.docs[d.ID] = doc
			written++
		}
	}
	return written, nil
}

func (m *MemoryStore) GetDeal(_ context.Context, id string) (*models.Deal, error) {
	m.mu.RLock()
	doc, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDeal(doc)
}

func (m *MemoryStore) ListDeals(_ context.Context, filters *models.DealFilters) ([]*models.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	deals := make([]*models.Deal, 0, len(m.docs))
	for _, doc := range m.docs {
		d, err := decodeDeal(doc)
		if err != nil {
			return nil, err
		}
		if Matches(d, filters) {
			deals = append(deals, d)
		}
	}
	sort.Slice(deals, func(i, j int) bool {
		if !deals[i].LastUpdated.Equal(deals[j].LastUpdated) {
			return deals[i].LastUpdated.After(deals[j].LastUpdated)
		}
		return deals[i].ID < deals[j].ID
	})
	return deals, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// mergeDocuments overlays the top-level keys of update onto old.
func mergeDocuments(old, update []byte) ([]byte, error) {
	var base, patch map[string]json.RawMessage
	if err := json.Unmarshal(old, &base); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(update, &patch); err != nil {
		return nil, err
	}
	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}
