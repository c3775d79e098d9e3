package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
	"github.com/vedprakash-m/sutra-ledger/pkg/costs"
)

// MemoryBackend implements Backend with in-memory maps. All data is lost
// when the process exits. It is thread-safe via sync.RWMutex and is the
// default backend for tests and ephemeral deployments.
type MemoryBackend struct {
	mu sync.RWMutex

	// entries is append-only, kept in insertion order.
	entries []*costs.Entry

	// limits maps limit ID to limit.
	limits map[string]*budget.Limit

	// overrides maps override ID to override.
	overrides map[string]*budget.Override
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		limits:    make(map[string]*budget.Limit),
		overrides: make(map[string]*budget.Override),
	}
}

// InsertEntry appends a cost entry.
func (m *MemoryBackend) InsertEntry(_ context.Context, entry *costs.Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.ID == "" {
		return fmt.Errorf("entry id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cloned := *entry
	m.entries = append(m.entries, &cloned)
	return nil
}

// QueryEntries returns entries matching the filter, ordered by creation time
// ascending. The time window is half-open, [Start, End).
func (m *MemoryBackend) QueryEntries(_ context.Context, filter costs.EntryFilter) ([]*costs.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*costs.Entry
	for _, entry := range m.entries {
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if !filter.Start.IsZero() && entry.CreatedAt.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && !entry.CreatedAt.Before(filter.End) {
			continue
		}
		if len(filter.Providers) > 0 && !containsString(filter.Providers, entry.Provider) {
			continue
		}

		cloned := *entry
		matched = append(matched, &cloned)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

// SaveLimit inserts or replaces a budget limit.
func (m *MemoryBackend) SaveLimit(_ context.Context, limit *budget.Limit) error {
	if limit == nil {
		return fmt.Errorf("limit cannot be nil")
	}
	if limit.ID == "" {
		return fmt.Errorf("limit id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cloned := cloneLimit(limit)
	m.limits[limit.ID] = cloned
	return nil
}

// GetLimit returns the limit with the given ID, or nil if absent.
func (m *MemoryBackend) GetLimit(_ context.Context, id string) (*budget.Limit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit, ok := m.limits[id]
	if !ok {
		return nil, nil
	}
	return cloneLimit(limit), nil
}

// ListLimits returns all limits, optionally only active ones, ordered by
// creation time ascending.
func (m *MemoryBackend) ListLimits(_ context.Context, activeOnly bool) ([]*budget.Limit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var limits []*budget.Limit
	for _, limit := range m.limits {
		if activeOnly && !limit.Active {
			continue
		}
		limits = append(limits, cloneLimit(limit))
	}

	sort.Slice(limits, func(i, j int) bool {
		return limits[i].CreatedAt.Before(limits[j].CreatedAt)
	})

	return limits, nil
}

// SaveOverride inserts or replaces an admin override.
func (m *MemoryBackend) SaveOverride(_ context.Context, override *budget.Override) error {
	if override == nil {
		return fmt.Errorf("override cannot be nil")
	}
	if override.ID == "" {
		return fmt.Errorf("override id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cloned := cloneOverride(override)
	m.overrides[override.ID] = cloned
	return nil
}

// ListOverrides returns all overrides for a (budget, user) pair, including
// inactive and expired ones, ordered by creation time ascending.
func (m *MemoryBackend) ListOverrides(_ context.Context, budgetID, userID string) ([]*budget.Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var overrides []*budget.Override
	for _, override := range m.overrides {
		if override.BudgetID != budgetID || override.UserID != userID {
			continue
		}
		overrides = append(overrides, cloneOverride(override))
	}

	sort.Slice(overrides, func(i, j int) bool {
		return overrides[i].CreatedAt.Before(overrides[j].CreatedAt)
	})

	return overrides, nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

func cloneLimit(limit *budget.Limit) *budget.Limit {
	cloned := *limit
	cloned.Thresholds = append([]int(nil), limit.Thresholds...)
	cloned.Actions = make(map[int]budget.Action, len(limit.Actions))
	for k, v := range limit.Actions {
		cloned.Actions[k] = v
	}
	cloned.AppliesTo = budget.Applicability{
		Users:         append([]string(nil), limit.AppliesTo.Users...),
		Organizations: append([]string(nil), limit.AppliesTo.Organizations...),
		Providers:     append([]string(nil), limit.AppliesTo.Providers...),
	}
	return &cloned
}

func cloneOverride(override *budget.Override) *budget.Override {
	cloned := *override
	if override.ExpiresAt != nil {
		expires := *override.ExpiresAt
		cloned.ExpiresAt = &expires
	}
	return &cloned
}

func containsString(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}
