package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
	"github.com/vedprakash-m/sutra-ledger/pkg/costs"
)

var storageNow = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

// backends returns a constructor per backend so every test runs against both
// implementations.
func backends(t *testing.T) map[string]func(t *testing.T) Backend {
	t.Helper()
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
		"sqlite": func(t *testing.T) Backend {
			backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatalf("failed to create sqlite backend: %v", err)
			}
			t.Cleanup(func() { backend.Close() })
			return backend
		},
	}
}

func testEntry(id, userID, provider string, totalCost string, createdAt time.Time) *costs.Entry {
	total := decimal.RequireFromString(totalCost)
	return &costs.Entry{
		ID:               id,
		UserID:           userID,
		SessionID:        "session-1",
		Provider:         provider,
		Model:            "gpt-4o",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      1500,
		InputCost:        total.Div(decimal.NewFromInt(3)).Round(10),
		OutputCost:       total.Sub(total.Div(decimal.NewFromInt(3)).Round(10)),
		TotalCost:        total,
		ExecutionTimeMS:  640,
		RequestID:        "req-" + id,
		CreatedAt:        createdAt,
	}
}

func TestEntryRoundTrip(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			ctx := context.Background()

			entry := testEntry("e1", "u1", "openai", "0.0075", storageNow)
			entry.Metadata = map[string]any{"feature": "chat", "attempt": "2"}

			if err := backend.InsertEntry(ctx, entry); err != nil {
				t.Fatalf("InsertEntry failed: %v", err)
			}

			got, err := backend.QueryEntries(ctx, costs.EntryFilter{UserID: "u1"})
			if err != nil {
				t.Fatalf("QueryEntries failed: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("got %d entries, want 1", len(got))
			}

			e := got[0]
			if e.ID != "e1" || e.Provider != "openai" || e.Model != "gpt-4o" {
				t.Errorf("identity fields lost: %+v", e)
			}
			if e.TotalTokens != 1500 {
				t.Errorf("TotalTokens = %d, want 1500", e.TotalTokens)
			}
			if !e.TotalCost.Equal(entry.TotalCost) {
				t.Errorf("TotalCost = %s, want %s", e.TotalCost, entry.TotalCost)
			}
			if !e.InputCost.Add(e.OutputCost).Equal(e.TotalCost) {
				t.Errorf("cost components %s + %s != total %s", e.InputCost, e.OutputCost, e.TotalCost)
			}
			if !e.CreatedAt.Equal(storageNow) {
				t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, storageNow)
			}
			if e.Metadata["feature"] != "chat" {
				t.Errorf("Metadata = %v, want feature=chat", e.Metadata)
			}
		})
	}
}

func TestQueryEntriesFilters(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			ctx := context.Background()

			seed := []*costs.Entry{
				testEntry("e1", "u1", "openai", "1", storageNow.Add(-3*time.Hour)),
				testEntry("e2", "u1", "anthropic", "2", storageNow.Add(-2*time.Hour)),
				testEntry("e3", "u2", "openai", "4", storageNow.Add(-time.Hour)),
				testEntry("e4", "u1", "openai", "8", storageNow),
			}
			for _, e := range seed {
				if err := backend.InsertEntry(ctx, e); err != nil {
					t.Fatalf("InsertEntry failed: %v", err)
				}
			}

			// User filter, ascending order.
			got, err := backend.QueryEntries(ctx, costs.EntryFilter{UserID: "u1"})
			if err != nil {
				t.Fatalf("QueryEntries failed: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("user filter: got %d entries, want 3", len(got))
			}
			for i := 1; i < len(got); i++ {
				if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
					t.Error("entries not ordered by creation time ascending")
				}
			}

			// Provider filter.
			got, err = backend.QueryEntries(ctx, costs.EntryFilter{UserID: "u1", Providers: []string{"anthropic"}})
			if err != nil {
				t.Fatalf("QueryEntries failed: %v", err)
			}
			if len(got) != 1 || got[0].ID != "e2" {
				t.Errorf("provider filter: got %v, want [e2]", entryIDs(got))
			}

			// Half-open window: Start inclusive, End exclusive.
			got, err = backend.QueryEntries(ctx, costs.EntryFilter{
				Start: storageNow.Add(-2 * time.Hour),
				End:   storageNow,
			})
			if err != nil {
				t.Fatalf("QueryEntries failed: %v", err)
			}
			if len(got) != 2 || got[0].ID != "e2" || got[1].ID != "e3" {
				t.Errorf("window filter: got %v, want [e2 e3]", entryIDs(got))
			}

			// Empty filter matches everything.
			got, err = backend.QueryEntries(ctx, costs.EntryFilter{})
			if err != nil {
				t.Fatalf("QueryEntries failed: %v", err)
			}
			if len(got) != 4 {
				t.Errorf("empty filter: got %d entries, want 4", len(got))
			}
		})
	}
}

func entryIDs(entries []*costs.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func testLimit(id, name string, createdAt time.Time) *budget.Limit {
	return &budget.Limit{
		ID:     id,
		Name:   name,
		Amount: decimal.RequireFromString("100"),
		Period: budget.PeriodMonthly,
		AppliesTo: budget.Applicability{
			Users:     []string{"u1", "u2"},
			Providers: []string{"openai"},
		},
		Thresholds: []int{50, 90, 100},
		Actions: map[int]budget.Action{
			50:  budget.ActionWarnOnly,
			90:  budget.ActionRestrictExpensive,
			100: budget.ActionBlockExecution,
		},
		CreatedBy: "admin-1",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Active:    true,
	}
}

func TestLimitRoundTrip(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			ctx := context.Background()

			limit := testLimit("l1", "team-monthly", storageNow)
			if err := backend.SaveLimit(ctx, limit); err != nil {
				t.Fatalf("SaveLimit failed: %v", err)
			}

			got, err := backend.GetLimit(ctx, "l1")
			if err != nil {
				t.Fatalf("GetLimit failed: %v", err)
			}
			if got == nil {
				t.Fatal("limit not found after save")
			}
			if got.Name != "team-monthly" || got.Period != budget.PeriodMonthly {
				t.Errorf("identity fields lost: %+v", got)
			}
			if !got.Amount.Equal(limit.Amount) {
				t.Errorf("Amount = %s, want %s", got.Amount, limit.Amount)
			}
			if len(got.Thresholds) != 3 || got.Thresholds[1] != 90 {
				t.Errorf("Thresholds = %v, want [50 90 100]", got.Thresholds)
			}
			if got.Actions[100] != budget.ActionBlockExecution {
				t.Errorf("Actions[100] = %q, want block_execution", got.Actions[100])
			}
			if len(got.AppliesTo.Users) != 2 || got.AppliesTo.Users[0] != "u1" {
				t.Errorf("AppliesTo.Users = %v, want [u1 u2]", got.AppliesTo.Users)
			}
			if !got.CreatedAt.Equal(storageNow) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, storageNow)
			}

			// Absent limit is (nil, nil), not an error.
			missing, err := backend.GetLimit(ctx, "no-such-limit")
			if err != nil {
				t.Fatalf("GetLimit failed: %v", err)
			}
			if missing != nil {
				t.Errorf("missing limit = %+v, want nil", missing)
			}
		})
	}
}

func TestSaveLimitUpsert(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			ctx := context.Background()

			limit := testLimit("l1", "team-monthly", storageNow)
			if err := backend.SaveLimit(ctx, limit); err != nil {
				t.Fatalf("SaveLimit failed: %v", err)
			}

			limit.Amount = decimal.RequireFromString("250")
			limit.Active = false
			limit.UpdatedAt = storageNow.Add(time.Hour)
			if err := backend.SaveLimit(ctx, limit); err != nil {
				t.Fatalf("SaveLimit (update) failed: %v", err)
			}

			got, err := backend.GetLimit(ctx, "l1")
			if err != nil {
				t.Fatalf("GetLimit failed: %v", err)
			}
			if !got.Amount.Equal(decimal.RequireFromString("250")) {
				t.Errorf("Amount = %s, want 250", got.Amount)
			}
			if got.Active {
				t.Error("Active = true, want false after update")
			}
		})
	}
}

func TestListLimitsActiveOnly(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			ctx := context.Background()

			active := testLimit("l1", "active-budget", storageNow.Add(-time.Hour))
			inactive := testLimit("l2", "retired-budget", storageNow)
			inactive.Active = false
			for _, l := range []*budget.Limit{active, inactive} {
				if err := backend.SaveLimit(ctx, l); err != nil {
					t.Fatalf("SaveLimit failed: %v", err)
				}
			}

			all, err := backend.ListLimits(ctx, false)
			if err != nil {
				t.Fatalf("ListLimits failed: %v", err)
			}
			if len(all) != 2 {
				t.Errorf("all limits: got %d, want 2", len(all))
			}

			activeOnly, err := backend.ListLimits(ctx, true)
			if err != nil {
				t.Fatalf("ListLimits failed: %v", err)
			}
			if len(activeOnly) != 1 || activeOnly[0].ID != "l1" {
				t.Errorf("active limits: got %d, want just l1", len(activeOnly))
			}
		})
	}
}

func TestOverrideRoundTrip(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			ctx := context.Background()

			expires := storageNow.Add(24 * time.Hour)
			withExpiry := &budget.Override{
				ID:            "o1",
				BudgetID:      "l1",
				UserID:        "u1",
				AdminUserID:   "admin-1",
				Type:          "temporary_increase",
				OriginalLimit: decimal.RequireFromString("100"),
				NewLimit:      decimal.RequireFromString("200"),
				Reason:        "release week",
				CreatedAt:     storageNow.Add(-time.Hour),
				ExpiresAt:     &expires,
				Active:        true,
			}
			unbounded := &budget.Override{
				ID:            "o2",
				BudgetID:      "l1",
				UserID:        "u1",
				AdminUserID:   "admin-1",
				OriginalLimit: decimal.RequireFromString("100"),
				NewLimit:      decimal.RequireFromString("500"),
				CreatedAt:     storageNow,
				Active:        true,
			}
			otherUser := &budget.Override{
				ID:            "o3",
				BudgetID:      "l1",
				UserID:        "u2",
				OriginalLimit: decimal.RequireFromString("100"),
				NewLimit:      decimal.RequireFromString("300"),
				CreatedAt:     storageNow,
				Active:        true,
			}
			for _, o := range []*budget.Override{withExpiry, unbounded, otherUser} {
				if err := backend.SaveOverride(ctx, o); err != nil {
					t.Fatalf("SaveOverride failed: %v", err)
				}
			}

			got, err := backend.ListOverrides(ctx, "l1", "u1")
			if err != nil {
				t.Fatalf("ListOverrides failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d overrides, want 2", len(got))
			}

			// Ordered by creation time ascending.
			if got[0].ID != "o1" || got[1].ID != "o2" {
				t.Errorf("order = [%s %s], want [o1 o2]", got[0].ID, got[1].ID)
			}

			if got[0].ExpiresAt == nil || !got[0].ExpiresAt.Equal(expires) {
				t.Errorf("ExpiresAt = %v, want %v", got[0].ExpiresAt, expires)
			}
			if got[1].ExpiresAt != nil {
				t.Errorf("ExpiresAt = %v, want nil", got[1].ExpiresAt)
			}
			if !got[0].NewLimit.Equal(decimal.RequireFromString("200")) {
				t.Errorf("NewLimit = %s, want 200", got[0].NewLimit)
			}
			if got[0].Reason != "release week" || got[0].Type != "temporary_increase" {
				t.Errorf("descriptive fields lost: %+v", got[0])
			}
		})
	}
}

func TestSaveOverrideUpsert(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			ctx := context.Background()

			override := &budget.Override{
				ID:            "o1",
				BudgetID:      "l1",
				UserID:        "u1",
				OriginalLimit: decimal.RequireFromString("100"),
				NewLimit:      decimal.RequireFromString("200"),
				CreatedAt:     storageNow,
				Active:        true,
			}
			if err := backend.SaveOverride(ctx, override); err != nil {
				t.Fatalf("SaveOverride failed: %v", err)
			}

			override.Active = false
			if err := backend.SaveOverride(ctx, override); err != nil {
				t.Fatalf("SaveOverride (revoke) failed: %v", err)
			}

			got, err := backend.ListOverrides(ctx, "l1", "u1")
			if err != nil {
				t.Fatalf("ListOverrides failed: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("got %d overrides, want 1", len(got))
			}
			if got[0].Active {
				t.Error("Active = true, want false after revoke")
			}
		})
	}
}

func TestInsertValidation(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			backend := newBackend(t)
			ctx := context.Background()

			if err := backend.InsertEntry(ctx, nil); err == nil {
				t.Error("nil entry accepted")
			}
			if err := backend.InsertEntry(ctx, &costs.Entry{}); err == nil {
				t.Error("entry without ID accepted")
			}
			if err := backend.SaveLimit(ctx, &budget.Limit{}); err == nil {
				t.Error("limit without ID accepted")
			}
			if err := backend.SaveOverride(ctx, &budget.Override{}); err == nil {
				t.Error("override without ID accepted")
			}
		})
	}
}

func TestMemoryBackendIsolation(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	limit := testLimit("l1", "team-monthly", storageNow)
	if err := backend.SaveLimit(ctx, limit); err != nil {
		t.Fatalf("SaveLimit failed: %v", err)
	}

	// Mutating a returned copy must not leak into the store.
	got, _ := backend.GetLimit(ctx, "l1")
	got.Name = "mutated"
	got.Thresholds[0] = 1
	got.Actions[50] = budget.ActionBlockExecution

	fresh, _ := backend.GetLimit(ctx, "l1")
	if fresh.Name != "team-monthly" {
		t.Errorf("Name = %q, stored value mutated through a returned copy", fresh.Name)
	}
	if fresh.Thresholds[0] != 50 {
		t.Errorf("Thresholds[0] = %d, stored value mutated", fresh.Thresholds[0])
	}
	if fresh.Actions[50] != budget.ActionWarnOnly {
		t.Errorf("Actions[50] = %q, stored value mutated", fresh.Actions[50])
	}

	// Mutating the caller's limit after save must not change the store.
	limit.Name = "changed-later"
	fresh, _ = backend.GetLimit(ctx, "l1")
	if fresh.Name != "team-monthly" {
		t.Error("stored limit aliased the caller's value")
	}
}
