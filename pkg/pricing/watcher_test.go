package pricing

import (
	"os"
	"testing"
	"time"
)

func waitForPrice(t *testing.T, table *Table, provider, model, wantInput string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	want := d(wantInput)
	for time.Now().Before(deadline) {
		if table.Get(provider, model).InputPer1K.Equal(want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("price for %s/%s never became %s (got %s)",
		provider, model, wantInput, table.Get(provider, model).InputPer1K)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	table := New(testLogger())
	path := writePricingFile(t, testPricingYAML)

	w := NewWatcher(table, WatcherConfig{Path: path, Debounce: 50 * time.Millisecond})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// Start performs the initial load.
	if !table.Get("openai", "gpt-4o").InputPer1K.Equal(d("0.0021")) {
		t.Fatalf("initial load missing: InputPer1K = %s", table.Get("openai", "gpt-4o").InputPer1K)
	}

	updated := `
providers:
  openai:
    models:
      gpt-4o:
        input_per_1k: 0.0042
        output_per_1k: 0.0168
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to rewrite pricing file: %v", err)
	}

	waitForPrice(t, table, "openai", "gpt-4o", "0.0042", 3*time.Second)
}

func TestWatcherKeepsTableOnBadReload(t *testing.T) {
	table := New(testLogger())
	path := writePricingFile(t, testPricingYAML)

	w := NewWatcher(table, WatcherConfig{Path: path, Debounce: 50 * time.Millisecond})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("providers: [broken"), 0o644); err != nil {
		t.Fatalf("failed to rewrite pricing file: %v", err)
	}

	// Give the debounced reload time to fire and fail.
	time.Sleep(500 * time.Millisecond)

	if !table.Get("openai", "gpt-4o").InputPer1K.Equal(d("0.0021")) {
		t.Errorf("previous table lost after failed reload: InputPer1K = %s",
			table.Get("openai", "gpt-4o").InputPer1K)
	}
}

func TestWatcherStartRequiresLoadableFile(t *testing.T) {
	table := New(testLogger())
	w := NewWatcher(table, WatcherConfig{Path: "/nonexistent/pricing.yaml"})
	if err := w.Start(); err == nil {
		w.Stop()
		t.Fatal("expected Start to fail for a missing file")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	table := New(testLogger())
	path := writePricingFile(t, testPricingYAML)

	w := NewWatcher(table, WatcherConfig{Path: path})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Stop()
	w.Stop()
}
