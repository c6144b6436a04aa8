package storeconfig

import "testing"

func TestDefaultMatchesSpec(t *testing.T) {
	cfg := Default()
	if cfg.IndexedBucketNumRows != 2048 {
		t.Errorf("IndexedBucketNumRows = %d, want 2048", cfg.IndexedBucketNumRows)
	}
	if !cfg.EnableStaticRows {
		t.Error("expected EnableStaticRows default to be true")
	}
	if cfg.GC.ProtectLatest != 1 {
		t.Errorf("ProtectLatest = %d, want 1", cfg.GC.ProtectLatest)
	}
}

func TestLoadOverridesDefault(t *testing.T) {
	raw := []byte(`{"indexed-bucket-num-rows": 64, "gc": {"protect-latest": 10}}`)
	cfg, err := Load(raw)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IndexedBucketNumRows != 64 {
		t.Errorf("IndexedBucketNumRows = %d, want 64", cfg.IndexedBucketNumRows)
	}
	if cfg.GC.ProtectLatest != 10 {
		t.Errorf("ProtectLatest = %d, want 10", cfg.GC.ProtectLatest)
	}
	// Untouched fields keep their Default() values.
	if !cfg.EnableStaticRows {
		t.Error("expected EnableStaticRows to remain true")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	raw := []byte(`{"indexed-bucket-num-rows": 0}`)
	if _, err := Load(raw); err == nil {
		t.Fatal("expected schema validation to reject a zero bucket cap")
	}
}

func TestDurationParsing(t *testing.T) {
	k := GCKeys{TimeBudget: "50ms", Interval: "bogus"}
	if k.TimeBudgetDuration().String() != "50ms" {
		t.Errorf("TimeBudgetDuration = %v, want 50ms", k.TimeBudgetDuration())
	}
	if k.IntervalDuration() != 0 {
		t.Errorf("IntervalDuration for unparseable string = %v, want 0", k.IntervalDuration())
	}
}
