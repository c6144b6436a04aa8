package storeconfig

import (
	"bytes"
	"encoding/json"
	"time"
)

// Config is the top-level store configuration (§6 of the spec).
type Config struct {
	IndexedBucketNumRows uint64  `json:"indexed-bucket-num-rows"`
	EnableStaticRows     bool    `json:"enable-static-rows"`
	GC                   GCKeys  `json:"gc"`
}

// GCKeys are the defaults applied by the background GC scheduler. A
// caller invoking GC directly may always override them per-call.
type GCKeys struct {
	DropAtLeastFraction float64 `json:"drop-at-least-fraction"`
	ProtectLatest       uint32  `json:"protect-latest"`
	PurgeEmptyTables    bool    `json:"purge-empty-tables"`
	TimeBudget          string  `json:"time-budget"`
	Interval            string  `json:"interval"`
}

// Default mirrors the spec's §6 defaults: 2048-row buckets, static rows
// enabled, and a conservative GC policy that protects the most recent
// row per series, with the background GC scheduler running every 5
// minutes.
func Default() Config {
	return Config{
		IndexedBucketNumRows: 2048,
		EnableStaticRows:     true,
		GC: GCKeys{
			DropAtLeastFraction: 0.5,
			ProtectLatest:       1,
			PurgeEmptyTables:    true,
			TimeBudget:          "50ms",
			Interval:            "5m",
		},
	}
}

// TimeBudgetDuration parses GCKeys.TimeBudget, returning 0 (no budget)
// if unset or unparseable.
func (k GCKeys) TimeBudgetDuration() time.Duration {
	if k.TimeBudget == "" {
		return 0
	}
	d, err := time.ParseDuration(k.TimeBudget)
	if err != nil {
		return 0
	}
	return d
}

// IntervalDuration parses GCKeys.Interval, returning 0 (disabled) if
// unset or unparseable.
func (k GCKeys) IntervalDuration() time.Duration {
	if k.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(k.Interval)
	if err != nil {
		return 0
	}
	return d
}

// Load validates raw against the embedded schema and decodes it into a
// Config seeded with Default() values, the way the teacher's
// memorystore.InitMetricStore validates then json.Decodes its config.
func Load(raw json.RawMessage) (Config, error) {
	cfg := Default()
	if raw == nil {
		return cfg, nil
	}

	if err := Validate(configSchema, raw); err != nil {
		return Config{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
