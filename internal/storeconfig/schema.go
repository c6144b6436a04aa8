package storeconfig

// configSchema describes the shape accepted by Config. It mirrors the
// checkpoints/retention style configuration blocks of the store this was
// ported from, trimmed to what this in-memory core actually needs.
const configSchema = `{
	"type": "object",
	"description": "Configuration for the entity-component data store.",
	"properties": {
		"indexed-bucket-num-rows": {
			"description": "Maximum number of rows held by a single column bucket before it is split.",
			"type": "integer",
			"minimum": 1
		},
		"enable-static-rows": {
			"description": "Whether rows with an empty time point (static rows) are tracked and override temporal rows on latest-at queries.",
			"type": "boolean"
		},
		"gc": {
			"description": "Default garbage-collection policy applied by the background GC scheduler.",
			"type": "object",
			"properties": {
				"drop-at-least-fraction": {
					"description": "Fraction [0..1] of current store size to drop per GC pass.",
					"type": "number",
					"minimum": 0,
					"maximum": 1
				},
				"protect-latest": {
					"description": "Number of most recent rows per (entity, component) series that GC must never drop.",
					"type": "integer",
					"minimum": 0
				},
				"purge-empty-tables": {
					"description": "Whether to prune entity-tree nodes left empty after a GC pass.",
					"type": "boolean"
				},
				"time-budget": {
					"description": "Wall-clock budget for a single GC pass, as a Go duration string (e.g. '50ms').",
					"type": "string"
				},
				"interval": {
					"description": "How often the background GC scheduler runs, as a Go duration string.",
					"type": "string"
				}
			}
		}
	}
}`

// Schema returns the embedded JSON Schema document used to validate
// raw configuration before it is decoded into a Config.
func Schema() string { return configSchema }
