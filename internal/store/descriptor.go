package store

import (
	"fmt"

	"github.com/tracehive/datastore/internal/entitypath"
)

// ComponentDescriptor is a unique identifier for a logical column: an
// optional archetype name plus a component name (spec §3). Two
// descriptors are equal iff both parts match. Descriptors are cheap to
// copy and are interned into a Key for use as a map key everywhere
// downstream (the column store, the row index, the entity tree).
type ComponentDescriptor struct {
	Archetype string // may be empty
	Component string
}

// Key is the interned, comparable form of a ComponentDescriptor,
// suitable as a map key (spec §9: descriptors are interned, cheap to
// copy).
type Key struct {
	archetype string
	component string
}

// Key interns d.
func (d ComponentDescriptor) Key() Key {
	return Key{archetype: d.Archetype, component: d.Component}
}

func (d ComponentDescriptor) String() string {
	if d.Archetype == "" {
		return d.Component
	}
	return fmt.Sprintf("%s::%s", d.Archetype, d.Component)
}

// Descriptor recovers the descriptor a Key was interned from.
func (k Key) Descriptor() ComponentDescriptor {
	return ComponentDescriptor{Archetype: k.archetype, Component: k.component}
}

func (k Key) String() string { return k.Descriptor().String() }

// ColumnBatch is an opaque handle to a typed value, or list of values,
// for one component at one row. The store never interprets the
// contents of a batch; it only moves it around, counts its bytes, and
// (for clears) produces a same-type zero-instance copy. Concrete
// component types implement this outside the store (spec §1:
// "typed component definitions... are out of scope; we consume
// already-decoded typed columns from an external collaborator").
type ColumnBatch interface {
	// NumInstances is the number of logical values packed into this
	// batch (0 for an empty/cleared cell).
	NumInstances() int
	// SizeBytes is an approximation of the batch's heap footprint, used
	// by the garbage collector to size buckets.
	SizeBytes() int64
	// DataTypeName identifies the batch's underlying type for the
	// TypeMismatch check (spec §7): two batches for the same component
	// on the same entity/timeline must report the same name.
	DataTypeName() string
}

// Capabilities is the function-pointer table bound to a component at
// registration time (spec §9: "carry each component's behavior as a
// small table of function-pointers... rather than a vtable of deep
// methods"). It replaces dynamic dispatch with explicit plumbing the
// column store and the clear machinery can call without knowing the
// concrete Go type behind a ColumnBatch.
type Capabilities struct {
	// CloneEmptyCell returns a zero-instance batch of the same
	// underlying type as a sample batch previously seen for this
	// component; used to synthesize the empty cells a Clear inserts.
	CloneEmptyCell func(sample ColumnBatch) ColumnBatch
}

// Registry binds Capabilities to components the first time they are
// observed, keyed by Key so every entity/timeline sharing a component
// name shares one capability table. It also tracks the first-observed
// datatype per (component, entity, timeline) triple for the
// TypeMismatch check (spec §7).
type Registry struct {
	caps  map[Key]Capabilities
	types map[typeKey]string
}

// NewRegistry returns an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		caps:  make(map[Key]Capabilities),
		types: make(map[typeKey]string),
	}
}

// typeKey identifies one (component, entity, timeline) triple: the
// granularity at which TypeMismatch is checked (spec §7). Static cells
// use the staticTimeline sentinel.
type typeKey struct {
	component Key
	entity    entitypath.Hash
	timeline  string
}

// CheckType records typeName as the first-observed datatype for
// (d, entity, timeline) if this is the first cell ever seen at that
// triple, or verifies typeName agrees with what was recorded before.
func (r *Registry) CheckType(d ComponentDescriptor, entity entitypath.Hash, timeline, typeName string) error {
	k := typeKey{component: d.Key(), entity: entity, timeline: timeline}
	if prev, ok := r.types[k]; ok {
		if prev != typeName {
			return &StoreError{
				Kind: ErrTypeMismatch,
				Msg:  fmt.Sprintf("component %s on entity/timeline %q: datatype %q does not match first-observed %q", d.String(), timeline, typeName, prev),
			}
		}
		return nil
	}
	r.types[k] = typeName
	return nil
}

// Register binds caps to d, overwriting any prior binding. Call once
// per component type at first observation; later inserts reuse the
// binding.
func (r *Registry) Register(d ComponentDescriptor, caps Capabilities) {
	r.caps[d.Key()] = caps
}

// Lookup returns the capability table bound to d, if any.
func (r *Registry) Lookup(d ComponentDescriptor) (Capabilities, bool) {
	c, ok := r.caps[d.Key()]
	return c, ok
}

// EnsureRegistered binds default capabilities derived from sample if
// d has never been registered before. Ingestion calls this on first
// sight of a component so later clears always have a clone function
// available, even if the caller never registered one explicitly.
func (r *Registry) EnsureRegistered(d ComponentDescriptor, sample ColumnBatch) {
	if _, ok := r.caps[d.Key()]; ok {
		return
	}
	r.caps[d.Key()] = Capabilities{
		CloneEmptyCell: func(ColumnBatch) ColumnBatch { return emptyBatch{typeName: sample.DataTypeName()} },
	}
}

// emptyBatch is the fallback zero-instance ColumnBatch used when a
// component has no registered clone capability of its own: it carries
// no values but remembers the datatype name so TypeMismatch checks
// still compare sensibly against it.
type emptyBatch struct{ typeName string }

func (emptyBatch) NumInstances() int        { return 0 }
func (emptyBatch) SizeBytes() int64         { return 0 }
func (e emptyBatch) DataTypeName() string   { return e.typeName }
