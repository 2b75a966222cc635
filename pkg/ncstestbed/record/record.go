// Package record implements the Recordable/Recorder instrumentation
// substrate: typed, schema-bound records pushed by producers and fanned out
// to zero or more recorders without blocking the producer.
package record

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSchema is returned by PushRecord when the supplied values don't match
// the Recordable's schema: a required field is missing, or an unknown field
// was supplied. This is a programmer error and is never recoverable at the
// call site — callers are expected to fail fast.
var ErrSchema = errors.New("record: schema violation")

// Recorder consumes records pushed to exactly one Recordable, in push order.
type Recorder interface {
	// Initialize is called once before the first Notify.
	Initialize() error
	// Notify delivers one record. Called synchronously from PushRecord, in
	// push order, for a given Recordable.
	Notify(rec Record)
	// Flush may be called concurrently with Notify from any goroutine.
	Flush()
	// Shutdown blocks until all buffered data is durable. No Notify call
	// happens after Shutdown returns.
	Shutdown()
}

// Record is one immutable, schema-bound value. Field order matches the
// Recordable's field list.
type Record struct {
	fields []string
	values map[string]any
}

// Fields returns the record's schema, in declaration order.
func (r Record) Fields() []string { return r.fields }

// Get returns the value bound to field name, and whether it was present.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Recordable owns a fixed field schema and the set of recorders attached to
// it. PushRecord assumes a single producer goroutine per Recordable (the
// controller service and the plant loop each own one).
type Recordable struct {
	name     string
	fields   []string
	required map[string]bool
	defaults map[string]any

	mu        sync.Mutex
	recorders []Recorder
}

// NewRecordable constructs a Recordable with the given required fields and
// an optional map of defaulted (optional) fields. The full field list is
// the required fields, in the order given, followed by the keys of
// defaults; the order among the defaulted fields is not defined.
func NewRecordable(name string, requiredFields []string, defaults map[string]any) *Recordable {
	fields := make([]string, 0, len(requiredFields)+len(defaults))
	fields = append(fields, requiredFields...)

	required := make(map[string]bool, len(requiredFields))
	for _, f := range requiredFields {
		required[f] = true
	}

	defaultsCopy := make(map[string]any, len(defaults))
	for k, v := range defaults {
		defaultsCopy[k] = v
		fields = append(fields, k)
	}

	return &Recordable{
		name:     name,
		fields:   fields,
		required: required,
		defaults: defaultsCopy,
	}
}

// Name returns the Recordable's name, used by recorders for labeling output.
func (rb *Recordable) Name() string { return rb.name }

// Fields returns the full field schema (required then optional), in order.
func (rb *Recordable) Fields() []string { return rb.fields }

// Attach registers recorder to receive notifications from this Recordable.
// Recorders attach themselves at construction time (see NewCSVRecorder).
func (rb *Recordable) Attach(recorder Recorder) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.recorders = append(rb.recorders, recorder)
}

// Recorders returns the recorders currently attached, in attach order.
func (rb *Recordable) Recorders() []Recorder {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	out := make([]Recorder, len(rb.recorders))
	copy(out, rb.recorders)
	return out
}

// PushRecord validates values against the schema, fills optional fields
// from their defaults, and notifies every attached recorder in attach
// order. It returns ErrSchema if a required field is missing or an unknown
// field is present.
func (rb *Recordable) PushRecord(values map[string]any) error {
	for name := range values {
		if !rb.required[name] {
			if _, isOptional := rb.defaults[name]; !isOptional {
				return fmt.Errorf("%w: unknown field %q on %q", ErrSchema, name, rb.name)
			}
		}
	}
	for name := range rb.required {
		if _, ok := values[name]; !ok {
			return fmt.Errorf("%w: missing required field %q on %q", ErrSchema, name, rb.name)
		}
	}

	resolved := make(map[string]any, len(rb.fields))
	for name, def := range rb.defaults {
		resolved[name] = def
	}
	for name, v := range values {
		resolved[name] = v
	}

	rec := Record{fields: rb.fields, values: resolved}

	rb.mu.Lock()
	recorders := make([]Recorder, len(rb.recorders))
	copy(recorders, rb.recorders)
	rb.mu.Unlock()

	for _, r := range recorders {
		r.Notify(rec)
	}
	return nil
}
