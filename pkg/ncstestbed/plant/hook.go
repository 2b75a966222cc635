package plant

import "log/slog"

// HookCollection is an ordered set of callables invoked defensively: a hook
// that panics is logged and swallowed, never aborting the remaining hooks or
// the caller.
type HookCollection struct {
	logger *slog.Logger
	fns    []func()
}

// NewHookCollection constructs an empty HookCollection.
func NewHookCollection(logger *slog.Logger) *HookCollection {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &HookCollection{logger: logger}
}

// Add appends fn to the collection. Iteration order equals insertion order.
func (h *HookCollection) Add(fn func()) {
	h.fns = append(h.fns, fn)
}

// Call invokes every registered hook in insertion order. Each hook runs
// under its own recover: a panic in one hook is logged and does not prevent
// later hooks from running or propagate to the caller.
func (h *HookCollection) Call() {
	for _, fn := range h.fns {
		h.callOne(fn)
	}
}

func (h *HookCollection) callOne(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("plant: hook panicked, continuing", "panic", r)
		}
	}()
	fn()
}

// ActuationHookCollection is the pre-sim variant: each hook receives the
// actuation about to be applied to the state.
type ActuationHookCollection struct {
	logger *slog.Logger
	fns    []func(actuation PPM)
}

// NewActuationHookCollection constructs an empty ActuationHookCollection.
func NewActuationHookCollection(logger *slog.Logger) *ActuationHookCollection {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &ActuationHookCollection{logger: logger}
}

// Add appends fn to the collection.
func (h *ActuationHookCollection) Add(fn func(actuation PPM)) {
	h.fns = append(h.fns, fn)
}

// Call invokes every registered hook in insertion order with actuation,
// recovering from any panic per hook.
func (h *ActuationHookCollection) Call(actuation PPM) {
	for _, fn := range h.fns {
		h.callOne(fn, actuation)
	}
}

func (h *ActuationHookCollection) callOne(fn func(PPM), actuation PPM) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("plant: pre-sim hook panicked, continuing", "panic", r)
		}
	}()
	fn(actuation)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
