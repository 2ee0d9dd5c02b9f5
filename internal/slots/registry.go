package slots

// Window holds the metadata reported by the window manager for one
// live window.
type Window struct {
	ID            string
	Caption       string
	ResourceClass string
}

// Registry tracks every live window by identity, whether or not it
// holds a key slot.
type Registry struct {
	windows map[string]Window
}

// NewRegistry creates an empty window registry.
func NewRegistry() *Registry {
	return &Registry{windows: make(map[string]Window)}
}

// Insert records a window, replacing any previous entry for the same
// identity.
func (r *Registry) Insert(w Window) {
	r.windows[w.ID] = w
}

// Remove deletes the window with the given identity. Returns false if
// the identity is unknown; the caller logs the inconsistency but is
// never failed by it.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.windows[id]; !ok {
		return false
	}
	delete(r.windows, id)
	return true
}

// Get returns the window recorded for id.
func (r *Registry) Get(id string) (Window, bool) {
	w, ok := r.windows[id]
	return w, ok
}

// Len returns the number of live windows.
func (r *Registry) Len() int {
	return len(r.windows)
}
