package minireq

import "strings"

// headerField is one wire header, preserving the caller's original casing.
type headerField struct {
	name  string
	value string
}

// Headers is an ordered, case-insensitive-keyed header list: lookups and
// overwrites are case-insensitive (last write wins), but insertion order
// and the original casing of each name are preserved for serialization.
type Headers struct {
	fields []headerField
}

// Set adds name/value, or overwrites the existing entry with the same
// name case-insensitively (last write wins), keeping its original position.
func (h *Headers) Set(name, value string) {
	lower := strings.ToLower(name)
	for i := range h.fields {
		if strings.ToLower(h.fields[i].name) == lower {
			h.fields[i] = headerField{name: name, value: value}
			return
		}
	}
	h.fields = append(h.fields, headerField{name: name, value: value})
}

// Get returns the value set for name, case-insensitively.
func (h *Headers) Get(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, f := range h.fields {
		if strings.ToLower(f.name) == lower {
			return f.value, true
		}
	}
	return "", false
}

// Has reports whether name is set, case-insensitively.
func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Del removes the entry for name, case-insensitively, if present.
func (h *Headers) Del(name string) {
	lower := strings.ToLower(name)
	for i := range h.fields {
		if strings.ToLower(h.fields[i].name) == lower {
			h.fields = append(h.fields[:i], h.fields[i+1:]...)
			return
		}
	}
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	cp := &Headers{fields: make([]headerField, len(h.fields))}
	copy(cp.fields, h.fields)
	return cp
}
