package transform

// Value is one scalar cell of a flattened event row: string, float64,
// bool, or nil. Container values never appear in a FlatRow.
type Value = interface{}

// FlatRow is an ordered mapping from dotted-path keys to scalar values.
// Key order reflects the traversal order of the source event tree.
// Missing-field handling is explicit: accessors report presence instead
// of returning zero values silently.
type FlatRow struct {
	keys   []string
	values map[string]Value
}

// NewFlatRow creates an empty row.
func NewFlatRow() *FlatRow {
	return &FlatRow{
		values: make(map[string]Value),
	}
}

// Set stores a value under key, appending the key to the traversal
// order on first insertion.
func (r *FlatRow) Set(key string, v Value) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key and whether it is present.
func (r *FlatRow) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present, regardless of its value.
func (r *FlatRow) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// GetString returns the value under key when it is present and a string.
func (r *FlatRow) GetString(key string) (string, bool) {
	v, ok := r.values[key]
	if !ok {
		return "", false
	}
	s, isString := v.(string)
	return s, isString
}

// GetNumber returns the value under key when it is present and numeric.
func (r *FlatRow) GetNumber(key string) (float64, bool) {
	v, ok := r.values[key]
	if !ok {
		return 0, false
	}
	n, isNumber := v.(float64)
	return n, isNumber
}

// GetBool returns the value under key when it is present and a boolean.
func (r *FlatRow) GetBool(key string) (bool, bool) {
	v, ok := r.values[key]
	if !ok {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// NonNull returns the value under key when it is present and not null.
func (r *FlatRow) NonNull(key string) (Value, bool) {
	v, ok := r.values[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Delete removes key from the row. It is a no-op for absent keys.
func (r *FlatRow) Delete(key string) {
	if _, exists := r.values[key]; !exists {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in traversal order. The returned slice is a copy.
func (r *FlatRow) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys in the row.
func (r *FlatRow) Len() int {
	return len(r.keys)
}

// AsMap returns the row as a plain map for JSON encoding. Key order is
// lost; callers needing order use Keys.
func (r *FlatRow) AsMap() map[string]Value {
	out := make(map[string]Value, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
