package database

// DataSnapshot is the Snapshot implementation shared by the bundled backends.
// Children hold the direct children in query order; they are nil for leaves.
type DataSnapshot struct {
	SnapKey      string          `json:"key"`
	Value        any             `json:"value"`
	SnapPriority any             `json:"priority,omitempty"`
	Children     []*DataSnapshot `json:"children,omitempty"`
}

var _ Snapshot = (*DataSnapshot)(nil)

// Key returns the location key.
func (s *DataSnapshot) Key() string { return s.SnapKey }

// Val returns the value, or nil when the location is empty.
func (s *DataSnapshot) Val() any { return s.Value }

// Exists reports whether there is data at the location.
func (s *DataSnapshot) Exists() bool { return s.Value != nil }

// Priority returns the priority, or nil.
func (s *DataSnapshot) Priority() any { return s.SnapPriority }

// ForEach visits children in order.
func (s *DataSnapshot) ForEach(fn func(Snapshot) bool) bool {
	for _, c := range s.Children {
		if fn(c) {
			return true
		}
	}
	return false
}

// NewSnapshot builds a snapshot for a plain value. Map children are ordered by
// key; callers that need query order build Children themselves.
func NewSnapshot(key string, value any) *DataSnapshot {
	s := &DataSnapshot{SnapKey: key, Value: value}
	m, ok := value.(map[string]any)
	if !ok {
		return s
	}
	for _, k := range SortedKeys(m) {
		s.Children = append(s.Children, NewSnapshot(k, m[k]))
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s *DataSnapshot) Clone() *DataSnapshot {
	if s == nil {
		return nil
	}
	c := &DataSnapshot{
		SnapKey:      s.SnapKey,
		Value:        Clone(s.Value),
		SnapPriority: s.SnapPriority,
	}
	for _, child := range s.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return c
}
