package backend

// Capabilities describes what an adapter supports.
type Capabilities struct {
	// Query reports whether the adapter can enumerate a collection.
	Query bool `json:"query"`

	// Clear reports whether the adapter can drop collections wholesale.
	Clear bool `json:"clear"`

	// MaxValueSize is the largest encoded envelope the tier accepts,
	// in bytes. Zero means unlimited.
	MaxValueSize int64 `json:"max_value_size,omitempty"`
}

// Accepts reports whether an envelope of the given size fits this tier.
func (c *Capabilities) Accepts(size int64) bool {
	return c.MaxValueSize == 0 || size <= c.MaxValueSize
}
