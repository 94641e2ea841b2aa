package flow

import (
	"sort"
)

// Context is a scoped key/value store that outlives individual messages.
// A graph owns one global context, every flow one flow context and stateful
// nodes one private context each. Contexts are only touched from the event
// loop, so they carry no locking.
type Context struct {
	values map[string]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Get returns the value stored under key, or nil.
func (c *Context) Get(key string) any {
	return c.values[key]
}

// Lookup returns the value stored under key and whether it was present.
func (c *Context) Lookup(key string) (any, bool) {
	v, ok := c.values[key]

	return v, ok
}

// Set stores value under key. The last write wins.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Delete removes key.
func (c *Context) Delete(key string) {
	delete(c.values, key)
}

// Keys returns the stored keys in sorted order.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	return len(c.values)
}
