// Package filter provides order-preserving ingestion filters for the queue.
package filter

import (
	"resono/internal/domain/track"
)

// Filter decides whether a queue item survives ingestion.
type Filter interface {
	// Name returns the filter name (used in logs).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Keep reports whether the item passes the filter.
	Keep(item track.QueueItem) bool
}

// Chain executes filters in sequence over a batch of items.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Apply runs all filters over the items, preserving order.
// Filters are applied once at ingestion, not re-applied per access.
func (c *Chain) Apply(items []track.QueueItem) []track.QueueItem {
	out := make([]track.QueueItem, 0, len(items))
	for _, item := range items {
		keep := true
		for _, f := range c.filters {
			if !f.Keep(item) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
