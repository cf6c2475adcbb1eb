// internal/core/domain/risk/correlation.go
package risk

import "sync"

// CorrelationManager counts open trades per asset and globally.
type CorrelationManager struct {
	mu       sync.Mutex
	perAsset map[string]int
	global   int
}

func NewCorrelationManager() *CorrelationManager {
	return &CorrelationManager{perAsset: make(map[string]int)}
}

func (c *CorrelationManager) Register(asset string) {
	c.RegisterN(asset, 1)
}

func (c *CorrelationManager) RegisterN(asset string, n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerLocked(asset, n)
}

func (c *CorrelationManager) registerLocked(asset string, n int) {
	c.perAsset[asset] += n
	c.global += n
}

// Deregister releases one slot; counters never go below zero.
func (c *CorrelationManager) Deregister(asset string) {
	c.DeregisterN(asset, 1)
}

func (c *CorrelationManager) DeregisterN(asset string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	open := c.perAsset[asset]
	if n > open {
		n = open
	}
	if n <= 0 {
		return
	}
	if open == n {
		delete(c.perAsset, asset)
	} else {
		c.perAsset[asset] = open - n
	}
	c.global -= n
	if c.global < 0 {
		c.global = 0
	}
}

// Adjust moves the count of asset from `from` to `to` slots.
func (c *CorrelationManager) Adjust(asset string, from, to int) {
	switch {
	case to > from:
		c.RegisterN(asset, to-from)
	case to < from:
		c.DeregisterN(asset, from-to)
	}
}

func (c *CorrelationManager) Open(asset string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perAsset[asset]
}

func (c *CorrelationManager) Global() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.global
}

type ExposureSnapshot struct {
	PerAsset map[string]int `json:"per_asset"`
	Global   int            `json:"global"`
}

func (c *CorrelationManager) Snapshot() ExposureSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	per := make(map[string]int, len(c.perAsset))
	for k, v := range c.perAsset {
		per[k] = v
	}
	return ExposureSnapshot{PerAsset: per, Global: c.global}
}

func (c *CorrelationManager) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perAsset = make(map[string]int)
	c.global = 0
}
