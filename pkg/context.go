package pkg

// HostContext carries the per-host execution state for one run: the host
// itself and its handler tracker. It is exclusively owned by the single
// worker evaluating that host.
type HostContext struct {
	Host           *Host
	HandlerTracker *HandlerTracker
}

func NewHostContext(host *Host) *HostContext {
	return &HostContext{Host: host}
}

// InitializeHandlerTracker initializes the HandlerTracker with the provided handlers
func (c *HostContext) InitializeHandlerTracker(handlers []*Task) {
	if c.HandlerTracker == nil {
		c.HandlerTracker = NewHandlerTracker(c.Host.Name, handlers)
	}
}
