package pkg

import (
	"sync"

	"github.com/bvankempen/rigging/pkg/common"
)

// HandlerTracker tracks which handlers have been notified and which have already run
type HandlerTracker struct {
	mu       sync.RWMutex
	notified map[string]bool
	executed map[string]bool
	handlers map[string]*Task
	order    []string
	hostName string
}

// NewHandlerTracker creates a new HandlerTracker for the given host and handlers
func NewHandlerTracker(hostName string, handlers []*Task) *HandlerTracker {
	ht := &HandlerTracker{
		notified: make(map[string]bool),
		executed: make(map[string]bool),
		handlers: make(map[string]*Task),
		hostName: hostName,
	}

	for _, handler := range handlers {
		ht.handlers[handler.Name] = handler
		ht.order = append(ht.order, handler.Name)
	}

	return ht
}

// NotifyHandler marks a handler as notified
func (ht *HandlerTracker) NotifyHandler(handlerName string) {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	if _, exists := ht.handlers[handlerName]; !exists {
		common.LogWarn("Handler not found", map[string]interface{}{
			"handler": handlerName,
			"host":    ht.hostName,
		})
		return
	}

	if !ht.notified[handlerName] {
		ht.notified[handlerName] = true
		common.LogDebug("Handler notified", map[string]interface{}{
			"handler": handlerName,
			"host":    ht.hostName,
		})
	}
}

// NotifyHandlers marks multiple handlers as notified
func (ht *HandlerTracker) NotifyHandlers(handlerNames []string) {
	for _, handlerName := range handlerNames {
		ht.NotifyHandler(handlerName)
	}
}

// IsNotified checks if a handler has been notified
func (ht *HandlerTracker) IsNotified(handlerName string) bool {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return ht.notified[handlerName]
}

// IsExecuted checks if a handler has been executed
func (ht *HandlerTracker) IsExecuted(handlerName string) bool {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return ht.executed[handlerName]
}

// MarkExecuted marks a handler as executed
func (ht *HandlerTracker) MarkExecuted(handlerName string) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	ht.executed[handlerName] = true
}

// Pending returns the handlers that were notified but have not run yet, in
// declaration order.
func (ht *HandlerTracker) Pending() []*Task {
	ht.mu.RLock()
	defer ht.mu.RUnlock()

	var pending []*Task
	for _, name := range ht.order {
		if ht.notified[name] && !ht.executed[name] {
			pending = append(pending, ht.handlers[name])
		}
	}
	return pending
}
