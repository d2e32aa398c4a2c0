package pkg

import (
	"fmt"
	"strings"
)

// CyclicGroupError reports a cycle in the group parent/child relation. It is
// fatal: an inventory with a cycle is never usable.
type CyclicGroupError struct {
	Cycle []string
}

func (e *CyclicGroupError) Error() string {
	return fmt.Sprintf("group cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// UnknownHostError reports a lookup against a host the inventory does not
// contain.
type UnknownHostError struct {
	Host string
}

func (e *UnknownHostError) Error() string {
	return fmt.Sprintf("host %q not found in inventory", e.Host)
}

// UnknownGroupError reports a lookup against a group the inventory does not
// contain.
type UnknownGroupError struct {
	Group string
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("group %q not found in inventory", e.Group)
}

// CollectionError reports a failed fact gathering attempt. It is non-fatal
// to the run: the host continues with an absent snapshot.
type CollectionError struct {
	Host string
	Err  error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("failed to collect facts for host %q: %v", e.Host, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}
