package hostfuncs

import (
	"sort"
	"sync"
)

// ServiceEntry is a service descriptor published by a plugin.
type ServiceEntry struct {
	Provider string
	Payload  []byte
}

// ServiceDirectory is the host-wide table of services registered by plugins
// through service_register. It is shared by every runtime of a host.
type ServiceDirectory struct {
	mu       sync.RWMutex
	services map[string]ServiceEntry
}

// NewServiceDirectory creates an empty directory.
func NewServiceDirectory() *ServiceDirectory {
	return &ServiceDirectory{services: make(map[string]ServiceEntry)}
}

// Register stores a descriptor, replacing any previous one of the same name.
func (d *ServiceDirectory) Register(provider, name string, payload []byte) (replaced bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, replaced = d.services[name]
	d.services[name] = ServiceEntry{Provider: provider, Payload: append([]byte(nil), payload...)}
	return replaced
}

// Lookup returns the descriptor registered under name.
func (d *ServiceDirectory) Lookup(name string) (ServiceEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.services[name]
	return e, ok
}

// RemoveProvider drops every service registered by a plugin and returns the
// removed names.
func (d *ServiceDirectory) RemoveProvider(provider string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var removed []string
	for name, e := range d.services {
		if e.Provider == provider {
			delete(d.services, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Names lists the registered service names.
func (d *ServiceDirectory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.services))
	for name := range d.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
