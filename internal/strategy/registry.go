package strategy

import (
	"net/url"
)

// DefaultName is the name of the fallback descriptor.
const DefaultName = "default"

// DefaultDescriptor scrolls and uses generic extraction.
func DefaultDescriptor() Descriptor {
	return Descriptor{Name: DefaultName, AutoScroll: true}
}

// Registry is an ordered list of descriptors; the first match wins.
type Registry struct {
	descriptors []Descriptor
	fallback    Descriptor
}

// NewRegistry builds a registry from descriptors in priority order.
func NewRegistry(descriptors ...Descriptor) *Registry {
	r := &Registry{fallback: DefaultDescriptor()}
	for _, d := range descriptors {
		r.Register(d)
	}
	return r
}

// Register appends a descriptor. It must only be called during start-up.
func (r *Registry) Register(d Descriptor) {
	if d.Match == nil {
		return
	}
	r.descriptors = append(r.descriptors, d)
}

// SetDefault replaces the fallback descriptor.
func (r *Registry) SetDefault(d Descriptor) {
	if d.Name == "" {
		d.Name = DefaultName
	}
	r.fallback = d
}

// Match returns the first descriptor accepting rawURL, or the default.
func (r *Registry) Match(rawURL string) Descriptor {
	u, err := url.Parse(rawURL)
	if err != nil {
		return r.fallback
	}
	for _, d := range r.descriptors {
		if d.Match(u) {
			return d
		}
	}
	return r.fallback
}

// Default returns the fallback descriptor.
func (r *Registry) Default() Descriptor {
	return r.fallback
}

// Names lists registered descriptor names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		names = append(names, d.Name)
	}
	return names
}
