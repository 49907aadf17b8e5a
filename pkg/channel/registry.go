// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package channel

import (
	"errors"
	"fmt"
	"strings"
)

// Request asks for one channel to be enabled. ID is a channel identifier
// ("cell_voltage_3"), or "cell_voltage" together with Cell. Name overrides the
// default display name.
type Request struct {
	ID   string
	Cell int
	Name string
}

// Registry is the immutable, ordered set of enabled channels
type Registry struct {
	entries []Entry
	byID    map[string]int
}

// Build validates requests and builds a registry. Entries keep request
// order; a repeated channel keeps its first occurrence. Every invalid request
// is reported in the returned error.
func Build(requests []Request) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(requests))}

	var errs []error
	for _, req := range requests {
		sel, err := req.selector()
		if err != nil {
			errs = append(errs, err)
			continue
		}

		id := sel.ID()
		if _, dup := r.byID[id]; dup {
			continue
		}
		r.byID[id] = len(r.entries)
		r.entries = append(r.entries, newEntry(sel, strings.TrimSpace(req.Name)))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// BuildFromIDs builds a registry from bare channel identifiers
func BuildFromIDs(ids ...string) (*Registry, error) {
	requests := make([]Request, len(ids))
	for i, id := range ids {
		requests[i] = Request{ID: id}
	}
	return Build(requests)
}

func (req Request) selector() (Selector, error) {
	id := strings.ToLower(strings.TrimSpace(req.ID))
	if id == IDCellVoltage {
		s := Selector{Field: CellVoltage, Cell: req.Cell}
		if err := s.Validate(); err != nil {
			return Selector{}, fmt.Errorf("channel %q: %w", req.ID, err)
		}
		return s, nil
	}

	s, err := ParseID(id)
	if err != nil {
		return Selector{}, err
	}
	if req.Cell != 0 && req.Cell != s.Cell {
		return Selector{}, fmt.Errorf("channel %q: conflicting cell index %d", req.ID, req.Cell)
	}
	return s, nil
}

// Entries returns a copy of the enabled channels in publication order
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of enabled channels
func (r *Registry) Len() int {
	return len(r.entries)
}

// Lookup returns the entry for a channel identifier
func (r *Registry) Lookup(id string) (Entry, bool) {
	i, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// IDs returns the enabled channel identifiers in publication order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}
