// Package procedures holds the named calls a batch request can reference.
package procedures

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/batchstream/internal/async"
)

var (
	ErrProcedureExists  = errors.New("procedures: procedure already exists")
	ErrProcedureNil     = errors.New("procedures: procedure is nil")
	ErrInvalidMetadata  = errors.New("procedures: invalid metadata")
	ErrUnknownProcedure = errors.New("procedures: unknown procedure")
)

// Metadata identifies a procedure.
type Metadata struct {
	ID          string
	Description string
}

// Procedure produces one batch slot. The returned value may contain
// promises and iterables; they are streamed as they settle.
type Procedure interface {
	Metadata() Metadata
	Call(ctx context.Context, args map[string]string) (any, error)
}

// Registry stores procedures by id.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Procedure
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Procedure)}
}

// ValidateMetadata checks required fields and the id format.
func ValidateMetadata(meta Metadata) error {
	id := strings.TrimSpace(meta.ID)
	if id == "" || strings.TrimSpace(meta.Description) == "" {
		return fmt.Errorf("%w: id and description are required", ErrInvalidMetadata)
	}
	if !isValidID(id) {
		return fmt.Errorf("%w: invalid id format %q", ErrInvalidMetadata, id)
	}
	return nil
}

func (r *Registry) Register(p Procedure) error {
	if p == nil {
		return ErrProcedureNil
	}
	meta := p.Metadata()
	if err := ValidateMetadata(meta); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[meta.ID]; ok {
		return fmt.Errorf("%w: %s", ErrProcedureExists, meta.ID)
	}
	r.items[meta.ID] = p
	return nil
}

func (r *Registry) Resolve(id string) (Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	return p, ok
}

// List returns metadata ordered by id.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	list := make([]Metadata, 0, len(r.items))
	for _, p := range r.items {
		list = append(list, p.Metadata())
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

// Batch calls each named procedure and returns the producer input keyed by
// call position. A missing procedure or a failed call only rejects its own
// slot.
func (r *Registry) Batch(ctx context.Context, names []string, args map[string]string) map[int]any {
	out := make(map[int]any, len(names))
	for i, name := range names {
		p, ok := r.Resolve(name)
		if !ok {
			out[i] = async.Reject(fmt.Errorf("%w: %q", ErrUnknownProcedure, name))
			continue
		}
		v, err := p.Call(ctx, args)
		if err != nil {
			out[i] = async.Reject(err)
			continue
		}
		out[i] = v
	}
	return out
}

// ParseNames splits a comma separated call list, dropping blanks.
func ParseNames(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidID(id string) bool {
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(id)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return id != ""
}
