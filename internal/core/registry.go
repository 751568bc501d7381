package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnectionRegistry holds per-tenant connection descriptors.
// A tenant has at most one active descriptor per kind; registering another
// supersedes the previous one, which is kept for audit.
type ConnectionRegistry interface {
	Register(ctx context.Context, d ConnectionDescriptor) (ConnectionDescriptor, error)
	ForTenant(ctx context.Context, tenantID string) ([]ConnectionDescriptor, error)
}

// MemoryRegistry is a process-local ConnectionRegistry.
type MemoryRegistry struct {
	mu          sync.RWMutex
	descriptors map[string][]ConnectionDescriptor // tenant -> history, oldest first
	now         func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		descriptors: make(map[string][]ConnectionDescriptor),
		now:         time.Now,
	}
}

// Register implements ConnectionRegistry.
func (r *MemoryRegistry) Register(ctx context.Context, d ConnectionDescriptor) (ConnectionDescriptor, error) {
	d.TenantID = strings.TrimSpace(d.TenantID)
	if d.TenantID == "" {
		return ConnectionDescriptor{}, &ValidationError{Fields: []string{"tenant_id: required"}}
	}
	if d.Kind != KindRelational && d.Kind != KindDocument {
		return ConnectionDescriptor{}, &ValidationError{Fields: []string{fmt.Sprintf("kind: unsupported %q", d.Kind)}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = ConnDisconnected
	}
	d.CreatedAt = now
	d.SupersededAt = nil

	history := r.descriptors[d.TenantID]
	for i := range history {
		if history[i].Kind == d.Kind && history[i].Active() {
			superseded := now
			history[i].SupersededAt = &superseded
		}
	}
	r.descriptors[d.TenantID] = append(history, d)

	return d, nil
}

// ForTenant implements ConnectionRegistry. Only active descriptors are returned,
// relational before document.
func (r *MemoryRegistry) ForTenant(ctx context.Context, tenantID string) ([]ConnectionDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ConnectionDescriptor
	for _, d := range r.descriptors[tenantID] {
		if d.Active() {
			result = append(result, d)
		}
	}
	sortByKind(result)
	return result, nil
}

// History returns every descriptor ever registered for a tenant, oldest first.
func (r *MemoryRegistry) History(tenantID string) []ConnectionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectionDescriptor, len(r.descriptors[tenantID]))
	copy(out, r.descriptors[tenantID])
	return out
}

func sortByKind(ds []ConnectionDescriptor) {
	rank := func(k ConnectionKind) int {
		for i, kk := range connectionKindOrder {
			if kk == k {
				return i
			}
		}
		return len(connectionKindOrder)
	}
	sort.SliceStable(ds, func(i, j int) bool {
		return rank(ds[i].Kind) < rank(ds[j].Kind)
	})
}
