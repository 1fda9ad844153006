// Package registry holds the set of loaded per-species guide indexes the
// service layer searches against.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/genomix/crispor/guideindex"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Registry maps a lowercased species name to its loaded store. Loaded
// stores are immutable, so Get only needs a read lock for the duration of
// the lookup.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*guideindex.Store
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{stores: make(map[string]*guideindex.Store)}
}

// Load opens the index file at path and registers it under name
// (case-insensitively). Load refuses to replace an already-registered
// name. If the index's own declared species doesn't match name, Load logs
// a warning (suggesting the closest already-registered name via a fuzzy
// match) rather than failing, to accommodate historical assemblies whose
// metadata predates a renaming.
func (r *Registry) Load(name, path string) error {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[key]; ok {
		return errors.E(errors.Precondition, fmt.Sprintf("species %q is already registered", name))
	}

	store, err := guideindex.Load(path)
	if err != nil {
		return err
	}

	if declared := strings.ToLower(store.Meta.SpeciesName()); declared != "" && declared != key {
		log.Error.Printf("registry: index %s declares species %q but is being registered as %q%s",
			path, store.Meta.SpeciesName(), name, r.suggestClosestLocked(declared))
	}

	r.stores[key] = store
	return nil
}

// suggestClosestLocked returns a " (closest registered name: %q)" hint
// naming the already-registered name with the smallest edit distance from
// declared, or "" if the registry is empty. Callers must hold r.mu.
func (r *Registry) suggestClosestLocked(declared string) string {
	var best string
	bestDist := -1
	for existing := range r.stores {
		dist := matchr.Levenshtein(declared, existing)
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = existing
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (closest registered name: %q)", best)
}

// Get returns the store registered under name.
func (r *Registry) Get(name string) (*guideindex.Store, error) {
	key := strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[key]
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("species %q is not registered", name))
	}
	return store, nil
}

// Remove unregisters name.
func (r *Registry) Remove(name string) error {
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[key]; !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("species %q is not registered", name))
	}
	delete(r.stores, key)
	return nil
}

// Names returns the currently registered species names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	return names
}

// Keepalive periodically touches each loaded store with a throwaway pass
// over every slot so its backing pages stay resident, until ctx is
// cancelled.
func (r *Registry) Keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.RLock()
			for name, store := range r.stores {
				_ = guideindex.Checksum(store)
				log.Debug.Printf("registry: keepalive touched %s (%d seqs)", name, store.NumSeqs())
			}
			r.mu.RUnlock()
		}
	}
}
