package handlers

import (
	"sort"
	"sync"
)

// KeyedMutex serializes work per key inside one process. Entries are
// reference counted and removed once the last holder unlocks.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock func
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockAll locks several keys in a stable order
func (k *KeyedMutex) LockAll(keys []string) func() {
	sorted := uniqueSorted(keys)
	unlocks := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func uniqueSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func productKey(id string) string { return "product:" + id }
func certificateKey(id string) string { return "certificate:" + id }
func authorityKey(principal string) string { return "authority:" + principal }
func standardKey(id string) string { return "standard:" + id }
func grantKey(principal, role string) string { return "grant:" + principal + "/" + role }
