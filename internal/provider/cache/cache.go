package cache

import (
    "sync"
    "time"

    "quoteproxy/internal/provider"
)

// DefaultMinRefresh is the freshness window used when none is configured.
const DefaultMinRefresh = 5 * time.Second

// Entry is the last good quote for one key.
type Entry struct {
    Quote     provider.Quote
    FetchedAt time.Time
}

// Store keeps the last successful quote per key and reports it as fresh for
// MinRefresh after it was fetched. Callers pass the current time so tests can
// drive the window without sleeping.
type Store struct {
    MinRefresh time.Duration
    MaxItems   int

    mu    sync.RWMutex
    items map[string]Entry
}

// NewStore returns a Store; minRefresh <= 0 disables hits entirely.
func NewStore(minRefresh time.Duration, maxItems int) *Store {
    return &Store{MinRefresh: minRefresh, MaxItems: maxItems, items: make(map[string]Entry)}
}

// Get returns the entry for key when it has a price and
// now - FetchedAt < MinRefresh.
func (s *Store) Get(key string, now time.Time) (Entry, bool) {
    if s == nil || s.MinRefresh <= 0 { return Entry{}, false }
    s.mu.RLock()
    e, ok := s.items[key]
    s.mu.RUnlock()
    if !ok || e.Quote.Price == nil { return Entry{}, false }
    if now.Sub(e.FetchedAt) >= s.MinRefresh { return Entry{}, false }
    return e, true
}

// Peek returns the entry for key regardless of age.
func (s *Store) Peek(key string) (Entry, bool) {
    if s == nil { return Entry{}, false }
    s.mu.RLock()
    defer s.mu.RUnlock()
    e, ok := s.items[key]
    return e, ok
}

// Set replaces the entry for key. Quotes without a price are ignored and
// FetchedAt never moves backwards.
func (s *Store) Set(key string, q provider.Quote, now time.Time) Entry {
    e := Entry{Quote: q, FetchedAt: now}
    if s == nil || q.Price == nil { return e }

    s.mu.Lock()
    defer s.mu.Unlock()
    if s.items == nil { s.items = make(map[string]Entry) }
    if prev, ok := s.items[key]; ok && prev.FetchedAt.After(now) {
        e.FetchedAt = prev.FetchedAt
    }
    s.items[key] = e

    // best-effort cap: drop stale entries first, then arbitrary ones
    if s.MaxItems > 0 && len(s.items) > s.MaxItems {
        for k, v := range s.items {
            if k != key && now.Sub(v.FetchedAt) >= s.MinRefresh {
                delete(s.items, k)
            }
            if len(s.items) <= s.MaxItems { break }
        }
        for k := range s.items {
            if len(s.items) <= s.MaxItems { break }
            if k != key { delete(s.items, k) }
        }
    }
    return e
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
    if s == nil { return 0 }
    s.mu.RLock()
    defer s.mu.RUnlock()
    return len(s.items)
}
