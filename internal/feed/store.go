package feed

import (
	"time"

	"github.com/anonto42/nano-midea/livechat/internal/models"
)

// Store is the ordered feed: entries keyed by id, materialized in
// non-decreasing timestamp order with untimestamped entries last.
//
// A position is computed once, when the id is first seen, and is never
// recomputed. Store is not safe for concurrent use; Loop owns it.
type Store struct {
	entries map[string]*models.FeedEntry
	order   []string
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*models.FeedEntry)}
}

// Upsert inserts a new entry at its ordered position, or replaces the content
// of an existing one in place. Returns true when the entry was inserted.
func (s *Store) Upsert(entry models.FeedEntry) bool {
	if existing, ok := s.entries[entry.ID]; ok {
		mergeEntry(existing, entry)
		return false
	}

	e := entry
	if entry.Timestamp != nil {
		ts := *entry.Timestamp
		e.Timestamp = &ts
	}
	s.entries[e.ID] = &e

	pos := len(s.order)
	for i, id := range s.order {
		if exceeds(s.entries[id].Timestamp, e.Timestamp) {
			pos = i
			break
		}
	}
	s.order = append(s.order, "")
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = e.ID
	return true
}

// Remove deletes the entry if present. Returns false for unknown ids.
func (s *Store) Remove(id string) bool {
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the entry
func (s *Store) Get(id string) (models.FeedEntry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return models.FeedEntry{}, false
	}
	return *e, true
}

// Has reports whether the id is materialized
func (s *Store) Has(id string) bool {
	_, ok := s.entries[id]
	return ok
}

// Index returns the entry's position, or -1
func (s *Store) Index(id string) int {
	for i, oid := range s.order {
		if oid == id {
			return i
		}
	}
	return -1
}

// MarkVisible records that the entry went through its first render
func (s *Store) MarkVisible(id string) {
	if e, ok := s.entries[id]; ok {
		e.Visible = true
	}
}

func (s *Store) Len() int {
	return len(s.order)
}

// Snapshot copies the entries in presentation order
func (s *Store) Snapshot() []models.FeedEntry {
	out := make([]models.FeedEntry, len(s.order))
	for i, id := range s.order {
		out[i] = *s.entries[id]
	}
	return out
}

// exceeds reports whether a sorts strictly after b; nil is +infinity
func exceeds(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.After(*b)
}

// mergeEntry replaces content in place. A late pending body never overwrites
// final content and a missing timestamp never clears a known one.
func mergeEntry(dst *models.FeedEntry, src models.FeedEntry) {
	dst.AuthorName = src.AuthorName
	dst.AuthorAvatarURL = src.AuthorAvatarURL
	if src.Body.Kind != models.ContentPending || dst.Body.Kind == models.ContentPending {
		dst.Body = src.Body
	}
	if src.StorageURI != "" {
		dst.StorageURI = src.StorageURI
	}
	if dst.Timestamp == nil && src.Timestamp != nil {
		ts := *src.Timestamp
		dst.Timestamp = &ts
	}
}
