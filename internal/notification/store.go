package notification

import (
	"sync"

	"schooltrans-service/internal/alert"
)

// Key identifies a notification. At most one notification exists per key.
type Key struct {
	Kind     alert.Kind `json:"kind"`
	EntityID int        `json:"id"`
}

type Notification struct {
	Kind     alert.Kind `json:"kind"`
	EntityID int        `json:"id"`
	Name     string     `json:"name"`
	Date     string     `json:"date,omitempty"`
	Message  string     `json:"message"`
}

func (n Notification) Key() Key {
	return Key{Kind: n.Kind, EntityID: n.EntityID}
}

// Change is what one Reconcile did to a single kind.
type Change struct {
	Kind      alert.Kind
	Inserted  []Key
	Retracted []Key
}

func (c Change) Empty() bool {
	return len(c.Inserted) == 0 && len(c.Retracted) == 0
}

// Observer is told about every non-empty change, outside the store lock.
type Observer interface {
	NotificationsChanged(change Change)
}

// Reconciler is the part of the store the poll scheduler drives.
type Reconciler interface {
	Reconcile(kind alert.Kind, candidates []alert.Candidate) Change
}

type Page struct {
	Items []Notification `json:"items"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Total int            `json:"total"`
	Pages int            `json:"pages"`
}

// Store is the process-local, insertion-ordered notification collection.
// Nothing in it is persisted.
type Store struct {
	mu          sync.Mutex
	items       []Notification
	index       map[Key]int
	defaultSize int
	observer    Observer
}

func NewStore(defaultPageSize int, observer Observer) *Store {
	if defaultPageSize < 1 {
		defaultPageSize = 5
	}
	return &Store{
		index:       make(map[Key]int),
		defaultSize: defaultPageSize,
		observer:    observer,
	}
}

// Reconcile makes the notifications of kind match candidates: missing keys
// are appended, present keys are refreshed in place and keys absent from
// candidates are dropped. Notifications of other kinds are left alone, as
// are candidates whose kind differs from kind.
func (s *Store) Reconcile(kind alert.Kind, candidates []alert.Candidate) Change {
	change := Change{Kind: kind}

	s.mu.Lock()
	wanted := make(map[Key]alert.Candidate, len(candidates))
	order := make([]Key, 0, len(candidates))
	for _, c := range candidates {
		if c.Kind != kind {
			continue
		}
		key := Key{Kind: kind, EntityID: c.EntityID}
		if _, dup := wanted[key]; dup {
			continue
		}
		wanted[key] = c
		order = append(order, key)
	}

	kept := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		key := n.Key()
		if n.Kind != kind {
			kept = append(kept, n)
			continue
		}
		c, ok := wanted[key]
		if !ok {
			change.Retracted = append(change.Retracted, key)
			continue
		}
		n.Name, n.Date, n.Message = c.Name, c.Date, c.Message
		kept = append(kept, n)
	}
	s.items = kept
	s.reindex()

	for _, key := range order {
		if _, exists := s.index[key]; exists {
			continue
		}
		c := wanted[key]
		s.index[key] = len(s.items)
		s.items = append(s.items, Notification{
			Kind:     kind,
			EntityID: c.EntityID,
			Name:     c.Name,
			Date:     c.Date,
			Message:  c.Message,
		})
		change.Inserted = append(change.Inserted, key)
	}
	s.mu.Unlock()

	s.notify(change)
	return change
}

// Dismiss removes one notification. It comes back on the next reconcile
// that still produces it.
func (s *Store) Dismiss(key Key) bool {
	s.mu.Lock()
	i, ok := s.index[key]
	if ok {
		s.items = append(s.items[:i:i], s.items[i+1:]...)
		s.reindex()
	}
	s.mu.Unlock()

	if ok {
		s.notify(Change{Kind: key.Kind, Retracted: []Key{key}})
	}
	return ok
}

// ClearAll empties the collection and returns how many were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	removed := s.items
	s.items = nil
	s.index = make(map[Key]int)
	s.mu.Unlock()

	byKind := make(map[alert.Kind][]Key)
	for _, n := range removed {
		byKind[n.Kind] = append(byKind[n.Kind], n.Key())
	}
	for _, kind := range alert.Kinds {
		if keys := byKind[kind]; len(keys) > 0 {
			s.notify(Change{Kind: kind, Retracted: keys})
		}
	}
	return len(removed)
}

// MaxPageSize caps the size a caller may ask for.
const MaxPageSize = 100

// Page returns the 1-based page n. n below 1 means the first page, a size
// below 1 means the default size and sizes above MaxPageSize are capped.
// Pages past the end are empty.
func (s *Store) Page(n, size int) Page {
	if n < 1 {
		n = 1
	}
	if size < 1 {
		size = s.defaultSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.items)
	pages := total / size
	if total%size != 0 {
		pages++
	}
	page := Page{
		Items: []Notification{},
		Page:  n,
		Size:  size,
		Total: total,
		Pages: pages,
	}

	// checked before multiplying so huge page numbers cannot overflow
	if n > pages {
		return page
	}
	start := (n - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	page.Items = append(page.Items, s.items[start:end]...)
	return page
}

func (s *Store) List() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) reindex() {
	s.index = make(map[Key]int, len(s.items))
	for i, n := range s.items {
		s.index[n.Key()] = i
	}
}

func (s *Store) notify(change Change) {
	if s.observer == nil || change.Empty() {
		return
	}
	s.observer.NotificationsChanged(change)
}
