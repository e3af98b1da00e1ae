// Package mirror keeps an in-memory, id-keyed copy of a remote collection.
//
// Local writes and inbound change notifications go through the same
// reducer, so an echo of a write that was already applied locally is a
// no-op:
//
//	insert  → prepend if the id is absent and was never deleted, otherwise ignore
//	update  → replace if the id is present, otherwise ignore
//	delete  → remove if the id is present, otherwise ignore
//
// Deleted ids are remembered until the next Replace or Clear, so the late
// echo of an insert cannot bring back a row that was deleted meanwhile.
//
// A Collection is not safe for concurrent use; owners guard it with their
// own lock.
package mirror

// Op is the kind of mutation.
type Op int

const (
	Insert Op = iota
	Update
	Delete
)

func (o Op) String() string {
	switch o {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return "unknown"
}

// Source says where an event came from. It does not change how the event
// is applied; owners log it.
type Source int

const (
	Local Source = iota
	Remote
)

func (s Source) String() string {
	if s == Remote {
		return "remote"
	}
	return "local"
}

// Event is one mutation. For Delete only the item's id matters.
type Event[T any] struct {
	Op     Op
	Source Source
	Item   T
}

// Collection is an ordered list of items keyed by id, most recent insert
// first.
type Collection[T any] struct {
	idOf  func(T) string
	items []T
	gone  map[string]struct{}
}

// New creates an empty Collection that identifies items with idOf.
func New[T any](idOf func(T) string) *Collection[T] {
	return &Collection[T]{idOf: idOf}
}

// Apply reduces ev into the collection and reports whether anything
// changed.
func (c *Collection[T]) Apply(ev Event[T]) bool {
	id := c.idOf(ev.Item)
	i := c.index(id)

	switch ev.Op {
	case Insert:
		if i >= 0 {
			return false
		}
		if _, deleted := c.gone[id]; deleted {
			return false
		}
		c.items = append([]T{ev.Item}, c.items...)
		return true
	case Update:
		if i < 0 {
			return false
		}
		c.items[i] = ev.Item
		return true
	case Delete:
		if c.gone == nil {
			c.gone = make(map[string]struct{})
		}
		c.gone[id] = struct{}{}
		if i < 0 {
			return false
		}
		c.items = append(c.items[:i], c.items[i+1:]...)
		return true
	}
	return false
}

// Replace swaps in a freshly fetched list.
func (c *Collection[T]) Replace(items []T) {
	c.items = append([]T(nil), items...)
	c.gone = nil
}

// Clear empties the collection.
func (c *Collection[T]) Clear() {
	c.items = nil
	c.gone = nil
}

// Get returns the item with the given id.
func (c *Collection[T]) Get(id string) (T, bool) {
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Has reports whether an item with the given id is present.
func (c *Collection[T]) Has(id string) bool {
	return c.index(id) >= 0
}

// Items returns a copy of the items in order.
func (c *Collection[T]) Items() []T {
	return append([]T{}, c.items...)
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Each calls fn for every item in order until fn returns false.
func (c *Collection[T]) Each(fn func(T) bool) {
	for _, item := range c.items {
		if !fn(item) {
			return
		}
	}
}

func (c *Collection[T]) index(id string) int {
	for i, item := range c.items {
		if c.idOf(item) == id {
			return i
		}
	}
	return -1
}
