package event

// Node is a stable handle into a List. The value a handle addresses is the
// one stored in its successor: the head handle addresses the first value, and
// a handle whose successor is missing addresses nothing (end of list).
//
// This indirection is what makes Remove O(1): callers walking the list keep
// the handle *before* the value they may want to drop.
type Node int

// NoNode is the nil handle.
const NoNode Node = -1

type slot struct {
	ev   Event
	next Node
	used bool
}

// List is a singly linked list of events backed by a slot arena with a free
// list. The first slot in use is a sentinel that never holds a value; it is
// allocated by the first insertion and released when the list becomes empty.
//
// The zero value is an empty list. A List is not safe for concurrent use.
type List struct {
	slots []slot
	free  []Node

	head Node // sentinel
	tail Node // last physical node
	size int
}

// NewList returns an empty list.
func NewList() *List {
	return &List{head: NoNode, tail: NoNode}
}

// Len returns the number of values in the list.
func (l *List) Len() int { return l.size }

// Empty reports whether the list holds no values.
func (l *List) Empty() bool { return l.size == 0 }

// Head returns the sentinel handle, or NoNode when the list is empty.
func (l *List) Head() Node {
	if l.size == 0 {
		return NoNode
	}
	return l.head
}

// Tail returns the last physical node, or NoNode when the list is empty.
func (l *List) Tail() Node {
	if l.size == 0 {
		return NoNode
	}
	return l.tail
}

// Next returns the successor of n.
func (l *List) Next(n Node) Node {
	if !l.valid(n) {
		return NoNode
	}
	return l.slots[n].next
}

// HasValue reports whether n addresses a value.
func (l *List) HasValue(n Node) bool {
	return l.valid(n) && l.slots[n].next != NoNode
}

// Value returns the event addressed by n. It panics if n has no value.
func (l *List) Value(n Node) Event {
	if !l.HasValue(n) {
		panic("event: Value on a handle without value")
	}
	return l.slots[l.slots[n].next].ev
}

// Push appends e at the tail.
func (l *List) Push(e Event) {
	l.ensureHead()
	n := l.alloc(e)
	if l.tail == NoNode {
		l.slots[l.head].next = n
	} else {
		l.slots[l.tail].next = n
	}
	l.tail = n
	l.size++
}

// PushOrdered inserts e keeping the list sorted by ascending RepeatAfter.
// Events with equal RepeatAfter keep their arrival order. The list is assumed
// to be sorted already.
func (l *List) PushOrdered(e Event) {
	if l.Empty() {
		l.Push(e)
		return
	}
	cur := l.head
	for l.HasValue(cur) && l.Value(cur).RepeatAfter <= e.RepeatAfter {
		cur = l.slots[cur].next
	}
	l.InsertBefore(cur, e)
}

// InsertBefore inserts e so that it becomes the value addressed by n; the
// value n addressed before moves one position back. If n is the tail (it
// addresses nothing) this appends. On an empty list it behaves like Push.
func (l *List) InsertBefore(n Node, e Event) {
	if l.Empty() || !l.valid(n) {
		l.Push(e)
		return
	}
	nn := l.alloc(e)
	l.slots[nn].next = l.slots[n].next
	l.slots[n].next = nn
	if l.slots[nn].next == NoNode {
		l.tail = nn
	}
	l.size++
}

// Pop removes and returns the first value.
func (l *List) Pop() (Event, bool) {
	if l.Empty() {
		return Event{}, false
	}
	return l.Remove(l.head)
}

// Remove drops the value addressed by prev, that is the node following prev,
// and returns it. Handles other than the removed one stay valid.
func (l *List) Remove(prev Node) (Event, bool) {
	if !l.HasValue(prev) {
		return Event{}, false
	}
	old := l.slots[prev].next
	ev := l.slots[old].ev
	l.slots[prev].next = l.slots[old].next
	l.release(old)

	if l.slots[prev].next == NoNode {
		l.tail = prev
	}
	l.size--

	if l.size == 0 {
		l.release(l.head)
		l.head = NoNode
		l.tail = NoNode
	}
	return ev, true
}

// Destroy drains the list, releasing every node and the arena itself.
func (l *List) Destroy() {
	for !l.Empty() {
		l.Pop()
	}
	l.slots = nil
	l.free = nil
}

// Each calls fn for every value in order until fn returns false.
func (l *List) Each(fn func(Event) bool) {
	for cur := l.head; l.HasValue(cur); cur = l.slots[cur].next {
		if !fn(l.Value(cur)) {
			return
		}
	}
}

// Values returns a copy of every value in order.
func (l *List) Values() []Event {
	out := make([]Event, 0, l.size)
	l.Each(func(e Event) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (l *List) valid(n Node) bool {
	return n >= 0 && int(n) < len(l.slots) && l.slots[n].used
}

func (l *List) ensureHead() {
	if !l.valid(l.head) {
		l.head = l.alloc(Event{})
		l.tail = NoNode
	}
}

func (l *List) alloc(e Event) Node {
	s := slot{ev: e, next: NoNode, used: true}
	if k := len(l.free); k > 0 {
		n := l.free[k-1]
		l.free = l.free[:k-1]
		l.slots[n] = s
		return n
	}
	l.slots = append(l.slots, s)
	return Node(len(l.slots) - 1)
}

func (l *List) release(n Node) {
	l.slots[n] = slot{next: NoNode}
	l.free = append(l.free, n)
}
