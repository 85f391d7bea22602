package epi

// EventQueue is a time-bucketed queue of pending state transitions keyed by
// step = 24*day + hour. Cancellation must be cheap: each bucket keeps a
// position index so Delete is O(1) swap-remove.
type EventQueue struct {
	buckets map[int]*eventBucket
}

type eventBucket struct {
	people []*Person
	pos    map[*Person]int
}

func NewEventQueue() *EventQueue {
	return &EventQueue{buckets: map[int]*eventBucket{}}
}

func (q *EventQueue) Add(step int, p *Person) {
	if step < 0 {
		return
	}
	b := q.buckets[step]
	if b == nil {
		b = &eventBucket{pos: map[*Person]int{}}
		q.buckets[step] = b
	}
	if _, dup := b.pos[p]; dup {
		return
	}
	b.pos[p] = len(b.people)
	b.people = append(b.people, p)
}

// Size returns the number of events scheduled at step.
func (q *EventQueue) Size(step int) int {
	if b := q.buckets[step]; b != nil {
		return len(b.people)
	}
	return 0
}

// Get returns the i-th event at step, in insertion order modulo deletions.
func (q *EventQueue) Get(step, i int) *Person {
	return q.buckets[step].people[i]
}

// Delete removes a person's event at step, if present.
func (q *EventQueue) Delete(step int, p *Person) {
	b := q.buckets[step]
	if b == nil {
		return
	}
	i, ok := b.pos[p]
	if !ok {
		return
	}
	last := len(b.people) - 1
	if i != last {
		moved := b.people[last]
		b.people[i] = moved
		b.pos[moved] = i
	}
	b.people = b.people[:last]
	delete(b.pos, p)
}

// Clear drops all events at step.
func (q *EventQueue) Clear(step int) {
	delete(q.buckets, step)
}

// Pop removes and returns one event at step, or nil when the bucket is
// empty. Dispatch uses Pop so that cancellations triggered mid-dispatch
// (cross-condition state writes) cannot corrupt iteration.
func (q *EventQueue) Pop(step int) *Person {
	b := q.buckets[step]
	if b == nil || len(b.people) == 0 {
		return nil
	}
	p := b.people[0]
	q.Delete(step, p)
	return p
}
