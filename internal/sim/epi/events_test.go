package epi

import "testing"

func TestEventQueueAddDelete(t *testing.T) {
	q := NewEventQueue()
	a := &Person{ID: 1}
	b := &Person{ID: 2}
	c := &Person{ID: 3}

	q.Add(10, a)
	q.Add(10, b)
	q.Add(10, c)
	q.Add(10, a) // duplicate, ignored
	if q.Size(10) != 3 {
		t.Fatalf("size = %d, want 3", q.Size(10))
	}

	q.Delete(10, b)
	if q.Size(10) != 2 {
		t.Fatalf("size after delete = %d, want 2", q.Size(10))
	}
	q.Delete(10, b) // already gone
	q.Delete(11, a) // wrong bucket
	if q.Size(10) != 2 {
		t.Fatalf("size = %d, want 2", q.Size(10))
	}

	seen := map[int]bool{}
	for {
		p := q.Pop(10)
		if p == nil {
			break
		}
		seen[p.ID] = true
	}
	if !seen[1] || !seen[3] || seen[2] {
		t.Fatalf("popped wrong set: %v", seen)
	}
	if q.Size(10) != 0 {
		t.Fatalf("size after drain = %d, want 0", q.Size(10))
	}
}

func TestEventQueueNegativeStepIgnored(t *testing.T) {
	q := NewEventQueue()
	q.Add(-1, &Person{ID: 1})
	if q.Size(-1) != 0 {
		t.Fatalf("negative step should not enqueue")
	}
}

func TestEventQueueClear(t *testing.T) {
	q := NewEventQueue()
	a := &Person{ID: 1}
	q.Add(5, a)
	q.Clear(5)
	if q.Size(5) != 0 || q.Pop(5) != nil {
		t.Fatalf("bucket should be empty after Clear")
	}
}
