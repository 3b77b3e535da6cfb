// Package queue provides a bounded heap for top-k selection.
package queue

import "slices"

// Item is a scored point.
type Item struct {
	Offset uint64
	Score  float32
}

// TopK keeps the k best items seen so far. The root of the heap is the
// worst kept item, so a candidate only has to beat the root to get in.
type TopK struct {
	k      int
	better func(a, b float32) bool
	items  []Item
}

// NewTopK creates a TopK. better reports whether score a ranks before b;
// equal scores rank the lower offset first.
func NewTopK(k int, better func(a, b float32) bool) *TopK {
	return &TopK{
		k:      k,
		better: better,
		items:  make([]Item, 0, max(k, 0)),
	}
}

// Len returns the number of kept items.
func (q *TopK) Len() int { return len(q.items) }

// Push offers an item and reports whether it was kept.
func (q *TopK) Push(item Item) bool {
	if q.k <= 0 {
		return false
	}
	if len(q.items) < q.k {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if !q.ranks(item, q.items[0]) {
		return false
	}
	q.items[0] = item
	q.siftDown(0)
	return true
}

// Worst returns the lowest ranked kept item.
func (q *TopK) Worst() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Sorted returns the kept items best first. The queue is left empty.
func (q *TopK) Sorted() []Item {
	out := q.items
	q.items = nil
	slices.SortFunc(out, func(a, b Item) int {
		switch {
		case q.ranks(a, b):
			return -1
		case q.ranks(b, a):
			return 1
		}
		return 0
	})
	return out
}

// ranks reports whether a ranks strictly before b.
func (q *TopK) ranks(a, b Item) bool {
	if a.Score != b.Score {
		return q.better(a.Score, b.Score)
	}
	return a.Offset < b.Offset
}

// less orders the heap worst first.
func (q *TopK) less(i, j int) bool {
	return q.ranks(q.items[j], q.items[i])
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.less(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		if r := l + 1; r < n && q.less(r, l) {
			worst = r
		}
		if !q.less(worst, i) {
			return
		}
		q.items[i], q.items[worst] = q.items[worst], q.items[i]
		i = worst
	}
}
