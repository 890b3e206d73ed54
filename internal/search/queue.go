package search

import "store-scrape/internal/geo"

// queue：坐标 FIFO，出队端回收空间
type queue struct {
	items []geo.Coordinate
	head  int
}

func (q *queue) push(c geo.Coordinate) { q.items = append(q.items, c) }

func (q *queue) pop() (geo.Coordinate, bool) {
	if q.head >= len(q.items) {
		return geo.Coordinate{}, false
	}
	c := q.items[q.head]
	q.head++
	if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return c, true
}

func (q *queue) len() int { return len(q.items) - q.head }
