package session

// markQueue is FIFO bookkeeping of outstanding downstream audio chunks: one
// token pushed per chunk forwarded, one popped per acknowledgment frame.
// Its only consumer needs front/back operations and an empty check.
type markQueue struct {
	names []string
}

func (q *markQueue) push(name string) {
	q.names = append(q.names, name)
}

func (q *markQueue) popFront() (string, bool) {
	if len(q.names) == 0 {
		return "", false
	}
	name := q.names[0]
	q.names = q.names[1:]
	return name, true
}

func (q *markQueue) len() int {
	return len(q.names)
}

func (q *markQueue) reset() {
	q.names = nil
}
