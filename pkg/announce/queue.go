package announce

import "container/heap"

type queued struct {
	msg Message
	seq uint64
}

// messageQueue is a min-heap on (priority, seq).
type messageQueue []queued

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].msg.Priority != q[j].msg.Priority {
		return q[i].msg.Priority < q[j].msg.Priority
	}
	return q[i].seq < q[j].seq
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = queued{}
	*q = old[:n-1]
	return item
}

func (q *messageQueue) push(msg Message, seq uint64) {
	heap.Push(q, queued{msg: msg, seq: seq})
}

func (q *messageQueue) pop() (Message, bool) {
	if q.Len() == 0 {
		return Message{}, false
	}
	return heap.Pop(q).(queued).msg, true
}
