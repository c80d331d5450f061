package kernel

// timeoutHeap is the scheduler's TIMEOUT_LIST: TCBs with a pending wakeup
// time, ordered ascending. It is a near-direct port of the teacher's
// timedHeap/pcb.idx pattern (socket515-gaio watcher.go), renamed to the
// TCB/wakeup_time domain.
type timeoutHeap []*TCB

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool { return h[i].wakeupTime < h[j].wakeupTime }

func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].timeoutIdx = i
	h[j].timeoutIdx = j
}

func (h *timeoutHeap) Push(x interface{}) {
	t := x.(*TCB)
	t.timeoutIdx = len(*h)
	*h = append(*h, t)
}

func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.timeoutIdx = -1
	*h = old[:n-1]
	return t
}
