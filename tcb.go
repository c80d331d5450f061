package kernel

import (
	"container/list"
	"time"
)

// ThreadType distinguishes the per-core idle thread from ordinary threads.
type ThreadType int

const (
	ThreadNormal ThreadType = iota
	ThreadIdle
)

// ThreadState is the TCB state machine from spec.md section 3.
type ThreadState int

const (
	StateInit ThreadState = iota
	StateReady
	StateRunning
	StateStopped
	StateExited
)

func (s ThreadState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateExited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// ContextPhase tracks whether a thread's saved context is ready to be
// resumed on another core (CTX_CLEAN) or is mid-switch (CTX_DIRTY).
type ContextPhase int

const (
	CtxClean ContextPhase = iota
	CtxDirty
)

// Cause is the reason a thread yielded, feeding priority feedback.
type Cause int

const (
	SchedQuantum Cause = iota // preempted by the timer
	SchedIO                   // blocked on a pipe/socket/condvar wait
	SchedMutex                // blocked trying to acquire a contended lock
	SchedPipe                 // blocked in pipe/socket I/O (counts as SchedIO for feedback)
	SchedUser                 // cooperative yield, e.g. before Exit's final park
)

// TCB is a kernel thread's control block. Its "context" is simply the Go
// goroutine running entry; see SPEC_FULL.md section A for why there is no
// register/stack snapshot here.
type TCB struct {
	owner *PCB
	kind  ThreadType

	state ThreadState
	phase ContextPhase

	priority int
	its      time.Duration // initial timeslice
	rts      time.Duration // remaining timeslice

	lastCause Cause
	currCause Cause

	wakeupTime int64 // absolute tick, or NoTimeout

	// resume is the baton channel: sending on it hands this thread the
	// core it is about to run on; the thread blocks receiving on it
	// while READY/STOPPED/INIT.
	resume chan struct{}

	// entry is the user task; started as a goroutine by the scheduler.
	entry func()

	// core is the id of the CCB this thread is currently assigned to
	// (meaningful only while RUNNING).
	core int

	// heap/list bookkeeping, mirroring the teacher's pcb.idx convention.
	timeoutIdx int // index into the scheduler's timeout heap, -1 if absent
	qElem      *list.Element

	// waitList/cvElem locate this TCB on whatever wait list currently
	// holds it (a CondVar's waiters), so a wakeup from any source — signal,
	// broadcast, or timeout — can unlink it generically.
	waitList *list.List
	cvElem   *list.Element
	signaled bool // set by CondVar Signal/Broadcast, read by TimedWaitLocked

	// ptcb links this TCB back to its user-visible thread handle.
	ptcb *PTCB
}

func newTCB(owner *PCB, kind ThreadType, priority int, quantum time.Duration, entry func()) *TCB {
	return &TCB{
		owner:      owner,
		kind:       kind,
		state:      StateInit,
		phase:      CtxClean,
		priority:   priority,
		its:        quantum,
		rts:        quantum,
		wakeupTime: NoTimeout,
		resume:     make(chan struct{}),
		entry:      entry,
		timeoutIdx: -1,
	}
}

// CCB is a core control block: one per simulated CPU.
type CCB struct {
	id      int
	current *TCB
	prev    *TCB
	idle    *TCB
}
