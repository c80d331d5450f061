package kernel

import "container/list"

// ProcState is the PCB state machine from spec.md section 3.
type ProcState int

const (
	ProcFree ProcState = iota
	ProcAlive
	ProcZombie
)

// PCB is a process control block. Per spec.md's Design Notes, the free
// list is threaded through the parent field while the PCB is FREE — the
// same field is reused as a real parent back-reference once the PCB is
// allocated, exactly as spec.md section 3 describes.
type PCB struct {
	slot  int
	pid   Pid_t
	state ProcState

	parent *PCB // real parent while ALIVE/ZOMBIE; free-list link while FREE

	children *list.List // of *PCB, this PCB's live children
	exited   *list.List // of *PCB, this PCB's zombie children awaiting reap
	childElem *list.Element // this PCB's own element in its parent's children/exited list

	exitval int

	argl int
	args []byte // exclusively owned copy

	fidt []*FCB // MaxFileID strong references

	threadCount int
	threads     *list.List // of *PTCB
	mainThread  *PTCB

	childExit *CondVar
}

func newPCB(slot, maxFileID int) *PCB {
	return &PCB{
		slot:      slot,
		state:     ProcFree,
		children:  list.New(),
		exited:    list.New(),
		fidt:      make([]*FCB, maxFileID),
		threads:   list.New(),
		childExit: NewCondVar(),
	}
}

// Pid returns the process id.
func (p *PCB) Pid() Pid_t { return p.pid }

// allocPCBLocked pops a PCB off the free list, initializing it for a new
// process. Must be called with k.mu held. Returns nil if the table is
// exhausted.
func (k *Kernel) allocPCBLocked() *PCB {
	if k.freeHead == nil {
		return nil
	}
	p := k.freeHead
	k.freeHead = p.parent
	p.parent = nil
	p.state = ProcAlive
	p.pid = Pid_t(p.slot + 1) // slot 0 -> pid 1 (init); PIDs recycle with their slot
	p.exitval = 0
	p.argl = 0
	p.args = nil
	p.threadCount = 0
	p.mainThread = nil
	for i := range p.fidt {
		p.fidt[i] = nil
	}
	return p
}

// freePCBLocked returns a reaped PCB to the free list. Must be called
// with k.mu held.
func (k *Kernel) freePCBLocked(p *PCB) {
	p.state = ProcFree
	p.parent = k.freeHead
	k.freeHead = p
}

// pcbByPidLocked resolves a pid to its live/zombie PCB, or nil if pid is
// out of range or the slot is currently FREE. Must be called with k.mu
// held. PIDs are simply slot+1, so this is O(1).
func (k *Kernel) pcbByPidLocked(pid Pid_t) *PCB {
	if pid < 1 || int(pid) > len(k.procs) {
		return nil
	}
	p := k.procs[pid-1]
	if p.state == ProcFree {
		return nil
	}
	return p
}
