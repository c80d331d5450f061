package kernel

import "container/list"

// TaskFunc is a process's main (or spawned) task body. Per spec.md section
// 4.1's failure semantics, a task must call th.Exit itself; falling off the
// end is an assertion failure.
type TaskFunc func(th *Thread, argl int, args []byte)

// PTCB is the user-visible thread handle owned by a PCB, per spec.md's
// GLOSSARY. Its backing TCB is released independently by the scheduler;
// PTCB survives until the owning PCB drops its last reference.
type PTCB struct {
	backing *TCB
	task    TaskFunc
	argl    int
	args    []byte

	exited   bool
	detached bool
	exitCV   *CondVar
	refcount int

	owner *PCB
	elem  *list.Element // this PTCB's node in owner.threads
}

// execLocked is the shared core of Kernel.Exec and Thread.Exec: allocate a
// PCB, wire parent/child and FIDT inheritance, spawn the main thread, and
// wake it. parent is nil for the bootstrap process (PID 1, init). Must be
// called with k.mu held.
func (k *Kernel) execLocked(parent *PCB, task TaskFunc, argl int, args []byte) Pid_t {
	pcb := k.allocPCBLocked()
	if pcb == nil {
		return NOPROC
	}

	if parent != nil {
		pcb.parent = parent
		pcb.childElem = parent.children.PushBack(pcb)
		for fid, f := range parent.fidt {
			if f != nil {
				f.incref()
				pcb.fidt[fid] = f
			}
		}
	}

	if args != nil {
		owned := make([]byte, len(args))
		copy(owned, args)
		pcb.args = owned
	}
	pcb.argl = argl

	ptcb := &PTCB{
		task:     task,
		argl:     argl,
		args:     pcb.args,
		exitCV:   NewCondVar(),
		refcount: 1,
		owner:    pcb,
	}

	th := &Thread{k: k, pcb: pcb}
	var tcb *TCB
	tcb = k.spawnThread(pcb, func() {
		th.tcb = tcb
		task(th, ptcb.argl, ptcb.args)
		k.assertf(false, "task %d returned without calling Exit", pcb.pid)
	})
	tcb.ptcb = ptcb
	ptcb.backing = tcb

	ptcb.elem = pcb.threads.PushBack(ptcb)
	pcb.mainThread = ptcb
	pcb.threadCount++

	k.wakeupLocked(tcb)

	return pcb.pid
}

// Exec is the bootstrap entry point for launching the very first process
// (init, PID 1), which is parentless. Later processes are created via
// Thread.Exec, which inherits from the calling thread's own process.
func (k *Kernel) Exec(task TaskFunc, argl int, args []byte) Pid_t {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.execLocked(nil, task, argl, args)
}

// waitChildLocked implements spec.md section 4.3's WaitChild. self is the
// calling thread's TCB, used to park it on parent.childExit. Must be
// called with k.mu held; returns with the lock held.
func (k *Kernel) waitChildLocked(self *TCB, parent *PCB, cpid Pid_t) (Pid_t, int) {
	if cpid != NOPROC {
		child := k.pcbByPidLocked(cpid)
		if child == nil || child.parent != parent {
			return NOPROC, 0
		}
		for child.state != ProcZombie {
			parent.childExit.WaitLocked(k, self, SchedIO)
		}
		return k.reapLocked(parent, child), child.exitval
	}

	for {
		if parent.children.Len() == 0 && parent.exited.Len() == 0 {
			return NOPROC, 0
		}
		if e := parent.exited.Front(); e != nil {
			child := e.Value.(*PCB)
			exitval := child.exitval
			return k.reapLocked(parent, child), exitval
		}
		parent.childExit.WaitLocked(k, self, SchedIO)
	}
}

// reapLocked unlinks a ZOMBIE child from parent's exited list and frees
// its PCB. Must be called with k.mu held.
func (k *Kernel) reapLocked(parent *PCB, child *PCB) Pid_t {
	if child.childElem != nil {
		parent.exited.Remove(child.childElem)
		child.childElem = nil
	}
	pid := child.pid
	k.freePCBLocked(child)
	return pid
}

// exitLocked implements spec.md section 4.3's Exit. self is the exiting
// thread's TCB. Must be called with k.mu held; never returns — the calling
// goroutine parks permanently in sleep_releasing(EXITED, ...).
func (k *Kernel) exitLocked(self *TCB, pcb *PCB, exitval int) {
	pcb.exitval = exitval

	if pcb.pid == 1 {
		for {
			pid, _ := k.waitChildLocked(self, pcb, NOPROC)
			if pid == NOPROC {
				break
			}
		}
	} else {
		init := k.pcbByPidLocked(1)
		k.assertf(init != nil, "exit: pid %d has live children but init is gone", pcb.pid)

		for e := pcb.children.Front(); e != nil; {
			next := e.Next()
			child := e.Value.(*PCB)
			pcb.children.Remove(e)
			child.parent = init
			child.childElem = init.children.PushBack(child)
			e = next
		}
		for e := pcb.exited.Front(); e != nil; {
			next := e.Next()
			child := e.Value.(*PCB)
			pcb.exited.Remove(e)
			child.childElem = init.exited.PushBack(child)
			e = next
		}
		init.childExit.BroadcastLocked(k)

		parent := pcb.parent
		if pcb.childElem != nil {
			parent.children.Remove(pcb.childElem)
		}
		pcb.childElem = parent.exited.PushBack(pcb)
		parent.childExit.BroadcastLocked(k)
	}

	pcb.args = nil
	for i, f := range pcb.fidt {
		if f != nil {
			f.decref()
			pcb.fidt[i] = nil
		}
	}
	pcb.mainThread = nil
	pcb.state = ProcZombie

	k.assertf(pcb.children.Len() == 0 && pcb.exited.Len() == 0,
		"exit: pcb %d still has children at zombie transition", pcb.pid)

	k.sleepReleasing(self, StateExited, nil, SchedUser, NoTimeout)
}
