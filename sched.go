package kernel

import (
	"container/heap"
	"time"
)

// spawnThread allocates a TCB bound to pcb running fn as a goroutine,
// mirroring spec.md section 4.1's spawn_thread. The goroutine parks
// immediately, waiting for the scheduler to hand it the baton.
func (k *Kernel) spawnThread(pcb *PCB, fn func()) *TCB {
	t := newTCB(pcb, ThreadNormal, PriorityQueues-1, k.cfg.Quantum, fn)
	k.activeThreads.Add(1)
	k.bootOnce.Do(func() { close(k.bootSignal) })
	go func() {
		<-t.resume
		k.gain(t, true)
		t.entry()
		k.assertf(false, "thread entry returned past its task function")
	}()
	return t
}

// wakeupLocked transitions a STOPPED or INIT thread to READY, per spec.md
// section 4.1. Must be called with k.mu held.
func (k *Kernel) wakeupLocked(t *TCB) bool {
	if t.state != StateStopped && t.state != StateInit {
		return false
	}
	t.state = StateReady
	if t.timeoutIdx >= 0 {
		k.removeTimeoutLocked(t)
	}
	if t.cvElem != nil {
		t.waitList.Remove(t.cvElem)
		t.cvElem = nil
		t.waitList = nil
	}
	if t.phase == CtxClean {
		k.enqueueReadyLocked(t)
	}
	k.wakeHaltedCoreLocked()
	return true
}

// Wakeup is the exported, self-locking form of wakeupLocked.
func (k *Kernel) Wakeup(t *TCB) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.wakeupLocked(t)
}

func (k *Kernel) enqueueReadyLocked(t *TCB) {
	t.qElem = k.ready[t.priority].PushBack(t)
}

func (k *Kernel) removeTimeoutLocked(t *TCB) {
	if t.timeoutIdx < 0 {
		return
	}
	heap.Remove(&k.timeouts, t.timeoutIdx)
}

// wakeHaltedCoreLocked restarts every core via inter-core interrupt so a
// halted idle thread notices new ready work, mirroring cpu_core_restart_one
// / cpu_core_restart_all. The teacher's poller wakes its whole event loop
// on any new pending op; restarting every core is the SMP equivalent.
func (k *Kernel) wakeHaltedCoreLocked() {
	k.machine.RestartAll()
}

// sleepReleasing atomically releases release (if non-nil) and parks self
// with the given state/cause/timeout, per spec.md section 4.1's
// sleep_releasing. self must be the TCB of the calling goroutine. It must
// be called with k.mu held and returns with the lock re-acquired, after
// self has been woken and rescheduled.
func (k *Kernel) sleepReleasing(self *TCB, state ThreadState, release func(), cause Cause, timeoutMs int64) {
	k.assertf(state == StateStopped || state == StateExited, "sleep_releasing: invalid state %v", state)
	self.state = state
	self.phase = CtxClean
	self.currCause = cause
	if state == StateStopped && timeoutMs != NoTimeout {
		self.wakeupTime = int64(k.machine.Now()) + timeoutMs*int64(time.Millisecond)
		heap.Push(&k.timeouts, self)
	} else {
		self.wakeupTime = NoTimeout
	}
	if release != nil {
		release()
	}
	k.yieldLocked(self, cause)
}

// Checkpoint is the cooperative preemption point task functions must call
// at loop back-edges, standing in for the BIOS alarm's asynchronous
// preemption (SPEC_FULL.md section A). It is a no-op unless self's core's
// alarm has fired since self started running.
func (k *Kernel) Checkpoint(self *TCB) {
	if k.machine.Core(self.core).ConsumeAlarm() {
		k.Yield(self, SchedQuantum)
	}
}

// Yield is the self-locking public form of yieldLocked.
func (k *Kernel) Yield(self *TCB, cause Cause) {
	k.mu.Lock()
	k.yieldLocked(self, cause)
	k.mu.Unlock()
}

// yieldLocked implements spec.md section 4.1's yield. self must be the TCB
// of the calling goroutine. It must be called with k.mu held and returns
// with the lock re-acquired, after self has regained the baton and run
// gain(). The lock is dropped for the baton handoff; gain() takes it and
// releases it again on its own (spawnThread's first dispatch needs gain to
// hand back control unlocked), and yieldLocked re-takes it before
// returning.
func (k *Kernel) yieldLocked(self *TCB, cause Cause) {
	core := k.ccbs[self.core]
	k.assertf(core.current == self, "yield: caller is not core %d's current thread", core.id)

	remaining := k.machine.Core(core.id).CancelAlarm()
	self.rts = remaining

	if self.state == StateRunning {
		self.state = StateReady
		self.phase = CtxClean
	}

	k.wakeExpiredTimeoutsLocked()
	k.maybeBoostLocked()

	next := k.pickNextLocked(core)

	core.prev = self
	self.currCause = cause

	k.mu.Unlock()

	if next != self {
		next.resume <- struct{}{}
		<-self.resume
	}

	k.gain(self, true)
	k.mu.Lock()
}

// gain runs after every context switch (including a thread's first
// dispatch via thread_start), per spec.md section 4.1. t is always the TCB
// whose own goroutine is calling gain, having just been handed (or having
// kept) the baton for its core.
func (k *Kernel) gain(t *TCB, preempt bool) {
	k.mu.Lock()
	core := k.ccbs[t.core]
	k.assertf(core.current == t, "gain: caller is not core %d's current thread", core.id)
	t.state = StateRunning
	t.phase = CtxDirty
	t.rts = t.its
	t.lastCause = t.currCause

	prev := core.prev
	core.prev = nil
	if prev != nil && prev != t {
		k.applyPriorityFeedbackLocked(prev)
		switch prev.state {
		case StateReady:
			if prev.kind != ThreadIdle {
				k.enqueueReadyLocked(prev)
			}
		case StateExited:
			k.releaseTCBLocked(prev)
		case StateStopped:
			// left for whoever parked it: TIMEOUT_LIST or a condvar wait list.
		default:
			k.assertf(false, "gain: previous thread in invalid state %v", prev.state)
		}
	}
	k.mu.Unlock()

	if preempt {
		k.machine.Core(core.id).SetAlarm(t.rts)
	}
}

// pickNextLocked selects the next thread to run on core, per spec.md
// section 4.1's queue-selection rule, and stamps the CCB/TCB bookkeeping.
func (k *Kernel) pickNextLocked(core *CCB) *TCB {
	var next *TCB
	for p := PriorityQueues - 1; p >= 0; p-- {
		q := k.ready[p]
		if q.Len() == 0 {
			continue
		}
		e := q.Front()
		q.Remove(e)
		t := e.Value.(*TCB)
		t.qElem = nil
		next = t
		break
	}
	if next == nil {
		if core.current.state == StateReady {
			next = core.current
		} else {
			next = core.idle
		}
	}
	next.rts = next.its
	next.core = core.id
	core.current = next
	return next
}

// applyPriorityFeedbackLocked implements the priority-feedback table in
// spec.md section 4.1.
func (k *Kernel) applyPriorityFeedbackLocked(t *TCB) {
	if t.kind == ThreadIdle {
		return
	}
	switch t.currCause {
	case SchedQuantum:
		if t.priority > 0 {
			t.priority--
		}
	case SchedIO, SchedPipe:
		if t.priority < PriorityQueues-1 {
			t.priority++
		}
	case SchedMutex:
		if t.lastCause == SchedMutex {
			if t.priority > 0 {
				t.priority--
			}
		}
	default:
		t.priority = 0
	}
}

// wakeExpiredTimeoutsLocked scans TIMEOUT_LIST for threads whose wakeup
// time has passed and makes them ready, per spec.md section 4.1.
func (k *Kernel) wakeExpiredTimeoutsLocked() {
	now := int64(k.machine.Now())
	for k.timeouts.Len() > 0 {
		t := k.timeouts[0]
		if t.wakeupTime > now {
			break
		}
		heap.Pop(&k.timeouts)
		t.wakeupTime = NoTimeout
		k.wakeupLocked(t)
	}
}

// maybeBoostLocked implements the anti-starvation boost from spec.md
// section 4.1: every YieldsPerBoost calls to yield, every ready thread's
// priority is bumped and re-queued at the new level.
func (k *Kernel) maybeBoostLocked() {
	k.yieldNum++
	if k.yieldNum < YieldsPerBoost {
		return
	}
	k.yieldNum = 0

	var boosted []*TCB
	for p := 0; p < PriorityQueues-1; p++ {
		q := k.ready[p]
		for e := q.Front(); e != nil; {
			next := e.Next()
			t := e.Value.(*TCB)
			q.Remove(e)
			t.qElem = nil
			t.priority++
			boosted = append(boosted, t)
			e = next
		}
	}
	for _, t := range boosted {
		k.enqueueReadyLocked(t)
	}
}

// releaseTCBLocked frees a thread's kernel-owned resources. Per spec.md
// section 5, TCB memory is released in gain() of the next thread, after
// the outgoing thread has already switched off its own goroutine (here:
// after it has sent the baton away and parked for good on its own resume
// channel).
func (k *Kernel) releaseTCBLocked(t *TCB) {
	k.activeThreads.Add(-1)
	if t.ptcb != nil {
		t.ptcb.backing = nil
	}
}

// idleLoop returns the per-core idle thread body described in spec.md
// section 4.1. It waits for bootSignal before ever evaluating
// ACTIVE_THREADS, since at Boot no thread has been spawned yet — without
// this wait, every core would see ACTIVE_THREADS == 0 on its very first
// iteration, read that as "all work finished", and terminate before Exec
// ever creates the first process.
func (k *Kernel) idleLoop(coreID int) func() {
	return func() {
		core := k.ccbs[coreID]
		<-k.bootSignal
		for {
			if k.activeThreads.Load() > 0 {
				k.machine.Core(coreID).Halt()
				k.Yield(core.idle, SchedUser)
				continue
			}
			k.machine.Core(coreID).CancelAlarm()
			k.machine.RestartAll()
			return
		}
	}
}
