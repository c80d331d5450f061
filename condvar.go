package kernel

import "container/list"

// CondVar is an unordered wait set of TCBs, guarded by the kernel's
// scheduler lock, per spec.md section 4.2.
type CondVar struct {
	waiters list.List
}

// NewCondVar returns a ready-to-use CondVar.
func NewCondVar() *CondVar { return &CondVar{} }

// WaitLocked parks self on cv with state STOPPED and the given cause. The
// caller must hold k.mu; it is released as part of the atomic park and
// re-acquired by the time WaitLocked returns, after self has been woken
// and rescheduled.
func (cv *CondVar) WaitLocked(k *Kernel, self *TCB, cause Cause) {
	self.waitList = &cv.waiters
	self.cvElem = cv.waiters.PushBack(self)
	self.signaled = false
	k.sleepReleasing(self, StateStopped, nil, cause, NoTimeout)
}

// TimedWaitLocked is WaitLocked with a bound on how long to park. It
// reports whether the wait ended via Signal/Broadcast (true) or via
// timeout (false). The caller must hold k.mu, released/re-acquired as in
// WaitLocked.
func (cv *CondVar) TimedWaitLocked(k *Kernel, self *TCB, cause Cause, timeoutMs int64) bool {
	self.waitList = &cv.waiters
	self.cvElem = cv.waiters.PushBack(self)
	self.signaled = false
	k.sleepReleasing(self, StateStopped, nil, cause, timeoutMs)
	return self.signaled
}

// SignalLocked wakes one waiter, if any. The caller must hold k.mu.
func (cv *CondVar) SignalLocked(k *Kernel) {
	e := cv.waiters.Front()
	if e == nil {
		return
	}
	t := e.Value.(*TCB)
	t.signaled = true
	k.wakeupLocked(t)
}

// BroadcastLocked wakes every waiter. The caller must hold k.mu. Ordering
// is unspecified, per spec.md section 4.2, but is fair over time thanks to
// the scheduler's anti-starvation boost.
func (cv *CondVar) BroadcastLocked(k *Kernel) {
	for e := cv.waiters.Front(); e != nil; {
		next := e.Next()
		t := e.Value.(*TCB)
		t.signaled = true
		k.wakeupLocked(t)
		e = next
	}
}
