package kernel

// Thread is the explicit "current thread" context token every blocking
// kernel operation takes as its first argument — the Go-idiomatic
// replacement for the C kernel's implicit CURTHREAD/CURPROC thread-local
// macros. A task function receives its own Thread as the sole handle it
// needs to make syscalls.
type Thread struct {
	k   *Kernel
	tcb *TCB
	pcb *PCB
}

// Checkpoint is the cooperative preemption point a task should call at
// loop back-edges; see Kernel.Checkpoint.
func (th *Thread) Checkpoint() { th.k.Checkpoint(th.tcb) }

// Pid returns this thread's owning process id.
func (th *Thread) Pid() Pid_t { return th.pcb.pid }

// PPid returns this thread's parent process id, or 0 if parentless
// (init or idle), per spec.md section 6.
func (th *Thread) PPid() Pid_t {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	if th.pcb.parent == nil {
		return NOPROC
	}
	return th.pcb.parent.pid
}

// Exec spawns a new process inheriting from th's own, per spec.md section
// 4.3.
func (th *Thread) Exec(task TaskFunc, argl int, args []byte) Pid_t {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	return th.k.execLocked(th.pcb, task, argl, args)
}

// Exit terminates th's process with the given exit value. Never returns.
func (th *Thread) Exit(exitval int) {
	th.k.mu.Lock()
	th.k.exitLocked(th.tcb, th.pcb, exitval)
	th.k.assertf(false, "exit: resumed past sleep_releasing(EXITED, ...)")
}

// WaitChild blocks for a child's termination per spec.md section 4.3,
// returning its pid and exit value, or NOPROC on error/no-children.
func (th *Thread) WaitChild(cpid Pid_t) (Pid_t, int) {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	return th.k.waitChildLocked(th.tcb, th.pcb, cpid)
}

// Pipe creates a connected reader/writer fid pair, per spec.md section 4.4.
func (th *Thread) Pipe() (readFid, writeFid Fid_t, ok bool) {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	return th.k.pipeCreateLocked(th.pcb)
}

// Socket reserves an UNBOUND socket descriptor on the given port (NOPORT
// if not yet decided), per spec.md section 4.5.
func (th *Thread) Socket(port int) Fid_t {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	return th.k.socketCreateLocked(th.pcb, port)
}

// Listen transitions fid from UNBOUND to LISTENER.
func (th *Thread) Listen(fid Fid_t) int {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	return th.k.listenLocked(th.pcb, fid)
}

// Accept blocks until a connection arrives on listener lfid, returning the
// new peer's fid or NOFILE if the listener was closed while waiting.
func (th *Thread) Accept(lfid Fid_t) Fid_t {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	return th.k.acceptLocked(th.tcb, th.pcb, lfid)
}

// Connect attempts a rendezvous with the listener on port, timing out
// after timeoutMs (NoTimeout to wait forever).
func (th *Thread) Connect(fid Fid_t, port int, timeoutMs int64) int {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	return th.k.connectLocked(th.tcb, th.pcb, fid, port, timeoutMs)
}

// ShutDown closes one or both halves of a PEER socket.
func (th *Thread) ShutDown(fid Fid_t, how ShutdownHow) int {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	return th.k.shutdownLocked(th.pcb, fid, how)
}

// Read reads from fid's stream object into buf.
func (th *Thread) Read(fid Fid_t, buf []byte) int {
	th.k.mu.Lock()
	f := getFCBLocked(th.pcb, fid)
	th.k.mu.Unlock()
	if f == nil {
		return -1
	}
	return f.ops.Read(th.tcb, buf)
}

// Write writes buf to fid's stream object.
func (th *Thread) Write(fid Fid_t, buf []byte) int {
	th.k.mu.Lock()
	f := getFCBLocked(th.pcb, fid)
	th.k.mu.Unlock()
	if f == nil {
		return -1
	}
	return f.ops.Write(th.tcb, buf)
}

// Close releases fid, decref'ing its underlying FCB. Closing any one fid
// naming a listening socket retires the listener immediately, regardless
// of how many other fids (inherited across forks) still name the same
// FCB; see listenerForceCloseLocked.
func (th *Thread) Close(fid Fid_t) int {
	th.k.mu.Lock()
	defer th.k.mu.Unlock()
	f := getFCBLocked(th.pcb, fid)
	if f == nil {
		return -1
	}
	if sc, isSocket := f.private.(*SocketCB); isSocket {
		th.k.listenerForceCloseLocked(sc)
	}
	th.pcb.fidt[fid] = nil
	f.decref()
	return 0
}
