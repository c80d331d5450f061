package kernel

import "container/list"

// SocketTag is the socket_cb state machine from spec.md section 4.5.
type SocketTag int

const (
	SockUnbound SocketTag = iota
	SockListener
	SockPeer
)

// connectionRequest is the rendezvous record queued on a listener by
// Connect and consumed by Accept, per spec.md section 3. It lives on the
// connecting thread's stack equivalent (a local variable in connectLocked)
// and must not be touched by Accept after signaling connectCV.
type connectionRequest struct {
	admitted  bool
	client    *SocketCB
	connectCV *CondVar
	elem      *list.Element
}

// SocketCB is the socket control block from spec.md section 4.5. The
// LISTENER and PEER payload fields are only meaningful for their
// respective tag; per spec.md section 9's second documented bug, a PEER's
// read_pipe/write_pipe are raw *pipeCB pointers, never FCBs or socket_cbs.
type SocketCB struct {
	tag      SocketTag
	port     int
	fcb      *FCB
	refcount int

	// LISTENER payload.
	queue        *list.List // of *connectionRequest
	reqAvailable *CondVar

	// PEER payload.
	readPipe  *pipeCB
	writePipe *pipeCB
	peer      *SocketCB
}

// socketCreateLocked implements spec.md section 4.5's Socket(port). Must
// be called with k.mu held.
func (k *Kernel) socketCreateLocked(pcb *PCB, port int) Fid_t {
	if port < NOPORT || port > k.cfg.MaxPort {
		return NOFILE
	}
	fids, ok := fcbReserveLocked(pcb, 1)
	if !ok {
		return NOFILE
	}

	sc := &SocketCB{tag: SockUnbound, port: port, refcount: 1}
	sc.fcb = newFCB(FCBOps{
		Read:  func(self *TCB, buf []byte) int { return k.socketRead(self, sc, buf) },
		Write: func(self *TCB, buf []byte) int { return k.socketWrite(self, sc, buf) },
		Close: func() { k.socketCloseLocked(sc) },
	}, sc)

	pcb.fidt[fids[0]] = sc.fcb
	return fids[0]
}

// listenLocked implements spec.md section 4.5's Listen(fid).
func (k *Kernel) listenLocked(pcb *PCB, fid Fid_t) int {
	f := getFCBLocked(pcb, fid)
	if f == nil {
		return -1
	}
	sc, isSocket := f.private.(*SocketCB)
	if !isSocket || sc.tag != SockUnbound {
		return -1
	}
	if sc.port == NOPORT {
		return -1
	}
	if _, occupied := k.portMap[sc.port]; occupied {
		return -1
	}

	sc.tag = SockListener
	sc.queue = list.New()
	sc.reqAvailable = NewCondVar()
	k.portMap[sc.port] = sc
	return 0
}

// connectLocked implements spec.md section 4.5's Connect(fid, port,
// timeout_ms), including the Open-Question fix: on timeout the request is
// dequeued from the listener's queue instead of being leaked.
func (k *Kernel) connectLocked(self *TCB, pcb *PCB, fid Fid_t, port int, timeoutMs int64) int {
	f := getFCBLocked(pcb, fid)
	if f == nil {
		return -1
	}
	sc, isSocket := f.private.(*SocketCB)
	if !isSocket || sc.tag != SockUnbound {
		return -1
	}
	listener, ok := k.portMap[port]
	if !ok || listener.tag != SockListener {
		return -1
	}

	req := &connectionRequest{client: sc, connectCV: NewCondVar()}
	req.elem = listener.queue.PushBack(req)
	listener.reqAvailable.BroadcastLocked(k)

	signaled := req.connectCV.TimedWaitLocked(k, self, SchedPipe, timeoutMs)
	if !signaled || !req.admitted {
		if req.elem != nil {
			listener.queue.Remove(req.elem)
			req.elem = nil
		}
		return -1
	}
	return 0
}

// acceptLocked implements spec.md section 4.5's Accept(lfid).
func (k *Kernel) acceptLocked(self *TCB, pcb *PCB, lfid Fid_t) Fid_t {
	lf := getFCBLocked(pcb, lfid)
	if lf == nil {
		return NOFILE
	}
	listener, isSocket := lf.private.(*SocketCB)
	if !isSocket || listener.tag != SockListener {
		return NOFILE
	}

	listener.refcount++
	defer func() { listener.refcount-- }()

	for listener.queue.Len() == 0 {
		listener.reqAvailable.WaitLocked(k, self, SchedIO)
		if k.portMap[listener.port] != listener {
			return NOFILE
		}
	}

	e := listener.queue.Front()
	listener.queue.Remove(e)
	req := e.Value.(*connectionRequest)
	req.elem = nil

	fids, ok := fcbReserveLocked(pcb, 1)
	if !ok {
		return NOFILE
	}

	server := &SocketCB{tag: SockPeer, refcount: 1}
	server.fcb = newFCB(FCBOps{
		Read:  func(self *TCB, buf []byte) int { return k.socketRead(self, server, buf) },
		Write: func(self *TCB, buf []byte) int { return k.socketWrite(self, server, buf) },
		Close: func() { k.socketCloseLocked(server) },
	}, server)
	pcb.fidt[fids[0]] = server.fcb

	pipe1 := newPipeCB() // client reads, server writes
	pipe2 := newPipeCB() // server reads, client writes

	client := req.client
	client.tag = SockPeer
	client.readPipe = pipe1
	client.writePipe = pipe2
	client.peer = server

	server.readPipe = pipe2
	server.writePipe = pipe1
	server.peer = client

	req.admitted = true
	req.connectCV.SignalLocked(k)

	return fids[0]
}

// shutdownLocked implements spec.md section 4.5's ShutDown(fid, how).
func (k *Kernel) shutdownLocked(pcb *PCB, fid Fid_t, how ShutdownHow) int {
	f := getFCBLocked(pcb, fid)
	if f == nil {
		return -1
	}
	sc, isSocket := f.private.(*SocketCB)
	if !isSocket || sc.tag != SockPeer {
		return -1
	}
	switch how {
	case ShutdownRead:
		if sc.readPipe != nil {
			k.pipeCloseReaderLocked(sc.readPipe)
		}
	case ShutdownWrite:
		if sc.writePipe != nil {
			k.pipeCloseWriterLocked(sc.writePipe)
		}
	case ShutdownBoth:
		if sc.readPipe != nil {
			k.pipeCloseReaderLocked(sc.readPipe)
		}
		if sc.writePipe != nil {
			k.pipeCloseWriterLocked(sc.writePipe)
		}
	default:
		return -1
	}
	return 0
}

// socketRead/socketWrite delegate to the peer's half-pipes directly,
// bypassing the FCB layer per spec.md section 9's second documented bug
// fix: the socket_cb holds *pipeCB pointers, not FCB handles.
func (k *Kernel) socketRead(self *TCB, sc *SocketCB, buf []byte) int {
	k.mu.Lock()
	isPeer := sc.tag == SockPeer
	pipe := sc.readPipe
	k.mu.Unlock()
	if !isPeer || pipe == nil {
		return -1
	}
	return k.pipeRead(self, pipe, buf)
}

func (k *Kernel) socketWrite(self *TCB, sc *SocketCB, buf []byte) int {
	k.mu.Lock()
	isPeer := sc.tag == SockPeer
	pipe := sc.writePipe
	k.mu.Unlock()
	if !isPeer || pipe == nil {
		return -1
	}
	return k.pipeWrite(self, pipe, buf)
}

// listenerForceCloseLocked clears PORT_MAP for a listener and wakes any
// Accept callers blocked on it. Unlike a PEER's pipes, a listener is a
// rendezvous point shared by name (port), not by reference count: spec.md
// section 4.5's Accept contract re-checks PORT_MAP after every wakeup and
// fails NOFILE once it's gone, so any single Close(lfid) call — even one
// of several fids inherited across a fork — must retire the port
// immediately rather than waiting for every inherited copy to close. Must
// be called with k.mu held.
func (k *Kernel) listenerForceCloseLocked(sc *SocketCB) {
	if sc.tag != SockListener {
		return
	}
	if k.portMap[sc.port] == sc {
		delete(k.portMap, sc.port)
	}
	if sc.reqAvailable != nil {
		sc.reqAvailable.BroadcastLocked(k)
	}
}

// socketCloseLocked releases a socket_cb's backing resources once its FCB
// has no fids left naming it, per spec.md section 5's resource-lifetime
// rules. It is wired as the FCBOps.Close callback, which FCB.decref only
// invokes once the FCB's own refcount has reached 0. For a LISTENER, the
// port was already retired by listenerForceCloseLocked on the first
// Close; this just covers the case where no Close call was ever made
// (e.g. the owning process exited without closing it). Must be called
// with k.mu held.
func (k *Kernel) socketCloseLocked(sc *SocketCB) {
	switch sc.tag {
	case SockListener:
		k.listenerForceCloseLocked(sc)
	case SockPeer:
		if sc.readPipe != nil {
			k.pipeCloseReaderLocked(sc.readPipe)
		}
		if sc.writePipe != nil {
			k.pipeCloseWriterLocked(sc.writePipe)
		}
	}
}
