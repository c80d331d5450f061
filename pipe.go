package kernel

// pipeCB is the pipe control block from spec.md section 4.4: a bounded
// ring buffer of PipeBufferSize bytes, shared by a reader and a writer FCB.
// The buffer is FULL when (w+1) mod N == r, EMPTY when w == r — one slot is
// always sacrificed to disambiguate full from empty, so at most
// PipeBufferSize-1 bytes are ever buffered at once.
type pipeCB struct {
	buf  []byte
	r, w int

	hasData  *CondVar
	hasSpace *CondVar

	// reader/writer are kept (not nulled) once assigned, per spec.md
	// section 9's first documented bug: the original zeroes both fields
	// right after create(), discarding the very handles it just made.
	reader *FCB
	writer *FCB

	readerClosed bool
	writerClosed bool
}

func newPipeCB() *pipeCB {
	return &pipeCB{
		buf:      make([]byte, PipeBufferSize),
		hasData:  NewCondVar(),
		hasSpace: NewCondVar(),
	}
}

func (p *pipeCB) full() bool  { return (p.w+1)%len(p.buf) == p.r }
func (p *pipeCB) empty() bool { return p.w == p.r }

// pipeCreateLocked reserves two FCBs bound to a fresh pipe_cb and installs
// them in pcb's FIDT, per spec.md section 4.4's create(). Must be called
// with k.mu held.
func (k *Kernel) pipeCreateLocked(pcb *PCB) (readFid, writeFid Fid_t, ok bool) {
	fids, got := fcbReserveLocked(pcb, 2)
	if !got {
		return NOFILE, NOFILE, false
	}

	pc := newPipeCB()

	readerFCB := newFCB(FCBOps{
		Read: func(self *TCB, buf []byte) int { return k.pipeRead(self, pc, buf) },
		Write: func(self *TCB, buf []byte) int {
			return -1
		},
		Close: func() { k.pipeCloseReaderLocked(pc) },
	}, pc)
	writerFCB := newFCB(FCBOps{
		Read: func(self *TCB, buf []byte) int { return -1 },
		Write: func(self *TCB, buf []byte) int {
			return k.pipeWrite(self, pc, buf)
		},
		Close: func() { k.pipeCloseWriterLocked(pc) },
	}, pc)

	pc.reader = readerFCB
	pc.writer = writerFCB

	readFid, writeFid = fids[0], fids[1]
	pcb.fidt[readFid] = readerFCB
	pcb.fidt[writeFid] = writerFCB
	return readFid, writeFid, true
}

// pipeWrite implements spec.md section 4.4's write(buf, n). self is the
// calling thread's TCB, needed to block on hasSpace.
func (k *Kernel) pipeWrite(self *TCB, p *pipeCB, buf []byte) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	if p.readerClosed {
		return -1
	}

	for p.full() && !p.readerClosed {
		p.hasSpace.WaitLocked(k, self, SchedPipe)
	}
	if p.readerClosed {
		return -1
	}

	n := 0
	max := len(buf)
	if max > len(p.buf)-1 {
		max = len(p.buf) - 1
	}
	for n < max && !p.full() {
		p.buf[p.w] = buf[n]
		p.w = (p.w + 1) % len(p.buf)
		n++
	}
	p.hasData.BroadcastLocked(k)
	return n
}

// pipeRead implements spec.md section 4.4's read(buf, n).
func (k *Kernel) pipeRead(self *TCB, p *pipeCB, buf []byte) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	if p.readerClosed {
		return -1
	}

	for p.empty() && !p.writerClosed {
		p.hasData.WaitLocked(k, self, SchedPipe)
	}
	if p.empty() && p.writerClosed {
		return 0
	}

	n := 0
	for n < len(buf) && !p.empty() {
		buf[n] = p.buf[p.r]
		p.r = (p.r + 1) % len(p.buf)
		n++
	}
	p.hasSpace.BroadcastLocked(k)
	return n
}

// pipeCloseReaderLocked half-closes the reader side: subsequent writes
// fail with −1, and any writer blocked on hasSpace is released to observe
// that. Must be called with k.mu held — every call site (FCB.decref,
// socket shutdown/close) already holds it.
func (k *Kernel) pipeCloseReaderLocked(p *pipeCB) {
	p.readerClosed = true
	p.hasSpace.BroadcastLocked(k)
}

// pipeCloseWriterLocked half-closes the writer side: blocked readers
// drain to EOF once the buffer empties. Must be called with k.mu held.
func (k *Kernel) pipeCloseWriterLocked(p *pipeCB) {
	p.writerClosed = true
	p.hasData.BroadcastLocked(k)
}
