package kernel

// FCBOps is the op-table vtable every descriptor binds its stream object
// to, per spec.md section 4.6. read returns bytes copied, 0 on EOF, or −1
// on error; write returns bytes accepted or −1; close releases the stream
// object per its class.
type FCBOps struct {
	Read  func(self *TCB, buf []byte) int
	Write func(self *TCB, buf []byte) int
	Close func()
}

// FCB is a file control block: an abstract stream object bound to an
// op-table, referenced by Fid_t through a process's FIDT. Generalizes the
// teacher's per-fd fdDesc to a vtable instead of a fixed event-loop shape.
type FCB struct {
	ops     FCBOps
	refcnt  int
	closed  bool
	private interface{} // *pipeCB or *SocketCB, owned by the op-table closures
}

func newFCB(ops FCBOps, private interface{}) *FCB {
	return &FCB{ops: ops, refcnt: 1, private: private}
}

func (f *FCB) incref() { f.refcnt++ }

// decref drops a reference, calling Close exactly once when it reaches 0.
func (f *FCB) decref() {
	f.refcnt--
	if f.refcnt > 0 {
		return
	}
	if !f.closed {
		f.closed = true
		f.ops.Close()
	}
}

// fcbReserveLocked atomically obtains n free fids from p's table, or
// returns false and leaves p's table untouched, per spec.md section 4.6's
// FCB_reserve. Must be called with k.mu held.
func fcbReserveLocked(p *PCB, n int) ([]Fid_t, bool) {
	fids := make([]Fid_t, 0, n)
	for i, f := range p.fidt {
		if f == nil {
			fids = append(fids, Fid_t(i))
			if len(fids) == n {
				return fids, true
			}
		}
	}
	return nil, false
}

// getFCBLocked resolves a fid to its FCB within p, or nil if the fid is
// out of range or unbound. Must be called with k.mu held.
func getFCBLocked(p *PCB, fid Fid_t) *FCB {
	if fid < 0 || int(fid) >= len(p.fidt) {
		return nil
	}
	return p.fidt[fid]
}
