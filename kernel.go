package kernel

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmichalopoulos/tinyoskernel/bios"
	"github.com/sirupsen/logrus"
)

// Config holds the kernel's boot-time tunables. There is no config-file
// reader: tunables are constructor parameters, matching the teacher's
// NewWatcherSize(bufsize) pattern (see SPEC_FULL.md section B).
type Config struct {
	NumCores  int
	MaxProc   int
	MaxFileID int
	MaxPort   int
	Quantum   time.Duration
}

// DefaultConfig returns the tunables named in spec.md section 6.
func DefaultConfig() Config {
	return Config{
		NumCores:  4,
		MaxProc:   DefaultMaxProc,
		MaxFileID: DefaultMaxFileID,
		MaxPort:   DefaultMaxPort,
		Quantum:   DefaultQuantum,
	}
}

// Kernel is the singleton kernel context described in spec.md's Design
// Notes (section 9): every piece of global mutable state the spec
// enumerates — the process table, PORT_MAP, ready queues, TIMEOUT_LIST,
// and active-thread counter — lives here, initialized at Boot.
type Kernel struct {
	cfg     Config
	machine *bios.Machine
	log     *logrus.Entry

	// mu is the single global scheduler spinlock (sched_spinlock) that
	// serializes every mutation of the fields below, per spec.md section 5.
	mu       sync.Mutex
	ready    [PriorityQueues]*list.List
	timeouts timeoutHeap
	ccbs     []*CCB
	yieldNum int

	activeThreads atomic.Int64

	// bootSignal is closed the first time any thread is ever spawned.
	// idleLoop waits on it before considering ACTIVE_THREADS == 0 a sign
	// that the scheduler should terminate, so Boot's idle goroutines don't
	// race the very first Exec and tear themselves down before init exists.
	bootOnce   sync.Once
	bootSignal chan struct{}

	procs    []*PCB
	freeHead *PCB

	portMap map[int]*SocketCB

	shutdownOnce sync.Once
	down         chan struct{}
}

// Boot initializes a kernel context and starts one idle thread per core.
func Boot(cfg Config) *Kernel {
	if cfg.NumCores < 1 {
		cfg.NumCores = 1
	}
	if cfg.MaxProc < 2 {
		cfg.MaxProc = 2
	}
	if cfg.Quantum <= 0 {
		cfg.Quantum = DefaultQuantum
	}

	k := &Kernel{
		cfg:        cfg,
		machine:    bios.NewMachine(cfg.NumCores),
		log:        newLogger(),
		portMap:    make(map[int]*SocketCB),
		down:       make(chan struct{}),
		bootSignal: make(chan struct{}),
	}
	for i := range k.ready {
		k.ready[i] = list.New()
	}

	k.procs = make([]*PCB, cfg.MaxProc)
	for i := cfg.MaxProc - 1; i >= 0; i-- {
		p := newPCB(i, cfg.MaxFileID)
		k.procs[i] = p
		p.parent = k.freeHead
		k.freeHead = p
	}

	k.ccbs = make([]*CCB, cfg.NumCores)
	for i := 0; i < cfg.NumCores; i++ {
		ccb := &CCB{id: i}
		k.ccbs[i] = ccb
		idle := newTCB(nil, ThreadIdle, 0, cfg.Quantum, nil)
		idle.state = StateRunning
		idle.phase = CtxDirty
		idle.core = i
		ccb.idle = idle
		ccb.current = idle
		idle.entry = k.idleLoop(i)
		go idle.entry()
	}

	k.log.WithField("cores", cfg.NumCores).Info("kernel booted")
	return k
}

// Shutdown closes the kernel's down channel, at most once. It does not wait
// for the idle threads, and it does not stop or release any running thread;
// each idle thread terminates on its own once ACTIVE_THREADS reaches zero
// (see idleLoop).
func (k *Kernel) Shutdown() {
	k.shutdownOnce.Do(func() { close(k.down) })
}

// NumCores reports the number of simulated cores.
func (k *Kernel) NumCores() int { return k.cfg.NumCores }

// ActiveThreads reports the number of spawned, not-yet-released non-idle
// TCBs, per the testable property in spec.md section 8.
func (k *Kernel) ActiveThreads() int64 { return k.activeThreads.Load() }

// ProcSummary is one process's entry in a Snapshot.
type ProcSummary struct {
	Pid      Pid_t
	PPid     Pid_t
	State    ProcState
	NThreads int
}

// Snapshot returns a read-only summary of every live or zombie process.
// spec.md's procinfo wire stream is explicitly out of scope (SPEC_FULL.md
// section D.3); this is the one introspection hook this core provides, for
// an external collaborator to build that stream from.
func (k *Kernel) Snapshot() []ProcSummary {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]ProcSummary, 0, len(k.procs))
	for _, p := range k.procs {
		if p.state == ProcFree {
			continue
		}
		ppid := NOPROC
		if p.parent != nil {
			ppid = p.parent.pid
		}
		out = append(out, ProcSummary{
			Pid:      p.pid,
			PPid:     ppid,
			State:    p.state,
			NThreads: p.threadCount,
		})
	}
	return out
}
