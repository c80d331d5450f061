package kernel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kernel "github.com/cmichalopoulos/tinyoskernel"
)

// TestActiveThreadsDrainsToZero exercises the testable property from
// spec.md section 8: ACTIVE_THREADS returns to 0 once every spawned
// thread has exited, across a batch of short-lived processes.
func TestActiveThreadsDrainsToZero(t *testing.T) {
	k := bootTest(t)
	done := make(chan struct{})

	init := func(th *kernel.Thread, argl int, args []byte) {
		for i := 0; i < 10; i++ {
			th.Exec(func(c *kernel.Thread, argl int, args []byte) {
				c.Exit(0)
			}, 0, nil)
		}
		for {
			pid, _ := th.WaitChild(kernel.NOPROC)
			if pid == kernel.NOPROC {
				break
			}
		}
		close(done)
		th.Exit(0)
	}
	k.Exec(init, 0, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch of children never drained")
	}

	require.Eventually(t, func() bool {
		return k.ActiveThreads() == 0
	}, time.Second, time.Millisecond, "active thread count never returned to zero")
}

// TestComputeBoundThreadsShareCores demonstrates the anti-starvation boost
// (spec.md section 4.1, YieldsPerBoost): a pool of busy-looping,
// Checkpoint-yielding compute threads all make forward progress over a
// fixed wall-clock window, on a machine with fewer cores than threads, so
// none of them can be serviced without the MLFQ giving every queue a turn.
func TestComputeBoundThreadsShareCores(t *testing.T) {
	cfg := kernel.DefaultConfig()
	cfg.NumCores = 2
	cfg.Quantum = time.Millisecond
	k := kernel.Boot(cfg)
	defer k.Shutdown()

	const nWorkers = 8
	counters := make([]int64, nWorkers)
	stop := make(chan struct{})
	allDone := make(chan struct{})

	init := func(th *kernel.Thread, argl int, args []byte) {
		doneCh := make(chan struct{}, nWorkers)
		for i := 0; i < nWorkers; i++ {
			idx := i
			th.Exec(func(c *kernel.Thread, argl int, args []byte) {
				for {
					select {
					case <-stop:
						doneCh <- struct{}{}
						c.Exit(0)
						return
					default:
					}
					atomic.AddInt64(&counters[idx], 1)
					c.Checkpoint()
				}
			}, 0, nil)
		}
		for i := 0; i < nWorkers; i++ {
			<-doneCh
		}
		for {
			pid, _ := th.WaitChild(kernel.NOPROC)
			if pid == kernel.NOPROC {
				break
			}
		}
		close(allDone)
		th.Exit(0)
	}
	k.Exec(init, 0, nil)

	time.Sleep(200 * time.Millisecond)
	close(stop)

	select {
	case <-allDone:
	case <-time.After(3 * time.Second):
		t.Fatal("compute-bound workers never wound down")
	}

	for i := range counters {
		require.Greaterf(t, atomic.LoadInt64(&counters[i]), int64(0), "worker %d never made progress", i)
	}
}

// TestIOBoundThreadNotStarved drives one pipe-round-tripping (I/O-bound,
// frequently-blocking) thread alongside a pool of tight-looping
// compute-bound threads and checks that the I/O-bound thread still
// completes its round trips promptly: SchedIO/SchedPipe wakeups boost
// priority per spec.md section 4.1's feedback table, so a thread that
// keeps blocking should win the ready queue over threads being
// continually demoted by SchedQuantum.
func TestIOBoundThreadNotStarved(t *testing.T) {
	cfg := kernel.DefaultConfig()
	cfg.NumCores = 2
	cfg.Quantum = time.Millisecond
	k := kernel.Boot(cfg)
	defer k.Shutdown()

	const nCompute = 6
	const nRoundTrips = 50
	stop := make(chan struct{})
	ioDone := make(chan time.Duration, 1)
	allDone := make(chan struct{})

	init := func(th *kernel.Thread, argl int, args []byte) {
		for i := 0; i < nCompute; i++ {
			th.Exec(func(c *kernel.Thread, argl int, args []byte) {
				for {
					select {
					case <-stop:
						c.Exit(0)
						return
					default:
					}
					c.Checkpoint()
				}
			}, 0, nil)
		}

		r, w, ok := th.Pipe()
		require.True(t, ok)
		pongDone := make(chan struct{})
		th.Exec(func(c *kernel.Thread, argl int, args []byte) {
			buf := make([]byte, 1)
			for i := 0; i < nRoundTrips; i++ {
				n := c.Read(r, buf)
				require.Equal(t, 1, n)
			}
			close(pongDone)
			c.Exit(0)
		}, 0, nil)

		start := time.Now()
		for i := 0; i < nRoundTrips; i++ {
			n := th.Write(w, []byte{byte(i)})
			require.Equal(t, 1, n)
		}
		<-pongDone
		ioDone <- time.Since(start)

		th.Close(r)
		th.Close(w)
		close(stop)
		for {
			pid, _ := th.WaitChild(kernel.NOPROC)
			if pid == kernel.NOPROC {
				break
			}
		}
		close(allDone)
		th.Exit(0)
	}
	k.Exec(init, 0, nil)

	var elapsed time.Duration
	select {
	case elapsed = <-ioDone:
	case <-time.After(5 * time.Second):
		t.Fatal("pipe round trips never completed under compute load")
	}
	require.Lessf(t, elapsed, 2*time.Second,
		"pipe round trips took %s, suggesting the I/O-bound thread was starved", elapsed)

	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		t.Fatal("compute workers never wound down after the I/O test completed")
	}
}
