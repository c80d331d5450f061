package kernel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kernel "github.com/cmichalopoulos/tinyoskernel"
)

func TestPipeRoundTrip(t *testing.T) {
	k := bootTest(t)
	done := make(chan struct{})
	payload := []byte("the quick brown fox jumps over the lazy dog")

	init := func(th *kernel.Thread, argl int, args []byte) {
		r, w, ok := th.Pipe()
		require.True(t, ok)

		readDone := make(chan []byte)
		th.Exec(func(child *kernel.Thread, argl int, args []byte) {
			child.Close(w) // a reader closes its own inherited write end
			var got []byte
			buf := make([]byte, 7)
			for {
				n := child.Read(r, buf)
				if n == 0 {
					break
				}
				require.GreaterOrEqual(t, n, 0)
				got = append(got, buf[:n]...)
			}
			readDone <- got
			child.Exit(0)
		}, 0, nil)
		th.Close(r) // a writer closes its own inherited read end

		for i := 0; i < len(payload); i += 5 {
			end := i + 5
			if end > len(payload) {
				end = len(payload)
			}
			n := th.Write(w, payload[i:end])
			require.Equal(t, end-i, n)
		}
		th.Close(w)

		got := <-readDone
		require.Equal(t, payload, got)
		close(done)
		th.Exit(0)
	}
	k.Exec(init, 0, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipe round-trip timed out")
	}
}

func TestPipeHalfClose(t *testing.T) {
	k := bootTest(t)
	done := make(chan struct{})

	init := func(th *kernel.Thread, argl int, args []byte) {
		r, w, ok := th.Pipe()
		require.True(t, ok)

		childDone := make(chan int)
		th.Exec(func(child *kernel.Thread, argl int, args []byte) {
			child.Close(w)
			buf := make([]byte, 3)
			n := child.Read(r, buf)
			require.Equal(t, 3, n)
			require.Equal(t, "abc", string(buf[:n]))

			n = child.Read(r, buf)
			childDone <- n
			child.Exit(0)
		}, 0, nil)

		th.Close(r)
		n := th.Write(w, []byte("abc"))
		require.Equal(t, 3, n)
		th.Close(w)

		eofN := <-childDone
		require.Equal(t, 0, eofN)
		close(done)
		th.Exit(0)
	}
	k.Exec(init, 0, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("half-close scenario timed out")
	}
}

func TestPipeWriteAfterReaderClosed(t *testing.T) {
	k := bootTest(t)
	done := make(chan struct{})

	init := func(th *kernel.Thread, argl int, args []byte) {
		r, w, ok := th.Pipe()
		require.True(t, ok)

		th.Close(r)
		n := th.Write(w, []byte("x"))
		require.Equal(t, -1, n)
		close(done)
		th.Exit(0)
	}
	k.Exec(init, 0, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broken-pipe write timed out")
	}
}

func TestPipeAtBufferBoundary(t *testing.T) {
	k := bootTest(t)
	done := make(chan struct{})

	init := func(th *kernel.Thread, argl int, args []byte) {
		r, w, ok := th.Pipe()
		require.True(t, ok)

		fill := make([]byte, kernel.PipeBufferSize-1)
		for i := range fill {
			fill[i] = byte(i)
		}

		writerUnblocked := make(chan struct{})
		th.Exec(func(child *kernel.Thread, argl int, args []byte) {
			child.Close(r)
			n := child.Write(w, fill)
			require.Equal(t, len(fill), n)
			extra := child.Write(w, []byte{0xFF})
			require.Equal(t, 1, extra) // unblocks only once a byte is read
			close(writerUnblocked)
			child.Exit(0)
		}, 0, nil)
		th.Close(w)

		buf := make([]byte, 1)
		total := 0
		for total < len(fill) {
			n := th.Read(r, buf)
			total += n
		}

		select {
		case <-writerUnblocked:
		case <-time.After(time.Second):
			t.Fatal("writer never unblocked after the reader drained one byte")
		}
		close(done)
		th.Exit(0)
	}
	k.Exec(init, 0, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("boundary test timed out")
	}
}
