package kernel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kernel "github.com/cmichalopoulos/tinyoskernel"
)

func TestSocketServerClientRoundTrip(t *testing.T) {
	k := bootTest(t)
	done := make(chan struct{})

	server := func(th *kernel.Thread, argl int, args []byte) {
		lfid := th.Socket(80)
		require.NotEqual(t, kernel.NOFILE, lfid)
		require.Equal(t, 0, th.Listen(lfid))

		peer := th.Accept(lfid)
		require.NotEqual(t, kernel.NOFILE, peer)

		buf := make([]byte, 4)
		n := th.Read(peer, buf)
		require.Equal(t, 4, n)
		require.Equal(t, "ping", string(buf[:n]))

		n = th.Write(peer, []byte("pong"))
		require.Equal(t, 4, n)

		th.ShutDown(peer, kernel.ShutdownBoth)
		th.Close(peer)
		th.Close(lfid)
		th.Exit(0)
	}

	client := func(th *kernel.Thread, argl int, args []byte) {
		fid := th.Socket(kernel.NOPORT)
		require.NotEqual(t, kernel.NOFILE, fid)

		require.Equal(t, 0, th.Connect(fid, 80, 1000))

		n := th.Write(fid, []byte("ping"))
		require.Equal(t, 4, n)

		buf := make([]byte, 4)
		n = th.Read(fid, buf)
		require.Equal(t, 4, n)
		require.Equal(t, "pong", string(buf[:n]))

		th.ShutDown(fid, kernel.ShutdownBoth)
		th.Close(fid)
		close(done)
		th.Exit(0)
	}

	init := func(th *kernel.Thread, argl int, args []byte) {
		th.Exec(server, 0, nil)
		time.Sleep(5 * time.Millisecond) // let the server reach Accept
		th.Exec(client, 0, nil)
		for {
			pid, _ := th.WaitChild(kernel.NOPROC)
			if pid == kernel.NOPROC {
				continue
			}
		}
	}
	k.Exec(init, 0, nil)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("server/client round trip timed out")
	}
}

func TestConnectToNonListeningPort(t *testing.T) {
	k := bootTest(t)
	done := make(chan struct{})

	init := func(th *kernel.Thread, argl int, args []byte) {
		fid := th.Socket(kernel.NOPORT)
		require.NotEqual(t, kernel.NOFILE, fid)
		rc := th.Connect(fid, 99, 50)
		require.Equal(t, -1, rc)
		close(done)
		th.Exit(0)
	}
	k.Exec(init, 0, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connect-to-nothing timed out")
	}
}

func TestListenerClosedWhileAccepting(t *testing.T) {
	k := bootTest(t)
	acceptReturned := make(chan kernel.Fid_t, 1)
	connectReturned := make(chan int, 1)
	done := make(chan struct{})

	init := func(th *kernel.Thread, argl int, args []byte) {
		lfid := th.Socket(83)
		require.Equal(t, 0, th.Listen(lfid))

		// a dedicated process inherits the listener fid and blocks in Accept
		// on it; it keeps its own copy open throughout the call.
		th.Exec(func(acceptor *kernel.Thread, argl int, args []byte) {
			result := acceptor.Accept(lfid)
			acceptReturned <- result
			acceptor.Exit(0)
		}, 0, nil)
		time.Sleep(5 * time.Millisecond) // let it reach Accept

		th.Close(lfid) // init's own copy; retires the port immediately

		select {
		case result := <-acceptReturned:
			require.Equal(t, kernel.NOFILE, result)
		case <-time.After(2 * time.Second):
			t.Fatal("accept never observed the listener close")
		}

		th.Exec(func(c *kernel.Thread, argl int, args []byte) {
			rc := c.Connect(c.Socket(kernel.NOPORT), 83, 50)
			connectReturned <- rc
			c.Exit(0)
		}, 0, nil)

		select {
		case rc := <-connectReturned:
			require.Equal(t, -1, rc)
		case <-time.After(2 * time.Second):
			t.Fatal("connect to the now-closed port never returned")
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
	case <-time.After(4 * time.Second):
		t.Fatal("listener-closed-while-accepting scenario timed out")
	}
}
