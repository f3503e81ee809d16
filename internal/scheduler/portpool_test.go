package scheduler

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortPool_AcquireRelease(t *testing.T) {
	pool, err := NewPortPool(24000, 3)
	require.NoError(t, err)
	require.GreaterOrEqual(t, pool.Size(), 3)

	free := pool.Free()
	port := pool.Acquire()
	require.GreaterOrEqual(t, port, 24000)
	require.Less(t, port, 24000+2*3)
	require.Equal(t, free-1, pool.Free())

	pool.Release(port)
	require.Equal(t, free, pool.Free())
}

func TestPortPool_SkipsOccupiedPorts(t *testing.T) {
	// Occupy the first port of the range so the probe must skip it.
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", 24100))
	require.NoError(t, err)
	defer ln.Close()

	pool, err := NewPortPool(24100, 2)
	require.NoError(t, err)

	for i := 0; i < pool.Free(); i++ {
		require.NotEqual(t, 24100, pool.Acquire())
	}
}

func TestPortPool_FailsWhenRangeTooBusy(t *testing.T) {
	// Occupy the whole probe range; construction must fail.
	start := 24200
	maxGames := 2
	var listeners []net.Listener
	for p := start; p < start+2*maxGames; p++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err == nil {
			listeners = append(listeners, ln)
		}
	}
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	if len(listeners) < 2*maxGames {
		t.Skip("could not occupy the full test port range")
	}

	_, err := NewPortPool(start, maxGames)
	require.Error(t, err)
}
