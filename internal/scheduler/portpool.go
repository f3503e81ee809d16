package scheduler

import (
	"fmt"
	"net"
)

// PortPool hands out match-server ports from a fixed set probed once at
// startup. The free count plus the in-use count is constant for the pool's
// lifetime.
type PortPool struct {
	free chan int
	size int
}

// NewPortPool probes the contiguous range [start, start+2*maxGames) for
// bindable ports. Construction fails if fewer usable ports exist than the
// configured maximum simultaneous match count.
func NewPortPool(start, maxGames int) (*PortPool, error) {
	end := start + 2*maxGames
	free := make(chan int, end-start)
	usable := 0
	for port := start; port < end; port++ {
		if portInUse(port) {
			continue
		}
		free <- port
		usable++
	}
	if usable < maxGames {
		return nil, fmt.Errorf(
			"scheduler: port range %d-%d has only %d unallocated ports, need %d for simultaneous games",
			start, end-1, usable, maxGames)
	}
	return &PortPool{free: free, size: usable}, nil
}

// Acquire blocks until a free port is available. The concurrency semaphore is
// always acquired first, so in practice this never blocks.
func (p *PortPool) Acquire() int {
	return <-p.free
}

// Release returns a port to the pool.
func (p *PortPool) Release(port int) {
	p.free <- port
}

// Free returns the number of currently unallocated ports.
func (p *PortPool) Free() int {
	return len(p.free)
}

// Size returns the total number of ports the pool manages.
func (p *PortPool) Size() int {
	return p.size
}

func portInUse(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	ln.Close()
	return false
}
