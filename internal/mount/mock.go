package mount

import (
	"bytes"
	"fmt"
	"sync"
	"time"
)

// MockPort is a synthetic Port for tests: Reply is consulted for each
// Write and its return value is queued up for subsequent Reads.
type MockPort struct {
	Reply      func(written []byte) []byte
	FailWrites int

	mu      sync.Mutex
	written [][]byte
	pending bytes.Buffer
	closed  bool
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailWrites > 0 {
		p.FailWrites--
		return 0, fmt.Errorf("mock: simulated write failure")
	}
	cp := append([]byte(nil), b...)
	p.written = append(p.written, cp)
	if p.Reply != nil {
		p.pending.Write(p.Reply(cp))
	}
	return len(b), nil
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Len() == 0 {
		return 0, nil
	}
	return p.pending.Read(b)
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *MockPort) SetReadTimeout(t time.Duration) error { return nil }

// Written returns a snapshot of the byte slices written so far.
func (p *MockPort) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.written...)
}
