package stellarium

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu         sync.Mutex
	raDeg, decDeg float64
	calls      int
}

func (h *recordingHandler) Goto(raDeg, decDeg float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.raDeg, h.decDeg = raDeg, decDeg
	h.calls++
	return nil
}

func (h *recordingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestServer_DispatchesGotoRequest(t *testing.T) {
	handler := &recordingHandler{}
	srv := New("127.0.0.1:0", handler, nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 20)
	binary.LittleEndian.PutUint16(buf[0:2], 20)
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	binary.LittleEndian.PutUint64(buf[4:12], 0)
	binary.LittleEndian.PutUint32(buf[12:16], 0x40000000)
	binary.LittleEndian.PutUint32(buf[16:20], 0x20000000)
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if handler.callCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the server to dispatch a goto call")
}
