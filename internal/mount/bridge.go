package mount

import (
	"context"
	"log"
	"os/exec"
	"sync"
	"time"
)

// ClientQueue is a byte-oriented pipe to/from an external client (a
// Bluetooth serial peer or a TCP "telescope" socket): In delivers bytes
// the client sent, toward the mount. Out is the channel toward the
// client; the Bridge never writes to it, so clients receive no bytes
// from the mount.
type ClientQueue struct {
	In  chan []byte
	Out chan []byte
}

func newClientQueue() *ClientQueue {
	return &ClientQueue{In: make(chan []byte, 16), Out: make(chan []byte, 16)}
}

// MountState is a snapshot of the mount's periodically-refreshed
// telemetry (§3's MountState entity).
type MountState struct {
	RA, Dec        string
	Pier           string
	PECPos         int
	Tracking       bool
	BacklashRA     int
	BacklashDec    int
	Info           string
	LastRefreshed  time.Time
}

// Bridge runs the ~20Hz loop multiplexing the mount serial link with
// Bluetooth and TCP clients (§4.6).
//
// Grounded on the camera capture loop's shape (stop channel + bounded
// join) and on radar.Monitor's for/select client-fanout pattern from
// banshee-data-velocity.report/radar/serial.go.
type Bridge struct {
	link   *Link
	logger *log.Logger

	mu       sync.RWMutex
	clients  []*ClientQueue
	state    MountState

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBridge builds a Bridge over link.
func NewBridge(link *Link, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.New(log.Writer(), "[bridge] ", log.LstdFlags)
	}
	return &Bridge{link: link, logger: logger}
}

// AddClient registers a new external client queue (Bluetooth or TCP)
// with the bridge's fan-out.
func (b *Bridge) AddClient() *ClientQueue {
	q := newClientQueue()
	b.mu.Lock()
	b.clients = append(b.clients, q)
	b.mu.Unlock()
	return q
}

// RemoveClient unregisters a client queue.
func (b *Bridge) RemoveClient(q *ClientQueue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.clients {
		if c == q {
			b.clients = append(b.clients[:i], b.clients[i+1:]...)
			return
		}
	}
}

// State returns the last-refreshed MountState snapshot.
func (b *Bridge) State() MountState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Start launches the bridge loop at ~20Hz (§4.6, §5).
func (b *Bridge) Start() {
	b.stopCh = make(chan struct{})
	b.wg.Add(1)
	go b.loop()
}

// Stop requests the loop to exit and joins within a bounded 10s
// timeout, per §5's cancellation discipline.
func (b *Bridge) Stop() {
	if b.stopCh == nil {
		return
	}
	close(b.stopCh)
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		b.logger.Printf("warning: bridge loop did not stop within 10s")
	}
}

func (b *Bridge) loop() {
	defer b.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond) // ~20Hz
	defer ticker.Stop()

	var lastRADec, lastPEC, lastInfo time.Time

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			if b.link.Paused() {
				continue
			}
			if !b.link.Quiet() {
				now := time.Now()
				if now.Sub(lastInfo) >= 33*time.Second {
					b.refreshInfo()
					lastInfo = now
					lastPEC = now
					lastRADec = now
				} else if now.Sub(lastPEC) >= 10*time.Second {
					b.refreshPEC()
					b.refreshRADec()
					lastPEC = now
					lastRADec = now
				} else if now.Sub(lastRADec) >= 4*time.Second {
					b.refreshRADec()
					lastRADec = now
				}
			}
			b.pollClients()
		}
	}
}

func (b *Bridge) refreshRADec() {
	ra, err := b.link.Exec(GetRA())
	if err == nil {
		b.mu.Lock()
		b.state.RA = string(ra)
		b.state.LastRefreshed = time.Now()
		b.mu.Unlock()
	}
	dec, err := b.link.Exec(GetDec())
	if err == nil {
		b.mu.Lock()
		b.state.Dec = string(dec)
		b.mu.Unlock()
	}
}

// GetPEC requests the mount's current PEC table and parses it.
func (b *Bridge) GetPEC() ([]int, error) {
	reply, err := b.link.Exec(PTCGetPEC())
	if err != nil {
		return nil, err
	}
	return ParsePEC(string(reply))
}

// SetPEC writes a new PEC table (§4.6's PEC get/set round-trip).
func (b *Bridge) SetPEC(values []int) error {
	return b.link.SetPEC(values)
}

func (b *Bridge) refreshPEC() {
	reply, err := b.link.Exec(PTCGetPECPos())
	if err != nil {
		return
	}
	b.mu.Lock()
	b.state.PECPos = parseFirstInt(string(reply))
	b.mu.Unlock()
}

func (b *Bridge) refreshInfo() {
	reply, err := b.link.Exec(PTCInfo())
	if err != nil {
		return
	}
	b.mu.Lock()
	b.state.Info = string(reply)
	b.mu.Unlock()
}

// pollClients forwards bytes from each client's In queue to the mount as
// a fire-and-forget command. Mount replies are not read back and nothing
// is written to a client's Out queue.
func (b *Bridge) pollClients() {
	b.mu.RLock()
	clients := append([]*ClientQueue(nil), b.clients...)
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case data := <-c.In:
			b.link.Exec(Command{Bytes: data, Timeout: 0})
		default:
		}
	}
}

func parseFirstInt(s string) int {
	n := 0
	started := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			started = true
		} else if started {
			break
		}
	}
	return n
}

// UploadFirmware pauses the bridge, runs the external flashing tool,
// then resumes the bridge (§4.6).
func (b *Bridge) UploadFirmware(ctx context.Context, toolPath string, args ...string) error {
	b.link.SetPaused(true)
	defer b.link.SetPaused(false)

	cmd := exec.CommandContext(ctx, toolPath, args...)
	return cmd.Run()
}
