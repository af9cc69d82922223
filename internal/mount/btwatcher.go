package mount

import (
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// BTWatcher drives the Bluetooth serial bridge's open-on-connect,
// close-on-disconnect state machine by polling serial.GetPortsList for
// device's appearance (§4.6, §11.1), rather than relying on the OS to
// signal attach/detach. A paired BT serial adapter only shows up in the
// port list once the phone/tablet has connected.
type BTWatcher struct {
	device string
	baud   int
	bridge *Bridge
	logger *log.Logger

	pollInterval time.Duration
	listPorts    func() ([]string, error)
	openPort     func(device string, mode *serial.Mode) (serial.Port, error)

	mu     sync.Mutex
	open   bool
	port   serial.Port
	queue  *ClientQueue
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBTWatcher builds a BTWatcher for device, bridging an opened
// connection's bytes into bridge.
func NewBTWatcher(device string, baud int, bridge *Bridge, logger *log.Logger) *BTWatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[mount-bt] ", log.LstdFlags)
	}
	return &BTWatcher{
		device:       device,
		baud:         baud,
		bridge:       bridge,
		logger:       logger,
		pollInterval: 2 * time.Second,
		listPorts:    serial.GetPortsList,
		openPort:     serial.Open,
	}
}

// Start begins the poll loop in the background.
func (w *BTWatcher) Start() {
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.loop()
}

// Stop closes any open connection and joins within a bounded 10s
// timeout per §5's cancellation discipline.
func (w *BTWatcher) Stop() {
	if w.stopCh == nil {
		return
	}
	close(w.stopCh)

	w.mu.Lock()
	w.closeLocked()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		w.logger.Printf("warning: bt watcher did not stop within 10s")
	}
}

func (w *BTWatcher) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *BTWatcher) poll() {
	ports, err := w.listPorts()
	if err != nil {
		w.logger.Printf("list ports: %v", err)
		return
	}
	present := false
	for _, p := range ports {
		if p == w.device {
			present = true
			break
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case present && !w.open:
		w.openLocked()
	case !present && w.open:
		w.closeLocked()
	}
}

func (w *BTWatcher) openLocked() {
	mode := &serial.Mode{BaudRate: w.baud}
	port, err := w.openPort(w.device, mode)
	if err != nil {
		w.logger.Printf("open %s: %v", w.device, err)
		return
	}
	w.port = port
	w.open = true
	w.queue = w.bridge.AddClient()
	w.logger.Printf("bluetooth bridge connected: %s", w.device)

	w.wg.Add(1)
	go w.pump(port, w.queue)
}

func (w *BTWatcher) pump(port serial.Port, q *ClientQueue) {
	defer w.wg.Done()
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case q.In <- data:
		case <-w.stopCh:
			return
		}
	}
}

func (w *BTWatcher) closeLocked() {
	if !w.open {
		return
	}
	w.bridge.RemoveClient(w.queue)
	w.port.Close()
	w.open = false
	w.port = nil
	w.queue = nil
	w.logger.Printf("bluetooth bridge disconnected: %s", w.device)
}
