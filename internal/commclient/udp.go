// Package commclient implements the plant-side UDP transport that carries
// sensor samples and actuation commands between a standalone plant process
// and a remote controller process. It exists purely as example wiring for
// the cmd/plant and cmd/controller binaries — the plant and controller
// packages themselves only know about the abstract Sensor/Actuator and
// Compute interfaces.
package commclient

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/codec"
	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/plant"
)

// Client is the plant side of the sensor/actuator wire transport: it sends
// each published sample to the controller as a SENSOR_SAMPLE datagram and
// feeds the controller's CONTROL_COMMAND replies into a single-slot
// actuation mailbox. It implements both plant.Sensor and plant.Actuator —
// the two faces of one network connection.
type Client struct {
	conn   *net.UDPConn
	logger *slog.Logger
	seq    uint64

	mu      sync.Mutex
	pending plant.PPM

	closeOnce sync.Once
	doneCh    chan struct{}
}

// New dials addr over UDP and returns a Client ready to use as both a
// plant.Sensor and a plant.Actuator. logger may be nil, in which case a
// discarding logger is used.
func New(addr string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, logger: logger, doneCh: make(chan struct{})}
	go c.readReplies()
	return c, nil
}

// SetSample implements plant.Sensor: it serializes sample as a fresh
// SENSOR_SAMPLE message and sends it to the controller. Write failures are
// logged and dropped — the next sample retriggers delivery.
func (c *Client) SetSample(sample plant.PPM) {
	seq := atomic.AddUint64(&c.seq, 1)
	ts := time.Since(monoEpoch).Seconds()
	msg := codec.NewSensorSample(seq, ts, codec.PPM(sample))

	b, err := msg.Serialize()
	if err != nil {
		c.logger.Warn("commclient: failed to serialize sample", "error", err.Error())
		return
	}
	if _, err := c.conn.Write(b); err != nil {
		c.logger.Warn("commclient: failed to send sample", "error", err.Error())
	}
}

// GetNextActuation implements plant.Actuator: it returns the most recently
// received actuation command and clears the mailbox, consuming it exactly
// once.
func (c *Client) GetNextActuation() plant.PPM {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := c.pending
	c.pending = nil
	return cmd
}

// readReplies drains CONTROL_COMMAND datagrams from the controller into the
// actuation mailbox until the connection is closed.
func (c *Client) readReplies() {
	buf := make([]byte, 65535)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return // closed by Shutdown
		}

		msg, err := codec.ParseMessage(buf[:n])
		if err != nil {
			c.logger.Warn("commclient: malformed reply", "error", err.Error())
			continue
		}
		if msg == nil || msg.Type != codec.ControlCommand {
			continue
		}

		c.mu.Lock()
		c.pending = plant.PPM(msg.Payload)
		c.mu.Unlock()
	}
}

// Shutdown implements both plant.Sensor and plant.Actuator; it closes the
// underlying connection once, regardless of which interface call reaches it
// first (the plant loop calls both on its own Shutdown).
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		close(c.doneCh)
	})
}

// monoEpoch anchors the client's monotonic clock frame: sample timestamps
// are seconds elapsed since this instant on Go's monotonic clock.
var monoEpoch = time.Now()

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
