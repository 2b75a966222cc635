// Package controller implements the event-driven UDP endpoint that ingests
// sensor samples, dispatches them to user compute, and emits replies while
// recording per-request timing and message sizes.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/codec"
	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/record"
)

// ErrUnknownType is logged (not returned) when a parsed message carries a
// type other than SENSOR_SAMPLE; the datagram is dropped without a reply.
var ErrUnknownType = errors.New("controller: unrecognized message type")

// RecordFields is the fixed schema pushed to the service's Recordable for
// every processed sensor sample.
var RecordFields = []string{
	"seq", "recv_timestamp", "recv_size",
	"process_time", "send_timestamp", "send_size",
}

// completionQueueSize bounds how many finished requests may await their
// turn on the event-loop goroutine before a slow Compute backs up the
// receive path. Chosen generously relative to one UDP MTU-sized burst.
const completionQueueSize = 256

// monoEpoch anchors the service's monotonic clock frame: message and record
// timestamps are seconds elapsed since this instant on Go's monotonic clock.
var monoEpoch = time.Now()

// Compute is user-supplied control logic. SubmitRequest hands off one
// control input for asynchronous processing; callback must be invoked
// exactly once, from any goroutine, with the resulting actuation command.
// ProcessLoop is called repeatedly by the event loop and must return
// quickly — it exists to let Compute implementations pump their own
// internal work (e.g. draining a result queue) cooperatively.
type Compute interface {
	SubmitRequest(input codec.PPM, callback func(codec.PPM))
	ProcessLoop(ctx context.Context)
}

// Config holds the construction parameters for a Service.
type Config struct {
	Port       int
	Compute    Compute
	Recordable *record.Recordable
	Logger     *slog.Logger
}

// Service is a UDP endpoint that receives control messages, dispatches
// SENSOR_SAMPLE messages to Compute, and writes the resulting
// CONTROL_COMMAND reply back to the sender.
type Service struct {
	port    int
	compute Compute
	records *record.Recordable
	logger  *slog.Logger
}

// New constructs a Service. logger may be nil, in which case a discarding
// logger is used.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Service{
		port:    cfg.Port,
		compute: cfg.Compute,
		records: cfg.Recordable,
		logger:  logger,
	}
}

// inbound is one datagram handed from the raw socket reader to the event
// loop, tagged with the moment it was captured.
type inbound struct {
	data     []byte
	addr     *net.UDPAddr
	recvTime time.Time
}

// Serve binds the UDP socket and runs the event loop until ctx is
// cancelled or a fatal bind/read error occurs.
//
// Exactly one goroutine — the event loop below — ever parses a message,
// calls into Compute, serializes a reply, writes it, or pushes a timing
// record: a single cooperative event loop, realized in Go. A second,
// minimal goroutine exists only to turn the
// blocking ReadFromUDP syscall into a channel send; it does no message
// handling of its own. Compute.SubmitRequest callbacks are never invoked
// directly — they enqueue a completion closure that the event loop drains
// on a later iteration, guaranteeing the single-goroutine property even
// when a Compute implementation finishes its work on a different
// goroutine than the one that received the request.
func (s *Service) Serve(ctx context.Context) error {
	addr := &net.UDPAddr{Port: s.port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("controller: listen on port %d: %w", s.port, err)
	}
	defer conn.Close()

	s.logger.Info("controller: starting controller service", "port", s.port)

	datagramCh := make(chan inbound)
	completionCh := make(chan func(), completionQueueSize)
	readErrCh := make(chan error, 1)

	go s.readDatagrams(conn, ctx, datagramCh, readErrCh)

	for {
		select {
		case <-ctx.Done():
			s.logger.Warn("controller: shutting down controller service, please wait")
			conn.Close()
			<-readErrCh
			s.logger.Info("controller: controller service shutdown complete")
			return nil

		case in := <-datagramCh:
			s.handleDatagram(conn, in, completionCh)

		case fn := <-completionCh:
			fn()

		case err := <-readErrCh:
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("controller: read from udp: %w", err)

		default:
			s.compute.ProcessLoop(ctx)
		}
	}
}

// readDatagrams blocks on the UDP socket and forwards each datagram to
// out, or sends the terminal error to errCh when the socket is closed.
func (s *Service) readDatagrams(conn *net.UDPConn, ctx context.Context, out chan<- inbound, errCh chan<- error) {
	buf := make([]byte, 65535)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			errCh <- err
			return
		}

		dgram := make([]byte, n)
		copy(dgram, buf[:n])

		select {
		case out <- inbound{data: dgram, addr: addr, recvTime: time.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

// handleDatagram runs the per-datagram algorithm: parse, branch on message
// type, and submit SENSOR_SAMPLE payloads to Compute. The callback given to
// SubmitRequest never touches the socket or the recordable directly — it
// enqueues a completion closure so the reply and the record are always
// produced on the event-loop goroutine. Parse failures and unrecognized
// message types are logged and dropped without a reply.
func (s *Service) handleDatagram(conn *net.UDPConn, in inbound, completionCh chan<- func()) {
	recvTime := in.recvTime
	inSize := len(in.data)
	s.logger.Debug("controller: received datagram", "bytes", inSize, "from", in.addr.String())

	inMsg, err := codec.ParseMessage(in.data)
	if err != nil {
		s.logger.Warn("controller: could not unpack data", "from", in.addr.String(), "error", err.Error())
		return
	}
	if inMsg == nil {
		return // NoMessage sentinel: silently dropped
	}

	if inMsg.Type != codec.SensorSample {
		s.logger.Warn(fmt.Errorf("%w: %s", ErrUnknownType, inMsg.Type).Error())
		return
	}

	s.logger.Info("controller: got control request", "seq", inMsg.Seq)

	s.compute.SubmitRequest(inMsg.Payload, func(actCmds codec.PPM) {
		completionCh <- func() {
			s.replyAndRecord(conn, inMsg, actCmds, in.addr, recvTime, inSize)
		}
	})
}

// replyAndRecord is the completion step for one sensor sample: it
// serializes and writes the reply, then pushes the timing record. Write
// errors are logged and dropped — reliability is the sender's concern,
// realized via retransmission of subsequent sensor samples.
func (s *Service) replyAndRecord(conn *net.UDPConn, inMsg *codec.Message, actCmds codec.PPM, addr *net.UDPAddr, recvTime time.Time, inSize int) {
	sendTime := time.Now()
	outMsg := inMsg.MakeControlReply(actCmds, sendTime.Sub(monoEpoch).Seconds())

	outDgram, err := outMsg.Serialize()
	if err != nil {
		s.logger.Warn("controller: failed to serialize reply", "seq", inMsg.Seq, "error", err.Error())
		return
	}

	outSize := len(outDgram)
	if _, err := conn.WriteToUDP(outDgram, addr); err != nil {
		s.logger.Warn("controller: failed to send reply", "to", addr.String(), "error", err.Error())
		return
	}
	s.logger.Debug("controller: sent command", "to", addr.String(), "bytes", outSize)

	if s.records == nil {
		return
	}

	recvTimestamp := recvTime.Sub(monoEpoch).Seconds()
	err = s.records.PushRecord(map[string]any{
		"seq":            inMsg.Seq,
		"recv_timestamp": recvTimestamp,
		"recv_size":      inSize,
		"process_time":   outMsg.Timestamp - recvTimestamp,
		"send_timestamp": outMsg.Timestamp,
		"send_size":      outSize,
	})
	if err != nil {
		s.logger.Warn("controller: failed to push record", "seq", inMsg.Seq, "error", err.Error())
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
