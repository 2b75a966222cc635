// Package codec implements the control-message wire format shared by the
// plant's sensor/actuator transport and the controller service.
//
// Messages are self-describing msgpack maps with exactly four top-level
// keys: "type", "seq", "timestamp", "payload". One message fits in one UDP
// datagram; ParseMessage and Message.Serialize are the only entry points.
package codec

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgType identifies the kind of a control message.
type MsgType int

const (
	// SensorSample carries a physical-property snapshot from plant to controller.
	SensorSample MsgType = 1
	// ControlCommand carries an actuation command from controller to plant.
	ControlCommand MsgType = 2
)

func (t MsgType) String() string {
	switch t {
	case SensorSample:
		return "SENSOR_SAMPLE"
	case ControlCommand:
		return "CONTROL_COMMAND"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// PPM is the physical property mapping: an unordered map of short names to
// numeric scalars representing a sensor reading or an actuation command.
type PPM map[string]float64

// maxDatagramBytes is the standard IPv4 MTU-safe UDP payload ceiling.
// Messages that would serialize larger than this are rejected outright —
// spec treats larger datagrams as undefined, so senders refuse to produce
// them rather than emit something a receiver can't safely assume arrived
// whole.
const maxDatagramBytes = 1472

// ErrMalformed is returned when a datagram cannot be decoded, or decodes but
// violates the four-key schema. Callers must log and drop on this error;
// it is never a fatal condition.
var ErrMalformed = errors.New("codec: malformed message")

// ErrTooLarge is returned by Serialize when the encoded message would exceed
// the UDP MTU-safe datagram limit.
var ErrTooLarge = errors.New("codec: message exceeds maximum datagram size")

// Message is a parsed control message: a tagged envelope with an
// originator-assigned sequence number, a monotonic timestamp (seconds, in
// the originator's own clock frame), and a physical-property payload.
type Message struct {
	Type      MsgType
	Seq       uint64
	Timestamp float64
	Payload   PPM
}

// wireMessage is the on-the-wire shape: four fixed map keys. Using explicit
// msgpack tags (rather than relying on Go field names) keeps the wire
// schema stable independent of any future Go-side renames.
type wireMessage struct {
	Type      int8                   `msgpack:"type"`
	Seq       uint64                 `msgpack:"seq"`
	Timestamp float64                `msgpack:"timestamp"`
	Payload   map[string]interface{} `msgpack:"payload"`
}

// ParseMessage decodes a single datagram into a Message.
//
// A zero-length input, or one that decodes to an empty map, yields
// (nil, nil) — the distinguished "no message" signal; this is not an error
// and must not be treated as one. Any other decode failure, or a decoded
// map missing one of the four required keys, returns ErrMalformed.
func ParseMessage(b []byte) (*Message, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var raw map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	for _, key := range []string{"type", "seq", "timestamp", "payload"} {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrMalformed, key)
		}
	}

	var wm wireMessage
	if err := msgpack.Unmarshal(b, &wm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	payload, err := coercePayload(wm.Payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      MsgType(wm.Type),
		Seq:       wm.Seq,
		Timestamp: wm.Timestamp,
		Payload:   payload,
	}, nil
}

// coercePayload converts a decoded payload map's scalar values to float64,
// matching the original Python implementation's numpy-backed coercion of
// every physical quantity to a float regardless of how it arrived on the
// wire. bool coerces to 1/0; any other type is a schema violation.
func coercePayload(raw map[string]interface{}) (PPM, error) {
	out := make(PPM, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case float64:
			out[k] = x
		case float32:
			out[k] = float64(x)
		case int64:
			out[k] = float64(x)
		case uint64:
			out[k] = float64(x)
		case int8:
			out[k] = float64(x)
		case int16:
			out[k] = float64(x)
		case int32:
			out[k] = float64(x)
		case uint8:
			out[k] = float64(x)
		case uint16:
			out[k] = float64(x)
		case uint32:
			out[k] = float64(x)
		case int:
			out[k] = float64(x)
		case bool:
			if x {
				out[k] = 1
			} else {
				out[k] = 0
			}
		default:
			return nil, fmt.Errorf("%w: payload field %q has unsupported type %T", ErrMalformed, k, v)
		}
	}
	return out, nil
}

// Serialize encodes m back into its wire form. Unknown top-level keys are
// never produced — the four-key schema is exact. Returns ErrTooLarge if the
// encoded form would not fit a single MTU-safe UDP datagram.
func (m *Message) Serialize() ([]byte, error) {
	payload := make(map[string]interface{}, len(m.Payload))
	for k, v := range m.Payload {
		payload[k] = v
	}
	wm := wireMessage{
		Type:      int8(m.Type),
		Seq:       m.Seq,
		Timestamp: m.Timestamp,
		Payload:   payload,
	}
	b, err := msgpack.Marshal(&wm)
	if err != nil {
		return nil, fmt.Errorf("codec: serialize: %w", err)
	}
	if len(b) > maxDatagramBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	return b, nil
}

// MakeControlReply builds a CONTROL_COMMAND reply to m, carrying the same
// Seq as the request and a fresh Timestamp supplied by the caller (the
// monotonic time at reply construction, in the controller's own clock
// frame).
func (m *Message) MakeControlReply(payload PPM, timestamp float64) *Message {
	return &Message{
		Type:      ControlCommand,
		Seq:       m.Seq,
		Timestamp: timestamp,
		Payload:   payload,
	}
}

// NewSensorSample builds a SENSOR_SAMPLE message with the given sequence
// number, timestamp, and payload.
func NewSensorSample(seq uint64, timestamp float64, payload PPM) *Message {
	return &Message{
		Type:      SensorSample,
		Seq:       seq,
		Timestamp: timestamp,
		Payload:   payload,
	}
}
