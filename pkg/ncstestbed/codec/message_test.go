package codec_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/codec"
)

func TestRoundtrip(t *testing.T) {
	msg := codec.NewSensorSample(42, 0.0, codec.PPM{"x": 1.5})

	b, err := msg.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := codec.ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if got == nil {
		t.Fatal("ParseMessage returned nil, want a message")
	}
	if !reflect.DeepEqual(*got, *msg) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", *got, *msg)
	}
}

func TestParseMessage_EmptyBytesIsNoMessage(t *testing.T) {
	got, err := codec.ParseMessage(nil)
	if err != nil {
		t.Fatalf("expected no error for empty input, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil message for empty input, got %+v", got)
	}
}

func TestParseMessage_EmptyMapIsNoMessage(t *testing.T) {
	// An empty msgpack map (fixmap 0x80, zero pairs) decodes to 0 keys.
	got, err := codec.ParseMessage([]byte{0x80})
	if err != nil {
		t.Fatalf("expected no error for empty map, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil message for empty map, got %+v", got)
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	_, err := codec.ParseMessage([]byte{0xff, 0xff, 0xff})
	if !errors.Is(err, codec.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestMakeControlReply(t *testing.T) {
	req := codec.NewSensorSample(7, 1.0, codec.PPM{"x": 1.0})
	reply := req.MakeControlReply(codec.PPM{"u": 2.0}, 1.5)

	if reply.Type != codec.ControlCommand {
		t.Errorf("reply type = %v, want CONTROL_COMMAND", reply.Type)
	}
	if reply.Seq != req.Seq {
		t.Errorf("reply seq = %d, want %d", reply.Seq, req.Seq)
	}
	if reply.Timestamp != 1.5 {
		t.Errorf("reply timestamp = %v, want 1.5", reply.Timestamp)
	}
}

func TestSerialize_TooLarge(t *testing.T) {
	payload := codec.PPM{}
	for i := 0; i < 400; i++ {
		payload[string(rune('a'+i%26))+string(rune('0'+i/26))] = float64(i)
	}
	msg := codec.NewSensorSample(1, 0.0, payload)

	_, err := msg.Serialize()
	if !errors.Is(err, codec.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge for oversized payload, got %v", err)
	}
}

func TestParseMessage_CoercesIntAndBoolPayload(t *testing.T) {
	raw, err := msgpack.Marshal(map[string]interface{}{
		"type":      int8(codec.SensorSample),
		"seq":       uint64(3),
		"timestamp": 0.0,
		"payload": map[string]interface{}{
			"count":   int64(7),
			"engaged": true,
			"idle":    false,
		},
	})
	if err != nil {
		t.Fatalf("marshal raw message: %v", err)
	}

	got, err := codec.ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	want := codec.PPM{"count": 7, "engaged": 1, "idle": 0}
	if !reflect.DeepEqual(got.Payload, want) {
		t.Errorf("payload = %+v, want %+v", got.Payload, want)
	}
}

func TestParseMessage_UnsupportedPayloadTypeIsMalformed(t *testing.T) {
	raw, err := msgpack.Marshal(map[string]interface{}{
		"type":      int8(codec.SensorSample),
		"seq":       uint64(3),
		"timestamp": 0.0,
		"payload": map[string]interface{}{
			"label": "not a scalar",
		},
	})
	if err != nil {
		t.Fatalf("marshal raw message: %v", err)
	}

	_, err = codec.ParseMessage(raw)
	if !errors.Is(err, codec.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestMsgTypeString(t *testing.T) {
	cases := []struct {
		in   codec.MsgType
		want string
	}{
		{codec.SensorSample, "SENSOR_SAMPLE"},
		{codec.ControlCommand, "CONTROL_COMMAND"},
		{codec.MsgType(99), "UNKNOWN(99)"},
	}
	for _, c := range cases {
		if got := c.in.String(); got != c.want {
			t.Errorf("MsgType(%d).String() = %q, want %q", c.in, got, c.want)
		}
	}
}
