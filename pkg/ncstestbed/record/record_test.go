package record_test

import (
	"errors"
	"testing"

	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/record"
)

func TestPushRecord_RequiresAllFields(t *testing.T) {
	rb := record.NewRecordable("t", []string{"a", "b"}, nil)
	err := rb.PushRecord(map[string]any{"a": 1})
	if !errors.Is(err, record.ErrSchema) {
		t.Fatalf("expected ErrSchema for missing field, got %v", err)
	}
}

func TestPushRecord_RejectsUnknownField(t *testing.T) {
	rb := record.NewRecordable("t", []string{"a"}, nil)
	err := rb.PushRecord(map[string]any{"a": 1, "c": 2})
	if !errors.Is(err, record.ErrSchema) {
		t.Fatalf("expected ErrSchema for unknown field, got %v", err)
	}
}

func TestPushRecord_DefaultsFillOptionalFields(t *testing.T) {
	rb := record.NewRecordable("t", []string{"a"}, map[string]any{"b": 42})
	rec := record.NewMemoryRecorder(rb, 0)

	if err := rb.PushRecord(map[string]any{"a": 1}); err != nil {
		t.Fatalf("PushRecord: %v", err)
	}

	got := rec.Recent(0)[0]
	if v, _ := got.Get("b"); v != 42 {
		t.Errorf("expected default b=42, got %v", v)
	}
}

func TestPushRecord_NotifiesInPushOrder(t *testing.T) {
	rb := record.NewRecordable("t", []string{"seq"}, nil)
	m := record.NewMemoryRecorder(rb, 0)

	for i := 0; i < 10; i++ {
		if err := rb.PushRecord(map[string]any{"seq": i}); err != nil {
			t.Fatalf("PushRecord(%d): %v", i, err)
		}
	}

	recs := m.Recent(0)
	if len(recs) != 10 {
		t.Fatalf("expected 10 records, got %d", len(recs))
	}
	for i, rec := range recs {
		v, _ := rec.Get("seq")
		if v != i {
			t.Errorf("record[%d].seq = %v, want %d", i, v, i)
		}
	}
}

func TestPushRecord_MultipleRecordersAllNotified(t *testing.T) {
	rb := record.NewRecordable("t", []string{"x"}, nil)
	r1 := record.NewMemoryRecorder(rb, 0)
	r2 := record.NewMemoryRecorder(rb, 0)

	if err := rb.PushRecord(map[string]any{"x": 1}); err != nil {
		t.Fatalf("PushRecord: %v", err)
	}

	if len(r1.Recent(0)) != 1 || len(r2.Recent(0)) != 1 {
		t.Errorf("expected both recorders notified once")
	}
}

func TestMemoryRecorder_BoundedEviction(t *testing.T) {
	rb := record.NewRecordable("t", []string{"n"}, nil)
	m := record.NewMemoryRecorder(rb, 3)

	for i := 0; i < 5; i++ {
		_ = rb.PushRecord(map[string]any{"n": i})
	}

	recs := m.Recent(0)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records (capacity), got %d", len(recs))
	}
	want := []int{2, 3, 4}
	for i, rec := range recs {
		v, _ := rec.Get("n")
		if v != want[i] {
			t.Errorf("recs[%d].n = %v, want %d", i, v, want[i])
		}
	}
}

func TestRecordable_Fields(t *testing.T) {
	rb := record.NewRecordable("t", []string{"a", "b"}, map[string]any{"c": 1})
	fields := rb.Fields()
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d: %v", len(fields), fields)
	}
}
