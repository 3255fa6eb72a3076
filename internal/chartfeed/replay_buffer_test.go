package chartfeed

import (
	"strconv"
	"testing"
)

func TestReplayBuffer_RangeBeforeWrap(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 3; i++ {
		rb.Push(i, []byte(strconv.FormatInt(i, 10)))
	}
	if rb.Len() != 3 {
		t.Fatalf("expected len 3, got %d", rb.Len())
	}
	got := rb.Range(2, 10)
	if len(got) != 2 || string(got[0]) != "2" || string(got[1]) != "3" {
		t.Errorf("unexpected range %q", got)
	}
}

func TestReplayBuffer_WrapKeepsNewestInOrder(t *testing.T) {
	rb := NewReplayBuffer(3)
	for i := int64(1); i <= 7; i++ {
		rb.Push(i, []byte(strconv.FormatInt(i, 10)))
	}
	if rb.Len() != 3 {
		t.Fatalf("expected len 3, got %d", rb.Len())
	}
	got := rb.Range(0, 100)
	want := []string{"5", "6", "7"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %q", want, got)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if len(rb.Range(1, 4)) != 0 {
		t.Error("evicted entries must not be returned")
	}
}
