package serial

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRoundTripPrimitives(t *testing.T) {
	w := NewWriter()
	w.U8(0xAB)
	w.U32(0xDEADBEEF)
	w.U64(1 << 62)
	w.I64(-12345)
	w.F64(math.Pi)
	w.Bool(true)
	w.Bool(false)
	w.String("hello, world")
	w.String("")
	w.RelString(1024, 17)

	r := NewReader(w.Bytes())
	if got, _ := r.U8(); got != 0xAB {
		t.Errorf("U8 = %#x, want 0xAB", got)
	}
	if got, _ := r.U32(); got != 0xDEADBEEF {
		t.Errorf("U32 = %#x, want 0xDEADBEEF", got)
	}
	if got, _ := r.U64(); got != 1<<62 {
		t.Errorf("U64 = %d, want 1<<62", got)
	}
	if got, _ := r.I64(); got != -12345 {
		t.Errorf("I64 = %d, want -12345", got)
	}
	if got, _ := r.F64(); got != math.Pi {
		t.Errorf("F64 = %v, want Pi", got)
	}
	if got, _ := r.Bool(); got != true {
		t.Errorf("Bool = %v, want true", got)
	}
	if got, _ := r.Bool(); got != false {
		t.Errorf("Bool = %v, want false", got)
	}
	if got, _ := r.String(); got != "hello, world" {
		t.Errorf("String = %q", got)
	}
	if got, _ := r.String(); got != "" {
		t.Errorf("String = %q, want empty", got)
	}
	off, length, err := r.RelString()
	if err != nil || off != 1024 || length != 17 {
		t.Errorf("RelString = (%d, %d, %v), want (1024, 17, nil)", off, length, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("%d bytes left over", r.Remaining())
	}
}

func TestLittleEndianLayout(t *testing.T) {
	w := NewWriter()
	w.U32(0x01020304)
	want := []byte{TagU32, 0x04, 0x03, 0x02, 0x01}
	if diff := cmp.Diff(want, w.Bytes()); diff != "" {
		t.Errorf("U32 encoding (-want +got):\n%s", diff)
	}
}

func TestTagMismatch(t *testing.T) {
	w := NewWriter()
	w.String("x")
	r := NewReader(w.Bytes())
	_, err := r.U64()
	var mismatch *TagMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("U64 on a string = %v, want TagMismatchError", err)
	}
	if mismatch.Got != TagString || mismatch.Want != TagU64 {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestTruncated(t *testing.T) {
	w := NewWriter()
	w.String("hello")
	full := w.Bytes()
	// Every strict prefix must fail with ErrTruncated, and must never read
	// past the end of the input.
	for i := 0; i < len(full); i++ {
		r := NewReader(full[:i])
		if _, err := r.String(); !errors.Is(err, ErrTruncated) {
			t.Errorf("String on %d-byte prefix = %v, want ErrTruncated", i, err)
		}
	}
}

func TestTruncatedDeclaredLength(t *testing.T) {
	// A string declaring more bytes than the input holds must fail instead
	// of reading out of bounds.
	w := NewWriter()
	w.Tag(TagString)
	w.U64(1 << 40)
	r := NewReader(w.Bytes())
	if _, err := r.String(); !errors.Is(err, ErrTruncated) {
		t.Errorf("String with absurd length = %v, want ErrTruncated", err)
	}
}

func TestSeqRoundTrip(t *testing.T) {
	w := NewWriter()
	WriteSeq(w, []string{"a", "b", "c"}, (*Writer).String)
	r := NewReader(w.Bytes())
	got, err := ReadSeq(r, (*Reader).String)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("seq round trip (-want +got):\n%s", diff)
	}
}

func TestStringMapRoundTrip(t *testing.T) {
	m := map[string]uint64{"one": 1, "two": 2, "three": 3}
	w := NewWriter()
	WriteStringMap(w, m, (*Writer).U64)
	r := NewReader(w.Bytes())
	got, err := ReadStringMap(r, (*Reader).U64)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("map round trip (-want +got):\n%s", diff)
	}
}

func TestStringMapDeterministic(t *testing.T) {
	m := map[string]uint64{"b": 2, "a": 1, "c": 3, "d": 4}
	w1 := NewWriter()
	WriteStringMap(w1, m, (*Writer).U64)
	w2 := NewWriter()
	WriteStringMap(w2, m, (*Writer).U64)
	if diff := cmp.Diff(w1.Bytes(), w2.Bytes()); diff != "" {
		t.Errorf("two encodings of the same map differ:\n%s", diff)
	}
}

func TestU64MapRoundTrip(t *testing.T) {
	m := map[uint64]string{1: "one", 99: "ninety-nine"}
	w := NewWriter()
	WriteU64Map(w, m, (*Writer).String)
	got, err := ReadU64Map(NewReader(w.Bytes()), (*Reader).String)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("map round trip (-want +got):\n%s", diff)
	}
}
