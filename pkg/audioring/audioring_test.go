package audioring

import (
	"math/rand"
	"testing"
)

func TestNewRoundsToPowerOf2(t *testing.T) {
	tests := []struct {
		input    uint64
		expected uint64
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{100, 128},
		{16384, 16384},
	}

	for _, tt := range tests {
		r := New(2, tt.input)
		if r.Capacity() != tt.expected {
			t.Errorf("New(2, %d): got capacity %d, want %d", tt.input, r.Capacity(), tt.expected)
		}
	}
}

func mono(n int, start float32) [][]float32 {
	p := make([]float32, n)
	for i := range p {
		p[i] = start + float32(i)
	}
	return [][]float32{p}
}

func TestWriteReadRoundTrip(t *testing.T) {
	r := New(1, 16)

	src := mono(5, 1)
	written := r.Write(src, 5)
	if written != 5 {
		t.Fatalf("Write: got %d, want 5", written)
	}
	if r.FramesReadable() != 5 {
		t.Errorf("FramesReadable: got %d, want 5", r.FramesReadable())
	}
	if r.FramesWritable() != 11 {
		t.Errorf("FramesWritable: got %d, want 11", r.FramesWritable())
	}

	dst := make([][]float32, 1)
	dst[0] = make([]float32, 5)
	read := r.Read(dst, 5)
	if read != 5 {
		t.Fatalf("Read: got %d, want 5", read)
	}
	for i := 0; i < 5; i++ {
		if dst[0][i] != src[0][i] {
			t.Errorf("frame %d: got %v, want %v", i, dst[0][i], src[0][i])
		}
	}
}

func TestWritePartialWhenFull(t *testing.T) {
	r := New(1, 4)

	written := r.Write(mono(5, 0), 5)
	if written != 4 {
		t.Errorf("Write: got %d, want 4 (capacity)", written)
	}
	if r.FramesWritable() != 0 {
		t.Errorf("FramesWritable: got %d, want 0", r.FramesWritable())
	}

	written = r.Write(mono(1, 99), 1)
	if written != 0 {
		t.Errorf("Write on full ring: got %d, want 0", written)
	}
}

func TestReadPartialWhenEmpty(t *testing.T) {
	r := New(1, 16)

	dst := make([][]float32, 1)
	dst[0] = make([]float32, 4)
	read := r.Read(dst, 4)
	if read != 0 {
		t.Errorf("Read on empty ring: got %d, want 0", read)
	}
}

func TestWrapAround(t *testing.T) {
	r := New(1, 4)

	r.Write(mono(3, 1), 3) // [1 2 3 _]
	dst := make([][]float32, 1)
	dst[0] = make([]float32, 2)
	r.Read(dst, 2) // consume 1, 2 -> readPos=2, writePos=3

	written := r.Write(mono(3, 10), 3) // should wrap: writes 3 frames (10,11,12)
	if written != 3 {
		t.Fatalf("Write: got %d, want 3", written)
	}

	out := make([][]float32, 1)
	out[0] = make([]float32, 4)
	read := r.Read(out, 4)
	if read != 4 {
		t.Fatalf("Read: got %d, want 4", read)
	}
	want := []float32{3, 10, 11, 12}
	for i, w := range want {
		if out[0][i] != w {
			t.Errorf("frame %d: got %v, want %v", i, out[0][i], w)
		}
	}
}

func TestReadableWritableInvariant(t *testing.T) {
	r := New(2, 64)
	ch2 := func(n int) [][]float32 {
		a := make([]float32, n)
		b := make([]float32, n)
		return [][]float32{a, b}
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		if r.FramesReadable()+r.FramesWritable() != r.Capacity() {
			t.Fatalf("invariant broken: readable=%d writable=%d capacity=%d",
				r.FramesReadable(), r.FramesWritable(), r.Capacity())
		}
		if rnd.Intn(2) == 0 {
			r.Write(ch2(20), rnd.Intn(20)+1)
		} else {
			dst := ch2(20)
			r.Read(dst, rnd.Intn(20)+1)
		}
	}
}

func TestReset(t *testing.T) {
	r := New(1, 16)
	r.Write(mono(8, 0), 8)
	r.Reset()
	if r.FramesReadable() != 0 {
		t.Errorf("FramesReadable after Reset: got %d, want 0", r.FramesReadable())
	}
	if r.FramesWritable() != r.Capacity() {
		t.Errorf("FramesWritable after Reset: got %d, want %d", r.FramesWritable(), r.Capacity())
	}
}
