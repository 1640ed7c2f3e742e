package eventring

import "testing"

func TestWriteReadAllTags(t *testing.T) {
	r := New(256)

	if !r.WriteDecodingStarted(1) {
		t.Fatal("WriteDecodingStarted failed")
	}
	if !r.WriteDecodingComplete(1) {
		t.Fatal("WriteDecodingComplete failed")
	}
	if !r.WriteDecodingCanceled(2, true) {
		t.Fatal("WriteDecodingCanceled failed")
	}
	if !r.WriteRenderingStarted(1, 1000) {
		t.Fatal("WriteRenderingStarted failed")
	}
	if !r.WriteRenderingComplete(1, 2000) {
		t.Fatal("WriteRenderingComplete failed")
	}
	if !r.WriteEndOfAudio(3000) {
		t.Fatal("WriteEndOfAudio failed")
	}
	if !r.WriteError(42) {
		t.Fatal("WriteError failed")
	}

	want := []Record{
		{Tag: TagDecodingStarted, Sequence: 1},
		{Tag: TagDecodingComplete, Sequence: 1},
		{Tag: TagDecodingCanceled, Sequence: 2, PartiallyRendered: true},
		{Tag: TagRenderingStarted, Sequence: 1, HostTimeTicks: 1000},
		{Tag: TagRenderingComplete, Sequence: 1, HostTimeTicks: 2000},
		{Tag: TagEndOfAudio, HostTimeTicks: 3000},
		{Tag: TagError, ErrorHandle: 42},
	}

	for i, w := range want {
		got, ok := r.Read()
		if !ok {
			t.Fatalf("record %d: Read returned ok=false", i)
		}
		if got != w {
			t.Errorf("record %d: got %+v, want %+v", i, got, w)
		}
	}

	if _, ok := r.Read(); ok {
		t.Error("expected no more records")
	}
}

func TestReadEmptyRing(t *testing.T) {
	r := New(64)
	if _, ok := r.Read(); ok {
		t.Error("expected ok=false on empty ring")
	}
}

func TestOrderingPreserved(t *testing.T) {
	r := New(512)
	for seq := uint64(0); seq < 10; seq++ {
		r.WriteDecodingStarted(seq)
	}
	for seq := uint64(0); seq < 10; seq++ {
		rec, ok := r.Read()
		if !ok || rec.Sequence != seq {
			t.Fatalf("expected seq %d in order, got %+v ok=%v", seq, rec, ok)
		}
	}
}
