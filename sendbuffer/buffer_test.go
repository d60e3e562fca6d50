package sendbuffer

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"
)

func TestWriteAndDrainResetsPositions(t *testing.T) {
	b := New()
	if !b.Write([]byte("hello")) {
		t.Fatal("write failed")
	}
	if b.Size() != 5 {
		t.Fatalf("size = %d, want 5", b.Size())
	}
	if b.IsEmpty() {
		t.Fatal("buffer should not be empty")
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	n, err := b.SendToSocket(fds[0])
	if err != nil || n != 5 {
		t.Fatalf("SendToSocket = (%d, %v), want (5, nil)", n, err)
	}
	if b.Size() != 0 || b.readPos != 0 || b.writePos != 0 {
		t.Fatalf("after drain: size=%d readPos=%d writePos=%d, want all 0", b.Size(), b.readPos, b.writePos)
	}
}

func TestCompactionAfterHalfRead(t *testing.T) {
	b := New()
	payload := bytes.Repeat([]byte{0x41}, initialCapacity)
	if !b.Write(payload) {
		t.Fatal("write failed")
	}
	// Simulate having drained more than half by advancing readPos directly,
	// then run maybeCompact, the step SendToSocket takes after a partial
	// write.
	b.readPos = len(payload)/2 + 1
	b.maybeCompact()
	if b.readPos != 0 {
		t.Fatalf("expected compaction to reset readPos to 0, got %d", b.readPos)
	}
}

func TestWriteNeverExceeds32MiBCeiling(t *testing.T) {
	b := New()
	chunk := make([]byte, 1<<20) // 1 MiB
	ok := true
	written := 0
	for ok && written < maxCapacity+1<<20 {
		ok = b.Write(chunk)
		if ok {
			written += len(chunk)
		}
	}
	if ok {
		t.Fatal("expected Write to eventually fail at the 32 MiB ceiling")
	}
	if b.Capacity() > maxCapacity {
		t.Fatalf("capacity %d exceeds ceiling %d", b.Capacity(), maxCapacity)
	}
}

func TestClearResetsToEmpty(t *testing.T) {
	b := New()
	b.Write([]byte("data"))
	b.Clear()
	if !b.IsEmpty() || b.Size() != 0 {
		t.Fatal("Clear did not reset buffer to empty")
	}
}

func TestHighLowWaterMarks(t *testing.T) {
	b := New()
	chunk := bytes.Repeat([]byte{0x01}, 1<<20)
	for i := 0; i < 8; i++ {
		b.Write(chunk)
	}
	if !b.IsHighWaterMark() {
		t.Fatal("expected high water mark to be crossed at 8 MiB")
	}
	if b.IsLowWaterMark() {
		t.Fatal("8 MiB buffered should not read as low water mark")
	}
}
