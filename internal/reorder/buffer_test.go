package reorder

import (
    "bytes"
    "testing"
)

func collect(capacity int) (*Buffer, *[][]byte) {
    var got [][]byte
    b := New(capacity, func(f []byte) { got = append(got, f) })
    return b, &got
}

func TestOutOfOrderFramesForwardAscending(t *testing.T) {
    b, got := collect(20)
    for _, ts := range []uint32{5, 3, 4, 7, 6} {
        b.Push(ts, []byte{byte(ts)})
    }
    b.Flush()

    want := []byte{3, 4, 5, 6, 7}
    if len(*got) != len(want) {
        t.Fatalf("expected %d frames, got %d", len(want), len(*got))
    }
    for i, f := range *got {
        if !bytes.Equal(f, []byte{want[i]}) {
            t.Fatalf("frame %d: expected ts %d, got %v", i, want[i], f)
        }
    }
}

func TestLateArrivalDropped(t *testing.T) {
    b, got := collect(20)
    b.Push(5, []byte{5})
    b.Flush()
    b.Push(5, []byte{5}) // duplicate
    b.Push(3, []byte{3}) // below watermark
    b.Flush()

    if len(*got) != 1 {
        t.Fatalf("late and duplicate frames must be dropped, got %d frames", len(*got))
    }
}

func TestOverflowDrainsOldest(t *testing.T) {
    b, got := collect(2)
    b.Push(5, []byte{5})
    b.Push(3, []byte{3})
    b.Push(4, []byte{4}) // overflow: 3 drains
    if len(*got) != 1 || (*got)[0][0] != 3 {
        t.Fatalf("expected oldest frame 3 drained on overflow, got %v", *got)
    }
    b.Push(7, []byte{7}) // overflow: 4 drains
    b.Push(6, []byte{6}) // overflow: 5 drains
    b.Flush()

    want := []byte{3, 4, 5, 6, 7}
    for i, f := range *got {
        if f[0] != want[i] {
            t.Fatalf("frame %d: expected ts %d, got %d", i, want[i], f[0])
        }
    }
}

func TestPendingBounded(t *testing.T) {
    b, _ := collect(4)
    for ts := uint32(1); ts <= 100; ts++ {
        b.Push(ts, nil)
    }
    if b.Pending() > 4 {
        t.Fatalf("pending should never exceed capacity, got %d", b.Pending())
    }
}
