package status_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"codeberg.org/voltaic/psuctl/internal/sample"
	"codeberg.org/voltaic/psuctl/internal/status"
)

// drain collects everything buffered on a closed bus.
func drain(b *status.Bus) []status.Event {
	var out []status.Event
	for e := range b.Events() {
		out = append(out, e)
	}

	return out
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := status.NewBus(8)
	b.Infof("first")
	b.Successf("second")
	b.Warnf("third")
	b.Errorf("fourth")
	b.Close()

	got := drain(b)
	require.Len(t, got, 4)
	assert.Equal(t, status.Info, got[0].Kind)
	assert.Equal(t, "first", got[0].Message)
	assert.Equal(t, status.Success, got[1].Kind)
	assert.Equal(t, status.Warning, got[2].Kind)
	assert.Equal(t, status.Error, got[3].Kind)
	assert.False(t, got[0].Terminal(), "Expected plain events to be non-terminal")
}

func TestPublishDropsOldestOnOverflow(t *testing.T) {
	b := status.NewBus(4)
	for i := 0; i < 20; i++ {
		b.Infof("event %d", i)
	}
	b.Close()

	got := drain(b)
	require.Len(t, got, 4, "Expected the buffer to hold its bound")
	for i, e := range got {
		assert.Equalf(t, fmt.Sprintf("event %d", 16+i), e.Message, "Expected only the newest events to survive")
	}
}

func TestPublishNeverBlocksWithoutConsumer(t *testing.T) {
	b := status.NewBus(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Infof("event %d", i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full bus")
	}
}

func TestDataPointCarriesSample(t *testing.T) {
	b := status.NewBus(4)
	s := sample.Sample{Voltage: 4.0, Current: 0.5}
	b.DataPoint(s)
	b.Close()

	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, status.Data, got[0].Kind)
	assert.Equal(t, s, got[0].Sample)
}

func TestEndIsTerminal(t *testing.T) {
	b := status.NewBus(4)
	b.End(status.CauseThreshold, status.Warning, "cutoff: %s", "current 0.0500 < 0.0900")
	b.Close()

	got := drain(b)
	require.Len(t, got, 1)
	assert.True(t, got[0].Terminal(), "Expected an event with a cause to be terminal")
	assert.Equal(t, status.CauseThreshold, got[0].Cause)
	assert.Equal(t, status.Warning, got[0].Kind)
	assert.Equal(t, "cutoff: current 0.0500 < 0.0900", got[0].Message)
}

func TestCloseIsIdempotentAndStopsPublishing(t *testing.T) {
	b := status.NewBus(4)
	b.Infof("before close")
	b.Close()
	b.Close()

	assert.NotPanics(t, func() { b.Infof("after close") }, "Expected publishing on a closed bus to be a no-op")

	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, "before close", got[0].Message)
}

func TestTinyBusClampsSize(t *testing.T) {
	b := status.NewBus(0)
	b.Infof("only")
	b.Close()

	got := drain(b)
	require.Len(t, got, 1, "Expected a degenerate size to still buffer one event")
}

// TestBusKeepsNewestSuffix pushes a random number of events through a random
// sized bus and checks that what comes out is exactly the newest events, in
// publish order.
func TestBusKeepsNewestSuffix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 16).Draw(t, "size")
		n := rapid.IntRange(0, 64).Draw(t, "events")

		b := status.NewBus(size)
		for i := 0; i < n; i++ {
			b.Infof("%d", i)
		}
		b.Close()

		got := drain(b)

		want := n
		if want > size {
			want = size
		}
		if len(got) != want {
			t.Fatalf("got %d events, want %d", len(got), want)
		}
		for i, e := range got {
			expect := fmt.Sprintf("%d", n-want+i)
			if e.Message != expect {
				t.Fatalf("event %d: got message %q, want %q", i, e.Message, expect)
			}
		}
	})
}
