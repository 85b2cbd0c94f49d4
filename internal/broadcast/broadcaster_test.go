// ABOUTME: Tests for the in-memory room fan-out broadcaster
// ABOUTME: Covers join, fanout, leave idempotency, room isolation, and concurrency

package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SingleMemberReceivesPayload(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	ch := b.Join(t.Context(), "room-1", "conn-1")

	b.Fanout("room-1", []byte(`{"content":"hi"}`))

	select {
	case payload := <-ch:
		assert.Equal(t, `{"content":"hi"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
	}
}

func TestBroadcaster_AllMembersReceiveIdenticalPayload(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1 := b.Join(ctx, "room-1", "conn-1")
	ch2 := b.Join(ctx, "room-1", "conn-2")
	ch3 := b.Join(ctx, "room-1", "conn-3")

	payload := []byte(`{"content":"to everyone"}`)
	b.Fanout("room-1", payload)

	for i, ch := range []<-chan []byte{ch1, ch2, ch3} {
		select {
		case received := <-ch:
			assert.Equal(t, payload, received, "member %d got wrong payload", i)
		case <-time.After(time.Second):
			t.Fatalf("member %d timed out", i)
		}
	}
}

func TestBroadcaster_RoomsAreIsolated(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1 := b.Join(ctx, "room-1", "conn-1")
	ch2 := b.Join(ctx, "room-2", "conn-2")

	b.Fanout("room-1", []byte("only room 1"))

	select {
	case received := <-ch1:
		assert.Equal(t, "only room 1", string(received))
	case <-time.After(time.Second):
		t.Fatal("room-1 member timed out")
	}

	select {
	case <-ch2:
		t.Fatal("room-2 member should not receive room-1 payloads")
	case <-time.After(100 * time.Millisecond):
		// Expected: nothing delivered
	}
}

func TestBroadcaster_JoinIsIdempotent(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1 := b.Join(ctx, "room-1", "conn-1")
	ch2 := b.Join(ctx, "room-1", "conn-1")

	require.Equal(t, 1, b.MemberCount("room-1"))

	// Same channel, so the payload is delivered exactly once.
	b.Fanout("room-1", []byte("once"))
	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	select {
	case <-ch2:
		t.Fatal("payload delivered twice to the same connection")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcaster_LeaveIsIdempotent(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	b.Join(t.Context(), "room-1", "conn-1")
	b.Leave("room-1", "conn-1")
	b.Leave("room-1", "conn-1") // no panic, no effect
	b.Leave("room-9", "ghost")

	assert.Zero(t, b.MemberCount("room-1"))
}

func TestBroadcaster_NoFramesAfterLeave(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	ch := b.Join(t.Context(), "room-1", "conn-1")
	b.Leave("room-1", "conn-1")

	b.Fanout("room-1", []byte("late"))

	// The channel is closed and drained of nothing.
	payload, ok := <-ch
	require.False(t, ok)
	assert.Nil(t, payload)
}

func TestBroadcaster_ContextCancellationLeaves(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Join(ctx, "room-1", "conn-1")

	cancel()

	// The auto-cleanup goroutine closes the membership.
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}
	assert.Zero(t, b.MemberCount("room-1"))
}

func TestBroadcaster_SlowMemberDoesNotBlockOthers(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	// conn-1 never reads; fill its buffer past capacity.
	b.Join(ctx, "room-1", "conn-1")
	fast := b.Join(ctx, "room-1", "conn-2")

	for i := 0; i < memberBufferSize+10; i++ {
		b.Fanout("room-1", []byte(fmt.Sprintf("payload %d", i)))
	}

	// The fast member still received up to its buffer without Fanout
	// ever blocking.
	received := 0
	for {
		select {
		case <-fast:
			received++
		default:
			assert.Equal(t, memberBufferSize, received)
			return
		}
	}
}

func TestBroadcaster_ConcurrentJoinLeaveFanout(t *testing.T) {
	b := NewMemoryBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			ch := b.Join(context.Background(), "room-1", connID)
			b.Fanout("room-1", []byte("stress"))
			// Drain whatever arrived, then leave.
			for {
				select {
				case <-ch:
					continue
				default:
				}
				break
			}
			b.Leave("room-1", connID)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, b.MemberCount("room-1"))
}

func TestBroadcaster_CloseClosesAllChannels(t *testing.T) {
	b := NewMemoryBroadcaster(nil)

	ch1 := b.Join(t.Context(), "room-1", "conn-1")
	ch2 := b.Join(t.Context(), "room-2", "conn-2")

	b.Close()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)
}
