package node

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bosunlabs/bosun/core"
)

func TestBusFanOutOrder(t *testing.T) {
	ctx := context.Background()
	b := NewBus()

	heard := make([]string, 0, 8)
	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe("news", func(ctx context.Context, env core.Envelope) error {
			heard = append(heard, fmt.Sprintf("%d:%v", i, env.Payload))
			return nil
		})
	}

	b.Publish(ctx, core.Envelope{Topic: "news", Payload: "p1"})
	b.Publish(ctx, core.Envelope{Topic: "news", Payload: "p2"})

	want := []string{"0:p1", "1:p1", "2:p1", "0:p2", "1:p2", "2:p2"}
	if len(heard) != len(want) {
		t.Fatal(heard)
	}
	for i, w := range want {
		if heard[i] != w {
			t.Fatalf("at %d wanted %s, got %s", i, w, heard[i])
		}
	}
}

func TestBusZeroSubscribers(t *testing.T) {
	b := NewBus()
	// Just shouldn't do anything (or block, or panic).
	b.Publish(context.Background(), core.Envelope{Topic: "void", Payload: "hello?"})
}

func TestBusSubscriberIsolation(t *testing.T) {
	ctx := context.Background()
	b := NewBus()
	b.Errors = make(chan interface{}, 8)

	delivered := make([]int, 0, 4)

	b.Subscribe("t", func(ctx context.Context, env core.Envelope) error {
		delivered = append(delivered, 0)
		return nil
	})
	b.Subscribe("t", func(ctx context.Context, env core.Envelope) error {
		return errors.New("subscriber one is having a bad day")
	})
	b.Subscribe("t", func(ctx context.Context, env core.Envelope) error {
		panic("subscriber two is having a worse day")
	})
	b.Subscribe("t", func(ctx context.Context, env core.Envelope) error {
		delivered = append(delivered, 3)
		return nil
	})

	b.Publish(ctx, core.Envelope{Topic: "t", Payload: nil})

	if len(delivered) != 2 || delivered[0] != 0 || delivered[1] != 3 {
		t.Fatal(delivered)
	}

	// Both failures were reported.
	if len(b.Errors) != 2 {
		t.Fatal(len(b.Errors))
	}
}

func TestBusUnsubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewBus()

	count := 0
	sub := b.Subscribe("t", func(ctx context.Context, env core.Envelope) error {
		count++
		return nil
	})

	b.Publish(ctx, core.Envelope{Topic: "t"})
	sub.Cancel()
	sub.Cancel() // Idempotent.
	b.Publish(ctx, core.Envelope{Topic: "t"})

	if count != 1 {
		t.Fatal(count)
	}
	if n := b.Subscribers("t"); n != 0 {
		t.Fatal(n)
	}
}

func TestBusCancelDuringFanOut(t *testing.T) {
	ctx := context.Background()
	b := NewBus()

	var second core.Subscription
	count := 0

	b.Subscribe("t", func(ctx context.Context, env core.Envelope) error {
		// Mutating the subscriber list mid-publish must not
		// disturb the current fan-out's snapshot.
		second.Cancel()
		return nil
	})
	second = b.Subscribe("t", func(ctx context.Context, env core.Envelope) error {
		count++
		return nil
	})

	b.Publish(ctx, core.Envelope{Topic: "t"})
	if count != 1 {
		t.Fatal("snapshot should have included the second subscriber")
	}

	b.Publish(ctx, core.Envelope{Topic: "t"})
	if count != 1 {
		t.Fatal("cancellation should have stuck")
	}
}
