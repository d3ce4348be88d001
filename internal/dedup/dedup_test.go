package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemorySeenOncePerKey(t *testing.T) {
	d := NewMemory(time.Hour)
	ctx := context.Background()

	fresh, err := d.Seen(ctx, "twitter:acct-1:900")
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Error("first sighting should be fresh")
	}

	fresh, err = d.Seen(ctx, "twitter:acct-1:900")
	if err != nil {
		t.Fatal(err)
	}
	if fresh {
		t.Error("second sighting should be a duplicate")
	}

	// a different account with the same native id is a different message
	fresh, _ = d.Seen(ctx, "twitter:acct-2:900")
	if !fresh {
		t.Error("keys are scoped per account")
	}
}

func TestMemoryExpiry(t *testing.T) {
	d := NewMemory(time.Minute)
	current := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return current }
	ctx := context.Background()

	if fresh, _ := d.Seen(ctx, "k"); !fresh {
		t.Fatal("first sighting should be fresh")
	}
	current = current.Add(30 * time.Second)
	if fresh, _ := d.Seen(ctx, "k"); fresh {
		t.Fatal("inside the TTL the key is a duplicate")
	}
	current = current.Add(2 * time.Minute)
	if fresh, _ := d.Seen(ctx, "k"); !fresh {
		t.Fatal("expired keys are fresh again")
	}
}

func TestMemoryForget(t *testing.T) {
	d := NewMemory(time.Hour)
	ctx := context.Background()

	d.Seen(ctx, "k")
	if err := d.Forget(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if fresh, _ := d.Seen(ctx, "k"); !fresh {
		t.Error("forgotten keys are fresh again")
	}
}

func TestMemoryConcurrentSingleWinner(t *testing.T) {
	d := NewMemory(time.Hour)
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := d.Seen(ctx, "contested")
			if err != nil {
				t.Error(err)
				return
			}
			if fresh {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("exactly one caller should win the key, got %d", winners)
	}
}
