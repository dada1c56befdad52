package notify

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAsync_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	a := NewAsync(NotifierFunc(func(ctx context.Context, n Notice) error {
		<-block
		return nil
	}), 2)

	for i := 0; i < 5; i++ {
		a.Post(Notice{Room: "r", Text: "x"})
	}
	if a.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", a.Dropped())
	}
	close(block)
}

func TestAsync_Delivers(t *testing.T) {
	var mu sync.Mutex
	var got []Notice
	a := NewAsync(NotifierFunc(func(ctx context.Context, n Notice) error {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		return nil
	}), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Post(Notice{Room: "r", Kind: KindSkipSummary, Count: 2})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("notice not delivered")
}
