package voice

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryLockerSerializesPerConversation(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	var mu sync.Mutex
	inSection := 0
	maxSeen := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, 1)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inSection++
			if inSection > maxSeen {
				maxSeen = inSection
			}
			mu.Unlock()

			mu.Lock()
			inSection--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("%d holders inside the critical section, want 1", maxSeen)
	}
}

func TestMemoryLockerEvictsIdleEntries(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	var wg sync.WaitGroup
	for id := int64(1); id <= 100; id++ {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, id)
			if err != nil {
				t.Error(err)
				return
			}
			release()
		}()
	}
	wg.Wait()

	l.mu.Lock()
	n := len(l.locks)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("%d entries retained after all releases, want 0", n)
	}
}

func TestMemoryLockerReusableAfterEviction(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	release, err := l.Lock(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	release()

	// The evicted entry must not poison a later acquisition.
	release, err = l.Lock(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	release()
}

func TestMemoryLockerIndependentConversations(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	release1, err := l.Lock(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer release1()

	// A different conversation's lock must not block.
	done := make(chan struct{})
	go func() {
		release2, err := l.Lock(ctx, 2)
		if err == nil {
			release2()
		}
		close(done)
	}()
	<-done
}
