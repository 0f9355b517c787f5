package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue(2)
	defer queue.Stop()

	var running int32
	var maxSeen int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := queue.Do(context.Background(), fmt.Sprintf("chat-%d", i), func(ctx context.Context) error {
				current := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&maxSeen)
					if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
}

func TestQueueSameKeyOrdering(t *testing.T) {
	queue := NewQueue(4)
	defer queue.Stop()

	var mu sync.Mutex
	var order []int
	jobs := make([]*Job, 0, 5)

	for i := 0; i < 5; i++ {
		i := i
		job := NewJob(context.Background(), "same-chat", func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if err := queue.Enqueue(job); err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		<-job.Done()
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestQueueSameKeyNeverOverlaps(t *testing.T) {
	queue := NewQueue(4)
	defer queue.Stop()

	var inFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			queue.Do(context.Background(), "chat", func(ctx context.Context) error {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					t.Error("two jobs for the same key ran at once")
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()
}

func TestDoReturnsJobError(t *testing.T) {
	queue := NewQueue(1)
	defer queue.Stop()

	want := errors.New("boom")
	err := queue.Do(context.Background(), "k", func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected job error, got %v", err)
	}
}

func TestCancelledJobIsSkipped(t *testing.T) {
	queue := NewQueue(1)
	defer queue.Stop()

	block := make(chan struct{})
	first := NewJob(context.Background(), "k", func(ctx context.Context) error {
		<-block
		return nil
	})
	if err := queue.Enqueue(first); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	second := NewJob(ctx, "k", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	if err := queue.Enqueue(second); err != nil {
		t.Fatal(err)
	}
	cancel()
	close(block)
	<-second.Done()

	if ran.Load() {
		t.Error("cancelled job should not run")
	}
	if !errors.Is(second.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", second.Err)
	}
}

func TestDoWaitsForJobAfterCancel(t *testing.T) {
	queue := NewQueue(1)
	defer queue.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	settled := false
	done := make(chan error, 1)
	go func() {
		done <- queue.Do(ctx, "k", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			settled = true
			return ctx.Err()
		})
	}()
	<-started
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if !settled {
		t.Error("Do returned before the job finished")
	}
}

func TestEnqueueAfterStop(t *testing.T) {
	queue := NewQueue(1)
	queue.Stop()
	err := queue.Do(context.Background(), "k", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestStopCancelsRunningJob(t *testing.T) {
	queue := NewQueue(1)
	started := make(chan struct{})
	job := NewJob(context.Background(), "k", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err := queue.Enqueue(job); err != nil {
		t.Fatal(err)
	}
	<-started
	queue.Stop()
	<-job.Done()
	if !errors.Is(job.Err, context.Canceled) {
		t.Errorf("expected running job to observe cancellation, got %v", job.Err)
	}
}
