package typing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestIndicator_SendsUntilStopped(t *testing.T) {
	ind := New(Config{Interval: 5 * time.Millisecond})
	var sends atomic.Int32

	stop := ind.Start(context.Background(), func(ctx context.Context) error {
		sends.Add(1)
		return nil
	})
	time.Sleep(30 * time.Millisecond)
	stop()
	after := sends.Load()

	if after < 2 {
		t.Fatalf("sends = %d, want at least 2", after)
	}
	time.Sleep(20 * time.Millisecond)
	if sends.Load() != after {
		t.Fatal("indicator kept sending after stop")
	}
	stop() // idempotent
}

func TestIndicator_SendsImmediately(t *testing.T) {
	ind := New(Config{Interval: time.Hour})
	sent := make(chan struct{}, 1)

	stop := ind.Start(context.Background(), func(ctx context.Context) error {
		sent <- struct{}{}
		return nil
	})
	defer stop()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("first typing indicator not sent")
	}
}

func TestIndicator_StopsOnError(t *testing.T) {
	ind := New(Config{Interval: time.Millisecond})
	var sends atomic.Int32

	stop := ind.Start(context.Background(), func(ctx context.Context) error {
		sends.Add(1)
		return errors.New("forbidden")
	})
	time.Sleep(20 * time.Millisecond)
	stop()

	if sends.Load() != 1 {
		t.Fatalf("sends = %d, want 1", sends.Load())
	}
}

func TestIndicator_TTL(t *testing.T) {
	ind := New(Config{Interval: time.Millisecond, TTL: 10 * time.Millisecond})
	var sends atomic.Int32

	stop := ind.Start(context.Background(), func(ctx context.Context) error {
		sends.Add(1)
		return nil
	})
	defer stop()

	time.Sleep(50 * time.Millisecond)
	n := sends.Load()
	time.Sleep(20 * time.Millisecond)
	if sends.Load() != n {
		t.Fatal("indicator kept sending past its TTL")
	}
}

func TestIndicator_ParentCancel(t *testing.T) {
	ind := New(Config{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	var sends atomic.Int32

	stop := ind.Start(ctx, func(ctx context.Context) error {
		sends.Add(1)
		return nil
	})
	cancel()
	time.Sleep(10 * time.Millisecond)
	n := sends.Load()
	time.Sleep(10 * time.Millisecond)
	if sends.Load() != n {
		t.Fatal("indicator kept sending after parent cancel")
	}
	stop()
}
