package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

func TestMemoryStore_ReadWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Read(ctx, "station1.temperature")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if ok {
		t.Fatal("Read() on empty store reported a value")
	}

	want := models.PublishedState{
		Value:     23.5,
		Ack:       true,
		Timestamp: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	if err := store.Write(ctx, "station1.temperature", want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, ok, err := store.Read(ctx, "station1.temperature")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !ok {
		t.Fatal("Read() missed a written key")
	}
	if got != want {
		t.Errorf("Read() = %+v, want %+v", got, want)
	}
}

func TestMemoryStore_OverwriteReplaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := models.PublishedState{Value: 1.0, Ack: true, Timestamp: time.Now()}
	second := models.PublishedState{Value: 2.0, Ack: true, Timestamp: time.Now()}
	if err := store.Write(ctx, "k", first); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Write(ctx, "k", second); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, _, err := store.Read(ctx, "k")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Value != 2.0 {
		t.Errorf("Value = %v, want 2.0", got.Value)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Write(ctx, "k", models.PublishedState{}); err == nil {
		t.Error("Write() with canceled context expected error")
	}
	if _, _, err := store.Read(ctx, "k"); err == nil {
		t.Error("Read() with canceled context expected error")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Write(ctx, "station1.rain", models.PublishedState{Value: 0.2, Ack: true})
		}()
		go func() {
			defer wg.Done()
			_, _, _ = store.Read(ctx, "station1.rain")
		}()
	}
	wg.Wait()
}
