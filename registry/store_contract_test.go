package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testRecord(account, lease string) Record {
	return Record{
		AccountID:   account,
		LeaseID:     lease,
		DeviceLabel: "Linux, Firefox",
		IssuedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("get absent", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "nobody")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		res, err := store.Put(ctx, testRecord("acct-1", "a1"))
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		if res.PreviousLeaseID != "" || res.Evicted() {
			t.Fatalf("expected no previous lease, got %+v", res)
		}
		if res.Record.Generation != 1 {
			t.Fatalf("expected generation 1, got %d", res.Record.Generation)
		}

		got, err := store.Get(ctx, "acct-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.LeaseID != "a1" || got.DeviceLabel != "Linux, Firefox" || got.AccountID != "acct-1" {
			t.Fatalf("unexpected record %+v", got)
		}
		if !got.IssuedAt.Equal(testRecord("", "").IssuedAt) {
			t.Fatalf("issued_at not preserved: %v", got.IssuedAt)
		}
	})

	t.Run("overwrite replaces and reports previous", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if _, err := store.Put(ctx, testRecord("acct-1", "a1")); err != nil {
			t.Fatalf("put a1: %v", err)
		}
		next := testRecord("acct-1", "b1")
		next.DeviceLabel = ""
		res, err := store.Put(ctx, next)
		if err != nil {
			t.Fatalf("put b1: %v", err)
		}
		if res.PreviousLeaseID != "a1" || !res.Evicted() {
			t.Fatalf("expected eviction of a1, got %+v", res)
		}
		if res.Record.Generation != 2 {
			t.Fatalf("expected generation 2, got %d", res.Record.Generation)
		}

		got, err := store.Get(ctx, "acct-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.LeaseID != "b1" || got.DeviceLabel != "" {
			t.Fatalf("expected total replacement, got %+v", got)
		}
	})

	t.Run("accounts are independent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if _, err := store.Put(ctx, testRecord("acct-1", "a1")); err != nil {
			t.Fatalf("put: %v", err)
		}
		if _, err := store.Put(ctx, testRecord("acct-2", "z9")); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := store.Get(ctx, "acct-1")
		if err != nil || got.LeaseID != "a1" {
			t.Fatalf("acct-1 disturbed: %+v %v", got, err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if _, err := store.Put(ctx, testRecord("acct-1", "a1")); err != nil {
			t.Fatalf("put: %v", err)
		}
		existed, err := store.Delete(ctx, "acct-1")
		if err != nil || !existed {
			t.Fatalf("first delete: existed=%v err=%v", existed, err)
		}
		existed, err = store.Delete(ctx, "acct-1")
		if err != nil || existed {
			t.Fatalf("second delete: existed=%v err=%v", existed, err)
		}
		if _, err := store.Get(ctx, "acct-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected absent after delete, got %v", err)
		}
	})

	t.Run("rejects incomplete record", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Put(context.Background(), Record{AccountID: "acct-1"}); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("expected ErrInvalidRecord, got %v", err)
		}
	})

	t.Run("concurrent puts have one winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const n = 24
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Put(ctx, testRecord("acct-race", fmt.Sprintf("c%d", i)))
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent put failed: %v", err)
			}
		}

		got, err := store.Get(ctx, "acct-race")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var matched int
		for i := 0; i < n; i++ {
			if got.LeaseID == fmt.Sprintf("c%d", i) {
				matched++
			}
		}
		if matched != 1 {
			t.Fatalf("expected exactly one winning lease, got %q", got.LeaseID)
		}
	})
}
