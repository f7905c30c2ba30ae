package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/math15/visagate/internal/model"
)

// openTestPool creates a pool in a temporary directory.
func openTestPool(t *testing.T) *Pool {
	t.Helper()

	p, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return p
}

// insertTestIdentity inserts one identity and returns its ID.
func insertTestIdentity(t *testing.T, p *Pool, host, username string) int64 {
	t.Helper()

	id, err := p.Insert(context.Background(), &model.EgressIdentity{
		Host:     host,
		Port:     8080,
		Username: username,
		Password: "secret",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return id
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database when missing", func(t *testing.T) {
		t.Parallel()

		p, err := Open(t.TempDir(), DefaultOptions())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer p.Close() //nolint:errcheck

		if _, err := p.Stats(context.Background()); err != nil {
			t.Errorf("Stats() on fresh database error = %v", err)
		}
	})

	t.Run("fails when missing and creation disabled", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("Open() expected error for missing database, got nil")
		}
	})
}

func TestPoolInsert(t *testing.T) {
	t.Parallel()

	t.Run("derives region from username", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)

		id := insertTestIdentity(t, p, "proxy.example.com", "customer-region-ES-abc")

		got, err := p.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Region != "ES" {
			t.Errorf("Region = %q, want %q", got.Region, "ES")
		}
		if got.Status != model.StatusPending {
			t.Errorf("Status = %q, want %q", got.Status, model.StatusPending)
		}
	})

	t.Run("rejects duplicate endpoint", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)

		insertTestIdentity(t, p, "proxy.example.com", "user1")

		_, err := p.Insert(context.Background(), &model.EgressIdentity{
			Host:     "proxy.example.com",
			Port:     8080,
			Username: "user1",
			Password: "other",
			Active:   true,
		})
		if !errors.Is(err, ErrDuplicate) {
			t.Errorf("Insert() duplicate error = %v, want ErrDuplicate", err)
		}
	})
}

func TestPoolAcquire(t *testing.T) {
	t.Parallel()

	t.Run("empty pool is exhausted", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)

		_, err := p.Acquire(context.Background(), "", true)
		if !errors.Is(err, ErrPoolExhausted) {
			t.Errorf("Acquire() error = %v, want ErrPoolExhausted", err)
		}
	})

	t.Run("no repeat until all identities used", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)
		ctx := context.Background()

		insertTestIdentity(t, p, "a.example.com", "user-a")
		insertTestIdentity(t, p, "b.example.com", "user-b")
		insertTestIdentity(t, p, "c.example.com", "user-c")

		seen := make(map[int64]bool)
		for i := 0; i < 3; i++ {
			id, err := p.Acquire(ctx, "", true)
			if err != nil {
				t.Fatalf("Acquire() #%d error = %v", i, err)
			}
			if seen[id.ID] {
				t.Errorf("Acquire() #%d repeated identity %d before exhausting alternatives", i, id.ID)
			}
			seen[id.ID] = true
		}

		// With every identity used once, acquisition must still succeed
		// instead of failing with exhaustion.
		if _, err := p.Acquire(ctx, "", true); err != nil {
			t.Errorf("Acquire() after full rotation error = %v", err)
		}
	})

	t.Run("returns least recently used after rotation", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)
		ctx := context.Background()

		insertTestIdentity(t, p, "a.example.com", "user-a")
		insertTestIdentity(t, p, "b.example.com", "user-b")

		first, err := p.Acquire(ctx, "", true)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)
		if _, err := p.Acquire(ctx, "", true); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		time.Sleep(10 * time.Millisecond)

		third, err := p.Acquire(ctx, "", true)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if third.ID != first.ID {
			t.Errorf("Acquire() after rotation = identity %d, want oldest %d", third.ID, first.ID)
		}
	})

	t.Run("filters by region", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)
		ctx := context.Background()

		insertTestIdentity(t, p, "a.example.com", "customer-region-ES-a")
		insertTestIdentity(t, p, "b.example.com", "plain-user")

		id, err := p.Acquire(ctx, "ES", true)
		if err != nil {
			t.Fatalf("Acquire(ES) error = %v", err)
		}
		if id.Region != "ES" {
			t.Errorf("Region = %q, want %q", id.Region, "ES")
		}

		if _, err := p.Acquire(ctx, "FR", true); !errors.Is(err, ErrPoolExhausted) {
			t.Errorf("Acquire(FR) error = %v, want ErrPoolExhausted", err)
		}
	})

	t.Run("skips inactive and banned identities", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)
		ctx := context.Background()

		inactive := insertTestIdentity(t, p, "a.example.com", "user-a")
		banned := insertTestIdentity(t, p, "b.example.com", "user-b")
		eligible := insertTestIdentity(t, p, "c.example.com", "user-c")

		if err := p.SetActive(ctx, inactive, false); err != nil {
			t.Fatalf("SetActive() error = %v", err)
		}
		if err := p.SetValidation(ctx, banned, model.StatusBanned); err != nil {
			t.Fatalf("SetValidation() error = %v", err)
		}

		for i := 0; i < 3; i++ {
			id, err := p.Acquire(ctx, "", true)
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}
			if id.ID != eligible {
				t.Errorf("Acquire() = identity %d, want only eligible %d", id.ID, eligible)
			}
		}
	})

	t.Run("stamps usage atomically", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)
		ctx := context.Background()

		id := insertTestIdentity(t, p, "a.example.com", "user-a")

		got, err := p.Acquire(ctx, "", true)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if got.UsageCount != 1 {
			t.Errorf("UsageCount = %d, want 1", got.UsageCount)
		}
		if got.LastUsed.IsZero() {
			t.Error("LastUsed is zero after acquisition")
		}

		stored, err := p.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored.UsageCount != 1 {
			t.Errorf("stored UsageCount = %d, want 1", stored.UsageCount)
		}
	})
}

func TestPoolAcquireConcurrent(t *testing.T) {
	t.Parallel()

	p := openTestPool(t)
	ctx := context.Background()

	const n = 8
	hosts := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, h := range hosts {
		insertTestIdentity(t, p, h+".example.com", "user-"+h)
	}

	var mu sync.Mutex
	seen := make(map[int64]int)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := p.Acquire(ctx, "", true)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			mu.Lock()
			seen[id.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	// n concurrent acquisitions against n identities must each get a
	// distinct one.
	if len(seen) != n {
		t.Errorf("concurrent Acquire() returned %d distinct identities, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("identity %d acquired %d times, want 1", id, count)
		}
	}
}

func TestPoolRecordUse(t *testing.T) {
	t.Parallel()

	p := openTestPool(t)
	ctx := context.Background()

	id := insertTestIdentity(t, p, "a.example.com", "user-a")

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.RecordUse(ctx, id); err != nil {
				t.Errorf("RecordUse() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := p.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UsageCount != n {
		t.Errorf("UsageCount = %d, want %d (lost increments)", got.UsageCount, n)
	}

	if err := p.RecordUse(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordUse(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPoolRecordNetworkFailure(t *testing.T) {
	t.Parallel()

	t.Run("demotes at threshold", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)
		ctx := context.Background()

		id := insertTestIdentity(t, p, "a.example.com", "user-a")

		const threshold = 3
		for i := 1; i < threshold; i++ {
			failures, banned, err := p.RecordNetworkFailure(ctx, id, threshold)
			if err != nil {
				t.Fatalf("RecordNetworkFailure() error = %v", err)
			}
			if failures != i {
				t.Errorf("failures = %d, want %d", failures, i)
			}
			if banned {
				t.Errorf("banned after %d failures, want demotion only at %d", i, threshold)
			}
		}

		failures, banned, err := p.RecordNetworkFailure(ctx, id, threshold)
		if err != nil {
			t.Fatalf("RecordNetworkFailure() error = %v", err)
		}
		if failures != threshold || !banned {
			t.Errorf("failures = %d banned = %v, want %d and banned", failures, banned, threshold)
		}

		// Banned identities are no longer acquirable.
		if _, err := p.Acquire(ctx, "", true); !errors.Is(err, ErrPoolExhausted) {
			t.Errorf("Acquire() after demotion error = %v, want ErrPoolExhausted", err)
		}
	})

	t.Run("reset clears counter", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)
		ctx := context.Background()

		id := insertTestIdentity(t, p, "a.example.com", "user-a")

		if _, _, err := p.RecordNetworkFailure(ctx, id, 3); err != nil {
			t.Fatalf("RecordNetworkFailure() error = %v", err)
		}
		if _, _, err := p.RecordNetworkFailure(ctx, id, 3); err != nil {
			t.Fatalf("RecordNetworkFailure() error = %v", err)
		}
		if err := p.ResetNetworkFailures(ctx, id); err != nil {
			t.Fatalf("ResetNetworkFailures() error = %v", err)
		}

		got, err := p.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.NetworkFailures != 0 {
			t.Errorf("NetworkFailures = %d, want 0 after reset", got.NetworkFailures)
		}
	})

	t.Run("missing identity", func(t *testing.T) {
		t.Parallel()
		p := openTestPool(t)

		if _, _, err := p.RecordNetworkFailure(context.Background(), 9999, 3); !errors.Is(err, ErrNotFound) {
			t.Errorf("RecordNetworkFailure(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestPoolSetValidation(t *testing.T) {
	t.Parallel()

	p := openTestPool(t)
	ctx := context.Background()

	id := insertTestIdentity(t, p, "a.example.com", "user-a")

	if err := p.SetValidation(ctx, id, model.StatusValid); err != nil {
		t.Fatalf("SetValidation() error = %v", err)
	}

	got, err := p.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != model.StatusValid {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusValid)
	}
	if got.LastValidated.IsZero() {
		t.Error("LastValidated is zero after SetValidation")
	}

	if err := p.SetValidation(ctx, 9999, model.StatusValid); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetValidation(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPoolList(t *testing.T) {
	t.Parallel()

	p := openTestPool(t)
	ctx := context.Background()

	insertTestIdentity(t, p, "a.example.com", "customer-region-ES-a")
	insertTestIdentity(t, p, "b.example.com", "plain-user")
	inactive := insertTestIdentity(t, p, "c.example.com", "plain-user2")
	if err := p.SetActive(ctx, inactive, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	all, err := p.List(ctx, "", false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(all) returned %d identities, want 3", len(all))
	}

	active, err := p.List(ctx, "", true)
	if err != nil {
		t.Fatalf("List(active) error = %v", err)
	}
	if len(active) != 2 {
		t.Errorf("List(active) returned %d identities, want 2", len(active))
	}

	es, err := p.List(ctx, "ES", false)
	if err != nil {
		t.Fatalf("List(ES) error = %v", err)
	}
	if len(es) != 1 {
		t.Errorf("List(ES) returned %d identities, want 1", len(es))
	}
}

func TestPoolStats(t *testing.T) {
	t.Parallel()

	p := openTestPool(t)
	ctx := context.Background()

	insertTestIdentity(t, p, "a.example.com", "customer-region-ES-a")
	insertTestIdentity(t, p, "b.example.com", "plain-user")
	banned := insertTestIdentity(t, p, "c.example.com", "plain-user2")
	if err := p.SetValidation(ctx, banned, model.StatusBanned); err != nil {
		t.Fatalf("SetValidation() error = %v", err)
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Active != 2 {
		t.Errorf("Active = %d, want 2", stats.Active)
	}
	if stats.Banned != 1 {
		t.Errorf("Banned = %d, want 1", stats.Banned)
	}
	if stats.ByRegion["ES"] != 1 {
		t.Errorf("ByRegion[ES] = %d, want 1", stats.ByRegion["ES"])
	}
	if stats.ByRegion["DZ"] != 2 {
		t.Errorf("ByRegion[DZ] = %d, want 2", stats.ByRegion["DZ"])
	}
}

func TestPoolRemove(t *testing.T) {
	t.Parallel()

	p := openTestPool(t)
	ctx := context.Background()

	id := insertTestIdentity(t, p, "a.example.com", "user-a")

	if err := p.Remove(ctx, id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := p.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}
	if err := p.Remove(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(missing) error = %v, want ErrNotFound", err)
	}
}
