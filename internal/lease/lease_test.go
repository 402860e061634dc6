package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/repository/memory"
)

var base = time.Date(2024, 1, 3, 2, 0, 0, 0, time.UTC)

func reservedItem(t *testing.T, s *memory.Store) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := s.Contents().Create(ctx, nil, &models.Content{UserID: 1, FileName: "clip.mp4"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ok, err := s.Contents().Reserve(ctx, models.SlotReservation{ContentID: id, ProfileID: 1, SlotID: 1, ScheduledAt: base, ScheduledDate: "2024-01-03"})
	if err != nil || !ok {
		t.Fatalf("Reserve: ok=%v err=%v", ok, err)
	}
	return id
}

func TestAcquire_ExactlyOneWinner(t *testing.T) {
	s := memory.New()
	id := reservedItem(t, s)
	m := NewManager(s.Contents(), time.Minute)

	var (
		mu      sync.Mutex
		winners []*Lease
		losers  int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Acquire(context.Background(), id, base)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, l)
			case errors.Is(err, ErrContention):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 || losers != 7 {
		t.Fatalf("got %d winners and %d losers", len(winners), losers)
	}
	if got := winners[0].ExpiresAt; !got.Equal(base.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v", got)
	}
}

func TestRelease(t *testing.T) {
	s := memory.New()
	id := reservedItem(t, s)
	m := NewManager(s.Contents(), time.Minute)
	ctx := context.Background()

	l, err := m.Acquire(ctx, id, base)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(ctx, l); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := m.Release(ctx, l); !errors.Is(err, ErrNotHeld) {
		t.Errorf("second release: got %v, want ErrNotHeld", err)
	}
	if _, err := m.Acquire(ctx, id, base); err != nil {
		t.Errorf("reacquire after release: %v", err)
	}
}

func TestReleaseStale(t *testing.T) {
	s := memory.New()
	id := reservedItem(t, s)
	m := NewManager(s.Contents(), 15*time.Minute)
	ctx := context.Background()

	l, err := m.Acquire(ctx, id, base)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if n, _ := m.ReleaseStale(ctx, base.Add(10*time.Minute)); n != 0 {
		t.Fatalf("lease released before the window: %d", n)
	}
	if l.Expired(base.Add(10 * time.Minute)) {
		t.Error("lease reported expired inside the window")
	}

	later := base.Add(16 * time.Minute)
	if n, _ := m.ReleaseStale(ctx, later); n != 1 {
		t.Fatalf("stale lease not released: %d", n)
	}
	if !l.Expired(later) {
		t.Error("lease should report expired")
	}
	if _, err := m.Acquire(ctx, id, later); err != nil {
		t.Errorf("fresh acquisition after recovery: %v", err)
	}
	if err := m.Release(ctx, l); !errors.Is(err, ErrNotHeld) {
		t.Errorf("crashed holder must not release the new lease, got %v", err)
	}
}

type mismatchStore struct{ Store }

func (mismatchStore) AcquireLease(context.Context, int64, string, time.Time) (bool, error) {
	return true, nil
}

func (mismatchStore) LeaseHolder(context.Context, int64) (string, error) { return "someone-else", nil }

func TestAcquire_ReadBackMismatch(t *testing.T) {
	m := NewManager(mismatchStore{}, time.Minute)
	if _, err := m.Acquire(context.Background(), 1, base); !errors.Is(err, ErrContention) {
		t.Fatalf("got %v, want ErrContention", err)
	}
}

func TestMaxHold_StaysInsideWindow(t *testing.T) {
	for _, stale := range []time.Duration{time.Minute, 15 * time.Minute, time.Hour} {
		got := MaxHold(stale)
		if got <= 0 || got >= stale {
			t.Errorf("MaxHold(%v) = %v, want within (0, %v)", stale, got, stale)
		}
	}
	if got := MaxHold(15 * time.Minute); got != 11*time.Minute+15*time.Second {
		t.Errorf("MaxHold(15m) = %v", got)
	}
}
