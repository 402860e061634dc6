package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/lease"
	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/publisher"
	"github.com/avataralabs/queuelabs-sub000/internal/repository/memory"
	"github.com/avataralabs/queuelabs-sub000/internal/retry"
	"github.com/avataralabs/queuelabs-sub000/internal/scheduling"
)

// 2024-01-02 is a Tuesday. 03:00 UTC is 10:00 in UTC+7.
var tuesday = time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)

// mp4Header is enough of an ISO media file for type sniffing.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
	0x00, 0x00, 0x00, 0x08, 'f', 'r', 'e', 'e',
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (b *memBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBlobs) URL(key string) string { return "https://cdn.test/" + key }

func (b *memBlobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls map[int64][]time.Time
}

func (e *recordingEnqueuer) EnqueueDispatch(_ context.Context, contentID int64, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.calls == nil {
		e.calls = make(map[int64][]time.Time)
	}
	e.calls[contentID] = append(e.calls[contentID], at)
	return nil
}

// scriptedPublisher answers each call with the next scripted step, repeating
// the last one.
type scriptedPublisher struct {
	mu       sync.Mutex
	steps    []func(*publisher.Request) (*publisher.Result, error)
	requests []*publisher.Request
}

func (p *scriptedPublisher) Publish(_ context.Context, req *publisher.Request) (*publisher.Result, error) {
	p.mu.Lock()
	n := len(p.requests)
	p.requests = append(p.requests, req)
	step := p.steps[len(p.steps)-1]
	if n < len(p.steps) {
		step = p.steps[n]
	}
	p.mu.Unlock()
	return step(req)
}

func (p *scriptedPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func syncOK(*publisher.Request) (*publisher.Result, error) {
	return &publisher.Result{ExternalID: "ext-1"}, nil
}

func asyncOK(*publisher.Request) (*publisher.Result, error) {
	return &publisher.Result{Async: true, TrackingToken: "trk-1"}, nil
}

func failWith(kind retry.FailureKind) func(*publisher.Request) (*publisher.Result, error) {
	return func(*publisher.Request) (*publisher.Result, error) {
		return nil, &publisher.PublishError{Kind: kind, Message: string(kind)}
	}
}

type fixture struct {
	t         *testing.T
	store     *memory.Store
	blobs     *memBlobs
	clock     *testClock
	enqueuer  *recordingEnqueuer
	pub       *scriptedPublisher
	assign    AssignService
	contents  ContentService
	dispatch  DispatchService
	leases    *lease.Manager
	userID    int64
	profileID int64
	seq       int
}

func newFixture(t *testing.T, steps ...func(*publisher.Request) (*publisher.Result, error)) *fixture {
	t.Helper()
	if len(steps) == 0 {
		steps = append(steps, syncOK)
	}

	loc, err := scheduling.DisplayZone(7)
	if err != nil {
		t.Fatalf("DisplayZone: %v", err)
	}

	f := &fixture{
		t:        t,
		store:    memory.New(),
		blobs:    newMemBlobs(),
		clock:    newClock(tuesday),
		enqueuer: &recordingEnqueuer{},
		pub:      &scriptedPublisher{steps: steps},
		userID:   1,
	}
	f.leases = lease.NewManager(f.store.Contents(), 15*time.Minute)
	f.assign = NewAssignService(f.store.Contents(), f.store.Slots(), f.store.Profiles(),
		scheduling.NewResolver(loc, scheduling.HorizonDays), 5, f.enqueuer, f.clock.Now)
	f.contents = NewContentService(f.store.Contents(), f.store.Slots(), f.store.Profiles(), f.store.History(),
		f.assign, f.blobs, f.clock.Now)
	f.dispatch = NewDispatchService(f.store.Contents(), f.store.Slots(), f.store.Profiles(), f.store.History(),
		f.leases, f.pub, f.blobs, f.enqueuer, DispatchOptions{
			BatchSize:         50,
			Concurrency:       4,
			ProcessingTimeout: 2 * time.Hour,
			PublishTimeout:    time.Minute,
			Retry:             retry.DefaultPolicy(),
			Clock:             f.clock.Now,
		})

	f.profileID = f.profile("studio", "")
	return f
}

func (f *fixture) profile(name, platform string) int64 {
	f.t.Helper()
	id, err := f.store.Profiles().Create(context.Background(), &models.Profile{UserID: f.userID, Name: name, Platform: platform})
	if err != nil {
		f.t.Fatalf("create profile: %v", err)
	}
	return id
}

func (f *fixture) dailySlot(platform string, hour, minute int) int64 {
	f.t.Helper()
	return f.slot(&models.ScheduleSlot{Platform: platform, Hour: hour, Minute: minute, Type: models.SlotTypeDaily, IsActive: true})
}

func (f *fixture) slot(s *models.ScheduleSlot) int64 {
	f.t.Helper()
	if s.ProfileID == 0 {
		s.ProfileID = f.profileID
	}
	s.UserID = f.userID
	id, err := f.store.Slots().Create(context.Background(), s)
	if err != nil {
		f.t.Fatalf("create slot: %v", err)
	}
	return id
}

func (f *fixture) pending(platform string) int64 {
	f.t.Helper()
	ctx := context.Background()
	f.seq++
	key := fmt.Sprintf("videos/clip-%d.mp4", f.seq)
	f.blobs.Put(ctx, key, mp4Header, "video/mp4")
	id, err := f.store.Contents().Create(ctx, nil, &models.Content{
		UserID:   f.userID,
		FileName: "clip.mp4",
		FileKey:  key,
		Caption:  "caption",
		Platform: platform,
	})
	if err != nil {
		f.t.Fatalf("create content: %v", err)
	}
	return id
}

// due reserves a fresh pending item on slotID at an instant already in the
// past, so it is immediately due. Each call takes an earlier date.
func (f *fixture) due(slotID int64, platform string) int64 {
	f.t.Helper()
	id := f.pending(platform)
	at := f.clock.Now().Add(-time.Duration(f.seq) * time.Minute)
	ok, err := f.store.Contents().Reserve(context.Background(), models.SlotReservation{
		ContentID:     id,
		ProfileID:     f.profileID,
		SlotID:        slotID,
		ScheduledAt:   at,
		ScheduledDate: at.AddDate(0, 0, -f.seq).Format("2006-01-02"),
	})
	if err != nil || !ok {
		f.t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	return id
}

func (f *fixture) get(id int64) *models.Content {
	f.t.Helper()
	c, err := f.store.Contents().GetByID(context.Background(), id)
	if err != nil || c == nil {
		f.t.Fatalf("get content %d: %v", id, err)
	}
	return c
}
