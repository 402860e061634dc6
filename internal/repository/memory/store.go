// Package memory is an in-process implementation of the repository
// interfaces. It applies the same conditional-write rules as the Postgres
// queries under a single mutex. Intended for tests and local planning.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/repository"
)

var (
	_ repository.ContentRepository       = (*contentStore)(nil)
	_ repository.SlotRepository          = (*slotStore)(nil)
	_ repository.ProfileRepository       = (*profileStore)(nil)
	_ repository.UploadHistoryRepository = (*historyStore)(nil)
)

// ErrDuplicateSuccess mirrors the unique index on successful history rows.
var ErrDuplicateSuccess = errors.New("memory: content already has a success record")

type Store struct {
	mu sync.Mutex

	contents map[int64]*models.Content
	dates    map[int64]string // content id -> reserved display date
	slots    map[int64]*models.ScheduleSlot
	profiles map[int64]*models.Profile
	history  []*models.UploadHistory

	nextID int64
}

func New() *Store {
	return &Store{
		contents: make(map[int64]*models.Content),
		dates:    make(map[int64]string),
		slots:    make(map[int64]*models.ScheduleSlot),
		profiles: make(map[int64]*models.Profile),
	}
}

func (s *Store) Contents() repository.ContentRepository { return &contentStore{s} }
func (s *Store) Slots() repository.SlotRepository { return &slotStore{s} }
func (s *Store) Profiles() repository.ProfileRepository { return &profileStore{s} }
func (s *Store) History() repository.UploadHistoryRepository { return &historyStore{s} }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func copyContent(c *models.Content) *models.Content {
	cp := *c
	return &cp
}

// ──────────────────────────────────────────────────
// Contents
// ──────────────────────────────────────────────────

type contentStore struct{ s *Store }

func (r *contentStore) Create(_ context.Context, _ *sql.Tx, c *models.Content) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := copyContent(c)
	cp.ID = r.s.id()
	if cp.Status == "" {
		cp.Status = models.ContentStatusPending
	}
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	r.s.contents[cp.ID] = cp
	return cp.ID, nil
}

func (r *contentStore) GetByID(_ context.Context, id int64) (*models.Content, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[id]
	if !ok {
		return nil, nil
	}
	return copyContent(c), nil
}

func (r *contentStore) ListByUserID(_ context.Context, userID int64, status string) ([]*models.Content, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.Content
	for _, c := range r.s.contents {
		if c.UserID != userID || (status != "" && c.Status != status) {
			continue
		}
		out = append(out, copyContent(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *contentStore) CheckByUserID(_ context.Context, contentID, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[contentID]
	return ok && c.UserID == userID, nil
}

func (r *contentStore) Remove(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.contents, id)
	delete(r.s.dates, id)
	return nil
}

func (r *contentStore) CountByFileKey(_ context.Context, fileKey string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, c := range r.s.contents {
		if c.FileKey == fileKey {
			n++
		}
	}
	return n, nil
}

func (r *contentStore) ListReservations(_ context.Context, slotIDs []int64, from time.Time) ([]models.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	want := make(map[int64]struct{}, len(slotIDs))
	for _, id := range slotIDs {
		want[id] = struct{}{}
	}

	var out []models.Reservation
	for _, c := range r.s.contents {
		if c.ScheduledSlotID == nil || c.ScheduledAt == nil || !models.IsActiveStatus(c.Status) {
			continue
		}
		if _, ok := want[*c.ScheduledSlotID]; !ok {
			continue
		}
		if c.ScheduledAt.Before(from) {
			continue
		}
		out = append(out, models.Reservation{ContentID: c.ID, SlotID: *c.ScheduledSlotID, ScheduledAt: *c.ScheduledAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentID < out[j].ContentID })
	return out, nil
}

func (r *contentStore) Reserve(_ context.Context, res models.SlotReservation) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[res.ContentID]
	if !ok || c.Status != models.ContentStatusPending {
		return false, nil
	}
	for id, other := range r.s.contents {
		if id == res.ContentID || other.ScheduledSlotID == nil || !models.IsActiveStatus(other.Status) {
			continue
		}
		if *other.ScheduledSlotID == res.SlotID && r.s.dates[id] == res.ScheduledDate {
			return false, nil
		}
	}

	profileID, slotID, at := res.ProfileID, res.SlotID, res.ScheduledAt.UTC()
	c.Status = models.ContentStatusAssigned
	c.AssignedProfileID = &profileID
	c.ScheduledSlotID = &slotID
	c.ScheduledAt = &at
	c.RetryCount = 0
	c.NextRetryAt = nil
	c.LastError = ""
	c.UpdatedAt = time.Now().UTC()
	r.s.dates[c.ID] = res.ScheduledDate
	return true, nil
}

func (r *contentStore) AcquireLease(_ context.Context, id int64, holder string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[id]
	if !ok || c.LeaseHolder != "" {
		return false, nil
	}
	if c.Status != models.ContentStatusAssigned && c.Status != models.ContentStatusRetryPending {
		return false, nil
	}
	at := now.UTC()
	c.Status = models.ContentStatusDispatching
	c.LeaseHolder = holder
	c.LeasedAt = &at
	c.LastAttemptAt = &at
	c.UpdatedAt = at
	return true, nil
}

func (r *contentStore) LeaseHolder(_ context.Context, id int64) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if c, ok := r.s.contents[id]; ok {
		return c.LeaseHolder, nil
	}
	return "", nil
}

// held returns the row only when holder owns its lease. Callers hold mu.
func (r *contentStore) held(id int64, holder string) *models.Content {
	c, ok := r.s.contents[id]
	if !ok || c.Status != models.ContentStatusDispatching || c.LeaseHolder != holder {
		return nil
	}
	return c
}

func clearLease(c *models.Content) {
	c.LeaseHolder = ""
	c.LeasedAt = nil
	c.UpdatedAt = time.Now().UTC()
}

func releaseStatus(c *models.Content) string {
	if c.RetryCount > 0 {
		return models.ContentStatusRetryPending
	}
	return models.ContentStatusAssigned
}

func (r *contentStore) ReleaseLease(_ context.Context, id int64, holder string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.held(id, holder)
	if c == nil {
		return false, nil
	}
	c.Status = releaseStatus(c)
	clearLease(c)
	return true, nil
}

func (r *contentStore) ReleaseStaleLeases(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, c := range r.s.contents {
		if c.Status != models.ContentStatusDispatching || c.LeasedAt == nil || !c.LeasedAt.Before(cutoff) {
			continue
		}
		c.Status = releaseStatus(c)
		clearLease(c)
		n++
	}
	return n, nil
}

func (r *contentStore) RequeueStaleProcessing(_ context.Context, cutoff, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, c := range r.s.contents {
		if c.Status != models.ContentStatusProcessing {
			continue
		}
		since := c.UpdatedAt
		if c.LastAttemptAt != nil {
			since = *c.LastAttemptAt
		}
		if !since.Before(cutoff) {
			continue
		}
		at := now.UTC()
		c.Status = models.ContentStatusRetryPending
		c.NextRetryAt = &at
		c.UpdatedAt = at
		n++
	}
	return n, nil
}

func dueAt(c *models.Content) (time.Time, bool) {
	switch c.Status {
	case models.ContentStatusAssigned:
		if c.ScheduledAt != nil {
			return *c.ScheduledAt, true
		}
	case models.ContentStatusRetryPending:
		if c.NextRetryAt != nil {
			return *c.NextRetryAt, true
		}
		if c.ScheduledAt != nil {
			return *c.ScheduledAt, true
		}
	}
	return time.Time{}, false
}

func (r *contentStore) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Content, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type due struct {
		c  *models.Content
		at time.Time
	}
	var items []due
	for _, c := range r.s.contents {
		if c.LeaseHolder != "" {
			continue
		}
		at, ok := dueAt(c)
		if !ok || at.After(now) {
			continue
		}
		items = append(items, due{c: c, at: at})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].at.Equal(items[j].at) {
			return items[i].at.Before(items[j].at)
		}
		return items[i].c.ID < items[j].c.ID
	})

	out := make([]*models.Content, 0, len(items))
	for _, it := range items {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, copyContent(it.c))
	}
	return out, nil
}

func (r *contentStore) MarkProcessing(_ context.Context, id int64, holder, trackingID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.held(id, holder)
	if c == nil {
		return false, nil
	}
	c.Status = models.ContentStatusProcessing
	c.TrackingID = trackingID
	c.RetryCount = 0
	c.NextRetryAt = nil
	c.LastError = ""
	clearLease(c)
	return true, nil
}

func (r *contentStore) MarkPublished(_ context.Context, id int64, holder string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.held(id, holder)
	if c == nil {
		return false, nil
	}
	at := now.UTC()
	c.Status = models.ContentStatusRemoved
	c.UploadedAt = &at
	c.RemovedAt = &at
	c.RemovedFromProfileID = c.AssignedProfileID
	r.s.freeSlot(c)
	c.RetryCount = 0
	c.LastError = ""
	clearLease(c)
	return true, nil
}

func (r *contentStore) MarkRetryPending(_ context.Context, id int64, holder string, nextRetryAt time.Time, lastErr string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.held(id, holder)
	if c == nil {
		return false, nil
	}
	at := nextRetryAt.UTC()
	c.Status = models.ContentStatusRetryPending
	c.RetryCount++
	c.NextRetryAt = &at
	c.LastError = lastErr
	clearLease(c)
	return true, nil
}

func (r *contentStore) MarkFailed(_ context.Context, id int64, holder, lastErr string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.held(id, holder)
	if c == nil {
		return false, nil
	}
	c.Status = models.ContentStatusFailed
	c.NextRetryAt = nil
	c.LastError = lastErr
	clearLease(c)
	return true, nil
}

func (r *contentStore) ForceRemoved(_ context.Context, id int64, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[id]
	if !ok || c.Status == models.ContentStatusRemoved || c.Status == models.ContentStatusDispatching {
		return false, nil
	}
	at := now.UTC()
	c.Status = models.ContentStatusRemoved
	c.RemovedAt = &at
	if c.AssignedProfileID != nil {
		c.RemovedFromProfileID = c.AssignedProfileID
	}
	r.s.freeSlot(c)
	c.UpdatedAt = at
	return true, nil
}

func (r *contentStore) Unschedule(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[id]
	if !ok {
		return false, nil
	}
	switch c.Status {
	case models.ContentStatusAssigned, models.ContentStatusRetryPending, models.ContentStatusFailed:
	default:
		return false, nil
	}
	c.Status = models.ContentStatusPending
	c.AssignedProfileID = nil
	r.s.freeSlot(c)
	c.RetryCount = 0
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *contentStore) RevertToFailed(_ context.Context, id, profileID int64, slotID *int64, lastErr string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[id]
	if !ok || c.Status != models.ContentStatusPending {
		return false, nil
	}
	c.Status = models.ContentStatusFailed
	c.AssignedProfileID = &profileID
	if slotID != nil {
		slot := *slotID
		c.ScheduledSlotID = &slot
	}
	c.LastError = lastErr
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *contentStore) MoveToTrash(_ context.Context, id int64, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[id]
	if !ok || c.Status == models.ContentStatusRemoved || c.Status == models.ContentStatusDispatching {
		return false, nil
	}
	at := now.UTC()
	c.Status = models.ContentStatusRemoved
	c.RemovedAt = &at
	c.RemovedFromProfileID = c.AssignedProfileID
	r.s.freeSlot(c)
	c.UpdatedAt = at
	return true, nil
}

func (r *contentStore) Restore(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.contents[id]
	if !ok || c.Status != models.ContentStatusRemoved {
		return false, nil
	}
	c.Status = models.ContentStatusPending
	c.AssignedProfileID = nil
	c.RemovedAt = nil
	c.RetryCount = 0
	c.LastError = ""
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

// freeSlot clears the reservation fields. Callers hold mu.
func (s *Store) freeSlot(c *models.Content) {
	c.ScheduledSlotID = nil
	c.ScheduledAt = nil
	c.NextRetryAt = nil
	delete(s.dates, c.ID)
}

// releaseWhere returns waiting reservations accepted by match to pending.
// Callers hold mu.
func (s *Store) releaseWhere(match func(c *models.Content) bool) int64 {
	var n int64
	for _, c := range s.contents {
		if c.Status != models.ContentStatusAssigned && c.Status != models.ContentStatusRetryPending {
			continue
		}
		if !match(c) {
			continue
		}
		c.Status = models.ContentStatusPending
		c.AssignedProfileID = nil
		s.freeSlot(c)
		c.UpdatedAt = time.Now().UTC()
		n++
	}
	return n
}

// ──────────────────────────────────────────────────
// Slots
// ──────────────────────────────────────────────────

type slotStore struct{ s *Store }

func copySlot(sl *models.ScheduleSlot) *models.ScheduleSlot {
	cp := *sl
	cp.WeekDays = append([]int64(nil), sl.WeekDays...)
	return &cp
}

func (r *slotStore) Create(_ context.Context, sl *models.ScheduleSlot) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := copySlot(sl)
	cp.ID = r.s.id()
	cp.CreatedAt = time.Now().UTC()
	r.s.slots[cp.ID] = cp
	return cp.ID, nil
}

func (r *slotStore) GetByID(_ context.Context, id int64) (*models.ScheduleSlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sl, ok := r.s.slots[id]
	if !ok {
		return nil, nil
	}
	return copySlot(sl), nil
}

func (r *slotStore) ListByProfile(_ context.Context, profileID int64, platform string) ([]*models.ScheduleSlot, error) {
	return r.filter(func(sl *models.ScheduleSlot) bool {
		return sl.ProfileID == profileID && (platform == "" || sl.Platform == platform)
	}), nil
}

func (r *slotStore) ListByUserID(_ context.Context, userID int64) ([]*models.ScheduleSlot, error) {
	return r.filter(func(sl *models.ScheduleSlot) bool { return sl.UserID == userID }), nil
}

func (r *slotStore) filter(match func(*models.ScheduleSlot) bool) []*models.ScheduleSlot {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.ScheduleSlot
	for _, sl := range r.s.slots {
		if match(sl) {
			out = append(out, copySlot(sl))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		if a.Minute != b.Minute {
			return a.Minute < b.Minute
		}
		return a.ID < b.ID
	})
	return out
}

func (r *slotStore) Update(_ context.Context, sl *models.ScheduleSlot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.slots[sl.ID]
	if !ok {
		return nil
	}
	cp := copySlot(sl)
	cp.ProfileID, cp.UserID, cp.CreatedAt = cur.ProfileID, cur.UserID, cur.CreatedAt
	r.s.slots[sl.ID] = cp
	return nil
}

func (r *slotStore) SetActive(_ context.Context, id int64, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sl, ok := r.s.slots[id]; ok {
		sl.IsActive = active
	}
	return nil
}

func (r *slotStore) Remove(_ context.Context, id int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := r.s.releaseWhere(func(c *models.Content) bool {
		return c.ScheduledSlotID != nil && *c.ScheduledSlotID == id
	})
	delete(r.s.slots, id)
	return n, nil
}

// ──────────────────────────────────────────────────
// Profiles
// ──────────────────────────────────────────────────

type profileStore struct{ s *Store }

func copyProfile(p *models.Profile) *models.Profile {
	cp := *p
	cp.ConnectedAccounts = append([]string(nil), p.ConnectedAccounts...)
	return &cp
}

func (r *profileStore) Create(_ context.Context, p *models.Profile) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := copyProfile(p)
	cp.ID = r.s.id()
	cp.CreatedAt = time.Now().UTC()
	r.s.profiles[cp.ID] = cp
	return cp.ID, nil
}

func (r *profileStore) GetByID(_ context.Context, id int64) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return nil, nil
	}
	return copyProfile(p), nil
}

func (r *profileStore) ListByUserID(_ context.Context, userID int64) ([]*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.Profile
	for _, p := range r.s.profiles {
		if p.UserID == userID {
			out = append(out, copyProfile(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *profileStore) CheckByUserID(_ context.Context, profileID, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[profileID]
	return ok && p.UserID == userID, nil
}

// Remove drops the profile and its slots, returning waiting reservations to
// pending like the foreign keys do in Postgres.
func (r *profileStore) Remove(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.releaseWhere(func(c *models.Content) bool {
		return c.AssignedProfileID != nil && *c.AssignedProfileID == id
	})
	for slotID, sl := range r.s.slots {
		if sl.ProfileID == id {
			delete(r.s.slots, slotID)
		}
	}
	delete(r.s.profiles, id)
	return nil
}

// ──────────────────────────────────────────────────
// Upload history
// ──────────────────────────────────────────────────

type historyStore struct{ s *Store }

func (r *historyStore) Create(_ context.Context, h *models.UploadHistory) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if h.Status == models.UploadStatusSuccess {
		for _, prev := range r.s.history {
			if prev.ContentID == h.ContentID && prev.Status == models.UploadStatusSuccess {
				return 0, ErrDuplicateSuccess
			}
		}
	}
	cp := *h
	cp.ID = r.s.id()
	if cp.UploadedAt.IsZero() {
		cp.UploadedAt = time.Now().UTC()
	}
	r.s.history = append(r.s.history, &cp)
	return cp.ID, nil
}

func (r *historyStore) HasSuccess(_ context.Context, contentID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, h := range r.s.history {
		if h.ContentID == contentID && h.Status == models.UploadStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (r *historyStore) ListByUserID(_ context.Context, userID int64, limit int) ([]*models.UploadHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.UploadHistory
	for i := len(r.s.history) - 1; i >= 0; i-- {
		h := r.s.history[i]
		if h.UserID != userID {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (r *historyStore) ListByContentID(_ context.Context, contentID int64) ([]*models.UploadHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.UploadHistory
	for _, h := range r.s.history {
		if h.ContentID == contentID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}
