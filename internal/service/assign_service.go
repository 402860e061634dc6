package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/metrics"
	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/repository"
	"github.com/avataralabs/queuelabs-sub000/internal/scheduling"
)

// Enqueuer schedules a dispatch attempt for a content item at a given
// instant. The periodic pass still picks up anything that is never enqueued.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, contentID int64, at time.Time) error
}

type ReserveRequest struct {
	UserID    int64  `json:"userId"`
	ProfileID int64  `json:"profileId"`
	Platform  string `json:"platform"`
	ContentID int64  `json:"contentId"`
}

type Assignment struct {
	ContentID     int64     `json:"content_id"`
	ProfileID     int64     `json:"profile_id"`
	Platform      string    `json:"platform"`
	SlotID        int64     `json:"slot_id"`
	Hour          int       `json:"hour"`
	Minute        int       `json:"minute"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	ScheduledDate string    `json:"scheduled_date"`
}

type BatchResult struct {
	Request    ReserveRequest
	Assignment *Assignment
	Err        error
}

type AssignService interface {
	Reserve(ctx context.Context, req ReserveRequest) (*Assignment, error)
	AssignBatch(ctx context.Context, reqs []ReserveRequest) []BatchResult
	Preview(ctx context.Context, profileID int64, platform string, count int) ([]scheduling.Candidate, error)
}

type assignService struct {
	contents    repository.ContentRepository
	slots       repository.SlotRepository
	profiles    repository.ProfileRepository
	resolver    *scheduling.Resolver
	maxAttempts int
	enqueuer    Enqueuer
	clock       func() time.Time
}

func NewAssignService(
	contents repository.ContentRepository,
	slots repository.SlotRepository,
	profiles repository.ProfileRepository,
	resolver *scheduling.Resolver,
	maxAttempts int,
	enqueuer Enqueuer,
	clock func() time.Time) AssignService {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if clock == nil {
		clock = time.Now
	}
	return &assignService{
		contents:    contents,
		slots:       slots,
		profiles:    profiles,
		resolver:    resolver,
		maxAttempts: maxAttempts,
		enqueuer:    enqueuer,
		clock:       clock,
	}
}

// Reserve assigns one pending content item to the earliest free slot instant
// of the profile/platform pair.
func (s *assignService) Reserve(ctx context.Context, req ReserveRequest) (*Assignment, error) {
	return s.reserve(ctx, req, nil)
}

// AssignBatch reserves each request in caller order. Every commit is recorded
// in a batch-local occupancy index so later requests in the same batch never
// resolve to a pair an earlier one took. One failing request does not stop
// the rest.
func (s *assignService) AssignBatch(ctx context.Context, reqs []ReserveRequest) []BatchResult {
	provisional := scheduling.NewOccupancy()
	results := make([]BatchResult, 0, len(reqs))

	for _, req := range reqs {
		a, err := s.reserve(ctx, req, provisional)
		if err == nil {
			date, _ := scheduling.ParseDate(a.ScheduledDate)
			provisional.Add(a.SlotID, date)
		}
		results = append(results, BatchResult{Request: req, Assignment: a, Err: err})
	}
	return results
}

func (s *assignService) reserve(ctx context.Context, req ReserveRequest, provisional *scheduling.Occupancy) (*Assignment, error) {
	if req.ContentID == 0 || req.ProfileID == 0 || req.Platform == "" {
		return nil, fmt.Errorf("%w: contentId, profileId and platform are required", ErrInvalidInput)
	}

	content, err := s.contents.GetByID(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}
	if content == nil || (req.UserID != 0 && content.UserID != req.UserID) {
		return nil, fmt.Errorf("content %d: %w", req.ContentID, ErrContentNotFound)
	}
	if content.Status != models.ContentStatusPending {
		return nil, fmt.Errorf("content %d is %s: %w", req.ContentID, content.Status, ErrInvalidState)
	}

	slots, err := s.targetSlots(ctx, req)
	if err != nil {
		metrics.ObserveReservation("not_found")
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.clock()

		occupied, err := s.occupancy(ctx, slots, now)
		if err != nil {
			return nil, err
		}

		cand, ok := s.resolver.FindNext(slots, occupied.Merge(provisional), now)
		if !ok {
			metrics.ObserveReservation("no_slot")
			return nil, fmt.Errorf("profile %d on %s: %w", req.ProfileID, req.Platform, ErrNoAvailableSlot)
		}

		committed, err := s.contents.Reserve(ctx, models.SlotReservation{
			ContentID:     req.ContentID,
			ProfileID:     req.ProfileID,
			SlotID:        cand.Slot.ID,
			Platform:      req.Platform,
			ScheduledAt:   cand.ScheduledAt,
			ScheduledDate: cand.Date.String(),
		})
		if err != nil {
			return nil, err
		}
		if committed {
			metrics.ObserveReservation("committed")
			a := &Assignment{
				ContentID:     req.ContentID,
				ProfileID:     req.ProfileID,
				Platform:      req.Platform,
				SlotID:        cand.Slot.ID,
				Hour:          cand.Slot.Hour,
				Minute:        cand.Slot.Minute,
				ScheduledAt:   cand.ScheduledAt,
				ScheduledDate: cand.Date.String(),
			}
			s.enqueue(ctx, a)
			return a, nil
		}

		metrics.ObserveReservation("conflict")
		slog.Info("slot reservation lost, re-resolving",
			"content_id", req.ContentID, "slot_id", cand.Slot.ID, "date", cand.Date.String(), "attempt", attempt)

		// A zero-row write also happens when the row left pending meanwhile.
		current, err := s.contents.GetByID(ctx, req.ContentID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, fmt.Errorf("content %d: %w", req.ContentID, ErrContentNotFound)
		}
		if current.Status != models.ContentStatusPending {
			return nil, fmt.Errorf("content %d is %s: %w", req.ContentID, current.Status, ErrInvalidState)
		}
	}

	metrics.ObserveReservation("contention")
	return nil, ErrReservationContention
}

// targetSlots loads the slots of the requested profile/platform. A profile
// that does not exist, belongs to someone else, or has no slot at all on the
// platform is NotFound.
func (s *assignService) targetSlots(ctx context.Context, req ReserveRequest) ([]*models.ScheduleSlot, error) {
	profile, err := s.profiles.GetByID(ctx, req.ProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil || (req.UserID != 0 && profile.UserID != req.UserID) {
		return nil, fmt.Errorf("profile %d: %w", req.ProfileID, ErrNotFound)
	}

	slots, err := s.slots.ListByProfile(ctx, req.ProfileID, req.Platform)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no %s slots on profile %d: %w", req.Platform, req.ProfileID, ErrNotFound)
	}
	return scheduling.NewCatalog(slots).Active(req.ProfileID, req.Platform), nil
}

// occupancy reads the persisted reservations from the start of today in the
// display zone onwards.
func (s *assignService) occupancy(ctx context.Context, slots []*models.ScheduleSlot, now time.Time) (*scheduling.Occupancy, error) {
	loc := s.resolver.Location()
	from, _ := scheduling.DayBounds(scheduling.DateOf(now, loc), loc)

	reservations, err := s.contents.ListReservations(ctx, scheduling.NewCatalog(slots).IDs(), from)
	if err != nil {
		return nil, err
	}
	return scheduling.BuildOccupancy(reservations, loc), nil
}

func (s *assignService) enqueue(ctx context.Context, a *Assignment) {
	if s.enqueuer == nil {
		return
	}
	if err := s.enqueuer.EnqueueDispatch(ctx, a.ContentID, a.ScheduledAt); err != nil {
		slog.Warn("enqueue dispatch failed, periodic pass will pick it up", "content_id", a.ContentID, "error", err)
	}
}

// Preview lists the next count free instants without writing anything.
func (s *assignService) Preview(ctx context.Context, profileID int64, platform string, count int) ([]scheduling.Candidate, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidInput)
	}

	slots, err := s.targetSlots(ctx, ReserveRequest{ProfileID: profileID, Platform: platform})
	if err != nil {
		return nil, err
	}

	now := s.clock()
	occupied, err := s.occupancy(ctx, slots, now)
	if err != nil {
		return nil, err
	}

	var out []scheduling.Candidate
	for len(out) < count {
		cand, ok := s.resolver.FindNext(slots, occupied, now)
		if !ok {
			break
		}
		occupied.Add(cand.Slot.ID, cand.Date)
		out = append(out, cand)
	}
	if len(out) == 0 {
		return nil, ErrNoAvailableSlot
	}
	return out, nil
}

// IsRollbackError reports whether a reservation failure leaves a provisional
// content row that must be discarded.
func IsRollbackError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoAvailableSlot) || errors.Is(err, ErrReservationContention)
}
