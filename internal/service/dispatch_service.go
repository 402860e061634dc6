package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/lease"
	"github.com/avataralabs/queuelabs-sub000/internal/metrics"
	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/publisher"
	"github.com/avataralabs/queuelabs-sub000/internal/repository"
	"github.com/avataralabs/queuelabs-sub000/internal/retry"
	"github.com/avataralabs/queuelabs-sub000/internal/scheduling"
)

type Outcome string

const (
	OutcomeSkipped          Outcome = "skipped"
	OutcomeContended        Outcome = "contended"
	OutcomeAlreadyPublished Outcome = "already_published"
	OutcomePublished        Outcome = "published"
	OutcomeProcessing       Outcome = "processing"
	OutcomeRetryScheduled   Outcome = "retry_scheduled"
	OutcomeFailed           Outcome = "failed"
	OutcomeError            Outcome = "error"
)

type PassReport struct {
	StartedAt          time.Time        `json:"started_at"`
	FinishedAt         time.Time        `json:"finished_at"`
	StaleReleased      int64            `json:"stale_released"`
	ProcessingRequeued int64            `json:"processing_requeued"`
	Due                int              `json:"due"`
	Outcomes           map[Outcome]int  `json:"outcomes"`
	Errors             map[int64]string `json:"errors,omitempty"`
}

type DispatchOptions struct {
	BatchSize         int
	Concurrency       int
	ProcessingTimeout time.Duration
	PublishTimeout    time.Duration
	Retry             retry.Policy
	Clock             func() time.Time
}

type DispatchService interface {
	RunPass(ctx context.Context) (*PassReport, error)
	DispatchOne(ctx context.Context, contentID int64) (Outcome, error)
}

type dispatchService struct {
	contents  repository.ContentRepository
	slots     repository.SlotRepository
	profiles  repository.ProfileRepository
	history   repository.UploadHistoryRepository
	leases    *lease.Manager
	publisher publisher.Publisher
	blobs     BlobStore
	enqueuer  Enqueuer
	opts      DispatchOptions
}

func NewDispatchService(
	contents repository.ContentRepository,
	slots repository.SlotRepository,
	profiles repository.ProfileRepository,
	history repository.UploadHistoryRepository,
	leases *lease.Manager,
	pub publisher.Publisher,
	blobs BlobStore,
	enqueuer Enqueuer,
	opts DispatchOptions) DispatchService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 2 * time.Hour
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Minute
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if max := lease.MaxHold(leases.StaleAfter()); opts.PublishTimeout > max {
		slog.Warn("publish timeout exceeds the lease window, clamping",
			"publish_timeout", opts.PublishTimeout, "stale_after", leases.StaleAfter(), "clamped_to", max)
		opts.PublishTimeout = max
	}
	return &dispatchService{
		contents:  contents,
		slots:     slots,
		profiles:  profiles,
		history:   history,
		leases:    leases,
		publisher: pub,
		blobs:     blobs,
		enqueuer:  enqueuer,
		opts:      opts,
	}
}

// RunPass recovers abandoned work, then dispatches every due item with
// bounded concurrency. A failing item never stops its siblings.
func (s *dispatchService) RunPass(ctx context.Context) (*PassReport, error) {
	now := s.opts.Clock()
	report := &PassReport{
		StartedAt: now,
		Outcomes:  make(map[Outcome]int),
		Errors:    make(map[int64]string),
	}

	released, err := s.leases.ReleaseStale(ctx, now)
	if err != nil {
		return report, err
	}
	report.StaleReleased = released
	if released > 0 {
		metrics.StaleLeasesReleased.Add(float64(released))
	}

	requeued, err := s.contents.RequeueStaleProcessing(ctx, now.Add(-s.opts.ProcessingTimeout), now)
	if err != nil {
		return report, fmt.Errorf("requeue stale processing: %w", err)
	}
	report.ProcessingRequeued = requeued
	if requeued > 0 {
		slog.Warn("requeued content stuck in processing", "count", requeued)
	}

	due, err := s.contents.ListDue(ctx, now, s.opts.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list due content: %w", err)
	}
	report.Due = len(due)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.opts.Concurrency)
	)
	for _, c := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := s.safeDispatch(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			report.Outcomes[outcome]++
			if err != nil {
				report.Errors[id] = err.Error()
			}
		}(c.ID)
	}
	wg.Wait()

	report.FinishedAt = s.opts.Clock()
	slog.Info("dispatch pass finished",
		"due", report.Due,
		"stale_released", report.StaleReleased,
		"processing_requeued", report.ProcessingRequeued,
		"outcomes", report.Outcomes)
	return report, nil
}

func (s *dispatchService) safeDispatch(ctx context.Context, id int64) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("dispatch panicked", "content_id", id, "panic", p)
			outcome, err = OutcomeError, fmt.Errorf("panic: %v", p)
			metrics.ObserveDispatch(string(outcome))
		}
	}()
	return s.DispatchOne(ctx, id)
}

// DispatchOne makes at most one publish attempt for a content item.
func (s *dispatchService) DispatchOne(ctx context.Context, contentID int64) (Outcome, error) {
	outcome, err := s.dispatch(ctx, contentID)
	metrics.ObserveDispatch(string(outcome))
	if err != nil {
		slog.Error("dispatch failed", "content_id", contentID, "outcome", outcome, "error", err)
	}
	return outcome, err
}

func (s *dispatchService) dispatch(ctx context.Context, contentID int64) (Outcome, error) {
	now := s.opts.Clock()

	c, err := s.contents.GetByID(ctx, contentID)
	if err != nil {
		return OutcomeError, err
	}
	if c == nil {
		return OutcomeSkipped, nil
	}
	switch c.Status {
	case models.ContentStatusRemoved:
		return OutcomeSkipped, nil
	case models.ContentStatusDispatching:
		return OutcomeContended, nil
	}

	// The success guard runs whatever the status says.
	published, err := s.history.HasSuccess(ctx, c.ID)
	if err != nil {
		return OutcomeError, err
	}
	if published {
		if _, err := s.contents.ForceRemoved(ctx, c.ID, now); err != nil {
			return OutcomeError, err
		}
		slog.Warn("content already published, retired without dispatch", "content_id", c.ID, "status", c.Status)
		return OutcomeAlreadyPublished, nil
	}

	if c.Status != models.ContentStatusAssigned && c.Status != models.ContentStatusRetryPending {
		return OutcomeSkipped, nil
	}
	if at, ok := dueAt(c); !ok || at.After(now) {
		return OutcomeSkipped, nil
	}

	l, err := s.leases.Acquire(ctx, c.ID, now)
	if errors.Is(err, lease.ErrContention) {
		return OutcomeContended, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	// c may predate another dispatcher's attempt. Due check and retry
	// decision use the row as it stands under the lease.
	fresh, err := s.contents.GetByID(ctx, c.ID)
	if err != nil {
		s.release(l)
		return OutcomeError, err
	}
	if fresh == nil {
		return OutcomeSkipped, nil
	}
	if at, ok := dueAt(fresh); !ok || at.After(now) {
		s.release(l)
		return OutcomeSkipped, nil
	}

	return s.dispatchLeased(ctx, fresh, l)
}

// dueAt reads next_retry_at for retry_pending rows and for leased rows,
// which keep it from the state they were acquired in.
func dueAt(c *models.Content) (time.Time, bool) {
	retrying := c.Status == models.ContentStatusRetryPending || c.Status == models.ContentStatusDispatching
	if retrying && c.NextRetryAt != nil {
		return *c.NextRetryAt, true
	}
	if c.ScheduledAt != nil {
		return *c.ScheduledAt, true
	}
	return time.Time{}, false
}

// dispatchLeased runs under the lease. Outcome writes clear the lease in the
// same statement; every other exit releases it explicitly.
func (s *dispatchService) dispatchLeased(ctx context.Context, c *models.Content, l *lease.Lease) (outcome Outcome, err error) {
	log := slog.With("content_id", c.ID, "holder", l.Holder)

	defer func() {
		if p := recover(); p != nil {
			s.release(l)
			panic(p)
		}
		if outcome == OutcomeError {
			s.release(l)
		}
	}()

	req, err := s.buildRequest(ctx, c)
	if err != nil {
		var pe *publisher.PublishError
		if errors.As(err, &pe) {
			return s.handleFailure(ctx, c, l, err)
		}
		return OutcomeError, err
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	res, pubErr := s.publisher.Publish(pubCtx, req)
	cancel()

	if pubErr != nil {
		return s.handleFailure(ctx, c, l, pubErr)
	}

	if res.Async {
		ok, err := s.contents.MarkProcessing(ctx, c.ID, l.Holder, res.TrackingToken)
		if err != nil {
			return OutcomeError, err
		}
		if !ok {
			log.Warn("lease lost before recording async acknowledgment", "tracking_id", res.TrackingToken)
			return OutcomeContended, nil
		}
		log.Info("publish acknowledged", "outcome", OutcomeProcessing, "tracking_id", res.TrackingToken)
		return OutcomeProcessing, nil
	}

	done := s.opts.Clock()
	if _, err := s.history.Create(ctx, &models.UploadHistory{
		ContentID:  c.ID,
		ProfileID:  deref(c.AssignedProfileID),
		UserID:     c.UserID,
		Status:     models.UploadStatusSuccess,
		UploadedAt: done,
	}); err != nil {
		// Without the success record, the removed status written below is
		// the only guard against a republish.
		log.Error("recording upload history failed", "error", err)
	}

	ok, err := s.contents.MarkPublished(ctx, c.ID, l.Holder, done)
	if err != nil {
		return OutcomeError, err
	}
	if !ok {
		log.Warn("lease lost before recording publish; history guard will retire the item")
		return OutcomeContended, nil
	}
	log.Info("content published", "outcome", OutcomePublished, "external_id", res.ExternalID)
	return OutcomePublished, nil
}

func (s *dispatchService) handleFailure(ctx context.Context, c *models.Content, l *lease.Lease, pubErr error) (Outcome, error) {
	kind := publisher.Classify(pubErr)
	decision := retry.Decide(s.opts.Retry, kind, c.RetryCount)
	log := slog.With("content_id", c.ID, "holder", l.Holder, "kind", kind, "retry_count", c.RetryCount)

	if decision.Retry {
		next := s.opts.Clock().Add(decision.Delay)
		ok, err := s.contents.MarkRetryPending(ctx, c.ID, l.Holder, next, pubErr.Error())
		if err != nil {
			return OutcomeError, err
		}
		if !ok {
			return OutcomeContended, nil
		}
		log.Info("publish failed, retry scheduled", "outcome", OutcomeRetryScheduled, "next_retry_at", next, "error", pubErr)
		if s.enqueuer != nil {
			if err := s.enqueuer.EnqueueDispatch(ctx, c.ID, next); err != nil {
				log.Warn("enqueue retry failed, periodic pass will pick it up", "error", err)
			}
		}
		return OutcomeRetryScheduled, nil
	}

	if _, err := s.history.Create(ctx, &models.UploadHistory{
		ContentID:    c.ID,
		ProfileID:    deref(c.AssignedProfileID),
		UserID:       c.UserID,
		Status:       models.UploadStatusFailed,
		ErrorMessage: pubErr.Error(),
		UploadedAt:   s.opts.Clock(),
	}); err != nil {
		log.Error("recording upload history failed", "error", err)
	}

	ok, err := s.contents.MarkFailed(ctx, c.ID, l.Holder, pubErr.Error())
	if err != nil {
		return OutcomeError, err
	}
	if !ok {
		return OutcomeContended, nil
	}
	log.Warn("publish failed permanently", "outcome", OutcomeFailed, "error", pubErr)
	return OutcomeFailed, nil
}

// buildRequest gathers what the publish call needs. Missing configuration
// is a rejected publish; an unreadable blob is a transport failure.
func (s *dispatchService) buildRequest(ctx context.Context, c *models.Content) (*publisher.Request, error) {
	var profile *models.Profile
	if c.AssignedProfileID != nil {
		p, err := s.profiles.GetByID(ctx, *c.AssignedProfileID)
		if err != nil {
			return nil, err
		}
		profile = p
	}
	if profile == nil {
		return nil, &publisher.PublishError{Kind: retry.KindRejected, Message: "assigned profile no longer exists"}
	}

	slotPlatform := ""
	if c.ScheduledSlotID != nil {
		slot, err := s.slots.GetByID(ctx, *c.ScheduledSlotID)
		if err != nil {
			return nil, err
		}
		if slot != nil {
			slotPlatform = slot.Platform
		}
	}

	platform, ok := scheduling.EffectivePlatform(c.Platform, slotPlatform, profile.Platform)
	if !ok {
		return nil, &publisher.PublishError{Kind: retry.KindRejected, Message: "no platform resolvable for content"}
	}

	payload, err := s.blobs.Get(ctx, c.FileKey)
	if err != nil {
		return nil, &publisher.PublishError{Kind: retry.KindTransport, Err: fmt.Errorf("read blob %s: %w", c.FileKey, err)}
	}

	return &publisher.Request{
		ContentID:     c.ID,
		Platform:      platform,
		Title:         titleFor(c),
		Caption:       c.Caption,
		Description:   c.Description,
		TargetAccount: profile.TargetAccount(),
		FileName:      c.FileName,
		Payload:       payload,
		RefreshToken:  profile.RefreshToken,
	}, nil
}

func (s *dispatchService) release(l *lease.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.leases.Release(ctx, l); err != nil && !errors.Is(err, lease.ErrNotHeld) {
		slog.Error("lease release failed", "content_id", l.ContentID, "holder", l.Holder, "error", err)
	}
}

func titleFor(c *models.Content) string {
	if c.Caption != "" {
		return c.Caption
	}
	return strings.TrimSuffix(c.FileName, filepath.Ext(c.FileName))
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
