package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/repository"
	"github.com/avataralabs/queuelabs-sub000/internal/scheduling"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var allowedVideoTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "webm": {}, "mkv": {}, "m4v": {},
}

type UploadTarget struct {
	ProfileID int64  `json:"profile_id"`
	Platform  string `json:"platform"`
}

type UploadInput struct {
	UserID      int64
	FileName    string
	Caption     string
	Description string
	Data        []byte
	Targets     []UploadTarget
}

type TargetResult struct {
	ProfileID  int64       `json:"profile_id"`
	Platform   string      `json:"platform"`
	ContentID  int64       `json:"content_id,omitempty"`
	Assignment *Assignment `json:"assignment,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type ContentService interface {
	Upload(ctx context.Context, in *UploadInput) ([]*TargetResult, error)
	AssignNextSlot(ctx context.Context, req ReserveRequest) (*Assignment, error)
	Get(ctx context.Context, userID, contentID int64) (*models.Content, error)
	List(ctx context.Context, userID int64, status string) ([]*models.Content, error)
	Unschedule(ctx context.Context, userID, contentID int64) error
	Trash(ctx context.Context, userID, contentID int64) error
	Restore(ctx context.Context, userID, contentID int64) error
	Delete(ctx context.Context, userID, contentID int64) error
	Reassign(ctx context.Context, userID, contentID int64) (*Assignment, error)
	History(ctx context.Context, userID int64, limit int) ([]*models.UploadHistory, error)
}

type contentService struct {
	contents repository.ContentRepository
	slots    repository.SlotRepository
	profiles repository.ProfileRepository
	history  repository.UploadHistoryRepository
	assign   AssignService
	blobs    BlobStore
	clock    func() time.Time
}

func NewContentService(
	contents repository.ContentRepository,
	slots repository.SlotRepository,
	profiles repository.ProfileRepository,
	history repository.UploadHistoryRepository,
	assign AssignService,
	blobs BlobStore,
	clock func() time.Time) ContentService {
	if clock == nil {
		clock = time.Now
	}
	return &contentService{
		contents: contents,
		slots:    slots,
		profiles: profiles,
		history:  history,
		assign:   assign,
		blobs:    blobs,
		clock:    clock,
	}
}

// Upload stores the video once, creates a pending row per target in caller
// order and reserves them as one batch. Rows whose reservation fails are
// deleted; the blob goes too when no row survives.
func (s *contentService) Upload(ctx context.Context, in *UploadInput) ([]*TargetResult, error) {
	if in == nil || in.UserID == 0 {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: no file provided", ErrInvalidInput)
	}

	kind, err := filetype.Match(in.Data)
	if err != nil || kind == filetype.Unknown {
		return nil, fmt.Errorf("%w: unsupported file type", ErrInvalidInput)
	}
	if _, ok := allowedVideoTypes[kind.Extension]; !ok {
		return nil, fmt.Errorf("%w: file type %s is not a supported video", ErrInvalidInput, kind.Extension)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	key := "videos/" + id + "." + kind.Extension
	if err := s.blobs.Put(ctx, key, in.Data, kind.MIME.Value); err != nil {
		return nil, fmt.Errorf("error uploading file: %w", err)
	}

	base := models.Content{
		UserID:      in.UserID,
		FileName:    in.FileName,
		FileKey:     key,
		FileURL:     s.blobs.URL(key),
		Caption:     in.Caption,
		Description: in.Description,
		Status:      models.ContentStatusPending,
	}

	if len(in.Targets) == 0 {
		contentID, err := s.contents.Create(ctx, nil, &base)
		if err != nil {
			s.deleteBlob(key)
			return nil, fmt.Errorf("error creating content: %w", err)
		}
		return []*TargetResult{{ContentID: contentID}}, nil
	}

	results := make([]*TargetResult, len(in.Targets))
	var reqs []ReserveRequest
	var reqIndex []int
	for i, target := range in.Targets {
		results[i] = &TargetResult{ProfileID: target.ProfileID, Platform: target.Platform}

		row := base
		row.Platform = target.Platform
		contentID, err := s.contents.Create(ctx, nil, &row)
		if err != nil {
			results[i].Error = "error creating content"
			slog.Error("create content row failed", "profile_id", target.ProfileID, "error", err)
			continue
		}
		results[i].ContentID = contentID
		reqs = append(reqs, ReserveRequest{
			UserID:    in.UserID,
			ProfileID: target.ProfileID,
			Platform:  target.Platform,
			ContentID: contentID,
		})
		reqIndex = append(reqIndex, i)
	}

	survivors := 0
	for j, br := range s.assign.AssignBatch(ctx, reqs) {
		res := results[reqIndex[j]]
		if br.Err != nil {
			res.Error = br.Err.Error()
			s.discardRow(ctx, res.ContentID)
			res.ContentID = 0
			continue
		}
		res.Assignment = br.Assignment
		survivors++
	}

	if survivors == 0 {
		s.deleteBlob(key)
	}
	return results, nil
}

// AssignNextSlot reserves the next slot for an existing pending row. When
// the reservation cannot materialize the row is deleted, and its blob too if
// nothing else references it.
func (s *contentService) AssignNextSlot(ctx context.Context, req ReserveRequest) (*Assignment, error) {
	a, err := s.assign.Reserve(ctx, req)
	if err == nil {
		return a, nil
	}
	if (IsRollbackError(err) || errors.Is(err, ErrInvalidInput)) && !isMissingContent(err) {
		s.discard(ctx, req.UserID, req.ContentID)
	}
	return nil, err
}

func isMissingContent(err error) bool {
	return errors.Is(err, ErrContentNotFound)
}

// discard drops a provisional pending row owned by userID. Rows in any
// other state, or owned by someone else, are left alone.
func (s *contentService) discard(ctx context.Context, userID, contentID int64) {
	if contentID == 0 {
		return
	}
	c, err := s.contents.GetByID(ctx, contentID)
	if err != nil || c == nil || c.Status != models.ContentStatusPending {
		return
	}
	if userID != 0 && c.UserID != userID {
		return
	}
	s.discardRow(ctx, contentID)
	s.deleteOrphanBlob(ctx, c.FileKey)
}

func (s *contentService) discardRow(ctx context.Context, contentID int64) {
	if contentID == 0 {
		return
	}
	if err := s.contents.Remove(ctx, contentID); err != nil {
		slog.Error("orphan cleanup failed", "content_id", contentID, "error", err)
		return
	}
	slog.Info("discarded provisional content", "content_id", contentID)
}

func (s *contentService) deleteOrphanBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	n, err := s.contents.CountByFileKey(ctx, key)
	if err != nil || n > 0 {
		return
	}
	s.deleteBlob(key)
}

func (s *contentService) deleteBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Error("blob cleanup failed", "key", key, "error", err)
	}
}

// owned loads a content row and checks it belongs to userID.
func (s *contentService) owned(ctx context.Context, userID, contentID int64) (*models.Content, error) {
	if userID == 0 || contentID == 0 {
		return nil, fmt.Errorf("%w: user and content id are required", ErrInvalidInput)
	}
	c, err := s.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.UserID != userID {
		return nil, fmt.Errorf("content %d: %w", contentID, ErrContentNotFound)
	}
	return c, nil
}

func (s *contentService) Get(ctx context.Context, userID, contentID int64) (*models.Content, error) {
	return s.owned(ctx, userID, contentID)
}

func (s *contentService) List(ctx context.Context, userID int64, status string) ([]*models.Content, error) {
	if status != "" && !models.IsValidContentStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.contents.ListByUserID(ctx, userID, status)
}

func (s *contentService) Unschedule(ctx context.Context, userID, contentID int64) error {
	if _, err := s.owned(ctx, userID, contentID); err != nil {
		return err
	}
	return s.transition(s.contents.Unschedule(ctx, contentID))
}

func (s *contentService) Trash(ctx context.Context, userID, contentID int64) error {
	if _, err := s.owned(ctx, userID, contentID); err != nil {
		return err
	}
	return s.transition(s.contents.MoveToTrash(ctx, contentID, s.clock()))
}

func (s *contentService) Restore(ctx context.Context, userID, contentID int64) error {
	if _, err := s.owned(ctx, userID, contentID); err != nil {
		return err
	}
	return s.transition(s.contents.Restore(ctx, contentID))
}

// Delete permanently removes a trashed row.
func (s *contentService) Delete(ctx context.Context, userID, contentID int64) error {
	c, err := s.owned(ctx, userID, contentID)
	if err != nil {
		return err
	}
	if c.Status != models.ContentStatusRemoved {
		return fmt.Errorf("content %d must be in trash before permanent delete: %w", contentID, ErrInvalidState)
	}
	if err := s.contents.Remove(ctx, contentID); err != nil {
		return fmt.Errorf("error removing content: %w", err)
	}
	s.deleteOrphanBlob(ctx, c.FileKey)
	return nil
}

// Reassign moves a failed item back to pending and reserves the next slot on
// the same profile and platform.
func (s *contentService) Reassign(ctx context.Context, userID, contentID int64) (*Assignment, error) {
	c, err := s.owned(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ContentStatusFailed {
		return nil, fmt.Errorf("content %d is %s: %w", contentID, c.Status, ErrInvalidState)
	}
	if c.AssignedProfileID == nil {
		return nil, fmt.Errorf("content %d has no profile to reassign to: %w", contentID, ErrInvalidState)
	}

	profile, err := s.profiles.GetByID(ctx, *c.AssignedProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("profile %d: %w", *c.AssignedProfileID, ErrNotFound)
	}
	slotPlatform := ""
	if c.ScheduledSlotID != nil {
		if slot, err := s.slots.GetByID(ctx, *c.ScheduledSlotID); err == nil && slot != nil {
			slotPlatform = slot.Platform
		}
	}
	platform, ok := scheduling.EffectivePlatform(c.Platform, slotPlatform, profile.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: content %d has no platform", ErrInvalidInput, contentID)
	}

	if err := s.transition(s.contents.Unschedule(ctx, contentID)); err != nil {
		return nil, err
	}
	a, err := s.assign.Reserve(ctx, ReserveRequest{
		UserID:    userID,
		ProfileID: profile.ID,
		Platform:  platform,
		ContentID: contentID,
	})
	if err != nil {
		// Put the row back so it can be reassigned later.
		if _, rerr := s.contents.RevertToFailed(ctx, contentID, profile.ID, c.ScheduledSlotID, c.LastError); rerr != nil {
			slog.Error("revert after failed reassign", "content_id", contentID, "error", rerr)
		}
		return nil, err
	}
	return a, nil
}

func (s *contentService) History(ctx context.Context, userID int64, limit int) ([]*models.UploadHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.history.ListByUserID(ctx, userID, limit)
}

func (s *contentService) transition(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}
