package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/repository"
)

type SlotService interface {
	Create(ctx context.Context, userID int64, slot *models.ScheduleSlot) (*models.ScheduleSlot, error)
	Update(ctx context.Context, userID int64, slot *models.ScheduleSlot) (*models.ScheduleSlot, error)
	SetActive(ctx context.Context, userID, slotID int64, active bool) error
	Delete(ctx context.Context, userID, slotID int64) (int64, error)
	List(ctx context.Context, userID, profileID int64, platform string) ([]*models.ScheduleSlot, error)
}

type slotService struct {
	slots    repository.SlotRepository
	profiles repository.ProfileRepository
}

func NewSlotService(slots repository.SlotRepository, profiles repository.ProfileRepository) SlotService {
	return &slotService{slots: slots, profiles: profiles}
}

func normalizeSlot(slot *models.ScheduleSlot) error {
	if slot.Type == models.SlotTypeWeekly {
		seen := make(map[int64]struct{}, len(slot.WeekDays))
		days := make([]int64, 0, len(slot.WeekDays))
		for _, d := range slot.WeekDays {
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		slot.WeekDays = days
	} else {
		slot.WeekDays = nil
	}
	if err := slot.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *slotService) Create(ctx context.Context, userID int64, slot *models.ScheduleSlot) (*models.ScheduleSlot, error) {
	if slot == nil {
		return nil, fmt.Errorf("%w: slot is required", ErrInvalidInput)
	}
	ok, err := s.profiles.CheckByUserID(ctx, slot.ProfileID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("profile %d: %w", slot.ProfileID, ErrNotFound)
	}

	if err := normalizeSlot(slot); err != nil {
		return nil, err
	}
	slot.UserID = userID

	id, err := s.slots.Create(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("error creating slot: %w", err)
	}
	return s.slots.GetByID(ctx, id)
}

func (s *slotService) owned(ctx context.Context, userID, slotID int64) (*models.ScheduleSlot, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot == nil || slot.UserID != userID {
		return nil, fmt.Errorf("slot %d: %w", slotID, ErrNotFound)
	}
	return slot, nil
}

// Update edits time and recurrence. Existing reservations keep their
// instants; only future planning sees the change.
func (s *slotService) Update(ctx context.Context, userID int64, slot *models.ScheduleSlot) (*models.ScheduleSlot, error) {
	if slot == nil {
		return nil, fmt.Errorf("%w: slot is required", ErrInvalidInput)
	}
	current, err := s.owned(ctx, userID, slot.ID)
	if err != nil {
		return nil, err
	}

	slot.ProfileID = current.ProfileID
	slot.UserID = current.UserID
	if err := normalizeSlot(slot); err != nil {
		return nil, err
	}
	if err := s.slots.Update(ctx, slot); err != nil {
		return nil, fmt.Errorf("error updating slot: %w", err)
	}
	return s.slots.GetByID(ctx, slot.ID)
}

func (s *slotService) SetActive(ctx context.Context, userID, slotID int64, active bool) error {
	if _, err := s.owned(ctx, userID, slotID); err != nil {
		return err
	}
	return s.slots.SetActive(ctx, slotID, active)
}

// Delete removes the slot and returns its waiting reservations to pending.
func (s *slotService) Delete(ctx context.Context, userID, slotID int64) (int64, error) {
	if _, err := s.owned(ctx, userID, slotID); err != nil {
		return 0, err
	}
	released, err := s.slots.Remove(ctx, slotID)
	if err != nil {
		return 0, fmt.Errorf("error removing slot: %w", err)
	}
	if released > 0 {
		slog.Info("slot deleted, reservations returned to pending", "slot_id", slotID, "released", released)
	}
	return released, nil
}

func (s *slotService) List(ctx context.Context, userID, profileID int64, platform string) ([]*models.ScheduleSlot, error) {
	if profileID == 0 {
		return s.slots.ListByUserID(ctx, userID)
	}
	ok, err := s.profiles.CheckByUserID(ctx, profileID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
	}
	return s.slots.ListByProfile(ctx, profileID, platform)
}
