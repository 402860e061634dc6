package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/avataralabs/queuelabs-sub000/internal/repository"
	"github.com/avataralabs/queuelabs-sub000/pkg/utils"
)

type ProfileInput struct {
	Name              string   `json:"name"`
	Platform          string   `json:"platform"`
	ConnectedAccounts []string `json:"connected_accounts"`
	RefreshToken      string   `json:"refresh_token"`
}

type ProfileService interface {
	Create(ctx context.Context, userID int64, in *ProfileInput) (*models.Profile, error)
	List(ctx context.Context, userID int64) ([]*models.Profile, error)
	Delete(ctx context.Context, userID, profileID int64) error
}

type profileService struct {
	profiles  repository.ProfileRepository
	secretKey string
}

func NewProfileService(profiles repository.ProfileRepository, secretKey string) ProfileService {
	return &profileService{profiles: profiles, secretKey: secretKey}
}

func (s *profileService) Create(ctx context.Context, userID int64, in *ProfileInput) (*models.Profile, error) {
	if in == nil || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: profile name is required", ErrInvalidInput)
	}
	if in.Platform != "" && !models.IsKnownPlatform(in.Platform) {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, in.Platform)
	}

	p := &models.Profile{
		UserID:            userID,
		Name:              strings.TrimSpace(in.Name),
		Platform:          in.Platform,
		ConnectedAccounts: in.ConnectedAccounts,
	}
	if in.RefreshToken != "" {
		sealed, err := utils.Encrypt([]byte(in.RefreshToken), []byte(s.secretKey))
		if err != nil {
			return nil, fmt.Errorf("error encrypting refresh token: %w", err)
		}
		p.RefreshToken = sealed
	}

	id, err := s.profiles.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("error creating profile: %w", err)
	}
	return s.profiles.GetByID(ctx, id)
}

func (s *profileService) List(ctx context.Context, userID int64) ([]*models.Profile, error) {
	return s.profiles.ListByUserID(ctx, userID)
}

func (s *profileService) Delete(ctx context.Context, userID, profileID int64) error {
	ok, err := s.profiles.CheckByUserID(ctx, profileID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("profile %d: %w", profileID, ErrNotFound)
	}
	return s.profiles.Remove(ctx, profileID)
}
