package profiles

import (
	"context"
	"errors"
	"strings"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

// Directory sort and filter whitelists.
var (
	SortFields   = []string{"email", "created_at", "last_login_at"}
	FilterFields = []string{"email", "is_active", "is_locked", "email_confirmed"}
)

type ProfileService struct {
	users repository.UserRepository
}

func NewProfileService(users repository.UserRepository) *ProfileService {
	return &ProfileService{users: users}
}

func (s *ProfileService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// UpdateProfile applies the fields present in req to the user's profile.
func (s *ProfileService) UpdateProfile(ctx context.Context, id uuid.UUID, req dto.ProfileUpdateRequest) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := user.Profile
	if profile == nil {
		profile = &models.UserProfile{UserID: user.ID}
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&profile.DisplayName, req.DisplayName)
	set(&profile.Picture, req.Picture)
	set(&profile.Gender, req.Gender)
	set(&profile.Location, req.Location)
	set(&profile.Website, req.Website)
	set(&profile.Bio, req.Bio)

	if err := s.users.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}
	user.Profile = profile
	return user, nil
}

func (s *ProfileService) List(ctx context.Context, opts repository.ListOptions) ([]models.User, int64, error) {
	return s.users.List(ctx, opts)
}
