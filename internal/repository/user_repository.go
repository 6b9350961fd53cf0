package repository

import (
	"context"
	"strings"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sortable user columns; anything else falls back to created_at
var userSortColumns = map[string]string{
	"email":         "email",
	"created_at":    "created_at",
	"last_login_at": "last_login_at",
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts the user and its profile in one transaction.
func (r *userRepository) Create(ctx context.Context, user *models.User, profile *models.UserProfile) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return err
		}
		if profile == nil {
			profile = &models.UserProfile{}
		}
		profile.UserID = user.ID
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		user.Profile = profile
		return nil
	})
	return translate(err, "failed to create user %s", user.Email)
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Profile").First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "failed to find user by id %s", id)
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Profile").
		Where("LOWER(email) = ?", strings.ToLower(email)).
		First(&user).Error
	if err != nil {
		return nil, translate(err, "failed to find user by email %s", email)
	}
	return &user, nil
}

func (r *userRepository) FindByLogin(ctx context.Context, provider, key string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Profile").
		Joins("JOIN user_logins ON user_logins.user_id = users.id").
		Where("user_logins.name = ? AND user_logins.key = ?", provider, key).
		First(&user).Error
	if err != nil {
		return nil, translate(err, "failed to find user by %s login", provider)
	}
	return &user, nil
}

func (r *userRepository) AddLogin(ctx context.Context, login *models.UserLogin) error {
	err := r.db.WithContext(ctx).Create(login).Error
	return translate(err, "failed to link %s login", login.Name)
}

// Update saves the user's own columns; the profile is left alone.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error
	return translate(err, "failed to update user %s", user.ID)
}

func (r *userRepository) UpdateProfile(ctx context.Context, profile *models.UserProfile) error {
	err := r.db.WithContext(ctx).Save(profile).Error
	return translate(err, "failed to update profile of user %s", profile.UserID)
}

func (r *userRepository) List(ctx context.Context, opts ListOptions) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})

	for key, val := range opts.Filters {
		switch key {
		case "email":
			q = q.Where("email ILIKE ?", "%"+val+"%")
		case "is_active", "is_locked", "email_confirmed":
			q = q.Where(key+" = ?", val == "true" || val == "1")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "failed to count users")
	}

	col, ok := userSortColumns[opts.SortField]
	if !ok {
		col = "created_at"
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: opts.SortDesc})
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit).Offset(opts.Offset)
	}

	var users []models.User
	if err := q.Preload("Profile").Find(&users).Error; err != nil {
		return nil, 0, translate(err, "failed to list users")
	}
	return users, total, nil
}
