package repository

import (
	"context"
	"fmt"

	"github.com/wnt/soltrader/internal/models"
	"gorm.io/gorm"
)

// UserRepository persists User and Preferences rows.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate looks up a user by its caller-supplied external ID,
// creating one with default preferences on first sight.
func (r *UserRepository) GetOrCreate(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).
		Preload("Preferences").First(&user).Error
	if err == nil {
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("repository: lookup user: %w", err)
	}

	user = models.User{
		ExternalID: externalID,
		Active:     true,
	}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("repository: create user: %w", err)
	}

	prefs := models.Preferences{UserID: user.ID}
	if err := r.db.WithContext(ctx).Create(&prefs).Error; err != nil {
		return nil, fmt.Errorf("repository: create default preferences: %w", err)
	}
	user.Preferences = prefs
	return &user, nil
}

// GetByID fetches a user and its preferences by primary key.
func (r *UserRepository) GetByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Preload("Preferences").Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("repository: get user: %w", err)
	}
	return &user, nil
}

// ListActive returns every user the scheduler should consider scanning.
func (r *UserRepository) ListActive(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Preload("Preferences").Where("active = ?", true).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("repository: list active users: %w", err)
	}
	return users, nil
}

// UpdatePreferences overwrites a user's preference row.
func (r *UserRepository) UpdatePreferences(ctx context.Context, prefs *models.Preferences) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", prefs.UserID).Save(prefs).Error; err != nil {
		return fmt.Errorf("repository: update preferences: %w", err)
	}
	return nil
}
