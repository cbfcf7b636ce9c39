package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"slate/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpsertFromTelegram finds the user bound to telegramID or creates one with
// the given defaults.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, defaults model.User) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = defaults
		user.ID = ""
		user.TelegramID = &telegramID
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound("find user", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, notFound("find user", err)
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateSettings persists timezone and notification times.
func (r *UserRepository) UpdateSettings(ctx context.Context, user *model.User) error {
	updates := map[string]interface{}{
		"timezone":                  user.Timezone,
		"morning_notification_time": user.MorningNotificationTime,
		"evening_notification_time": user.EveningNotificationTime,
	}
	if err := r.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("update user settings: %w", err)
	}
	return nil
}

// MarkGenerated advances last_generated_date; it never moves backwards. It
// reports whether the stored value changed and leaves user untouched, so the
// caller applies the marker only after its transaction commits.
func (r *UserRepository) MarkGenerated(ctx context.Context, user *model.User, date model.Date) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND (last_generated_date IS NULL OR last_generated_date < ?)", user.ID, date).
		Update("last_generated_date", date)
	if res.Error != nil {
		return false, fmt.Errorf("mark generated: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkClosed advances last_closed_date the same way MarkGenerated does.
func (r *UserRepository) MarkClosed(ctx context.Context, user *model.User, date model.Date) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND (last_closed_date IS NULL OR last_closed_date < ?)", user.ID, date).
		Update("last_closed_date", date)
	if res.Error != nil {
		return false, fmt.Errorf("mark closed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
