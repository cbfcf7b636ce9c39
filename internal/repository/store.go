package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"slate/internal/model"
)

// Store groups the repositories that share one connection or transaction.
type Store struct {
	db         *gorm.DB
	Users      *UserRepository
	Tasks      *TaskRepository
	DailyTasks *DailyTaskRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:         db,
		Users:      NewUserRepository(db),
		Tasks:      NewTaskRepository(db),
		DailyTasks: NewDailyTaskRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction. Any
// error from fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// notFound translates gorm's sentinel into model.ErrNotFound.
func notFound(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
