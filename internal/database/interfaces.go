package database

import (
	"context"
	"errors"

	"meetup-app/internal/models"
)

var ErrNotFound = errors.New("not found")

type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	LoadRecentMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
}

type Database interface {
	UserRepository
	MessageRepository
	Close() error
}
