package services

import (
	"context"
	"errors"
	"fmt"

	"meetup-app/internal/cache"
	"meetup-app/internal/database"
	"meetup-app/internal/models"
	"meetup-app/pkg/logger"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrOffline   = errors.New("user offline")
)

const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)

// RoomState is the live view of rooms and presence held by the gateway.
type RoomState interface {
	Participants(ctx context.Context, roomID string) ([]string, error)
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
	RecentMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
	Presence(ctx context.Context, userID string) (*models.PresenceSnapshot, error)
}

type RoomService struct {
	rooms        RoomState
	archive      database.MessageRepository
	historyLimit int
}

// NewRoomService builds the read side of the realtime layer. archive may be
// nil, in which case history comes from the ephemeral store only.
func NewRoomService(rooms RoomState, archive database.MessageRepository, historyLimit int) *RoomService {
	return &RoomService{rooms: rooms, archive: archive, historyLimit: historyLimit}
}

func (s *RoomService) GetParticipants(ctx context.Context, roomID, userID string) (*models.ParticipantsResponse, error) {
	if err := s.checkAccess(ctx, roomID, userID); err != nil {
		return nil, err
	}

	participants, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return &models.ParticipantsResponse{
		RoomID:       roomID,
		Participants: participants,
		Count:        len(participants),
	}, nil
}

// GetHistory returns the most recent messages of a room, oldest first. The
// ephemeral store is read first; the archive is consulted when the store is
// empty or unreachable.
func (s *RoomService) GetHistory(ctx context.Context, roomID, userID string, limit int) (*models.HistoryResponse, error) {
	if err := s.checkAccess(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	messages, err := s.rooms.RecentMessages(ctx, roomID, limit)
	if err == nil && len(messages) > 0 {
		return &models.HistoryResponse{RoomID: roomID, Messages: messages, Source: SourceCache}, nil
	}
	if err != nil {
		if s.archive == nil {
			return nil, fmt.Errorf("load history for room %s: %w", roomID, err)
		}
		logger.Warn("History store unavailable for room %s, falling back to database: %v", roomID, err)
	}

	if s.archive == nil {
		return &models.HistoryResponse{RoomID: roomID, Messages: []*models.Message{}, Source: SourceCache}, nil
	}

	messages, err = s.archive.LoadRecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("load archived history for room %s: %w", roomID, err)
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return &models.HistoryResponse{RoomID: roomID, Messages: messages, Source: SourceDatabase}, nil
}

// GetPresence returns ErrOffline when the user has no live snapshot.
func (s *RoomService) GetPresence(ctx context.Context, userID string) (*models.PresenceSnapshot, error) {
	snap, err := s.rooms.Presence(ctx, userID)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrOffline
	}
	return snap, err
}

func (s *RoomService) checkAccess(ctx context.Context, roomID, userID string) error {
	ok, err := s.rooms.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a participant of room %s", ErrForbidden, roomID)
	}
	return nil
}
