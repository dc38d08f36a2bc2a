package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"meetup-app/internal/cache"
	"meetup-app/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRooms struct {
	members   map[string][]string
	recent    []*models.Message
	recentErr error
	presence  map[string]*models.PresenceSnapshot
	lastLimit int
}

func (f *fakeRooms) Participants(_ context.Context, roomID string) ([]string, error) {
	if m, ok := f.members[roomID]; ok {
		return m, nil
	}
	return []string{}, nil
}

func (f *fakeRooms) IsParticipant(_ context.Context, roomID, userID string) (bool, error) {
	for _, m := range f.members[roomID] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRooms) RecentMessages(_ context.Context, _ string, limit int) ([]*models.Message, error) {
	f.lastLimit = limit
	return f.recent, f.recentErr
}

func (f *fakeRooms) Presence(_ context.Context, userID string) (*models.PresenceSnapshot, error) {
	if snap, ok := f.presence[userID]; ok {
		return snap, nil
	}
	return nil, cache.ErrMiss
}

type fakeArchive struct {
	messages []*models.Message
	err      error
	calls    int
}

func (f *fakeArchive) SaveMessage(context.Context, *models.Message) error { return nil }

func (f *fakeArchive) LoadRecentMessages(_ context.Context, _ string, _ int) ([]*models.Message, error) {
	f.calls++
	return f.messages, f.err
}

func msg(id string) *models.Message {
	return &models.Message{ID: id, RoomID: "r1", SenderID: "u1", Content: id, Type: models.MessageKindText}
}

func TestRoomService_ParticipantsRequireMembership(t *testing.T) {
	rooms := &fakeRooms{members: map[string][]string{"r1": {"u1", "u2"}}}
	svc := NewRoomService(rooms, nil, 50)
	ctx := context.Background()

	resp, err := svc.GetParticipants(ctx, "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.RoomID)
	assert.Equal(t, []string{"u1", "u2"}, resp.Participants)
	assert.Equal(t, 2, resp.Count)

	_, err = svc.GetParticipants(ctx, "r1", "u3")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRoomService_HistoryPrefersStore(t *testing.T) {
	rooms := &fakeRooms{
		members: map[string][]string{"r1": {"u1"}},
		recent:  []*models.Message{msg("a"), msg("b")},
	}
	archive := &fakeArchive{messages: []*models.Message{msg("z")}}
	svc := NewRoomService(rooms, archive, 10)

	resp, err := svc.GetHistory(context.Background(), "r1", "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, resp.Source)
	assert.Len(t, resp.Messages, 2)
	assert.Equal(t, 10, rooms.lastLimit)
	assert.Zero(t, archive.calls)
}

func TestRoomService_HistoryFallsBackToArchive(t *testing.T) {
	archive := &fakeArchive{messages: []*models.Message{msg("z")}}

	for name, rooms := range map[string]*fakeRooms{
		"empty store":       {members: map[string][]string{"r1": {"u1"}}},
		"unreachable store": {members: map[string][]string{"r1": {"u1"}}, recentErr: errors.New("connection refused")},
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewRoomService(rooms, archive, 10)
			resp, err := svc.GetHistory(context.Background(), "r1", "u1", 0)
			require.NoError(t, err)
			assert.Equal(t, SourceDatabase, resp.Source)
			require.Len(t, resp.Messages, 1)
			assert.Equal(t, "z", resp.Messages[0].ID)
		})
	}
}

func TestRoomService_HistoryWithoutArchive(t *testing.T) {
	rooms := &fakeRooms{members: map[string][]string{"r1": {"u1"}}}
	svc := NewRoomService(rooms, nil, 10)

	resp, err := svc.GetHistory(context.Background(), "r1", "u1", 5)
	require.NoError(t, err)
	assert.NotNil(t, resp.Messages)
	assert.Empty(t, resp.Messages)

	rooms.recentErr = errors.New("connection refused")
	_, err = svc.GetHistory(context.Background(), "r1", "u1", 5)
	assert.Error(t, err)

	_, err = svc.GetHistory(context.Background(), "r1", "stranger", 5)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRoomService_Presence(t *testing.T) {
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rooms := &fakeRooms{presence: map[string]*models.PresenceSnapshot{
		"u1": {UserID: "u1", Status: "away", LastSeen: seen},
	}}
	svc := NewRoomService(rooms, nil, 10)

	snap, err := svc.GetPresence(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "away", snap.Status)

	_, err = svc.GetPresence(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrOffline)
}
