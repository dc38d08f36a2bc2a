package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectory_JoinIsIdempotent(t *testing.T) {
	d := NewDirectory()

	assert.True(t, d.Join("r1", "u1"))
	assert.False(t, d.Join("r1", "u1"))
	assert.True(t, d.Join("r1", "u2"))

	assert.Equal(t, []string{"u1", "u2"}, d.Participants("r1"))
	assert.True(t, d.IsParticipant("r1", "u1"))
	assert.Equal(t, []string{"r1"}, d.RoomsOf("u1"))
}

func TestDirectory_LeaveDropsEmptyRooms(t *testing.T) {
	d := NewDirectory()
	d.Join("r1", "u1")
	d.Join("r2", "u1")

	assert.True(t, d.Leave("r1", "u1"))
	assert.False(t, d.Leave("r1", "u1"))
	assert.Equal(t, 1, d.Len())
	assert.Empty(t, d.Participants("r1"))
	assert.Equal(t, []string{"r2"}, d.RoomsOf("u1"))

	d.Leave("r2", "u1")
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.RoomsOf("u1"))
}

func TestDirectory_UnknownRoomIsEmpty(t *testing.T) {
	d := NewDirectory()

	assert.NotNil(t, d.Participants("nowhere"))
	assert.Empty(t, d.Participants("nowhere"))
	assert.False(t, d.IsParticipant("nowhere", "u1"))
	assert.False(t, d.Leave("nowhere", "u1"))
}

func TestDirectory_ParticipantsIsSnapshot(t *testing.T) {
	d := NewDirectory()
	d.Join("r1", "u1")

	snap := d.Participants("r1")
	snap[0] = "mutated"

	assert.Equal(t, []string{"u1"}, d.Participants("r1"))
}
