package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want InboundEvent
	}{
		{
			name: "join",
			raw:  `{"event":"join","data":{"roomId":"r1"}}`,
			want: InboundEvent{Type: EventJoin, RoomID: "r1"},
		},
		{
			name: "leave",
			raw:  `{"event":"leave","data":{"roomId":"r1"}}`,
			want: InboundEvent{Type: EventLeave, RoomID: "r1"},
		},
		{
			name: "message",
			raw:  `{"event":"message","data":{"roomId":"r1","content":"hi","type":"text"}}`,
			want: InboundEvent{Type: EventMessage, RoomID: "r1", Content: "hi", MessageType: MessageKindText},
		},
		{
			name: "typing",
			raw:  `{"event":"typing","data":{"roomId":"r1","isTyping":true}}`,
			want: InboundEvent{Type: EventTyping, RoomID: "r1", IsTyping: true},
		},
		{
			name: "presence with last seen",
			raw:  `{"event":"presence","data":{"status":"away","lastSeen":"2026-03-01T12:00:00Z"}}`,
			want: InboundEvent{Type: EventPresence, Status: "away", LastSeen: &seen},
		},
		{
			name: "join without data",
			raw:  `{"event":"join"}`,
			want: InboundEvent{Type: EventJoin},
		},
		{
			name: "unknown event is passed through",
			raw:  `{"event":"dance","data":{}}`,
			want: InboundEvent{Type: "dance"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.raw))
			require.NoError(t, err)
			if tt.want.LastSeen != nil {
				require.NotNil(t, got.LastSeen)
				assert.True(t, tt.want.LastSeen.Equal(*got.LastSeen))
				got.LastSeen, tt.want.LastSeen = nil, nil
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInboundMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"data":{"roomId":"r1"}}`,
		`{"event":"message","data":{"roomId":42}}`,
	} {
		_, err := DecodeInbound([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}

func TestEncodeWrapsPayload(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err := Encode(EventUserJoined, MembershipEvent{RoomID: "r1", UserID: "u1", Timestamp: ts})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventUserJoined, env.Event)
	assert.JSONEq(t, `{"roomId":"r1","userId":"u1","timestamp":"2026-03-01T12:00:00Z"}`, string(env.Data))
}

func TestMessageKindValid(t *testing.T) {
	assert.True(t, MessageKindText.Valid())
	assert.True(t, MessageKindImage.Valid())
	assert.True(t, MessageKindLocation.Valid())
	assert.False(t, MessageKind("video").Valid())
	assert.False(t, MessageKind("").Valid())
}
