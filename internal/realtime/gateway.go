// Package realtime implements the presence and room-messaging layer: the
// connection registry, the room directory and the gateway that dispatches
// inbound events and fans out outbound ones.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"meetup-app/internal/cache"
	"meetup-app/internal/models"
	"meetup-app/pkg/logger"

	"github.com/google/uuid"
)

const (
	// UserChannelPrefix names the implicit per-user channel every connection
	// is subscribed to. Clients cannot join it explicitly.
	UserChannelPrefix = "user:"

	maxRoomIDLength = 128
	maxStatusLength = 64
)

type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (string, error)
}

// MessageArchive keeps a durable copy of room messages.
type MessageArchive interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
}

// Sink delivers encoded frames to one connection. Send must not block; an
// error means the connection can no longer keep up and will be dropped.
type Sink interface {
	Send(payload []byte) error
	Close()
}

type Options struct {
	HistoryLimit     int
	PresenceTTL      time.Duration
	StoreTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageLength int
	PersistQueue     int
}

func DefaultOptions() Options {
	return Options{
		HistoryLimit:     50,
		PresenceTTL:      5 * time.Minute,
		StoreTimeout:     2 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageLength: 4000,
		PersistQueue:     1024,
	}
}

type command struct {
	fn   func()
	done chan struct{}
}

type storeWrite struct {
	desc string
	fn   func(ctx context.Context) error
}

// Gateway owns the Registry and the Directory. Both are only touched from
// the goroutine running Run; exported methods hand closures to that loop and
// wait for them, so effects are visible once a method returns.
type Gateway struct {
	verifier CredentialVerifier
	store    cache.Store
	archive  MessageArchive
	opts     Options

	registry  *Registry
	directory *Directory
	sinks     map[string]Sink
	dropped   set

	commands chan command
	writes   chan storeWrite
	quit     chan struct{}
	stopped  chan struct{}

	now          func() time.Time
	newConnID    func() string
	newMessageID func() string
}

// NewGateway builds a gateway. archive may be nil.
func NewGateway(verifier CredentialVerifier, store cache.Store, archive MessageArchive, opts Options) *Gateway {
	return &Gateway{
		verifier:     verifier,
		store:        store,
		archive:      archive,
		opts:         opts,
		registry:     NewRegistry(),
		directory:    NewDirectory(),
		sinks:        make(map[string]Sink),
		dropped:      make(set),
		commands:     make(chan command),
		writes:       make(chan storeWrite, opts.PersistQueue),
		quit:         make(chan struct{}),
		stopped:      make(chan struct{}),
		now:          func() time.Time { return time.Now().UTC() },
		newConnID:    uuid.NewString,
		newMessageID: newMessageID,
	}
}

// Run processes commands until ctx is cancelled. On exit every connection is
// closed and the pending store writes are flushed in the background; use
// Wait to block on that.
func (g *Gateway) Run(ctx context.Context) {
	go g.persistLoop()

	for {
		select {
		case <-ctx.Done():
			for connID, sink := range g.sinks {
				sink.Close()
				delete(g.sinks, connID)
			}
			logger.Info("Realtime gateway stopped")
			close(g.writes)
			close(g.quit)
			return

		case cmd := <-g.commands:
			cmd.fn()
			g.dropFailed()
			close(cmd.done)
		}
	}
}

// Wait blocks until Run has returned and the store writes are flushed.
func (g *Gateway) Wait(ctx context.Context) error {
	select {
	case <-g.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) do(ctx context.Context, fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case g.commands <- cmd:
	case <-g.quit:
		return ErrGatewayClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cmd.done:
		return nil
	case <-g.quit:
		select {
		case <-cmd.done:
			return nil
		default:
			return ErrGatewayClosed
		}
	}
}

// Authenticate verifies the bearer credential presented during the
// handshake and returns the user id. No connection state is created.
func (g *Gateway) Authenticate(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: missing credential", ErrAuthentication)
	}

	if g.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.HandshakeTimeout)
		defer cancel()
	}

	userID, err := g.verifier.VerifyCredential(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: credential has no identity", ErrAuthentication)
	}
	return userID, nil
}

// Activate registers an authenticated connection and returns its id. The
// connection is subscribed to its user channel from then on.
func (g *Gateway) Activate(ctx context.Context, userID string, sink Sink) (string, error) {
	var (
		connID string
		err    error
	)
	if doErr := g.do(ctx, func() { connID, err = g.activate(userID, sink) }); doErr != nil {
		return "", doErr
	}
	return connID, err
}

// Dispatch handles one inbound event. Client errors are reported to the
// connection as an error event and also returned. Events for connections
// that are not active are ignored.
func (g *Gateway) Dispatch(ctx context.Context, connID string, ev models.InboundEvent) error {
	var err error
	if doErr := g.do(ctx, func() { err = g.handle(connID, ev) }); doErr != nil {
		return doErr
	}
	return err
}

// Reject reports err to an active connection without touching any state.
func (g *Gateway) Reject(ctx context.Context, connID string, err error) error {
	return g.do(ctx, func() {
		if _, ok := g.registry.Lookup(connID); ok {
			g.replyError(connID, err)
		}
	})
}

// Disconnect removes the connection and leaves every room it had joined.
// Unknown connections are ignored.
func (g *Gateway) Disconnect(ctx context.Context, connID string) error {
	return g.do(ctx, func() { g.disconnect(connID) })
}

func (g *Gateway) Participants(ctx context.Context, roomID string) ([]string, error) {
	var out []string
	err := g.do(ctx, func() { out = g.directory.Participants(roomID) })
	return out, err
}

func (g *Gateway) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	var ok bool
	err := g.do(ctx, func() { ok = g.directory.IsParticipant(roomID, userID) })
	return ok, err
}

func (g *Gateway) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	var out []string
	err := g.do(ctx, func() { out = g.directory.RoomsOf(userID) })
	return out, err
}

func (g *Gateway) Connection(ctx context.Context, connID string) (ConnectionRecord, bool, error) {
	var (
		rec ConnectionRecord
		ok  bool
	)
	err := g.do(ctx, func() { rec, ok = g.registry.Lookup(connID) })
	return rec, ok, err
}

func (g *Gateway) ConnectionCount(ctx context.Context) (int, error) {
	var n int
	err := g.do(ctx, func() { n = g.registry.Len() })
	return n, err
}

// RecentMessages reads the room history kept in the ephemeral store, oldest
// first. Entries that fail to decode are skipped.
func (g *Gateway) RecentMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > g.opts.HistoryLimit {
		limit = g.opts.HistoryLimit
	}

	raw, err := g.store.List(ctx, cache.RoomHistoryKey(roomID), limit)
	if err != nil {
		return nil, err
	}

	messages := make([]*models.Message, 0, len(raw))
	for _, entry := range raw {
		msg := &models.Message{}
		if err := json.Unmarshal(entry, msg); err != nil {
			logger.Warn("Skipping corrupt history entry in room %s: %v", roomID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Presence returns the user's last snapshot, or cache.ErrMiss when the user
// has none (offline).
func (g *Gateway) Presence(ctx context.Context, userID string) (*models.PresenceSnapshot, error) {
	raw, err := g.store.Get(ctx, cache.PresenceKey(userID))
	if err != nil {
		return nil, err
	}

	snap := &models.PresenceSnapshot{}
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, fmt.Errorf("decode presence for %s: %w", userID, err)
	}
	return snap, nil
}

// Everything below runs on the event loop.

func (g *Gateway) activate(userID string, sink Sink) (string, error) {
	connID := g.newConnID()
	if _, err := g.registry.Register(connID, userID); err != nil {
		return "", err
	}
	g.sinks[connID] = sink

	if len(g.registry.ConnectionsOf(userID)) == 1 {
		g.savePresence(models.PresenceSnapshot{UserID: userID, Status: models.StatusOnline, LastSeen: g.now()})
	}

	logger.Info("Connection %s active for user %s", connID, userID)
	return connID, nil
}

func (g *Gateway) handle(connID string, ev models.InboundEvent) error {
	rec, ok := g.registry.Lookup(connID)
	if !ok {
		logger.Debug("Ignoring %s event for inactive connection %s", ev.Type, connID)
		return nil
	}

	var err error
	switch ev.Type {
	case models.EventJoin:
		err = g.join(rec, ev.RoomID)
	case models.EventLeave:
		err = g.leave(rec, ev.RoomID)
	case models.EventMessage:
		err = g.message(rec, ev)
	case models.EventTyping:
		err = g.typing(rec, ev.RoomID, ev.IsTyping)
	case models.EventPresence:
		err = g.presence(rec, ev.Status, ev.LastSeen)
	default:
		err = fmt.Errorf("%w: unknown event %q", ErrInvalidMessage, ev.Type)
	}

	if err != nil {
		g.replyError(connID, err)
	}
	return err
}

func validateRoomID(roomID string) error {
	switch {
	case strings.TrimSpace(roomID) == "":
		return fmt.Errorf("%w: room id is required", ErrInvalidRoom)
	case len(roomID) > maxRoomIDLength:
		return fmt.Errorf("%w: room id longer than %d bytes", ErrInvalidRoom, maxRoomIDLength)
	case strings.HasPrefix(roomID, UserChannelPrefix):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidRoom, UserChannelPrefix)
	}
	return nil
}

func (g *Gateway) join(rec ConnectionRecord, roomID string) error {
	if err := validateRoomID(roomID); err != nil {
		return err
	}
	if !g.registry.AddRoom(rec.ID, roomID) {
		return nil
	}

	ev := models.MembershipEvent{RoomID: roomID, UserID: rec.UserID, Timestamp: g.now()}
	if g.directory.Join(roomID, rec.UserID) {
		g.broadcast(roomID, models.EventUserJoined, ev, "")
		logger.Info("User %s joined room %s", rec.UserID, roomID)
	} else {
		// Already present through another connection; only the joiner hears it.
		g.send(rec.ID, models.EventUserJoined, ev)
	}

	g.sendHistory(rec.ID, roomID)
	return nil
}

func (g *Gateway) leave(rec ConnectionRecord, roomID string) error {
	if err := validateRoomID(roomID); err != nil {
		return err
	}
	if !g.registry.RemoveRoom(rec.ID, roomID) {
		return nil
	}

	g.depart(rec.UserID, roomID, rec.ID)
	return nil
}

// depart runs after a connection dropped roomID. The user leaves the
// directory only when none of their other connections still holds the room.
// ackConnID, when set, receives the userLeft event even if nobody else does.
func (g *Gateway) depart(userID, roomID, ackConnID string) {
	ev := models.MembershipEvent{RoomID: roomID, UserID: userID, Timestamp: g.now()}

	if !g.registry.HasMembership(userID, roomID) {
		g.directory.Leave(roomID, userID)
		g.broadcast(roomID, models.EventUserLeft, ev, "")
		logger.Info("User %s left room %s", userID, roomID)
	}
	if ackConnID != "" {
		g.send(ackConnID, models.EventUserLeft, ev)
	}
}

func (g *Gateway) message(rec ConnectionRecord, ev models.InboundEvent) error {
	if !rec.InRoom(ev.RoomID) {
		return fmt.Errorf("%w: %q", ErrNotMember, ev.RoomID)
	}
	if !ev.MessageType.Valid() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidMessage, ev.MessageType)
	}
	if ev.MessageType == models.MessageKindText && strings.TrimSpace(ev.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	if g.opts.MaxMessageLength > 0 && utf8.RuneCountInString(ev.Content) > g.opts.MaxMessageLength {
		return fmt.Errorf("%w: content longer than %d characters", ErrInvalidMessage, g.opts.MaxMessageLength)
	}

	msg := &models.Message{
		ID:        g.newMessageID(),
		RoomID:    ev.RoomID,
		SenderID:  rec.UserID,
		Content:   ev.Content,
		Type:      ev.MessageType,
		Timestamp: g.now(),
	}
	g.broadcast(ev.RoomID, models.EventMessage, msg, "")
	g.saveMessage(msg)
	return nil
}

func (g *Gateway) typing(rec ConnectionRecord, roomID string, isTyping bool) error {
	if !rec.InRoom(roomID) {
		return fmt.Errorf("%w: %q", ErrNotMember, roomID)
	}

	g.broadcast(roomID, models.EventTyping, models.TypingEvent{
		RoomID:    roomID,
		UserID:    rec.UserID,
		IsTyping:  isTyping,
		Timestamp: g.now(),
	}, rec.ID)
	return nil
}

func (g *Gateway) presence(rec ConnectionRecord, status string, lastSeen *time.Time) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidMessage)
	}
	if len(status) > maxStatusLength {
		return fmt.Errorf("%w: status longer than %d bytes", ErrInvalidMessage, maxStatusLength)
	}

	now := g.now()
	seen := now
	if lastSeen != nil && !lastSeen.IsZero() {
		seen = lastSeen.UTC()
	}
	g.savePresence(models.PresenceSnapshot{UserID: rec.UserID, Status: status, LastSeen: seen})

	// Each subscriber hears it once, however many shared rooms it has.
	targets := make(set)
	for _, roomID := range g.directory.RoomsOf(rec.UserID) {
		for _, connID := range g.registry.ConnectionsIn(roomID) {
			targets[connID] = struct{}{}
		}
	}
	for _, connID := range g.registry.ConnectionsOf(rec.UserID) {
		targets[connID] = struct{}{}
	}

	g.deliver(targets.sorted(), models.EventPresence, models.PresenceEvent{
		UserID:    rec.UserID,
		Status:    status,
		LastSeen:  seen,
		Timestamp: now,
	})
	return nil
}

func (g *Gateway) disconnect(connID string) {
	sink, ok := g.sinks[connID]
	if !ok {
		return
	}
	delete(g.sinks, connID)
	delete(g.dropped, connID)

	rec, _ := g.registry.Lookup(connID)
	for _, roomID := range g.registry.Unregister(connID) {
		g.depart(rec.UserID, roomID, "")
	}

	if len(g.registry.ConnectionsOf(rec.UserID)) == 0 {
		g.savePresence(models.PresenceSnapshot{UserID: rec.UserID, Status: models.StatusOffline, LastSeen: g.now()})
	}

	sink.Close()
	logger.Info("Connection %s closed for user %s", connID, rec.UserID)
}

// dropFailed disconnects connections whose sink failed during the last
// command. Disconnecting can fail further sinks, so it loops until clean.
func (g *Gateway) dropFailed() {
	for len(g.dropped) > 0 {
		for connID := range g.dropped {
			delete(g.dropped, connID)
			g.disconnect(connID)
			break
		}
	}
}

func (g *Gateway) broadcast(roomID string, event models.EventType, payload any, excludeConnID string) {
	targets := g.registry.ConnectionsIn(roomID)
	if excludeConnID != "" {
		filtered := targets[:0]
		for _, connID := range targets {
			if connID != excludeConnID {
				filtered = append(filtered, connID)
			}
		}
		targets = filtered
	}
	g.deliver(targets, event, payload)
}

func (g *Gateway) send(connID string, event models.EventType, payload any) {
	g.deliver([]string{connID}, event, payload)
}

func (g *Gateway) replyError(connID string, err error) {
	g.send(connID, models.EventError, models.ErrorEvent{Message: err.Error(), Code: errorCode(err)})
}

func (g *Gateway) deliver(connIDs []string, event models.EventType, payload any) {
	if len(connIDs) == 0 {
		return
	}

	data, err := models.Encode(event, payload)
	if err != nil {
		logger.Error("Error encoding %s event: %v", event, err)
		return
	}

	for _, connID := range connIDs {
		if _, failed := g.dropped[connID]; failed {
			continue
		}
		sink, ok := g.sinks[connID]
		if !ok {
			continue
		}
		if err := sink.Send(data); err != nil {
			logger.Warn("Dropping connection %s after failed %s delivery: %v", connID, event, err)
			g.dropped[connID] = struct{}{}
		}
	}
}

// sendHistory reads the room history off the loop and delivers it to the
// joining connection only. Message ids are time-ordered UUIDv7 values, so an
// id drawn here on the loop sorts after every message broadcast before the
// join and before every one broadcast after it. Later messages already
// reached the joiner live and are left out of the history frame.
func (g *Gateway) sendHistory(connID, roomID string) {
	sink, ok := g.sinks[connID]
	if !ok {
		return
	}
	watermark := g.newMessageID()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.opts.StoreTimeout)
		defer cancel()

		recent, err := g.RecentMessages(ctx, roomID, g.opts.HistoryLimit)
		if err != nil {
			logger.Error("Error loading recent messages for room %s: %v", roomID, err)
			return
		}
		messages := olderThan(recent, watermark)
		if len(messages) == 0 {
			return
		}

		data, err := models.Encode(models.EventHistory, models.HistoryEvent{RoomID: roomID, Messages: messages})
		if err != nil {
			logger.Error("Error encoding history for room %s: %v", roomID, err)
			return
		}
		if err := sink.Send(data); err != nil {
			logger.Debug("History for room %s not delivered to %s: %v", roomID, connID, err)
		}
	}()
}

func (g *Gateway) saveMessage(msg *models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Error marshaling message %s: %v", msg.ID, err)
		return
	}

	g.enqueue("history append for room "+msg.RoomID, func(ctx context.Context) error {
		return g.store.Append(ctx, cache.RoomHistoryKey(msg.RoomID), data, g.opts.HistoryLimit)
	})
	if g.archive != nil {
		g.enqueue("archive of message "+msg.ID, func(ctx context.Context) error {
			return g.archive.SaveMessage(ctx, msg)
		})
	}
}

func (g *Gateway) savePresence(snap models.PresenceSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Error("Error marshaling presence for %s: %v", snap.UserID, err)
		return
	}

	g.enqueue("presence of "+snap.UserID, func(ctx context.Context) error {
		return g.store.Set(ctx, cache.PresenceKey(snap.UserID), data, g.opts.PresenceTTL)
	})
}

func (g *Gateway) enqueue(desc string, fn func(ctx context.Context) error) {
	select {
	case g.writes <- storeWrite{desc: desc, fn: fn}:
	default:
		logger.Warn("Persist queue full, dropping %s", desc)
	}
}

// persistLoop applies best-effort writes one at a time, in order. Each write
// gets a single attempt.
func (g *Gateway) persistLoop() {
	defer close(g.stopped)

	for w := range g.writes {
		ctx, cancel := context.WithTimeout(context.Background(), g.opts.StoreTimeout)
		if err := w.fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Best-effort %s failed: %v", w.desc, err)
		}
		cancel()
	}
}

func olderThan(messages []*models.Message, watermark string) []*models.Message {
	out := messages[:0]
	for _, msg := range messages {
		if msg.ID < watermark {
			out = append(out, msg)
		}
	}
	return out
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
