package realtime

import (
	"fmt"
	"sort"
)

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func addTo(index map[string]set, key, member string) {
	members, ok := index[key]
	if !ok {
		members = make(set)
		index[key] = members
	}
	members[member] = struct{}{}
}

func removeFrom(index map[string]set, key, member string) {
	members, ok := index[key]
	if !ok {
		return
	}
	delete(members, member)
	if len(members) == 0 {
		delete(index, key)
	}
}

// ConnectionRecord describes one live connection. Values returned by the
// Registry are copies.
type ConnectionRecord struct {
	ID          string
	UserID      string
	JoinedRooms map[string]struct{}
}

func (r ConnectionRecord) InRoom(roomID string) bool {
	_, ok := r.JoinedRooms[roomID]
	return ok
}

// Rooms returns the joined rooms in sorted order.
func (r ConnectionRecord) Rooms() []string {
	return set(r.JoinedRooms).sorted()
}

// Registry tracks every live connection, the user it belongs to and the
// rooms it joined. It is not safe for concurrent use; the Gateway event loop
// is its only caller.
type Registry struct {
	conns  map[string]*ConnectionRecord
	byUser map[string]set // userID -> connection ids
	byRoom map[string]set // roomID -> connection ids
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*ConnectionRecord),
		byUser: make(map[string]set),
		byRoom: make(map[string]set),
	}
}

func (r *Registry) Register(connID, userID string) (ConnectionRecord, error) {
	if _, exists := r.conns[connID]; exists {
		return ConnectionRecord{}, fmt.Errorf("%w: %s", ErrDuplicateConnection, connID)
	}

	rec := &ConnectionRecord{ID: connID, UserID: userID, JoinedRooms: make(map[string]struct{})}
	r.conns[connID] = rec
	addTo(r.byUser, userID, connID)
	return copyRecord(rec), nil
}

// Unregister deletes the connection and returns the rooms it had joined.
// Unknown connections yield an empty list.
func (r *Registry) Unregister(connID string) []string {
	rec, ok := r.conns[connID]
	if !ok {
		return []string{}
	}

	rooms := set(rec.JoinedRooms).sorted()
	for _, roomID := range rooms {
		removeFrom(r.byRoom, roomID, connID)
	}
	removeFrom(r.byUser, rec.UserID, connID)
	delete(r.conns, connID)
	return rooms
}

// AddRoom reports whether the room was newly added. Unknown connections and
// rooms already joined are no-ops.
func (r *Registry) AddRoom(connID, roomID string) bool {
	rec, ok := r.conns[connID]
	if !ok || rec.InRoom(roomID) {
		return false
	}
	rec.JoinedRooms[roomID] = struct{}{}
	addTo(r.byRoom, roomID, connID)
	return true
}

// RemoveRoom reports whether the room was present and removed.
func (r *Registry) RemoveRoom(connID, roomID string) bool {
	rec, ok := r.conns[connID]
	if !ok || !rec.InRoom(roomID) {
		return false
	}
	delete(rec.JoinedRooms, roomID)
	removeFrom(r.byRoom, roomID, connID)
	return true
}

func (r *Registry) Lookup(connID string) (ConnectionRecord, bool) {
	rec, ok := r.conns[connID]
	if !ok {
		return ConnectionRecord{}, false
	}
	return copyRecord(rec), true
}

// ConnectionsIn returns the ids of connections that joined roomID.
func (r *Registry) ConnectionsIn(roomID string) []string {
	return r.byRoom[roomID].sorted()
}

// ConnectionsOf returns the ids of every live connection of userID, which is
// the subscriber set of the implicit user:<userID> channel.
func (r *Registry) ConnectionsOf(userID string) []string {
	return r.byUser[userID].sorted()
}

// HasMembership reports whether any live connection of userID holds roomID.
func (r *Registry) HasMembership(userID, roomID string) bool {
	for connID := range r.byUser[userID] {
		if r.conns[connID].InRoom(roomID) {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	return len(r.conns)
}

func copyRecord(rec *ConnectionRecord) ConnectionRecord {
	rooms := make(map[string]struct{}, len(rec.JoinedRooms))
	for k := range rec.JoinedRooms {
		rooms[k] = struct{}{}
	}
	return ConnectionRecord{ID: rec.ID, UserID: rec.UserID, JoinedRooms: rooms}
}
