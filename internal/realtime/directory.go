package realtime

// Directory tracks which distinct users are present in each room. A user is
// present in a room while at least one of their connections holds it; the
// Gateway checks that against the Registry before calling Leave.
type Directory struct {
	rooms map[string]set // roomID -> user ids
	users map[string]set // userID -> room ids
}

func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[string]set),
		users: make(map[string]set),
	}
}

// Join reports whether userID newly entered the room.
func (d *Directory) Join(roomID, userID string) bool {
	if _, ok := d.rooms[roomID][userID]; ok {
		return false
	}
	addTo(d.rooms, roomID, userID)
	addTo(d.users, userID, roomID)
	return true
}

// Leave reports whether userID was present. Empty rooms are dropped.
func (d *Directory) Leave(roomID, userID string) bool {
	if _, ok := d.rooms[roomID][userID]; !ok {
		return false
	}
	removeFrom(d.rooms, roomID, userID)
	removeFrom(d.users, userID, roomID)
	return true
}

// Participants returns a sorted snapshot; unknown rooms yield an empty slice.
func (d *Directory) Participants(roomID string) []string {
	return d.rooms[roomID].sorted()
}

func (d *Directory) IsParticipant(roomID, userID string) bool {
	_, ok := d.rooms[roomID][userID]
	return ok
}

func (d *Directory) RoomsOf(userID string) []string {
	return d.users[userID].sorted()
}

// Len returns the number of non-empty rooms.
func (d *Directory) Len() int {
	return len(d.rooms)
}
