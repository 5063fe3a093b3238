package model

import (
	"context"
	"sync"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Leaver is the slice of the transport session the store needs: leaving a
// room on the homeserver. The call blocks until the server answers; an
// error means the request was rejected and no local state changes.
type Leaver interface {
	Leave(ctx context.Context, roomID id.RoomID) error
}

// Store is the process-wide directory of rooms and users. It owns the
// room and user registries, the room/alias indices and the reverse index
// from user id to the rooms holding a member for them. Construct one with
// NewStore and pass it by reference; ClearRooms is the only teardown.
type Store struct {
	sync.RWMutex

	session Leaver

	rooms map[id.RoomID]*Room
	users map[id.UserID]*User

	roomIDToAlias map[id.RoomID]id.RoomAlias
	aliasToRoomID map[id.RoomAlias]id.RoomID

	// memberRooms tracks which rooms hold a RoomMember for a user, so a
	// profile update can refresh the shared User reference everywhere.
	memberRooms map[id.UserID]map[id.RoomID]struct{}

	notifier *notifier
}

// NewStore builds an empty directory. session may be nil when leaving
// rooms is not needed (tests, read-only consumers).
func NewStore(session Leaver) *Store {
	s := &Store{
		session:  session,
		notifier: newNotifier(),
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.rooms = make(map[id.RoomID]*Room)
	s.users = make(map[id.UserID]*User)
	s.roomIDToAlias = make(map[id.RoomID]id.RoomAlias)
	s.aliasToRoomID = make(map[id.RoomAlias]id.RoomID)
	s.memberRooms = make(map[id.UserID]map[id.RoomID]struct{})
}

// ClearRooms resets all directory state. Live subscriptions survive.
func (s *Store) ClearRooms() {
	s.Lock()
	defer s.Unlock()
	s.reset()
}

// GetRoom returns the room, creating it on first access. It never reports
// "not found".
func (s *Store) GetRoom(roomID id.RoomID) *Room {
	s.Lock()
	defer s.Unlock()
	return s.getRoom(roomID)
}

func (s *Store) getRoom(roomID id.RoomID) *Room {
	room, ok := s.rooms[roomID]
	if !ok {
		room = newRoom(roomID, s)
		s.rooms[roomID] = room
	}
	return room
}

// RemoveRoom drops the room from the registry, typically after the local
// user left it.
func (s *Store) RemoveRoom(roomID id.RoomID) {
	s.Lock()
	defer s.Unlock()
	delete(s.rooms, roomID)
	logger.Debugf("removed room %s", roomID)
}

// Rooms returns all known rooms.
func (s *Store) Rooms() []*Room {
	s.RLock()
	defer s.RUnlock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// GetMember returns the current-state member of a room, or nil when the
// user is not in it.
func (s *Store) GetMember(roomID id.RoomID, userID id.UserID) *RoomMember {
	s.Lock()
	defer s.Unlock()
	return s.getRoom(roomID).currentState.members[userID]
}

// SetRoomAlias registers the bidirectional room id/alias mapping.
func (s *Store) SetRoomAlias(roomID id.RoomID, alias id.RoomAlias) {
	s.Lock()
	defer s.Unlock()
	s.setRoomAlias(roomID, alias)
}

func (s *Store) setRoomAlias(roomID id.RoomID, alias id.RoomAlias) {
	s.roomIDToAlias[roomID] = alias
	s.aliasToRoomID[alias] = roomID
}

// RoomAlias returns the registered alias for a room id, or "".
func (s *Store) RoomAlias(roomID id.RoomID) id.RoomAlias {
	s.RLock()
	defer s.RUnlock()
	return s.roomIDToAlias[roomID]
}

// AliasRoomID returns the room id registered for an alias, or "".
func (s *Store) AliasRoomID(alias id.RoomAlias) id.RoomID {
	s.RLock()
	defer s.RUnlock()
	return s.aliasToRoomID[alias]
}

// GetUser returns the identity record for a user id, or nil when no
// profile or presence event has been seen.
func (s *Store) GetUser(userID id.UserID) *User {
	s.RLock()
	defer s.RUnlock()
	return s.users[userID]
}

// SetUser applies a profile/presence event: the first event for a user id
// creates the record, later ones clobber matching content keys but keep
// the rest. The refreshed reference is fanned out to this user's member
// in both snapshots of every room holding one.
func (s *Store) SetUser(ev *event.Event) *User {
	s.Lock()
	defer s.Unlock()

	userID := ev.Sender
	usr, ok := s.users[userID]
	if ok && usr.Event != nil {
		if usr.Event.Content.Raw == nil {
			usr.Event.Content.Raw = make(map[string]interface{})
		}
		for key, value := range ev.Content.Raw {
			usr.Event.Content.Raw[key] = value
		}
		// the parsed view is stale now, Profile reads the raw map
		usr.Event.Content.Parsed = nil
	} else {
		usr = &User{ID: userID, Event: ev}
		s.users[userID] = usr
	}
	usr.LastUpdated = time.Now()

	for roomID := range s.memberRooms[userID] {
		room, ok := s.rooms[roomID]
		if !ok {
			continue
		}
		for _, snapshot := range []*RoomState{room.currentState, room.oldState} {
			if member := snapshot.members[userID]; member != nil {
				member.user = usr
			}
		}
	}
	return usr
}

func (s *Store) indexMember(userID id.UserID, roomID id.RoomID) {
	rooms, ok := s.memberRooms[userID]
	if !ok {
		rooms = make(map[id.RoomID]struct{})
		s.memberRooms[userID] = rooms
	}
	rooms[roomID] = struct{}{}
}

// GetUserPowerLevel reads the user's level from the room's current
// power-levels event, falling back to the room default, or 0 when the
// room has no power-levels event at all.
func (s *Store) GetUserPowerLevel(roomID id.RoomID, userID id.UserID) int {
	s.Lock()
	defer s.Unlock()

	room := s.getRoom(roomID)
	content := powerLevelsContent(room.currentState.stateEvents[event.StatePowerLevels][""])
	if content == nil {
		return 0
	}
	if level, ok := content.Users[userID]; ok {
		return level
	}
	return content.UsersDefault
}

// GetUserCountInRoom counts the current-state members whose membership is
// "join". Invited users do not count until they join.
func (s *Store) GetUserCountInRoom(roomID id.RoomID) int {
	s.Lock()
	defer s.Unlock()

	count := 0
	for _, member := range s.getRoom(roomID).currentState.members {
		if contentMembership(&member.Event.Content) == event.MembershipJoin {
			count++
		}
	}
	return count
}

// Subscribe registers a channel to receive every live timeline event
// exactly once. Sends block; size the channel accordingly.
func (s *Store) Subscribe(ch chan *TimelineEvent) {
	s.notifier.subscribe(ch)
}

// Unsubscribe removes a previously subscribed channel.
func (s *Store) Unsubscribe(ch chan *TimelineEvent) {
	s.notifier.unsubscribe(ch)
}
