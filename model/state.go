package model

import (
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// RoomState is a point-in-time snapshot of one room: the latest state
// event per (type, state_key) and the members derived from them. Each
// Room owns two independent snapshots (current and historical); they are
// never merged.
type RoomState struct {
	room *Room

	members map[id.UserID]*RoomMember

	// stateEvents clobbers per type/state_key, last stored wins. An
	// absent state key is stored under the zero-length key.
	stateEvents map[event.Type]map[string]*event.Event

	paginationToken string
}

func newRoomState(room *Room) *RoomState {
	return &RoomState{
		room:        room,
		members:     make(map[id.UserID]*RoomMember),
		stateEvents: make(map[event.Type]map[string]*event.Event),
	}
}

// State returns the stored state event with a zero-length state key for
// the given type, or nil. Most state events use zero-length keys, so this
// is the common lookup.
func (rs *RoomState) State(evtType event.Type) *event.Event {
	return rs.StateEvent(evtType, "")
}

// StateEvent returns the stored state event for the type/state_key combo,
// or nil.
func (rs *RoomState) StateEvent(evtType event.Type, key string) *event.Event {
	rs.room.store.RLock()
	defer rs.room.store.RUnlock()
	return rs.stateEvents[evtType][key]
}

// Member returns this snapshot's member for the given user, or nil.
func (rs *RoomState) Member(userID id.UserID) *RoomMember {
	rs.room.store.RLock()
	defer rs.room.store.RUnlock()
	return rs.members[userID]
}

// Members returns this snapshot's members keyed by user id.
func (rs *RoomState) Members() map[id.UserID]*RoomMember {
	rs.room.store.RLock()
	defer rs.room.store.RUnlock()
	members := make(map[id.UserID]*RoomMember, len(rs.members))
	for userID, member := range rs.members {
		members[userID] = member
	}
	return members
}

func (rs *RoomState) PaginationToken() string {
	rs.room.store.RLock()
	defer rs.room.store.RUnlock()
	return rs.paginationToken
}

func (rs *RoomState) SetPaginationToken(token string) {
	rs.room.store.Lock()
	defer rs.room.store.Unlock()
	rs.paginationToken = token
}

// StoreStateEvent upserts the event into the snapshot's state map and
// applies its side effects: membership events build or replace the
// member, alias events register the room alias with the directory, and
// power-levels events recompute the level of every member currently in
// this snapshot.
func (rs *RoomState) StoreStateEvent(ev *event.Event) {
	rs.room.store.Lock()
	defer rs.room.store.Unlock()
	rs.storeStateEvent(ev)
}

// StoreStateEvents applies each event in order, with the same semantics
// as StoreStateEvent.
func (rs *RoomState) StoreStateEvents(events []*event.Event) {
	rs.room.store.Lock()
	defer rs.room.store.Unlock()
	for _, ev := range events {
		rs.storeStateEvent(ev)
	}
}

func (rs *RoomState) storeStateEvent(ev *event.Event) {
	parseContent(ev)

	key := stateKey(ev)
	byKey, ok := rs.stateEvents[ev.Type]
	if !ok {
		byKey = make(map[string]*event.Event)
		rs.stateEvents[ev.Type] = byKey
	}
	byKey[key] = ev

	switch ev.Type {
	case event.StateMember:
		userID := id.UserID(key)
		member := newRoomMember(ev, userID)
		member.user = rs.room.store.users[userID]
		if plEvent := rs.stateEvents[event.StatePowerLevels][""]; plEvent != nil {
			rs.calculatePowerLevel(plEvent, member)
		}
		rs.members[userID] = member
		// so later presence events can refresh the shared User reference
		rs.room.store.indexMember(userID, rs.room.ID)
	case event.StateAliases:
		if alias := firstAlias(ev); alias != "" {
			rs.room.store.setRoomAlias(rs.room.ID, alias)
		}
	case event.StateCanonicalAlias:
		if alias := canonicalAlias(ev); alias != "" {
			rs.room.store.setRoomAlias(rs.room.ID, alias)
		}
	case event.StatePowerLevels:
		// the normalization denominator may have moved, rescan everyone
		for _, member := range rs.members {
			rs.calculatePowerLevel(ev, member)
		}
	case event.StateRoomName:
		if rs == rs.room.currentState {
			rs.room.setNameFromEvent(ev)
		}
	}
}

// maxPowerLevel finds the highest level in the users map, skipping the
// legacy hsob_ts key.
func maxPowerLevel(content *event.PowerLevelsEventContent) int {
	max := 0
	for userID, level := range content.Users {
		if userID == legacyTimestampKey {
			continue
		}
		if level > max {
			max = level
		}
	}
	return max
}

func (rs *RoomState) calculatePowerLevel(plEvent *event.Event, member *RoomMember) {
	content := powerLevelsContent(plEvent)
	if content == nil {
		return
	}

	level, ok := content.Users[member.UserID]
	if !ok {
		level = content.UsersDefault
	}
	member.PowerLevel = level

	// a room with no levels defined anywhere normalizes to 0 rather
	// than dividing by zero
	if max := maxPowerLevel(content); max > 0 {
		member.PowerLevelNorm = float64(level) * 100 / float64(max)
	} else {
		member.PowerLevelNorm = 0
	}
}

func canonicalAlias(ev *event.Event) id.RoomAlias {
	parseContent(ev)
	if content, ok := ev.Content.Parsed.(*event.CanonicalAliasEventContent); ok {
		return content.Alias
	}
	if alias, ok := ev.Content.Raw["alias"].(string); ok {
		return id.RoomAlias(alias)
	}
	return ""
}
