package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
)

func TestStateLastWriteWins(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	first := stateEvent(t, testRoomID, testAlice, "m.room.topic", "", map[string]interface{}{"topic": "one"})
	second := stateEvent(t, testRoomID, testAlice, "m.room.topic", "", map[string]interface{}{"topic": "two"})

	state.StoreStateEvent(first)
	state.StoreStateEvent(second)

	assert.Same(t, second, state.State(event.StateTopic))
}

func TestStateSeparateKeys(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	alice := memberEvent(t, testRoomID, testAlice, "join", "Alice")
	bob := memberEvent(t, testRoomID, testBob, "join", "Bob")
	state.StoreStateEvents([]*event.Event{alice, bob})

	assert.Same(t, alice, state.StateEvent(event.StateMember, testAlice))
	assert.Same(t, bob, state.StateEvent(event.StateMember, testBob))
	assert.Nil(t, state.StateEvent(event.StateMember, "@nobody:localhost"))
	assert.Nil(t, state.State(event.StatePowerLevels))
}

func TestStoreStateEventMemberName(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	state.StoreStateEvent(memberEvent(t, testRoomID, testAlice, "join", "Alice"))
	state.StoreStateEvent(memberEvent(t, testRoomID, testBob, "join", ""))

	require.NotNil(t, state.Member(testAlice))
	assert.Equal(t, "Alice", state.Member(testAlice).Name)
	// no displayname falls back to the user id
	require.NotNil(t, state.Member(testBob))
	assert.Equal(t, testBob, state.Member(testBob).Name)
}

func TestPowerLevelsRecomputeExistingMembers(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	state.StoreStateEvent(memberEvent(t, testRoomID, testAlice, "join", "Alice"))
	state.StoreStateEvent(memberEvent(t, testRoomID, testBob, "join", "Bob"))

	state.StoreStateEvent(powerLevelsEvent(t, testRoomID, map[string]int{
		testAlice: 10,
		testBob:   20,
	}, 0))

	alice := state.Member(testAlice)
	bob := state.Member(testBob)
	assert.Equal(t, 10, alice.PowerLevel)
	assert.Equal(t, 50.0, alice.PowerLevelNorm)
	assert.Equal(t, 20, bob.PowerLevel)
	assert.Equal(t, 100.0, bob.PowerLevelNorm)
}

func TestPowerLevelsAppliedToLaterMembers(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	state.StoreStateEvent(powerLevelsEvent(t, testRoomID, map[string]int{testAlice: 100}, 25))
	state.StoreStateEvent(memberEvent(t, testRoomID, testAlice, "join", "Alice"))
	state.StoreStateEvent(memberEvent(t, testRoomID, testBob, "join", "Bob"))

	assert.Equal(t, 100, state.Member(testAlice).PowerLevel)
	assert.Equal(t, 100.0, state.Member(testAlice).PowerLevelNorm)
	// not listed, gets the room default
	assert.Equal(t, 25, state.Member(testBob).PowerLevel)
	assert.Equal(t, 25.0, state.Member(testBob).PowerLevelNorm)
}

func TestPowerLevelsLegacyTimestampKey(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	state.StoreStateEvent(memberEvent(t, testRoomID, testAlice, "join", "Alice"))
	state.StoreStateEvent(powerLevelsEvent(t, testRoomID, map[string]int{
		testAlice: 50,
		"hsob_ts": 1400000000,
	}, 0))

	alice := state.Member(testAlice)
	assert.Equal(t, 50, alice.PowerLevel)
	// the bogus timestamp key must not blow up the maximum
	assert.Equal(t, 100.0, alice.PowerLevelNorm)
}

func TestPowerLevelsZeroMax(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	state.StoreStateEvent(memberEvent(t, testRoomID, testAlice, "join", "Alice"))
	state.StoreStateEvent(powerLevelsEvent(t, testRoomID, map[string]int{}, 0))

	alice := state.Member(testAlice)
	assert.Equal(t, 0, alice.PowerLevel)
	assert.Equal(t, 0.0, alice.PowerLevelNorm)
}

func TestStoreStateEventAliases(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	state.StoreStateEvent(stateEvent(t, testRoomID, testAlice, "m.room.aliases", "localhost", map[string]interface{}{
		"aliases": []string{"#first:localhost", "#second:localhost"},
	}))

	assert.EqualValues(t, "#first:localhost", store.RoomAlias(testRoomID))
	assert.EqualValues(t, testRoomID, store.AliasRoomID("#first:localhost"))
	assert.EqualValues(t, "", store.AliasRoomID("#second:localhost"))
}

func TestStoreStateEventCanonicalAlias(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).CurrentState()

	state.StoreStateEvent(stateEvent(t, testRoomID, testAlice, "m.room.canonical_alias", "", map[string]interface{}{
		"alias": "#canon:localhost",
	}))

	assert.EqualValues(t, "#canon:localhost", store.RoomAlias(testRoomID))
}

func TestPaginationToken(t *testing.T) {
	store := NewStore(nil)
	state := store.GetRoom(testRoomID).OldState()

	assert.Equal(t, "", state.PaginationToken())
	state.SetPaginationToken("t42-abc")
	assert.Equal(t, "t42-abc", state.PaginationToken())
}

func TestSnapshotsDiverge(t *testing.T) {
	store := NewStore(nil)
	room := store.GetRoom(testRoomID)

	room.CurrentState().StoreStateEvent(memberEvent(t, testRoomID, testAlice, "join", "Alice Now"))
	room.OldState().StoreStateEvent(memberEvent(t, testRoomID, testAlice, "join", "Alice Then"))

	assert.Equal(t, "Alice Now", room.CurrentState().Member(testAlice).Name)
	assert.Equal(t, "Alice Then", room.OldState().Member(testAlice).Name)
}
