package model

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
)

const (
	testRoomID = "!fl1bb13:localhost"
	testAlice  = "@alice:localhost"
	testBob    = "@bob:localhost"
)

var eventCounter int

func mustEvent(t *testing.T, raw string) *event.Event {
	t.Helper()
	var ev event.Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return &ev
}

func nextEventID() string {
	eventCounter++
	return fmt.Sprintf("$ev%d:localhost", eventCounter)
}

func memberEvent(t *testing.T, roomID, userID, membership, displayname string) *event.Event {
	t.Helper()
	content := map[string]interface{}{"membership": membership}
	if displayname != "" {
		content["displayname"] = displayname
	}
	return stateEvent(t, roomID, userID, "m.room.member", userID, content)
}

func stateEvent(t *testing.T, roomID, sender, evtType, key string, content map[string]interface{}) *event.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"event_id":  nextEventID(),
		"sender":    sender,
		"room_id":   roomID,
		"type":      evtType,
		"state_key": key,
		"content":   content,
	})
	require.NoError(t, err)
	return mustEvent(t, string(raw))
}

func powerLevelsEvent(t *testing.T, roomID string, users map[string]int, usersDefault int) *event.Event {
	t.Helper()
	content := map[string]interface{}{
		"users":         users,
		"users_default": usersDefault,
	}
	return stateEvent(t, roomID, testAlice, "m.room.power_levels", "", content)
}

func messageEvent(t *testing.T, roomID, sender, body string) *event.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"event_id": nextEventID(),
		"sender":   sender,
		"room_id":  roomID,
		"type":     "m.room.message",
		"content":  map[string]interface{}{"msgtype": "m.text", "body": body},
	})
	require.NoError(t, err)
	return mustEvent(t, string(raw))
}

func presenceEvent(t *testing.T, userID string, content map[string]interface{}) *event.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"sender":  userID,
		"type":    "m.presence",
		"content": content,
	})
	require.NoError(t, err)
	return mustEvent(t, string(raw))
}

// withPrevContent grafts a prev_content onto a state event the way the
// server reports transitions.
func withPrevContent(t *testing.T, ev *event.Event, prev map[string]interface{}) *event.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"prev_content": prev})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &ev.Unsigned))
	return ev
}
