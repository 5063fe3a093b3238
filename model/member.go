package model

import (
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// RoomMember is one user's membership within one room snapshot. Members
// in the current and historical snapshot of the same room diverge on
// purpose: each stays consistent with the state events stored into its
// own snapshot.
type RoomMember struct {
	// Event is the m.room.member event this member was built from.
	Event  *event.Event
	UserID id.UserID

	// Name is the resolved display name, falling back to the user id.
	Name string

	PowerLevel     int
	PowerLevelNorm float64

	user *User
}

func newRoomMember(ev *event.Event, userID id.UserID) *RoomMember {
	parseContent(ev)
	return &RoomMember{
		Event:  ev,
		UserID: userID,
		Name:   contentDisplayname(&ev.Content, string(userID)),
	}
}

// User returns the process-wide identity record shared by every room this
// user is a member of, or nil when no profile or presence event has been
// seen yet. The directory refreshes this reference on profile updates.
func (m *RoomMember) User() *User {
	return m.user
}

// Membership returns the membership value of the event that produced this
// member ("join", "invite", ...).
func (m *RoomMember) Membership() event.Membership {
	return contentMembership(&m.Event.Content)
}
