package model

import (
	"context"
	"errors"
	"fmt"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

var errNoSession = errors.New("model: no session configured")

// TimelineEvent is a displayable event plus the snapshot references
// resolved at the time it entered the timeline, so rendering reflects the
// name and power level valid at that point rather than the present.
type TimelineEvent struct {
	Event *event.Event

	// Sender is the member that authored the event, resolved from the
	// old snapshot for paginated-in events and the current snapshot for
	// live events. Nil when the sender is not a member of that snapshot.
	Sender *RoomMember

	// Target is the member being invited, set on invite membership
	// events only.
	Target *RoomMember
}

// Room owns the current and historical state snapshot of one room plus
// the ordered timeline of display events. Index 0 is the oldest visible
// event so far: live events append to the tail, paginated-in history
// prepends to the head.
type Room struct {
	store *Store

	ID id.RoomID

	currentState *RoomState
	oldState     *RoomState

	timeline  []*TimelineEvent
	lastEvent *TimelineEvent
	name      string
}

func newRoom(roomID id.RoomID, store *Store) *Room {
	r := &Room{
		ID:    roomID,
		store: store,
		name:  string(roomID),
	}
	r.currentState = newRoomState(r)
	r.oldState = newRoomState(r)
	return r
}

// CurrentState is the authoritative "now" snapshot.
func (r *Room) CurrentState() *RoomState {
	return r.currentState
}

// OldState is the state as of the oldest visible point, used when
// rendering messages interleaved with historical state changes.
func (r *Room) OldState() *RoomState {
	return r.oldState
}

func (r *Room) State(kind SnapshotKind) *RoomState {
	if kind == SnapshotHistorical {
		return r.oldState
	}
	return r.currentState
}

// Name returns the cached room name, defaulting to the room id.
func (r *Room) Name() string {
	r.store.RLock()
	defer r.store.RUnlock()
	return r.name
}

// LastEvent returns the cached most recent timeline event, or nil.
func (r *Room) LastEvent() *TimelineEvent {
	r.store.RLock()
	defer r.store.RUnlock()
	return r.lastEvent
}

// Timeline returns a copy of the display timeline, oldest first.
func (r *Room) Timeline() []*TimelineEvent {
	r.store.RLock()
	defer r.store.RUnlock()
	timeline := make([]*TimelineEvent, len(r.timeline))
	copy(timeline, r.timeline)
	return timeline
}

// AddMessageEvent attaches the direction-matching snapshot references to
// the event and inserts it into the timeline. Appends update the cached
// last event and notify live subscribers exactly once; prepends are
// historical, never notify, and only establish the last event when none
// exists yet.
func (r *Room) AddMessageEvent(ev *event.Event, toFront bool) *TimelineEvent {
	r.store.Lock()
	tl := r.addMessageEvent(ev, toFront)
	r.store.Unlock()

	if !toFront {
		r.store.notifier.publish(tl)
	}
	return tl
}

// AddMessageEvents inserts the events in the given order. Each prepend
// pushes to the head individually, so historical batches must be supplied
// newest-to-oldest to end up in the right final order.
func (r *Room) AddMessageEvents(events []*event.Event, toFront bool) {
	live := make([]*TimelineEvent, 0, len(events))

	r.store.Lock()
	for _, ev := range events {
		tl := r.addMessageEvent(ev, toFront)
		if !toFront {
			live = append(live, tl)
		}
	}
	r.store.Unlock()

	for _, tl := range live {
		r.store.notifier.publish(tl)
	}
}

func (r *Room) addMessageEvent(ev *event.Event, toFront bool) *TimelineEvent {
	parseContent(ev)

	// every message references the member which made it at that time so
	// display names render correctly
	snapshot := r.currentState
	if toFront {
		snapshot = r.oldState
	}

	tl := &TimelineEvent{
		Event:  ev,
		Sender: snapshot.members[ev.Sender],
	}
	if ev.Type == event.StateMember && contentMembership(&ev.Content) == event.MembershipInvite {
		// keep information on both the inviter and invitee
		tl.Target = snapshot.members[id.UserID(stateKey(ev))]
	}

	if toFront {
		r.timeline = append([]*TimelineEvent{tl}, r.timeline...)
		if r.lastEvent == nil {
			r.lastEvent = tl
		}
	} else {
		r.timeline = append(r.timeline, tl)
		r.lastEvent = tl
	}
	return tl
}

// AddOrReplaceMessageEvent reconciles a locally echoed event with the
// server-confirmed version: an existing timeline entry with the same
// event id is replaced in place, otherwise the event is added normally.
func (r *Room) AddOrReplaceMessageEvent(ev *event.Event, toFront bool) {
	r.store.Lock()
	// start from the tail, the event to replace is among the latest ones
	for i := len(r.timeline) - 1; i >= 0; i-- {
		if r.timeline[i].Event.ID == ev.ID {
			parseContent(ev)
			tl := &TimelineEvent{
				Event:  ev,
				Sender: r.currentState.members[ev.Sender],
			}
			if r.lastEvent == r.timeline[i] {
				r.lastEvent = tl
			}
			r.timeline[i] = tl
			r.store.Unlock()
			return
		}
	}
	r.store.Unlock()

	r.AddMessageEvent(ev, toFront)
}

// GetEvent returns the most recent timeline entry with the given event
// id, or nil. Typically used for dupe detection, so it scans from the
// tail.
func (r *Room) GetEvent(eventID id.EventID) *TimelineEvent {
	r.store.RLock()
	defer r.store.RUnlock()
	for i := len(r.timeline) - 1; i >= 0; i-- {
		if r.timeline[i].Event.ID == eventID {
			return r.timeline[i]
		}
	}
	return nil
}

// RemoveEchoEvent rolls back an optimistic local echo that failed to
// send. The event is matched by identity, not id; a miss is a no-op.
func (r *Room) RemoveEchoEvent(ev *event.Event) {
	r.store.Lock()
	defer r.store.Unlock()
	for i, tl := range r.timeline {
		if tl.Event == ev {
			r.timeline = append(r.timeline[:i], r.timeline[i+1:]...)
			return
		}
	}
}

// MutateMemberState stores a membership event into the snapshot selected
// by kind and reworks the member's display name. The current snapshot
// takes the name from the event's own content. The historical snapshot
// takes it from prev_content when available, since walking backwards we
// want the previous value, with one exception: a transition into join
// uses the new content, because prev_content on joins does not carry the
// full profile.
func (r *Room) MutateMemberState(ev *event.Event, kind SnapshotKind) {
	r.store.Lock()
	defer r.store.Unlock()
	r.mutateMemberState(ev, kind)
}

func (r *Room) mutateMemberState(ev *event.Event, kind SnapshotKind) {
	parseContent(ev)

	userID := id.UserID(stateKey(ev))
	snapshot := r.currentState
	if kind == SnapshotHistorical {
		snapshot = r.oldState
	}

	snapshot.storeStateEvent(ev)
	member := snapshot.members[userID]
	if member == nil {
		return
	}

	nameContent := &ev.Content
	if kind == SnapshotHistorical && ev.Unsigned.PrevContent != nil {
		nameContent = ev.Unsigned.PrevContent
		if membershipChanged(ev) && contentMembership(&ev.Content) == event.MembershipJoin {
			nameContent = &ev.Content
		}
	}
	member.Name = contentDisplayname(nameContent, string(userID))
}

// Leave asks the session collaborator to leave the room and removes it
// from the directory on success. On failure the directory is untouched
// and the upstream error is returned.
func (r *Room) Leave(ctx context.Context) error {
	if r.store.session == nil {
		return errNoSession
	}
	if err := r.store.session.Leave(ctx, r.ID); err != nil {
		return fmt.Errorf("leave %s: %w", r.ID, err)
	}
	r.store.RemoveRoom(r.ID)
	return nil
}

func (r *Room) setNameFromEvent(ev *event.Event) {
	if content, ok := ev.Content.Parsed.(*event.RoomNameEventContent); ok && content.Name != "" {
		r.name = content.Name
		return
	}
	if name, ok := ev.Content.Raw["name"].(string); ok && name != "" {
		r.name = name
	}
}
