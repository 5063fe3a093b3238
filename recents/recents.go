// Package recents tracks shared state between recent-room list views:
// which rooms have unread messages, which have "bing" highlights and
// which room is currently selected. It feeds off the model's live-event
// channel; consuming state this way keeps the dependency on shared
// presentation state explicit instead of scattering it over views.
package recents

import (
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/mxmodel/mxmodel/model"
)

// Matcher decides whether a live event should be highlighted ("binged"),
// e.g. because it mentions the local user.
type Matcher func(tl *model.TimelineEvent) bool

// TitleFunc receives the aggregate unread count whenever it changes, so a
// shell can mirror it in a window title.
type TitleFunc func(count int)

type Tracker struct {
	sync.RWMutex

	matcher   Matcher
	titleFunc TitleFunc

	selectedRoomID id.RoomID
	unread         map[id.RoomID]int
	bings          map[id.RoomID]*model.TimelineEvent

	showCountInTitle bool
	titleCount       int
}

func NewTracker(matcher Matcher) *Tracker {
	return &Tracker{
		matcher:          matcher,
		unread:           make(map[id.RoomID]int),
		bings:            make(map[id.RoomID]*model.TimelineEvent),
		showCountInTitle: true,
	}
}

// SetTitleFunc registers the title mirror callback.
func (t *Tracker) SetTitleFunc(fn TitleFunc) {
	t.Lock()
	defer t.Unlock()
	t.titleFunc = fn
}

// ShowUnreadInTitle toggles whether the title callback fires.
func (t *Tracker) ShowUnreadInTitle(show bool) {
	t.Lock()
	defer t.Unlock()
	t.showCountInTitle = show
}

func (t *Tracker) SelectedRoomID() id.RoomID {
	t.RLock()
	defer t.RUnlock()
	return t.selectedRoomID
}

// SetSelectedRoomID marks the room the user is looking at; its live
// events no longer count as unread.
func (t *Tracker) SetSelectedRoomID(roomID id.RoomID) {
	t.Lock()
	defer t.Unlock()
	t.selectedRoomID = roomID
}

// UnreadMessages returns the per-room unread counts.
func (t *Tracker) UnreadMessages() map[id.RoomID]int {
	t.RLock()
	defer t.RUnlock()
	unread := make(map[id.RoomID]int, len(t.unread))
	for roomID, count := range t.unread {
		unread[roomID] = count
	}
	return unread
}

// UnreadBingMessages returns the latest highlighted event per room.
func (t *Tracker) UnreadBingMessages() map[id.RoomID]*model.TimelineEvent {
	t.RLock()
	defer t.RUnlock()
	bings := make(map[id.RoomID]*model.TimelineEvent, len(t.bings))
	for roomID, tl := range t.bings {
		bings[roomID] = tl
	}
	return bings
}

// HandleEvent processes one live timeline event.
func (t *Tracker) HandleEvent(tl *model.TimelineEvent) {
	t.Lock()
	defer t.Unlock()

	if tl.Event.RoomID == t.selectedRoomID {
		return
	}

	if t.matcher != nil && t.matcher(tl) {
		t.bings[tl.Event.RoomID] = tl
	}

	t.unread[tl.Event.RoomID]++
	t.titleCount++
	t.updateTitleCount()
}

// MarkAsRead clears the unread and bing state of a room.
func (t *Tracker) MarkAsRead(roomID id.RoomID) {
	t.Lock()
	defer t.Unlock()

	if count := t.unread[roomID]; count > 0 {
		t.titleCount -= count
		t.unread[roomID] = 0
	}
	delete(t.bings, roomID)
	t.updateTitleCount()
}

func (t *Tracker) updateTitleCount() {
	if !t.showCountInTitle || t.titleFunc == nil {
		return
	}
	if t.titleCount < 0 {
		t.titleCount = 0
	}
	t.titleFunc(t.titleCount)
}

// Listen consumes a live-event channel until it is closed. Run it in its
// own goroutine against a channel subscribed on the store.
func (t *Tracker) Listen(ch <-chan *model.TimelineEvent) {
	for tl := range ch {
		t.HandleEvent(tl)
	}
}
