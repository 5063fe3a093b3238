package matrix

import (
	"time"

	"github.com/davecgh/go-spew/spew"
	lru "github.com/hashicorp/golang-lru"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mxmodel/mxmodel/model"
	"github.com/mxmodel/mxmodel/session"
)

var _ session.Sessioner = (*Session)(nil)

// Syncer routes sync responses into the model store: joined-room state
// into the current snapshot, timeline events into the display timeline,
// presence into the user directory and left rooms out of the registry.
type Syncer struct {
	store *model.Store

	// seen suppresses re-appends when sync responses overlap
	seen *lru.Cache
}

func NewSyncer(store *model.Store) *Syncer {
	seen, _ := lru.New(4096)
	return &Syncer{
		store: store,
		seen:  seen,
	}
}

func (s *Syncer) ProcessResponse(resp *mautrix.RespSync, since string) error {
	logger.Tracef("ProcessResponse since=%q %s", since, spew.Sdump(resp))

	for _, ev := range resp.Presence.Events {
		s.store.SetUser(ev)
	}

	for roomID, room := range resp.Rooms.Join {
		s.processJoinedRoom(roomID, room)
	}

	for roomID := range resp.Rooms.Leave {
		s.store.RemoveRoom(roomID)
	}

	return nil
}

func (s *Syncer) processJoinedRoom(roomID id.RoomID, sync mautrix.SyncJoinedRoom) {
	room := s.store.GetRoom(roomID)

	for _, ev := range sync.State.Events {
		ev.RoomID = roomID
		s.handleStateEvent(room, ev)
	}

	// the first sync establishes where backwards pagination starts
	if room.OldState().PaginationToken() == "" {
		room.OldState().SetPaginationToken(sync.Timeline.PrevBatch)
	}

	for _, ev := range sync.Timeline.Events {
		ev.RoomID = roomID
		s.handleTimelineEvent(room, ev)
	}
}

func (s *Syncer) handleStateEvent(room *model.Room, ev *event.Event) {
	if ev.Type == event.StateMember {
		room.MutateMemberState(ev, model.SnapshotCurrent)
		return
	}
	room.CurrentState().StoreStateEvent(ev)
}

func (s *Syncer) handleTimelineEvent(room *model.Room, ev *event.Event) {
	if s.seen.Contains(ev.ID) {
		logger.Tracef("duplicate timeline event %s", ev.ID)
		return
	}
	s.seen.Add(ev.ID, struct{}{})

	// state events in the timeline mutate room state as well as being
	// displayed
	if ev.StateKey != nil {
		s.handleStateEvent(room, ev)
	}

	if !displayable(ev) {
		return
	}

	// live events reconcile pending local echos by event id
	room.AddOrReplaceMessageEvent(ev, false)
}

func displayable(ev *event.Event) bool {
	switch ev.Type {
	case event.EventMessage, event.EventReaction, event.StateMember:
		return true
	}
	return false
}

func (s *Syncer) OnFailedSync(res *mautrix.RespSync, err error) (time.Duration, error) {
	return 10 * time.Second, nil
}

func (s *Syncer) GetFilterJSON(userID id.UserID) *mautrix.Filter {
	return &mautrix.Filter{
		Room: mautrix.RoomFilter{
			Timeline: mautrix.FilterPart{
				Limit: 50,
			},
		},
	}
}
