package matrix

import (
	"context"
	"fmt"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mxmodel/mxmodel/model"
	"github.com/mxmodel/mxmodel/session"
)

var logger *logrus.Entry = logrus.NewEntry(logrus.New())

// Session is the mautrix-backed transport collaborator: it logs in,
// feeds sync responses into the model store and carries the outbound
// operations (send, backfill, leave) the model delegates to.
type Session struct {
	mc   *mautrix.Client
	v    *viper.Viper
	done chan struct{}
}

func New(v *viper.Viper, cred session.Credentials) (*Session, error) {
	ourlog := logrus.New()
	ourlog.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 14,
		FullTimestamp: true,
	})
	logger = ourlog.WithFields(logrus.Fields{"prefix": "session/matrix"})

	if v.GetBool("debug") {
		ourlog.SetLevel(logrus.DebugLevel)
	}

	if v.GetBool("trace") {
		ourlog.SetLevel(logrus.TraceLevel)
	}

	mc, err := mautrix.NewClient(cred.Server, "", "")
	if err != nil {
		return nil, err
	}

	_, err = mc.Login(&mautrix.ReqLogin{
		Type: "m.login.password",
		Identifier: mautrix.UserIdentifier{
			Type: "m.id.user",
			User: cred.Login,
		},
		Password:         cred.Pass,
		StoreCredentials: true,
	})
	if err != nil {
		return nil, err
	}

	return &Session{mc: mc, v: v, done: make(chan struct{})}, nil
}

// Client exposes the underlying mautrix client.
func (s *Session) Client() *mautrix.Client {
	return s.mc
}

// UserID is the id we are logged in as.
func (s *Session) UserID() id.UserID {
	return s.mc.UserID
}

// Start attaches the store-feeding syncer and runs the sync loop until
// Logout.
func (s *Session) Start(store *model.Store) {
	s.mc.Syncer = NewSyncer(store)

	go s.syncLoop(s.mc.Sync)
}

func (s *Session) syncLoop(sync func() error) {
	for {
		if err := sync(); err != nil {
			logger.Errorf("sync: %v", err)
			time.Sleep(5 * time.Second)
		}
		select {
		case <-s.done:
			return
		default:
		}
	}
}

// Leave leaves the room on the homeserver. The model removes the room
// from the directory itself once this succeeds.
func (s *Session) Leave(ctx context.Context, roomID id.RoomID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.mc.LeaveRoom(roomID)
	return err
}

// Backfill pulls one page of history, walks the room state backwards and
// prepends the displayable chunk. The server hands the chunk back newest
// to oldest, which is exactly the order repeated prepends want.
func (s *Session) Backfill(ctx context.Context, room *model.Room, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := room.OldState().PaginationToken()
	resp, err := s.mc.Messages(room.ID, from, "", 'b', limit)
	if err != nil {
		return fmt.Errorf("backfill %s: %w", room.ID, err)
	}

	display := make([]*event.Event, 0, len(resp.Chunk))
	for _, ev := range resp.Chunk {
		ev.RoomID = room.ID
		switch {
		case ev.Type == event.StateMember && ev.StateKey != nil:
			room.MutateMemberState(ev, model.SnapshotHistorical)
		case ev.StateKey != nil:
			room.OldState().StoreStateEvent(ev)
		}
		if displayable(ev) {
			display = append(display, ev)
		}
	}

	room.AddMessageEvents(display, true)
	room.OldState().SetPaginationToken(resp.End)

	logger.Debugf("backfilled %d events into %s", len(resp.Chunk), room.ID)

	return nil
}

// SendText sends a text message with local echo: the echo shows up in
// the timeline immediately, adopts the confirmed event id on success (so
// the sync copy replaces it in place) and is rolled back on failure.
func (s *Session) SendText(ctx context.Context, room *model.Room, body string) (id.EventID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	content := event.MessageEventContent{
		MsgType: "m.text",
		Body:    body,
	}

	echo := &event.Event{
		ID:        id.EventID(fmt.Sprintf("~%s:%d", room.ID, time.Now().UnixNano())),
		Sender:    s.mc.UserID,
		Type:      event.EventMessage,
		RoomID:    room.ID,
		Timestamp: time.Now().UnixMilli(),
		Content:   event.Content{Parsed: &content},
	}
	room.AddMessageEvent(echo, false)

	resp, err := s.mc.SendMessageEvent(room.ID, event.EventMessage, content)
	if err != nil {
		room.RemoveEchoEvent(echo)
		return "", fmt.Errorf("send to %s: %w", room.ID, err)
	}

	echo.ID = resp.EventID

	return resp.EventID, nil
}

func (s *Session) Logout() error {
	close(s.done)
	s.mc.StopSync()
	_, err := s.mc.Logout()
	return err
}
