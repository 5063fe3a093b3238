package session

import (
	"context"

	"maunium.net/go/mautrix/id"

	"github.com/mxmodel/mxmodel/model"
)

// Credentials carry what a session needs to authenticate against a
// homeserver.
type Credentials struct {
	Server string
	Login  string
	Pass   string
}

// Sessioner is the transport collaborator the model delegates to. The
// model itself never decides what to fetch; callers drive Backfill and
// SendText, and Room.Leave drives Leave.
type Sessioner interface {
	model.Leaver

	// Backfill paginates one page of history into the room's timeline,
	// advancing the old snapshot's pagination token.
	Backfill(ctx context.Context, room *model.Room, limit int) error

	// SendText sends a text message with an optimistic local echo that
	// is reconciled on confirmation and rolled back on failure.
	SendText(ctx context.Context, room *model.Room, body string) (id.EventID, error)

	Logout() error
}
