package model

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// User is the process-wide identity record for a user, shared across all
// rooms they are a member of. It is created on the first profile/presence
// event seen and lives for the lifetime of the store.
type User struct {
	ID id.UserID

	// Event accumulates the user's profile/presence content: new events
	// clobber matching content keys but leave the rest in place.
	Event *event.Event

	// LastUpdated is the wall clock at the time the last event was
	// applied, used with last_active_ago to work out last seen times.
	LastUpdated time.Time
}

// Profile is the typed view over the user's merged presence content.
type Profile struct {
	Displayname   string `mapstructure:"displayname"`
	AvatarURL     string `mapstructure:"avatar_url"`
	Presence      string `mapstructure:"presence"`
	StatusMsg     string `mapstructure:"status_msg"`
	LastActiveAgo int64  `mapstructure:"last_active_ago"`
}

// Profile decodes the merged raw content into a Profile. Missing fields
// stay at their zero value.
func (u *User) Profile() Profile {
	var p Profile
	if u.Event == nil || u.Event.Content.Raw == nil {
		return p
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return p
	}
	if err := decoder.Decode(u.Event.Content.Raw); err != nil {
		logger.Tracef("profile decode %s: %v", u.ID, err)
	}
	return p
}
