package model

import (
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// legacyTimestampKey shows up in the users map of power_levels events on
// some ancient rooms. It is not a user id and must not count toward the
// room maximum.
const legacyTimestampKey = "hsob_ts"

// SnapshotKind selects which of a room's two state snapshots a mutation
// applies to: the authoritative "now" or the oldest-visible point used
// when rendering paginated history.
type SnapshotKind int

const (
	SnapshotCurrent SnapshotKind = iota
	SnapshotHistorical
)

func (k SnapshotKind) String() string {
	if k == SnapshotHistorical {
		return "historical"
	}
	return "current"
}

func stateKey(ev *event.Event) string {
	if ev.StateKey == nil {
		return ""
	}
	return *ev.StateKey
}

// parseContent fills ev.Content.Parsed when the upstream feed handed us a
// raw event. Unknown types stay raw, which is fine: the raw map fallbacks
// below still work.
func parseContent(ev *event.Event) {
	if ev.Content.Parsed != nil || len(ev.Content.VeryRaw) == 0 {
		return
	}
	if err := ev.Content.ParseRaw(ev.Type); err != nil {
		logger.Tracef("parseContent %s: %v", ev.Type.String(), err)
	}
}

func powerLevelsContent(ev *event.Event) *event.PowerLevelsEventContent {
	if ev == nil {
		return nil
	}
	parseContent(ev)
	content, _ := ev.Content.Parsed.(*event.PowerLevelsEventContent)
	return content
}

// contentDisplayname resolves the display name carried by a member event
// content, falling back to the given user id. Works on both parsed and
// raw content so prev_content can be fed in directly.
func contentDisplayname(c *event.Content, fallback string) string {
	if c == nil {
		return fallback
	}
	if member, ok := c.Parsed.(*event.MemberEventContent); ok && member.Displayname != "" {
		return member.Displayname
	}
	if name, ok := c.Raw["displayname"].(string); ok && name != "" {
		return name
	}
	return fallback
}

func contentMembership(c *event.Content) event.Membership {
	if c == nil {
		return ""
	}
	if member, ok := c.Parsed.(*event.MemberEventContent); ok && member.Membership != "" {
		return member.Membership
	}
	if membership, ok := c.Raw["membership"].(string); ok {
		return event.Membership(membership)
	}
	return ""
}

// firstAlias extracts the first entry of an m.room.aliases content.
func firstAlias(ev *event.Event) id.RoomAlias {
	parseContent(ev)
	aliases, ok := ev.Content.Raw["aliases"].([]interface{})
	if !ok || len(aliases) == 0 {
		return ""
	}
	alias, _ := aliases[0].(string)
	return id.RoomAlias(alias)
}

// membershipChanged reports whether the membership key differs between
// the event's prev_content and its content. Events without prev_content
// are not transitions.
func membershipChanged(ev *event.Event) bool {
	prev := ev.Unsigned.PrevContent
	if prev == nil {
		return false
	}
	return contentMembership(prev) != contentMembership(&ev.Content)
}
