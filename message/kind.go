package message

import (
	"fmt"

	"github.com/c360/secplugin/errors"
)

// Kind is the conversation a message belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindGroup
	KindFriend
	KindTemp
	KindGuild
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return string(Group)
	case KindFriend:
		return string(Friend)
	case KindTemp:
		return string(Temp)
	case KindGuild:
		return string(Guild)
	default:
		return "Unknown"
	}
}

// KindOf classifies m by its conversation marker. Group wins over Friend,
// Friend over Temp, Temp over Guild.
func KindOf(m *Message) Kind {
	if m == nil {
		return KindUnknown
	}
	switch {
	case m.Has(Group):
		return KindGroup
	case m.Has(Friend):
		return KindFriend
	case m.Has(Temp):
		return KindTemp
	case m.Has(Guild):
		return KindGuild
	default:
		return KindUnknown
	}
}

// BaseReply builds the envelope for answering src: its account, its
// conversation marker and the ids addressing that conversation. Missing ids
// are copied as empty strings. It fails with ErrUnknownConversation when src
// carries no recognized marker.
func BaseReply(src *Message) (*Message, error) {
	kind := KindOf(src)
	if kind == KindUnknown {
		return nil, fmt.Errorf("base reply: %w", errors.ErrUnknownConversation)
	}

	reply := New().Add(Account, src.Get(Account, ""))
	switch kind {
	case KindGroup:
		reply.AddMarker(Group).
			Add(GroupID, src.Get(GroupID, ""))
	case KindFriend:
		reply.AddMarker(Friend).
			Add(Uin, src.Get(Uin, ""))
	case KindTemp:
		reply.AddMarker(Temp).
			Add(GroupID, src.Get(GroupID, "")).
			Add(Uin, src.Get(Uin, ""))
	case KindGuild:
		reply.AddMarker(Guild).
			Add(GuildID, src.Get(GuildID, "")).
			Add(ChannelID, src.Get(ChannelID, ""))
	}
	return reply, nil
}

// GroupTarget builds the envelope addressing a group directly.
func GroupTarget(account, groupID string) *Message {
	return New().
		Add(Account, account).
		AddMarker(Group).
		Add(GroupID, groupID)
}
