package message

// Tag names one attribute of a message element.
type Tag string

// Content tags. Each add creates a new element.
const (
	Text  Tag = "Text"
	Img   Tag = "Img"
	Gif   Tag = "Gif"
	Emoid Tag = "Emoid"
)

// Mention tags.
const (
	AtUin  Tag = "AtUin"
	AtName Tag = "AtName"
	AtAll  Tag = "AtAll"
)

// Conversation kind markers. The value of a marker is its own name.
const (
	Group  Tag = "Group"
	Friend Tag = "Friend"
	Temp   Tag = "Temp"
	Guild  Tag = "Guild"
)

// Routing and identity tags.
const (
	Account   Tag = "Account"
	GroupID   Tag = "GroupId"
	Uin       Tag = "Uin"
	UinName   Tag = "UinName"
	GuildID   Tag = "GuildId"
	ChannelID Tag = "ChannelId"
	MsgID     Tag = "MsgId"
	Reply     Tag = "Reply"
)

// Operation and rich-content tags used by outbound helpers.
const (
	Withdraw                Tag = "Withdraw"
	GroupMemberNickModify   Tag = "GroupMemberNickModify"
	Nick                    Tag = "Nick"
	GroupMemberListGetAdmin Tag = "GroupMemberListGetAdmin"
	GroupListGet            Tag = "GroupListGet"
	JSON                    Tag = "Json"
	CustomJSON              Tag = "CustomJson"
	Title                   Tag = "Title"
	Info                    Tag = "Info"
	URL                     Tag = "Url"
	Audio                   Tag = "Audio"
)

// Account system events.
const (
	System     Tag = "System"
	Goline     Tag = "Goline"
	GolineMode Tag = "GolineMode"
	Offline    Tag = "Offline"
	Heartbeat  Tag = "Heartbeat"
	OntimeTask Tag = "OntimeTask"
)

// ContentTags lists the content tags in the order Text concatenates them
// within a single element.
var ContentTags = []Tag{Text, Img, Gif, Emoid}

// IsContent reports whether t always opens a new element.
func IsContent(t Tag) bool {
	switch t {
	case Text, Img, Gif, Emoid:
		return true
	}
	return false
}

// IsMention reports whether t is a mention-by-id or mention-by-name tag.
func IsMention(t Tag) bool {
	return t == AtUin || t == AtName
}
