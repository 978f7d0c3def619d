package testutil

import "github.com/c360/secplugin/message"

// Identifiers used by the sample messages.
const (
	TestAccount = "10000"
	TestGroupID = "123456"
	TestUin     = "42"
	TestMsgID   = "m-1"
)

// GroupMessage returns a pushed group message with the given text.
func GroupMessage(text string) *message.Message {
	return message.New().
		Add(message.Account, TestAccount).
		AddMarker(message.Group).
		Add(message.GroupID, TestGroupID).
		Add(message.Uin, TestUin).
		Add(message.MsgID, TestMsgID).
		Add(message.Text, text)
}

// FriendMessage returns a pushed direct message with the given text.
func FriendMessage(text string) *message.Message {
	return message.New().
		Add(message.Account, TestAccount).
		AddMarker(message.Friend).
		Add(message.Uin, TestUin).
		Add(message.MsgID, TestMsgID).
		Add(message.Text, text)
}

// OnlineEvent returns an account online notice.
func OnlineEvent() *message.Message {
	return message.New().
		Add(message.Account, TestAccount).
		Add(message.Goline, "1700000000").
		Add(message.GolineMode, "1")
}
