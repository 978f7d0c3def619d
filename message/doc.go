// Package message implements the attribute-list representation of a chat
// message exchanged with the relay.
//
// # Structure
//
// A Message is an ordered list of Elements. Each Element maps Tags to string
// values, with every key appearing at most once per element. The same key may
// recur across elements:
//
//	[{"Account":"10001","Group":"Group","GroupId":"555"},{"Text":"hello "},{"Img":"a.png"}]
//
// # Insertion rules
//
// Add decides where a value goes based on the tag:
//
//   - Content tags (Text, Img, Gif, Emoid) and AtAll always open a new element,
//     so a message can interleave several texts and images.
//   - AtUin and AtName join the most recent element that holds exactly one
//     mention key and lacks this one; this pairs an id with its display name.
//   - Every other tag fills the first element that lacks it, so routing
//     metadata packs into the leading element.
//
// Decoding from the wire bypasses these rules and keeps the received layout.
//
// # Lookup
//
// Get concatenates a tag's values across elements and falls back to a
// caller-supplied default only when the tag is absent. Text concatenates the
// content tags and is what the dispatcher matches patterns against.
//
// # Conversations
//
// KindOf classifies a message by its Group, Friend, Temp or Guild marker and
// BaseReply builds the account and address fields needed to answer it.
package message
