package message

import (
	"sort"
	"strings"
)

// Element is one map of the attribute list. Keys are unique within it.
type Element map[Tag]string

// Message is an ordered list of elements describing one chat message.
// A Message is not safe for concurrent mutation.
type Message struct {
	elems []Element
}

// New returns an empty message.
func New() *Message {
	return &Message{}
}

// FromElements builds a message whose elements are copies of elems, in order,
// without applying any merge rule. Decoding uses it so structure survives a
// round trip.
func FromElements(elems ...Element) *Message {
	m := &Message{elems: make([]Element, 0, len(elems))}
	for _, e := range elems {
		m.elems = append(m.elems, cloneElement(e))
	}
	return m
}

// Add inserts tag=value following the merge rules:
//   - content tags and AtAll always append a new element
//   - AtUin and AtName join the most recent single-key mention element that
//     does not already carry the tag, otherwise append
//   - any other tag joins the first element lacking it, otherwise append
func (m *Message) Add(tag Tag, value string) *Message {
	switch {
	case IsContent(tag) || tag == AtAll:
	case IsMention(tag):
		for i := len(m.elems) - 1; i >= 0; i-- {
			e := m.elems[i]
			if len(e) != 1 || !isMentionElement(e) {
				continue
			}
			if _, ok := e[tag]; ok {
				continue
			}
			e[tag] = value
			return m
		}
	default:
		for _, e := range m.elems {
			if _, ok := e[tag]; !ok {
				e[tag] = value
				return m
			}
		}
	}

	m.elems = append(m.elems, Element{tag: value})
	return m
}

// AddMarker adds tag with its own name as the value, the form used for
// conversation kind markers and operation flags.
func (m *Message) AddMarker(tag Tag) *Message {
	return m.Add(tag, string(tag))
}

// AddMap adds every entry of kv. Keys are applied in sorted order so the
// result does not depend on map iteration.
func (m *Message) AddMap(kv map[Tag]string) *Message {
	for _, k := range sortedKeys(kv) {
		m.Add(k, kv[k])
	}
	return m
}

// AddElements adds every entry of every element in order.
func (m *Message) AddElements(elems ...Element) *Message {
	for _, e := range elems {
		m.AddMap(e)
	}
	return m
}

// AddMessage adds every entry of other.
func (m *Message) AddMessage(other *Message) *Message {
	if other == nil {
		return m
	}
	return m.AddElements(other.elems...)
}

// Get concatenates the values of tag across all elements in order, or
// returns def when no element carries tag.
func (m *Message) Get(tag Tag, def string) string {
	var b strings.Builder
	found := false
	for _, e := range m.elems {
		if v, ok := e[tag]; ok {
			found = true
			b.WriteString(v)
		}
	}
	if !found {
		return def
	}
	return b.String()
}

// Values returns the value of tag from each element that carries it.
func (m *Message) Values(tag Tag) []string {
	var out []string
	for _, e := range m.elems {
		if v, ok := e[tag]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Has reports whether any element carries tag.
func (m *Message) Has(tag Tag) bool {
	for _, e := range m.elems {
		if _, ok := e[tag]; ok {
			return true
		}
	}
	return false
}

// Count returns how many elements carry tag.
func (m *Message) Count(tag Tag) int {
	n := 0
	for _, e := range m.elems {
		if _, ok := e[tag]; ok {
			n++
		}
	}
	return n
}

// At returns the value of tag in element i, or def if i is out of range or
// the element lacks tag.
func (m *Message) At(i int, tag Tag, def string) string {
	if i < 0 || i >= len(m.elems) {
		return def
	}
	if v, ok := m.elems[i][tag]; ok {
		return v
	}
	return def
}

// Remove strips tag from every element. Elements left empty stay in place.
func (m *Message) Remove(tag Tag) *Message {
	for _, e := range m.elems {
		delete(e, tag)
	}
	return m
}

// Clear drops all elements.
func (m *Message) Clear() *Message {
	m.elems = nil
	return m
}

// Size returns the number of elements.
func (m *Message) Size() int {
	return len(m.elems)
}

// Elements returns a deep copy of the element list.
func (m *Message) Elements() []Element {
	out := make([]Element, len(m.elems))
	for i, e := range m.elems {
		out[i] = cloneElement(e)
	}
	return out
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	return &Message{elems: m.Elements()}
}

// Text concatenates, element by element, the values of the given tags. With
// no tags it uses ContentTags.
func (m *Message) Text(tags ...Tag) string {
	if len(tags) == 0 {
		tags = ContentTags
	}
	var b strings.Builder
	for _, e := range m.elems {
		for _, t := range tags {
			if v, ok := e[t]; ok {
				b.WriteString(v)
			}
		}
	}
	return b.String()
}

// Preview renders a human-readable line for logs: text as-is and media as
// bracketed placeholders.
func (m *Message) Preview() string {
	var b strings.Builder
	for _, e := range m.elems {
		if v, ok := e[Text]; ok {
			b.WriteString(v)
		}
		for _, t := range []Tag{Img, Gif, Emoid, URL} {
			if v, ok := e[t]; ok {
				b.WriteString("[")
				b.WriteString(string(t))
				b.WriteString("=")
				b.WriteString(v)
				b.WriteString("]")
			}
		}
		if v, ok := e[AtUin]; ok {
			b.WriteString("[@")
			b.WriteString(v)
			b.WriteString("]")
		}
		if _, ok := e[AtAll]; ok {
			b.WriteString("[@all]")
		}
	}
	return b.String()
}

// String renders the wire form.
func (m *Message) String() string {
	data, err := m.MarshalJSON()
	if err != nil {
		return "[]"
	}
	return string(data)
}

func isMentionElement(e Element) bool {
	_, uin := e[AtUin]
	_, name := e[AtName]
	return uin || name
}

func cloneElement(e Element) Element {
	c := make(Element, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

func sortedKeys(kv map[Tag]string) []Tag {
	keys := make([]Tag, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
