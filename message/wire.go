package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/c360/secplugin/errors"
)

// MarshalJSON encodes the message as an array of flat string maps.
func (m *Message) MarshalJSON() ([]byte, error) {
	if m == nil || len(m.elems) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(m.elems)
}

// UnmarshalJSON decodes an array of flat maps. Number and boolean values are
// stringified; nested objects and arrays are kept as compact JSON text.
// Elements are taken as-is, no merge rule is applied.
func (m *Message) UnmarshalJSON(data []byte) error {
	elems, err := DecodeElements(data)
	if err != nil {
		return err
	}
	m.elems = elems
	return nil
}

// DecodeElements parses the wire form of an attribute list.
func DecodeElements(data []byte) ([]Element, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewDecodeError("attribute list", err)
	}

	elems := make([]Element, 0, len(raw))
	for i, obj := range raw {
		if obj == nil {
			return nil, errors.NewDecodeError(fmt.Sprintf("element %d is not an object", i), nil)
		}
		e := make(Element, len(obj))
		for k, v := range obj {
			s, err := stringify(v)
			if err != nil {
				return nil, errors.NewDecodeError(fmt.Sprintf("element %d key %q", i, k), err)
			}
			e[Tag(k)] = s
		}
		elems = append(elems, e)
	}
	return elems, nil
}

// FromAny converts an already-decoded attribute list (as produced by a
// generic decoder) into a Message.
func FromAny(v any) (*Message, error) {
	if v == nil {
		return New(), nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, errors.NewDecodeError(fmt.Sprintf("attribute list has type %T", v), nil)
	}
	m := &Message{elems: make([]Element, 0, len(list))}
	for i, item := range list {
		e := Element{}
		switch obj := item.(type) {
		case map[string]any:
			for k, val := range obj {
				s, err := stringify(val)
				if err != nil {
					return nil, errors.NewDecodeError(fmt.Sprintf("element %d key %q", i, k), err)
				}
				e[Tag(k)] = s
			}
		case map[any]any:
			for k, val := range obj {
				ks, ok := k.(string)
				if !ok {
					return nil, errors.NewDecodeError(fmt.Sprintf("element %d has non-string key", i), nil)
				}
				s, err := stringify(val)
				if err != nil {
					return nil, errors.NewDecodeError(fmt.Sprintf("element %d key %q", i, ks), err)
				}
				e[Tag(ks)] = s
			}
		default:
			return nil, errors.NewDecodeError(fmt.Sprintf("element %d is not an object", i), nil)
		}
		m.elems = append(m.elems, e)
	}
	return m, nil
}

// ToAny converts the message to a generic list of maps for encoders that do
// not understand Message.
func (m *Message) ToAny() []any {
	out := make([]any, 0, len(m.elems))
	for _, e := range m.elems {
		obj := make(map[string]any, len(e))
		for k, v := range e {
			obj[string(k)] = v
		}
		out = append(out, obj)
	}
	return out
}

func stringify(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case []byte:
		return string(val), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
