package frame

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/c360/secplugin/errors"
)

// Codec translates frames to and from websocket messages.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string
	// MessageType is the websocket message type frames are written as.
	MessageType() int
	Encode(f *Frame) ([]byte, error)
	Decode(data []byte) (*Frame, error)
}

// NewCodec returns the codec registered under name ("json" or "cbor").
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "frame", "NewCodec", "codec "+name)
	}
}

// JSONCodec carries frames as websocket text messages.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) MessageType() int { return websocket.TextMessage }

func (JSONCodec) Encode(f *Frame) ([]byte, error) {
	data, err := json.Marshal(toEnvelope(f))
	if err != nil {
		return nil, errors.Wrap(err, "JSONCodec", "Encode", "marshal envelope")
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, errors.NewDecodeError("json envelope", err)
	}
	return fromEnvelope(env)
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("frame: CBOR encoder initialization failed: " + err.Error())
	}

	cborDec, err = cbor.DecOptions{
		// Payload maps must decode as map[string]any, like JSON
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("frame: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORCodec carries frames as websocket binary messages.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) MessageType() int { return websocket.BinaryMessage }

func (CBORCodec) Encode(f *Frame) ([]byte, error) {
	data, err := cborEnc.Marshal(toEnvelope(f))
	if err != nil {
		return nil, errors.Wrap(err, "CBORCodec", "Encode", "marshal envelope")
	}
	return data, nil
}

func (CBORCodec) Decode(data []byte) (*Frame, error) {
	var env envelope
	if err := cborDec.Unmarshal(data, &env); err != nil {
		return nil, errors.NewDecodeError("cbor envelope", err)
	}
	return fromEnvelope(env)
}
