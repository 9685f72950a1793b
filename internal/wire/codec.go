package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/tidwall/gjson"
)

var (
	// ErrMalformed is returned when inbound bytes are not a JSON object with a type
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for a well-formed message with an unrecognised type
	ErrUnknownType = errors.New("unknown message type")
)

// Encode serializes msg for the wire. Field names are rewritten from
// lowerCamelCase to snake_case at every object depth.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("failed to encode message: nil message")
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.MessageType(), err)
	}

	generic, err := unmarshalGeneric(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", msg.MessageType(), err)
	}

	obj, ok := generic.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("failed to encode %s: not an object", msg.MessageType())
	}
	obj["type"] = string(msg.MessageType())

	return json.Marshal(SnakeKeys(obj))
}

// Decode parses a wire message and returns the concrete message for its type
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}

	typ := gjson.GetBytes(data, "type")
	if typ.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var msg Message
	switch Type(typ.String()) {
	case TypeStart:
		msg = &StartMessage{}
	case TypeAudioConfigStart:
		msg = &AudioConfigStartMessage{}
	case TypeAudio:
		msg = &AudioMessage{}
	case TypeStop:
		return StopMessage{}, nil
	case TypeFinalComboAudio:
		msg = &FinalComboAudioMessage{}
	case TypeReady:
		msg = &ReadyMessage{}
	case TypeTranscript:
		msg = &TranscriptMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ.String())
	}

	generic, err := unmarshalGeneric(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	camel, err := json.Marshal(CamelKeys(generic))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", typ.String(), err)
	}
	if err := unmarshalNumbers(camel, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ.String(), err)
	}

	return deref(msg), nil
}

// SnakeKeys rewrites object keys to snake_case recursively. Array elements
// keep their position and primitives are untouched.
func SnakeKeys(v any) any {
	return convertKeys(v, strcase.ToSnake)
}

// CamelKeys rewrites object keys to lowerCamelCase recursively
func CamelKeys(v any) any {
	return convertKeys(v, strcase.ToLowerCamel)
}

func convertKeys(v any, conv func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[conv(k)] = convertKeys(val, conv)
		}
		return out
	case Config:
		return convertKeys(map[string]any(t), conv)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = convertKeys(e, conv)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = convertKeys(e, conv)
		}
		return out
	default:
		return v
	}
}

// unmarshalGeneric decodes into maps and slices, keeping numbers exact
func unmarshalGeneric(data []byte) (any, error) {
	var v any
	if err := unmarshalNumbers(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// deref returns the value form of decoded messages so callers can type switch on values
func deref(msg Message) Message {
	switch m := msg.(type) {
	case *StartMessage:
		return *m
	case *AudioConfigStartMessage:
		return *m
	case *AudioMessage:
		return *m
	case *FinalComboAudioMessage:
		return *m
	case *ReadyMessage:
		return *m
	case *TranscriptMessage:
		return *m
	default:
		return msg
	}
}
