package broadcast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/wsync/internal/translog"
)

// Kind names a broadcast message type.
type Kind string

const (
	// KindPing is log-only.
	KindPing Kind = "ping"

	// KindProcessUpdateLog asks the worker to replay the shared log.
	KindProcessUpdateLog Kind = "process_update_log"

	// KindListTemplates asks the worker to report its installed templates.
	KindListTemplates Kind = "list_templates"
)

// Message is one decoded broadcast message.
type Message struct {
	Kind      Kind           `json:"kind" msgpack:"kind"`
	Arguments map[string]any `json:"arguments" msgpack:"arguments"`
}

// DecodeError reports a payload that is not a broadcast message.
// It is expected on subscribe (transport control frames) and is never
// returned from Dispatcher.HandleMessage.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode broadcast message: %s: %v", e.Reason, e.Err)
	}
	return "decode broadcast message: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Codec converts between raw channel payloads and messages.
type Codec interface {
	Name() string
	Encode(Message) ([]byte, error)
	Decode(raw []byte) (Message, error)
}

// CodecByName returns the codec for "json" or "msgpack".
// An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q: must be json or msgpack", name)
	}
}

// Encode builds a message and encodes it. Used by producers.
func Encode(c Codec, kind Kind, args map[string]any) ([]byte, error) {
	if args == nil {
		args = map[string]any{}
	}
	return c.Encode(Message{Kind: kind, Arguments: args})
}

// Legacy producers used "type" and "kwargs".
var (
	kindKeys = []string{"kind", "type"}
	argsKeys = []string{"arguments", "kwargs"}
)

// JSONCodec is the default wire format: a UTF-8 JSON object
// {"kind": string, "arguments": object}.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(m Message) ([]byte, error) {
	args := m.Arguments
	if args == nil {
		args = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Message{Kind: m.Kind, Arguments: args}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (JSONCodec) Decode(raw []byte) (Message, error) {
	if !utf8.Valid(raw) {
		return Message{}, &DecodeError{Reason: "payload is not valid UTF-8"}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return Message{}, &DecodeError{Reason: "payload is not a JSON object", Err: err}
	}
	if top == nil {
		return Message{}, &DecodeError{Reason: "payload is not a JSON object"}
	}

	var kind string
	kindRaw, ok := firstKey(top, kindKeys)
	if !ok {
		return Message{}, &DecodeError{Reason: "missing kind"}
	}
	if err := json.Unmarshal(kindRaw, &kind); err != nil || kind == "" {
		return Message{}, &DecodeError{Reason: "kind must be a non-empty string", Err: err}
	}

	args := map[string]any{}
	if argsRaw, ok := firstKey(top, argsKeys); ok {
		trimmed := bytes.TrimSpace(argsRaw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			if !bytes.Equal(trimmed, []byte("null")) {
				return Message{}, &DecodeError{Reason: "arguments must be an object"}
			}
		} else {
			p, err := translog.UnmarshalPayload(trimmed)
			if err != nil {
				return Message{}, &DecodeError{Reason: "arguments must be an object", Err: err}
			}
			args = p
		}
	}

	return Message{Kind: Kind(kind), Arguments: args}, nil
}

func firstKey(top map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := top[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// MsgpackCodec encodes messages as a MessagePack map with the same keys as
// the JSON format.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(m Message) ([]byte, error) {
	if m.Arguments == nil {
		m.Arguments = map[string]any{}
	}
	return msgpack.Marshal(m)
}

func (MsgpackCodec) Decode(raw []byte) (Message, error) {
	var top map[string]any
	if err := msgpack.Unmarshal(raw, &top); err != nil {
		return Message{}, &DecodeError{Reason: "payload is not a msgpack map", Err: err}
	}
	if top == nil {
		return Message{}, &DecodeError{Reason: "payload is not a msgpack map"}
	}

	var kind string
	for _, k := range kindKeys {
		if v, ok := top[k]; ok {
			s, isString := v.(string)
			if !isString || s == "" {
				return Message{}, &DecodeError{Reason: "kind must be a non-empty string"}
			}
			kind = s
			break
		}
	}
	if kind == "" {
		return Message{}, &DecodeError{Reason: "missing kind"}
	}

	args := map[string]any{}
	for _, k := range argsKeys {
		v, ok := top[k]
		if !ok {
			continue
		}
		switch a := v.(type) {
		case nil:
		case map[string]any:
			args = a
		default:
			return Message{}, &DecodeError{Reason: "arguments must be a map"}
		}
		break
	}

	return Message{Kind: Kind(kind), Arguments: args}, nil
}
