package translog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LegacyTemplateKey is the older name of DeleteArgs.Template still emitted
// by some producers.
const LegacyTemplateKey = "fsm_template"

// Args is the sealed set of typed log-entry arguments.
// Only the types in this file implement it.
type Args interface {
	Kind() Kind
	args()
}

// InitArgs carries no data.
type InitArgs struct{}

// EchoArgs is the payload of an echo entry.
type EchoArgs struct {
	Msg string `json:"msg,omitempty"`
}

// PullArgs asks workers to add a template. When TemplateText is empty the
// template is looked up by Key in the template library.
type PullArgs struct {
	Key          string `json:"key"`
	Driver       string `json:"driver"`
	Command      string `json:"command"`
	TemplateText string `json:"template_text,omitempty"`
}

// DeleteArgs asks workers to remove a template by file name.
type DeleteArgs struct {
	Template string `json:"template"`
}

// PushArgs asks workers to write a template from supplied text.
type PushArgs struct {
	Driver       string `json:"driver"`
	Command      string `json:"command"`
	TemplateText string `json:"template_text"`
}

func (InitArgs) Kind() Kind   { return KindInit }
func (EchoArgs) Kind() Kind   { return KindEcho }
func (PullArgs) Kind() Kind   { return KindPull }
func (DeleteArgs) Kind() Kind { return KindDelete }
func (PushArgs) Kind() Kind   { return KindPush }

func (InitArgs) args()   {}
func (EchoArgs) args()   {}
func (PullArgs) args()   {}
func (DeleteArgs) args() {}
func (PushArgs) args()   {}

// NormalizeDeletePayload renames the legacy fsm_template key to template.
// The input is not modified.
func NormalizeDeletePayload(p Payload) Payload {
	v, ok := p[LegacyTemplateKey]
	if !ok {
		return p
	}
	out := p.Clone()
	delete(out, LegacyTemplateKey)
	out["template"] = v
	return out
}

// Decode converts an entry's payload into its typed arguments.
// Unknown payload keys are rejected, as are unknown kinds.
func Decode(entry LogEntry) (Args, error) {
	switch entry.Kind {
	case KindInit:
		return InitArgs{}, nil
	case KindEcho:
		// Echo is diagnostic; extra keys are tolerated.
		var a EchoArgs
		if err := decodeLoose(entry.Payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	case KindPull:
		var a PullArgs
		if err := decodeStrict(entry.Payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	case KindDelete:
		var a DeleteArgs
		if err := decodeStrict(NormalizeDeletePayload(entry.Payload), &a); err != nil {
			return nil, err
		}
		return a, nil
	case KindPush:
		var a PushArgs
		if err := decodeStrict(entry.Payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown log entry kind %q", entry.Kind)
	}
}

func decodeLoose(p Payload, target any) error {
	if len(p) == 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func decodeStrict(p Payload, target any) error {
	if len(p) == 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
