package translog

import (
	"fmt"
	"sort"
)

// Kind identifies the type of a log entry.
type Kind string

const (
	// KindInit marks the first entry of a freshly created log. No side effects.
	KindInit Kind = "init"

	// KindEcho is a diagnostic entry; workers log its msg.
	KindEcho Kind = "echo"

	// KindPull adds a template, either from supplied text or the template library.
	KindPull Kind = "pull"

	// KindDelete removes a template.
	KindDelete Kind = "delete"

	// KindPush writes a template from supplied text, replacing any existing one.
	KindPush Kind = "push"
)

// Kinds returns every kind this build understands, in declaration order.
func Kinds() []Kind {
	return []Kind{KindInit, KindEcho, KindPull, KindDelete, KindPush}
}

// ParseKind validates a wire-level kind string.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown log entry kind %q", s)
}

// Payload holds the keyword arguments of a log entry.
type Payload map[string]any

// SortedKeys returns the payload keys in canonical (UTF-16 code unit) order.
func (p Payload) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareUTF16(keys[i], keys[j]) < 0
	})
	return keys
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// LogEntry is one record of the shared transaction log.
// Entries are immutable once appended.
type LogEntry struct {
	Seq     int64   `json:"seq"`
	Kind    Kind    `json:"kind"`
	Payload Payload `json:"payload"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("#%d %s", e.Seq, e.Kind)
}
