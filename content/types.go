// Package content stores the editable page content of the marketing site:
// keyed section fields, upserted one by one, and ordered collections
// (testimonials, expertise items, widgets, packages) that are replaced wholesale.
//
// Writers compute a ChangeSet with DiffSection or DiffCollection before talking
// to the Store so that unchanged fields are never rewritten.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValueType tags the payload held by a Record.
type ValueType string

const (
	TypeText  ValueType = "text"
	TypeImage ValueType = "image"
	TypeVideo ValueType = "video"
	TypeJSON  ValueType = "json"
)

// ParseValueType returns the ValueType for s. An empty string means text.
func ParseValueType(s string) (ValueType, error) {
	switch t := ValueType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeText, nil
	case TypeText, TypeImage, TypeVideo, TypeJSON:
		return t, nil
	default:
		return "", invalid("type", "unknown value type %q", s)
	}
}

// Metadata is the free-form side payload of a Record. Its allowed shape depends
// on the record's ValueType.
type Metadata map[string]any

// Equal reports whether m and o hold the same data. Both sides are compared in
// canonical JSON form so that, for example, int and float64 numbers match.
func (m Metadata) Equal(o Metadata) bool {
	if len(m) == 0 && len(o) == 0 {
		return true
	}
	a, errA := json.Marshal(m)
	b, errB := json.Marshal(o)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(canonicalJSON(a), canonicalJSON(b))
}

func canonicalJSON(raw []byte) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

// Record is one addressable content field: (Collection, Key) is unique.
type Record struct {
	Collection string
	Key        string
	Value      string
	Type       ValueType
	Metadata   Metadata
	Order      int
	UpdatedAt  time.Time
}

// UpsertInput is the write side of a Record.
type UpsertInput struct {
	Collection string    `json:"section"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Type       ValueType `json:"type"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	Order      int       `json:"order,omitempty"`
}

// Validate checks the input against the constraints of its ValueType. It never
// touches storage.
func (in *UpsertInput) Validate() error {
	if strings.TrimSpace(in.Collection) == "" {
		return invalid("section", "is required")
	}
	if strings.TrimSpace(in.Key) == "" {
		return invalid("key", "is required")
	}
	t, err := ParseValueType(string(in.Type))
	if err != nil {
		return err
	}
	in.Type = t
	if in.Order < 0 {
		return invalid("order", "must not be negative")
	}
	return validatePayload(t, in.Value, in.Metadata)
}

type metaRule func(v any) bool

var (
	isString = func(v any) bool { _, ok := v.(string); return ok }
	isBool   = func(v any) bool { _, ok := v.(bool); return ok }
	isSize   = func(v any) bool {
		switch n := v.(type) {
		case int:
			return n >= 0
		case int64:
			return n >= 0
		case float64:
			return n >= 0
		case json.Number:
			f, err := n.Float64()
			return err == nil && f >= 0
		}
		return false
	}
	isLocation = func(v any) bool { s, ok := v.(string); return ok && validLocation(s) }
)

// metadataRules lists the metadata keys each ValueType accepts. A nil entry
// means the type does not constrain metadata.
var metadataRules = map[ValueType]map[string]metaRule{
	TypeText: {
		"format": func(v any) bool {
			s, ok := v.(string)
			return ok && (s == "plain" || s == "markdown" || s == "html")
		},
	},
	TypeImage: {"alt": isString, "width": isSize, "height": isSize},
	TypeVideo: {"poster": isLocation, "caption": isString, "autoplay": isBool},
	TypeJSON:  nil,
}

func validatePayload(t ValueType, value string, meta Metadata) error {
	switch t {
	case TypeImage, TypeVideo:
		if value != "" && !validLocation(value) {
			return invalid("value", "%s must be an http(s) URL or a root-relative path", t)
		}
	case TypeJSON:
		if value != "" && !json.Valid([]byte(value)) {
			return invalid("value", "is not valid JSON")
		}
	}
	rules := metadataRules[t]
	if rules == nil {
		return nil
	}
	for k, v := range meta {
		rule, ok := rules[k]
		if !ok {
			return invalid("metadata."+k, "not allowed for %s values", t)
		}
		if !rule(v) {
			return invalid("metadata."+k, "has an invalid value %v", v)
		}
	}
	return nil
}

func validLocation(s string) bool {
	if strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func encodeMetadata(m Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (Metadata, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
