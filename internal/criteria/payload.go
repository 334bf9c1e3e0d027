package criteria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is an arbitrary JSON event document attached to a scoring
// trigger. Values are addressed by dot-separated paths whose segments are
// matched case-insensitively at each level.
type Payload struct {
	root any
}

// ParsePayload decodes a JSON document. Numbers keep their textual form.
func ParsePayload(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &Payload{root: root}, nil
}

// NewPayload wraps an already-decoded document.
func NewPayload(v map[string]any) *Payload {
	return &Payload{root: v}
}

// Lookup walks path through nested objects. ok is false if any segment is
// missing or an intermediate value is not an object.
func (p *Payload) Lookup(path string) (value string, ok bool) {
	if p == nil {
		return "", false
	}
	cur := p.root
	for _, seg := range strings.Split(path, ".") {
		obj, isObj := cur.(map[string]any)
		if !isObj {
			return "", false
		}
		next, found := field(obj, seg)
		if !found {
			return "", false
		}
		cur = next
	}
	return leafString(cur), true
}

func field(obj map[string]any, name string) (any, bool) {
	if v, ok := obj[name]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func leafString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// MatchPath evaluates a condition against the payload value at cond.Field.
// A missing path satisfies NotExists and fails every other operator. A nil
// payload matches nothing.
func MatchPath(cond Condition, p *Payload) bool {
	if p == nil {
		return false
	}
	v, ok := p.Lookup(cond.Field)
	if !ok {
		return cond.Operator == OpNotExists
	}
	return Match(cond, &v)
}
