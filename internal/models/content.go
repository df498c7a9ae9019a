package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type contentKind uint8

const (
	kindString contentKind = iota
	kindBool
)

// Content is the decrypted value of an object: either a string or a boolean.
// The zero value is the empty string.
type Content struct {
	kind contentKind
	str  string
	b    bool
}

func StringContent(s string) Content { return Content{kind: kindString, str: s} }

func BoolContent(b bool) Content { return Content{kind: kindBool, b: b} }

func (c Content) IsBool() bool { return c.kind == kindBool }

// Bool returns the boolean value and whether the content holds one.
func (c Content) Bool() (bool, bool) {
	return c.b, c.kind == kindBool
}

func (c Content) String() string {
	if c.kind == kindBool {
		return strconv.FormatBool(c.b)
	}
	return c.str
}

func (c Content) Equal(o Content) bool {
	return c == o
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.kind == kindBool {
		return json.Marshal(c.b)
	}
	return json.Marshal(c.str)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*c = BoolContent(true)
	case bytes.Equal(data, []byte("false")):
		*c = BoolContent(false)
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = StringContent(s)
	default:
		return fmt.Errorf("content must be a string or boolean, got %s", data)
	}
	return nil
}

// ParseContent converts a raw JSON value supplied by a caller into content
// suited to the object type. String objects keep numbers as their literal
// text; boolean objects also accept the strings "true" and "false".
func ParseContent(t ObjectType, raw json.RawMessage) (Content, error) {
	raw = bytes.TrimSpace(raw)
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Content{}, fmt.Errorf("invalid content: %w", err)
	}

	if t.IsBoolean() {
		switch x := v.(type) {
		case bool:
			return BoolContent(x), nil
		case string:
			if x == "true" || x == "false" {
				return BoolContent(x == "true"), nil
			}
		}
		return Content{}, fmt.Errorf("content for %s objects must be a boolean", t)
	}

	switch x := v.(type) {
	case string:
		return StringContent(x), nil
	case float64, bool:
		return StringContent(string(raw)), nil
	}
	return Content{}, fmt.Errorf("content for %s objects must be a string", t)
}
