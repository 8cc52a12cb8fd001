package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexID is an identifier that may arrive as a JSON string or a JSON number,
// depending on which backend route or hub event produced it. It unmarshals
// into a canonical string form so that every comparison after the boundary
// is a plain ==. Numbers keep their literal representation ("7" stays "7").
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// IsZero reports whether the id is empty after normalization.
func (f FlexID) IsZero() bool { return f == "" }
