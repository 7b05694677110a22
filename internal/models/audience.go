package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Audience is the set of usernames, besides the author and admins, allowed to
// read a post. The zero value is the empty set. Names are kept trimmed, sorted
// and unique.
type Audience struct {
	names []string
}

// NewAudience builds an Audience from raw names. Blank names are dropped.
func NewAudience(names ...string) Audience {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return Audience{names: slices.Compact(out)}
}

// ParseAudience accepts the legacy comma separated form, e.g. "bob, carol".
func ParseAudience(s string) Audience {
	return NewAudience(strings.Split(s, ",")...)
}

func (a Audience) Contains(username string) bool {
	_, found := slices.BinarySearch(a.names, username)
	return found
}

func (a Audience) Len() int { return len(a.names) }

func (a Audience) IsEmpty() bool { return len(a.names) == 0 }

// Names returns a copy of the members in sorted order. Never nil.
func (a Audience) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

func (a Audience) Clone() Audience {
	return Audience{names: a.Names()}
}

func (a Audience) Equal(b Audience) bool {
	return slices.Equal(a.names, b.names)
}

func (a Audience) String() string {
	return strings.Join(a.names, ",")
}

func (a Audience) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Names())
}

// UnmarshalJSON accepts an array of names, a comma separated string or null.
func (a *Audience) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = NewAudience(list...)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = ParseAudience(s)
		return nil
	}
	return fmt.Errorf("visible_to must be a list of usernames or a comma separated string")
}
