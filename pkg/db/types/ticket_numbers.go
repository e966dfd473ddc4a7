package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TicketNumbers is a set of ticket numbers persisted as a JSON array so the
// column works on both Postgres (jsonb) and SQLite (text).
type TicketNumbers []int

func (n *TicketNumbers) Scan(src any) error {
	if src == nil {
		*n = TicketNumbers{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("TicketNumbers: unsupported Scan type %T", src)
	}
}

func (n TicketNumbers) Value() (driver.Value, error) {
	if len(n) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal([]int(n))
	if err != nil {
		return nil, fmt.Errorf("TicketNumbers: marshal: %w", err)
	}
	return string(raw), nil
}

// Sorted returns an ascending copy.
func (n TicketNumbers) Sorted() []int {
	out := make([]int, len(n))
	copy(out, n)
	sort.Ints(out)
	return out
}

func (n *TicketNumbers) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		*n = TicketNumbers{}
		return nil
	}
	var out []int
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return fmt.Errorf("TicketNumbers: parse %q: %w", s, err)
	}
	if out == nil {
		out = []int{}
	}
	*n = TicketNumbers(out)
	return nil
}
