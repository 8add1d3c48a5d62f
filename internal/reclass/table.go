// Package reclass maps raw land-cover codes to the reduced three-class scheme.
package reclass

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Veraticus/cobertura/internal/common"
)

// Reduced class codes produced by the default table.
const (
	Unclassified uint8 = iota
	Forest
	NaturalNonForest
	Anthropic
)

// Table is a total mapping from raw class code to reduced code.
// Codes without an entry map to Unclassified.
type Table struct {
	entries map[uint16]uint8
	lut     []uint8
}

// NewTable builds a table from explicit entries.
func NewTable(entries map[uint16]uint8) Table {
	t := Table{entries: make(map[uint16]uint8, len(entries))}
	var maxKey uint16
	for raw, reduced := range entries {
		t.entries[raw] = reduced
		if raw > maxKey {
			maxKey = raw
		}
	}
	if len(entries) > 0 {
		t.lut = make([]uint8, int(maxKey)+1)
		for raw, reduced := range entries {
			t.lut[raw] = reduced
		}
	}
	return t
}

// DefaultTable groups the MapBiomas Colombia collection codes into forest,
// natural non-forest cover, and anthropic use.
func DefaultTable() Table {
	entries := map[uint16]uint8{}
	for _, c := range []uint16{3, 6} {
		entries[c] = Forest
	}
	for _, c := range []uint16{11, 12, 13, 23, 25, 29, 33, 50, 68} {
		entries[c] = NaturalNonForest
	}
	for _, c := range []uint16{9, 21, 24, 30, 31, 35} {
		entries[c] = Anthropic
	}
	return NewTable(entries)
}

// IdentityTable maps the reduced codes onto themselves.
func IdentityTable() Table {
	return NewTable(map[uint16]uint8{1: 1, 2: 2, 3: 3})
}

// ParseTable converts a string-keyed mapping, as read from configuration, into a Table.
func ParseTable(raw map[string]string) (Table, error) {
	entries := make(map[uint16]uint8, len(raw))
	for k, v := range raw {
		code, err := strconv.ParseUint(strings.TrimSpace(k), 10, 16)
		if err != nil {
			return Table{}, common.InvalidConfig("reclass.table", fmt.Sprintf("key %q is not a raw class code", k))
		}
		reduced, err := strconv.ParseUint(strings.TrimSpace(v), 10, 8)
		if err != nil {
			return Table{}, common.InvalidConfig("reclass.table", fmt.Sprintf("value %q for code %s is not in 0..255", v, k))
		}
		entries[uint16(code)] = uint8(reduced)
	}
	return NewTable(entries), nil
}

// Lookup returns the reduced code for raw, defaulting to Unclassified.
func (t Table) Lookup(raw uint16) uint8 {
	if int(raw) < len(t.lut) {
		return t.lut[raw]
	}
	return Unclassified
}

// Len returns the number of explicit entries.
func (t Table) Len() int {
	return len(t.entries)
}

// Range returns the distinct reduced codes the table can produce, excluding the default.
func (t Table) Range() []uint8 {
	seen := map[uint8]bool{}
	var out []uint8
	for _, v := range t.entries {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
