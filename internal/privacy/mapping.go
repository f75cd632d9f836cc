package privacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// placeholderToken matches the wire shape [CATEGORY_N]
var placeholderToken = regexp.MustCompile(`\[([A-Z]+(?:_[A-Z]+)*)_([1-9][0-9]*)\]`)

// Placeholder formats the token for the n-th value of a category
func Placeholder(c Category, n int) string {
	return "[" + c.Label() + "_" + strconv.Itoa(n) + "]"
}

// ParsePlaceholder splits a token into its category and counter
func ParsePlaceholder(token string) (Category, int, bool) {
	m := placeholderToken.FindStringSubmatch(token)
	if m == nil || m[0] != token {
		return "", 0, false
	}
	c, ok := ParseCategory(m[1])
	if !ok {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return c, n, true
}

// Entry is one placeholder and the value it stands for
type Entry struct {
	Placeholder string   `json:"placeholder"`
	Original    string   `json:"original"`
	Category    Category `json:"category,omitempty"`
}

// Mapping is the ordered placeholder to original table produced by a mask
// call. It is never sent to the external service.
type Mapping struct {
	entries []Entry
	index   map[string]int
}

// NewMapping returns an empty mapping
func NewMapping() *Mapping {
	return &Mapping{index: make(map[string]int)}
}

// MappingFromMap builds a mapping from a plain map. Order follows the
// placeholder category and counter since Go maps are unordered.
func MappingFromMap(src map[string]string) *Mapping {
	m := NewMapping()
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sortPlaceholders(keys)
	for _, k := range keys {
		m.Set(k, src[k])
	}
	return m
}

// Set records placeholder -> original, replacing the value of an existing key
func (m *Mapping) Set(placeholder, original string) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[placeholder]; ok {
		m.entries[i].Original = original
		return
	}
	c, _, _ := ParsePlaceholder(placeholder)
	m.index[placeholder] = len(m.entries)
	m.entries = append(m.entries, Entry{Placeholder: placeholder, Original: original, Category: c})
}

// Get looks up the original value for a placeholder
func (m *Mapping) Get(placeholder string) (string, bool) {
	if m == nil {
		return "", false
	}
	i, ok := m.index[placeholder]
	if !ok {
		return "", false
	}
	return m.entries[i].Original, true
}

// Len returns the number of entries; a nil mapping is empty
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns a copy of the entries in insertion order
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Placeholders returns the keys in insertion order
func (m *Mapping) Placeholders() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Placeholder
	}
	return out
}

// Map returns the mapping as a plain map
func (m *Mapping) Map() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for _, e := range m.entries {
		out[e.Placeholder] = e.Original
	}
	return out
}

// Clone returns an independent copy
func (m *Mapping) Clone() *Mapping {
	c := NewMapping()
	if m == nil {
		return c
	}
	for _, e := range m.entries {
		c.Set(e.Placeholder, e.Original)
	}
	return c
}

// Detected groups the originals back into a DetectionResult
func (m *Mapping) Detected() DetectionResult {
	res := NewDetectionResult()
	if m == nil {
		return res
	}
	for _, e := range m.entries {
		if e.Category != "" {
			res.Add(e.Category, e.Original)
		}
	}
	return res
}

// MarshalJSON writes an object whose key order follows insertion order
func (m *Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m != nil {
		for i, e := range m.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(e.Placeholder)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(e.Original)
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of string values keeping document order
func (m *Mapping) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid mapping JSON")
	}
	doc := gjson.ParseBytes(data)
	if doc.Type == gjson.Null {
		*m = *NewMapping()
		return nil
	}
	if !doc.IsObject() {
		return fmt.Errorf("mapping must be a JSON object")
	}

	fresh := NewMapping()
	var bad error
	doc.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			bad = fmt.Errorf("mapping value for %q is not a string", key.String())
			return false
		}
		fresh.Set(key.String(), value.String())
		return true
	})
	if bad != nil {
		return bad
	}
	*m = *fresh
	return nil
}

// sortPlaceholders orders tokens by category order, then counter; unknown
// tokens go last in lexical order.
func sortPlaceholders(keys []string) {
	rank := func(k string) (int, int) {
		c, n, ok := ParsePlaceholder(k)
		if !ok {
			return len(Categories), 0
		}
		for i, cat := range Categories {
			if cat == c {
				return i, n
			}
		}
		return len(Categories), n
	}
	less := func(a, b string) bool {
		ra, na := rank(a)
		rb, nb := rank(b)
		if ra != rb {
			return ra < rb
		}
		if na != nb {
			return na < nb
		}
		return strings.Compare(a, b) < 0
	}
	sort.SliceStable(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
}
