// Package vocab maps categorical feature values to dense embedding-table
// indices. Index 0 is reserved for unknown or padding values in every
// vocabulary, matching the embedding tables the model was trained with.
package vocab

import (
	"fmt"

	"github.com/platefeed/recsys/internal/catalog"
)

// Vocabulary is an ordered, bijective mapping between string values and
// indices 1..len(values). Index 0 is <UNK>/<PAD> and never maps to a value.
type Vocabulary struct {
	indexOf map[string]int32
	values  []string
}

// New builds a vocabulary from values in order, skipping duplicates and
// empty strings.
func New(values []string) *Vocabulary {
	v := &Vocabulary{indexOf: make(map[string]int32, len(values))}
	for _, val := range values {
		v.add(val)
	}

	return v
}

func (v *Vocabulary) add(val string) {
	if val == "" {
		return
	}

	if _, ok := v.indexOf[val]; ok {
		return
	}

	v.values = append(v.values, val)
	v.indexOf[val] = int32(len(v.values)) // 1-based, 0 is reserved
}

// Index returns the embedding index for val, or 0 when val is unknown.
func (v *Vocabulary) Index(val string) int32 {
	return v.indexOf[val]
}

// Value returns the string at a 1-based index, or "" for 0 and out-of-range
// indices.
func (v *Vocabulary) Value(idx int32) string {
	if idx < 1 || int(idx) > len(v.values) {
		return ""
	}

	return v.values[idx-1]
}

// Size is the embedding table row count: one row per value plus the
// reserved row 0.
func (v *Vocabulary) Size() int {
	return len(v.values) + 1
}

// Values returns the values in index order (index 1 first). The returned
// slice is shared and must not be mutated.
func (v *Vocabulary) Values() []string {
	return v.values
}

// Set holds the five vocabularies the two towers index into. Tags share a
// single vocabulary across all namespaces and both towers.
type Set struct {
	Users      *Vocabulary
	Dishes     *Vocabulary
	Stores     *Vocabulary
	Categories *Vocabulary
	Tags       *Vocabulary
}

// Build derives a vocabulary set from a loaded catalog. Users, dishes and
// stores follow catalog row order; categories follow first appearance in
// the dish file; tags follow the canonical namespace ordering.
func Build(c *catalog.Catalog) *Set {
	users := New(nil)
	for _, id := range c.UserIDs() {
		users.add(id)
	}

	dishes := New(nil)
	categories := New(nil)

	for _, d := range c.Dishes {
		dishes.add(d.ID)
		categories.add(d.Category)
	}

	stores := New(nil)
	for _, id := range c.StoreIDs() {
		stores.add(id)
	}

	return &Set{
		Users:      users,
		Dishes:     dishes,
		Stores:     stores,
		Categories: categories,
		Tags:       New(c.AllTagNames()),
	}
}

// Sizes reports each table's row count, keyed the way the model sidecar
// records them.
func (s *Set) Sizes() map[string]int {
	return map[string]int{
		"user":     s.Users.Size(),
		"dish":     s.Dishes.Size(),
		"store":    s.Stores.Size(),
		"category": s.Categories.Size(),
		"tag":      s.Tags.Size(),
	}
}

// ValueLists returns the ordered value lists keyed the same way as Sizes,
// for embedding in the model sidecar.
func (s *Set) ValueLists() map[string][]string {
	return map[string][]string{
		"user":     s.Users.Values(),
		"dish":     s.Dishes.Values(),
		"store":    s.Stores.Values(),
		"category": s.Categories.Values(),
		"tag":      s.Tags.Values(),
	}
}

// FromValueLists reconstructs a set from sidecar value lists. All five keys
// must be present, tags may legitimately be empty.
func FromValueLists(lists map[string][]string) (*Set, error) {
	for _, key := range []string{"user", "dish", "store", "category", "tag"} {
		if _, ok := lists[key]; !ok {
			return nil, fmt.Errorf("vocabulary %q missing from model info", key)
		}
	}

	return &Set{
		Users:      New(lists["user"]),
		Dishes:     New(lists["dish"]),
		Stores:     New(lists["store"]),
		Categories: New(lists["category"]),
		Tags:       New(lists["tag"]),
	}, nil
}
