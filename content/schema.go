package content

import (
	"sort"
	"strings"
	"sync"
)

// Item is one member of an ordered collection. It has no identity beyond its
// position in the list it was submitted with.
type Item struct {
	Order  int               `json:"order,omitempty"`
	Fields map[string]string `json:"fields"`
}

// Schema describes the fields an ordered collection accepts.
type Schema struct {
	Name     string
	Required []string
	Optional []string
}

// clean returns a copy of item restricted to the schema's fields with values
// trimmed, or a ValidationError naming the first missing required field.
func (s Schema) clean(item Item) (Item, error) {
	out := Item{Order: item.Order, Fields: make(map[string]string, len(s.Required)+len(s.Optional))}
	for _, f := range s.Required {
		v := strings.TrimSpace(item.Fields[f])
		if v == "" {
			return Item{}, invalid(f, "is required")
		}
		out.Fields[f] = v
	}
	for _, f := range s.Optional {
		if v := strings.TrimSpace(item.Fields[f]); v != "" {
			out.Fields[f] = v
		}
	}
	return out, nil
}

// Schemas resolves collection names to their Schema. A name may be scoped with
// a colon ("widgets:launch-post"); only the part before the colon is looked up.
type Schemas struct {
	mu     sync.RWMutex
	byName map[string]Schema
}

// NewSchemas returns a registry holding the given schemas.
func NewSchemas(schemas ...Schema) *Schemas {
	r := &Schemas{byName: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

// DefaultSchemas returns the collections used by the marketing site.
func DefaultSchemas() *Schemas {
	return NewSchemas(
		Schema{Name: "expertise", Required: []string{"title", "description"}, Optional: []string{"icon"}},
		Schema{Name: "testimonials", Required: []string{"text", "author"}, Optional: []string{"company", "avatar", "role"}},
		Schema{Name: "widgets", Required: []string{"type", "title"}, Optional: []string{"content", "link", "image"}},
		Schema{Name: "packages", Required: []string{"name", "price"}, Optional: []string{"description", "features", "cta"}},
	)
}

// Register adds or replaces a schema.
func (r *Schemas) Register(s Schema) {
	r.mu.Lock()
	r.byName[s.Name] = s
	r.mu.Unlock()
}

// Lookup returns the schema for a (possibly scoped) collection name.
func (r *Schemas) Lookup(collection string) (Schema, bool) {
	base, _, _ := strings.Cut(collection, ":")
	r.mu.RLock()
	s, ok := r.byName[base]
	r.mu.RUnlock()
	return s, ok
}

// Names returns the registered schema names, sorted.
func (r *Schemas) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// prepareItems drops items that fail the schema and assigns dense positions
// 1..N. The sort key is the explicit Order when set, else index+1.
func prepareItems(s Schema, items []Item) (kept []Item, skipped int) {
	type keyed struct {
		item Item
		key  int
	}
	valid := make([]keyed, 0, len(items))
	for i, it := range items {
		cleaned, err := s.clean(it)
		if err != nil {
			skipped++
			continue
		}
		key := it.Order
		if key <= 0 {
			key = i + 1
		}
		valid = append(valid, keyed{item: cleaned, key: key})
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].key < valid[j].key })
	kept = make([]Item, len(valid))
	for i, k := range valid {
		k.item.Order = i + 1
		kept[i] = k.item
	}
	return kept, skipped
}
