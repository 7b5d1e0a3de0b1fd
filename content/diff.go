package content

import "sort"

// Field is the editable part of a Record as held by an admin screen.
type Field struct {
	Value    string    `json:"value"`
	Type     ValueType `json:"type"`
	Metadata Metadata  `json:"metadata,omitempty"`
	Order    int       `json:"order,omitempty"`
}

// Fields is a flat content map of one section, keyed by field key.
type Fields map[string]Field

// FieldsOf projects stored records into the map form admin screens edit.
func FieldsOf(records map[string]Record) Fields {
	out := make(Fields, len(records))
	for k, r := range records {
		out[k] = Field{Value: r.Value, Type: r.Type, Metadata: r.Metadata, Order: r.Order}
	}
	return out
}

// ChangeSet is the list of upserts a save has to issue.
type ChangeSet []UpsertInput

// DiffSection returns the fields of current that differ from original: new keys,
// a different value, type or metadata. A nil original means the first load
// failed or the section is new, so every field is changed. The result is sorted
// by key and empty when nothing changed.
func DiffSection(section string, original, current Fields) ChangeSet {
	keys := make([]string, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changes := ChangeSet{}
	for _, k := range keys {
		cur := current[k]
		if original != nil {
			if orig, ok := original[k]; ok && sameField(orig, cur) {
				continue
			}
		}
		changes = append(changes, UpsertInput{
			Collection: section,
			Key:        k,
			Value:      cur.Value,
			Type:       cur.Type,
			Metadata:   cur.Metadata,
			Order:      cur.Order,
		})
	}
	return changes
}

func sameField(a, b Field) bool {
	return a.Value == b.Value && normType(a.Type) == normType(b.Type) && a.Metadata.Equal(b.Metadata)
}

func normType(t ValueType) ValueType {
	if t == "" {
		return TypeText
	}
	return t
}

// CollectionChange is a wholesale resubmission of an ordered collection.
type CollectionChange struct {
	Collection string `json:"collection"`
	Items      []Item `json:"items"`
}

// CollectionChanged reports whether current differs from original in count,
// order or any field. Members are compared by position only.
func CollectionChanged(original, current []Item) bool {
	if original == nil {
		return true
	}
	if len(original) != len(current) {
		return true
	}
	for i := range current {
		if !sameItem(original[i], current[i]) {
			return true
		}
	}
	return false
}

// DiffCollection returns the whole collection as a single change when anything
// in it differs.
func DiffCollection(collection string, original, current []Item) (CollectionChange, bool) {
	if !CollectionChanged(original, current) {
		return CollectionChange{}, false
	}
	items := make([]Item, len(current))
	copy(items, current)
	return CollectionChange{Collection: collection, Items: items}, true
}

func sameItem(a, b Item) bool {
	if a.Order != b.Order {
		return false
	}
	for k, v := range a.Fields {
		if b.Fields[k] != v {
			return false
		}
	}
	for k, v := range b.Fields {
		if a.Fields[k] != v {
			return false
		}
	}
	return true
}
