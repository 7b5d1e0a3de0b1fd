package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffSectionSingleChange(t *testing.T) {
	original := Fields{"title": {Value: "A", Type: TypeText}}
	current := Fields{"title": {Value: "B", Type: TypeText}}

	got := DiffSection("hero", original, current)
	require.Len(t, got, 1)
	assert.Equal(t, UpsertInput{Collection: "hero", Key: "title", Value: "B", Type: TypeText}, got[0])
}

func TestDiffSectionUnchangedIsEmpty(t *testing.T) {
	fields := Fields{
		"title":    {Value: "A"},
		"subtitle": {Value: "B", Type: TypeText},
		"image":    {Value: "/a.png", Type: TypeImage, Metadata: Metadata{"width": 10}},
	}
	current := Fields{
		"title":    {Value: "A", Type: TypeText},
		"subtitle": {Value: "B"},
		"image":    {Value: "/a.png", Type: TypeImage, Metadata: Metadata{"width": 10.0}},
	}
	assert.Empty(t, DiffSection("hero", fields, current))
}

func TestDiffSectionMinimal(t *testing.T) {
	original := Fields{}
	current := Fields{}
	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		original[k] = Field{Value: k}
		current[k] = Field{Value: k}
	}
	current["c"] = Field{Value: "changed"}
	current["e"] = Field{Value: "e", Metadata: Metadata{"format": "html"}}
	current["g"] = Field{Value: "new"}

	got := DiffSection("s", original, current)
	keys := make([]string, len(got))
	for i, c := range got {
		keys[i] = c.Key
	}
	assert.Equal(t, []string{"c", "e", "g"}, keys)
}

func TestDiffSectionWithoutOriginal(t *testing.T) {
	current := Fields{"b": {Value: ""}, "a": {Value: "x"}}
	got := DiffSection("s", nil, current)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, "b", got[1].Key)
}

func TestDiffSectionIgnoresRemovedKeys(t *testing.T) {
	original := Fields{"a": {Value: "x"}, "gone": {Value: "y"}}
	current := Fields{"a": {Value: "x"}}
	assert.Empty(t, DiffSection("s", original, current))
}

func item(order int, kv ...string) Item {
	it := Item{Order: order, Fields: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		it.Fields[kv[i]] = kv[i+1]
	}
	return it
}

func TestCollectionChanged(t *testing.T) {
	base := []Item{item(1, "title", "A"), item(2, "title", "B")}

	tests := []struct {
		name    string
		current []Item
		want    bool
	}{
		{"same", []Item{item(1, "title", "A"), item(2, "title", "B")}, false},
		{"empty field equals missing", []Item{item(1, "title", "A", "icon", ""), item(2, "title", "B")}, false},
		{"field edit", []Item{item(1, "title", "A"), item(2, "title", "C")}, true},
		{"reordered", []Item{item(1, "title", "B"), item(2, "title", "A")}, true},
		{"removed", []Item{item(1, "title", "A")}, true},
		{"added", []Item{item(1, "title", "A"), item(2, "title", "B"), item(3, "title", "C")}, true},
		{"order changed", []Item{item(1, "title", "A"), item(3, "title", "B")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectionChanged(base, tt.current))
		})
	}
	assert.True(t, CollectionChanged(nil, []Item{}))
}

func TestDiffCollectionWholesale(t *testing.T) {
	original := []Item{item(1, "text", "a"), item(2, "text", "b"), item(3, "text", "c")}
	current := []Item{item(1, "text", "a"), item(2, "text", "B"), item(3, "text", "c")}

	change, ok := DiffCollection("testimonials", original, current)
	require.True(t, ok)
	assert.Equal(t, "testimonials", change.Collection)
	assert.Len(t, change.Items, 3, "the whole collection is resubmitted")

	_, ok = DiffCollection("testimonials", original, original)
	assert.False(t, ok)
}
