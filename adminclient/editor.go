package adminclient

import (
	"context"
	"maps"

	"go.uber.org/zap"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
)

// SectionEditor holds the snapshot of a section taken when an admin screen
// loaded. Save diffs the edited fields against it.
type SectionEditor struct {
	client   *Client
	section  string
	original content.Fields
}

// EditSection loads a section snapshot. When the load fails the editor is still
// returned, without a snapshot, so the first save sends every field.
func (c *Client) EditSection(ctx context.Context, section string) (*SectionEditor, error) {
	e := &SectionEditor{client: c, section: section}
	fields, err := c.FetchSection(ctx, section)
	if err != nil {
		c.logger.Warn("section snapshot failed, next save sends all fields",
			zap.String("section", section), zap.Error(err))
		return e, err
	}
	e.original = fields
	return e, nil
}

// Snapshot returns a copy of the fields as last loaded or saved.
func (e *SectionEditor) Snapshot() content.Fields {
	if e.original == nil {
		return nil
	}
	return maps.Clone(e.original)
}

// Save sends the fields of current that differ from the snapshot in a single
// bulk update. Nothing is sent when nothing changed. Fields that were saved
// successfully become part of the snapshot.
func (e *SectionEditor) Save(ctx context.Context, current content.Fields) ([]content.ItemResult, error) {
	changes := content.DiffSection(e.section, e.original, current)
	if len(changes) == 0 {
		return []content.ItemResult{}, nil
	}
	results, err := e.client.BulkUpdate(ctx, changes)
	if err != nil {
		return nil, err
	}
	if e.original == nil {
		e.original = content.Fields{}
	}
	for _, r := range results {
		if r.Success {
			e.original[r.Key] = current[r.Key]
		}
	}
	return results, nil
}

// CollectionEditor holds the snapshot of an ordered collection.
type CollectionEditor struct {
	client     *Client
	collection string
	original   []content.Item
}

// EditCollection loads a collection snapshot. As with EditSection, a failed
// load still yields an editor whose first save replaces the collection.
func (c *Client) EditCollection(ctx context.Context, collection string) (*CollectionEditor, error) {
	e := &CollectionEditor{client: c, collection: collection}
	items, err := c.FetchCollection(ctx, collection)
	if err != nil {
		c.logger.Warn("collection snapshot failed, next save replaces it",
			zap.String("collection", collection), zap.Error(err))
		return e, err
	}
	if items == nil {
		items = []content.Item{}
	}
	e.original = items
	return e, nil
}

// Save replaces the collection when current differs from the snapshot in
// count, order or any field. It reports whether a request was sent.
func (e *CollectionEditor) Save(ctx context.Context, current []content.Item) (ReplaceResult, bool, error) {
	change, changed := content.DiffCollection(e.collection, e.original, current)
	if !changed {
		return ReplaceResult{Count: len(e.original)}, false, nil
	}
	res, err := e.client.ReplaceCollection(ctx, change.Collection, change.Items)
	if err != nil {
		return res, true, err
	}
	// The server renumbers and filters; reload so the next diff is against
	// what was stored.
	if items, err := e.client.FetchCollection(ctx, e.collection); err == nil {
		e.original = items
	} else {
		e.original = nil
	}
	return res, true, nil
}
