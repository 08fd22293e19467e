package tablestore

import (
	"context"
	"fmt"
)

// KeyField is one column of a natural key. Key columns are rich text.
type KeyField struct {
	Name  string
	Value string
}

// Key builds a natural key from name, value pairs.
func Key(pairs ...string) []KeyField {
	if len(pairs)%2 != 0 {
		panic("tablestore.Key: odd number of arguments")
	}
	key := make([]KeyField, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key = append(key, KeyField{Name: pairs[i], Value: pairs[i+1]})
	}
	return key
}

// UpsertResult describes the row touched by an upsert.
type UpsertResult struct {
	PageID  string
	Created bool
}

// FindByKey returns the rows whose key columns equal the key exactly.
func (c *Client) FindByKey(ctx context.Context, tableID string, key []KeyField) ([]Page, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("table %s: empty natural key", tableID)
	}

	filters := make([]Filter, len(key))
	for i, k := range key {
		filters[i] = TextEquals(k.Name, k.Value)
	}
	filter := And(filters...)

	pages, err := c.QueryAll(ctx, tableID, &filter)
	if err != nil {
		return nil, err
	}

	// The API compares text loosely; keep exact matches only.
	matches := pages[:0]
	for _, p := range pages {
		if matchesKey(p, key) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func matchesKey(p Page, key []KeyField) bool {
	for _, k := range key {
		v, ok := p.Text(k.Name)
		if !ok || v != k.Value {
			return false
		}
	}
	return true
}

// Upsert looks up the row matching key. When none exists it creates one
// with the key columns, create and update. When exactly one exists it
// writes update only. More than one match is a *DuplicateKeyError.
func (c *Client) Upsert(ctx context.Context, tableID string, key []KeyField, create, update Properties) (UpsertResult, error) {
	pages, err := c.FindByKey(ctx, tableID, key)
	if err != nil {
		return UpsertResult{}, err
	}

	switch len(pages) {
	case 0:
		props := keyProperties(key).Merge(create, update)
		page, err := c.CreatePage(ctx, tableID, props)
		if err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{PageID: page.ID, Created: true}, nil
	case 1:
		if len(update) > 0 {
			if _, err := c.UpdatePage(ctx, pages[0].ID, update); err != nil {
				return UpsertResult{}, err
			}
		}
		return UpsertResult{PageID: pages[0].ID}, nil
	default:
		return UpsertResult{}, duplicateKey(tableID, key, pages)
	}
}

// UpdateExisting writes update to the row matching key. It does nothing
// when no row matches and returns an empty PageID.
func (c *Client) UpdateExisting(ctx context.Context, tableID string, key []KeyField, update Properties) (UpsertResult, error) {
	pages, err := c.FindByKey(ctx, tableID, key)
	if err != nil {
		return UpsertResult{}, err
	}

	switch len(pages) {
	case 0:
		return UpsertResult{}, nil
	case 1:
		if _, err := c.UpdatePage(ctx, pages[0].ID, update); err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{PageID: pages[0].ID}, nil
	default:
		return UpsertResult{}, duplicateKey(tableID, key, pages)
	}
}

func keyProperties(key []KeyField) Properties {
	props := make(Properties, len(key))
	for _, k := range key {
		props[k.Name] = TextProp(k.Value)
	}
	return props
}

func duplicateKey(tableID string, key []KeyField, pages []Page) error {
	ids := make([]string, len(pages))
	for i, p := range pages {
		ids[i] = p.ID
	}
	return &DuplicateKeyError{Table: tableID, Key: key, PageIDs: ids}
}
