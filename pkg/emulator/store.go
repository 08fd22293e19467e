// Package emulator is a local stand-in for the remote database API. It keeps
// databases and pages in a bbolt file and serves them over HTTP with chi.
package emulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// ValidationError is returned for requests the API would reject with 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Bucket names.
const (
	BucketTokens    = "tokens"
	BucketDatabases = "databases"
	BucketPages     = "pages"
)

// Store represents the bbolt database wrapper.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// storedPage keeps the creation sequence used for stable query order.
type storedPage struct {
	Seq  uint64          `json:"seq"`
	Page tablestore.Page `json:"page"`
}

// New creates a new Store instance and initializes buckets.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{BucketTokens, BucketDatabases, BucketPages} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddToken registers an access token.
func (s *Store) AddToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketTokens)).Put([]byte(token), []byte(s.timestamp()))
	})
}

// ValidateToken reports whether token was registered.
func (s *Store) ValidateToken(token string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket([]byte(BucketTokens)).Get([]byte(token)) != nil
		return nil
	})
	return ok, err
}

// CreateDatabase creates a database. An empty id is replaced by a new UUID.
func (s *Store) CreateDatabase(id, title string, properties map[string]tablestore.PropertySchema) (*tablestore.Database, error) {
	if id == "" {
		id = uuid.NewString()
	}

	db := &tablestore.Database{
		Object:     "database",
		ID:         id,
		Properties: map[string]tablestore.PropertySchema{},
	}
	if title != "" {
		db.Title = []tablestore.RichText{{Type: "text", Text: &tablestore.TextContent{Content: title}, PlainText: title}}
	}
	if err := applySchema(db, properties); err != nil {
		return nil, err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketDatabases))
		if b.Get([]byte(id)) != nil {
			return &ValidationError{Message: fmt.Sprintf("database %s already exists", id)}
		}
		return putJSON(b, []byte(id), db)
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// GetDatabase retrieves a database by id.
func (s *Store) GetDatabase(id string) (*tablestore.Database, error) {
	var db tablestore.Database
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket([]byte(BucketDatabases)), []byte(id), &db)
	})
	if err != nil {
		return nil, err
	}
	return &db, nil
}

// UpdateDatabase adds or replaces properties of a database.
func (s *Store) UpdateDatabase(id string, properties map[string]tablestore.PropertySchema) (*tablestore.Database, error) {
	var db tablestore.Database
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketDatabases))
		if err := getJSON(b, []byte(id), &db); err != nil {
			return err
		}
		if err := applySchema(&db, properties); err != nil {
			return err
		}
		return putJSON(b, []byte(id), &db)
	})
	if err != nil {
		return nil, err
	}
	return &db, nil
}

func applySchema(db *tablestore.Database, properties map[string]tablestore.PropertySchema) error {
	for name, prop := range properties {
		if prop.Type == "" {
			prop.Type = inferSchemaType(prop)
		}
		switch prop.Type {
		case tablestore.TypeTitle, tablestore.TypeRichText, tablestore.TypeNumber,
			tablestore.TypeDate, tablestore.TypeSelect, tablestore.TypeFormula:
		default:
			return &ValidationError{Message: fmt.Sprintf("property %q: unsupported type %q", name, prop.Type)}
		}

		if existing, ok := db.Properties[name]; ok {
			prop.ID = existing.ID
		} else {
			prop.ID = uuid.NewString()[:8]
		}
		prop.Name = name
		if prop.Type == tablestore.TypeNumber && prop.Number == nil {
			prop.Number = &tablestore.NumberConfig{Format: tablestore.FormatNumber}
		}
		db.Properties[name] = prop
	}
	return nil
}

func inferSchemaType(p tablestore.PropertySchema) tablestore.ColumnType {
	switch {
	case p.Title != nil:
		return tablestore.TypeTitle
	case p.RichText != nil:
		return tablestore.TypeRichText
	case p.Number != nil:
		return tablestore.TypeNumber
	case p.Date != nil:
		return tablestore.TypeDate
	case p.Select != nil:
		return tablestore.TypeSelect
	case p.Formula != nil:
		return tablestore.TypeFormula
	}
	return ""
}

// CreatePage creates a row in a database.
func (s *Store) CreatePage(databaseID string, properties tablestore.Properties) (*tablestore.Page, error) {
	var page tablestore.Page
	err := s.db.Update(func(tx *bolt.Tx) error {
		var db tablestore.Database
		if err := getJSON(tx.Bucket([]byte(BucketDatabases)), []byte(databaseID), &db); err != nil {
			return err
		}

		values, err := checkProperties(&db, properties)
		if err != nil {
			return err
		}

		b := tx.Bucket([]byte(BucketPages))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		now := s.timestamp()
		page = tablestore.Page{
			Object:         "page",
			ID:             uuid.NewString(),
			CreatedTime:    now,
			LastEditedTime: now,
			Parent:         tablestore.Parent{Type: "database_id", DatabaseID: databaseID},
			Properties:     values,
		}
		evaluateFormulas(&db, &page)

		return putJSON(b, []byte(page.ID), storedPage{Seq: seq, Page: page})
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetPage retrieves a page by id.
func (s *Store) GetPage(id string) (*tablestore.Page, error) {
	var stored storedPage
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket([]byte(BucketPages)), []byte(id), &stored)
	})
	if err != nil {
		return nil, err
	}
	return &stored.Page, nil
}

// UpdatePage overwrites the given properties of a page.
func (s *Store) UpdatePage(id string, properties tablestore.Properties) (*tablestore.Page, error) {
	var stored storedPage
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketPages))
		if err := getJSON(b, []byte(id), &stored); err != nil {
			return err
		}

		var db tablestore.Database
		if err := getJSON(tx.Bucket([]byte(BucketDatabases)), []byte(stored.Page.Parent.DatabaseID), &db); err != nil {
			return err
		}

		values, err := checkProperties(&db, properties)
		if err != nil {
			return err
		}
		for name, v := range values {
			stored.Page.Properties[name] = v
		}
		stored.Page.LastEditedTime = s.timestamp()
		evaluateFormulas(&db, &stored.Page)

		return putJSON(b, []byte(id), stored)
	})
	if err != nil {
		return nil, err
	}
	return &stored.Page, nil
}

// QueryPages returns one page of rows of a database matching filter,
// in creation order. cursor is the id of the first row to return.
func (s *Store) QueryPages(databaseID string, filter *tablestore.Filter, cursor string, size int) (*tablestore.QueryResponse, error) {
	if size <= 0 || size > 100 {
		size = 100
	}

	var matches []storedPage
	err := s.db.View(func(tx *bolt.Tx) error {
		var db tablestore.Database
		if err := getJSON(tx.Bucket([]byte(BucketDatabases)), []byte(databaseID), &db); err != nil {
			return err
		}
		if err := validateFilter(&db, filter); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketPages)).ForEach(func(k, v []byte) error {
			var p storedPage
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.Page.Parent.DatabaseID == databaseID && matchFilter(p.Page, filter) {
				matches = append(matches, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Seq < matches[j].Seq })

	start := 0
	if cursor != "" {
		start = -1
		for i, p := range matches {
			if p.Page.ID == cursor {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("start_cursor %s is invalid", cursor)}
		}
	}

	end := start + size
	if end > len(matches) {
		end = len(matches)
	}

	resp := &tablestore.QueryResponse{Object: "list", Results: []tablestore.Page{}}
	for _, p := range matches[start:end] {
		resp.Results = append(resp.Results, p.Page)
	}
	if end < len(matches) {
		next := matches[end].Page.ID
		resp.HasMore = true
		resp.NextCursor = &next
	}
	return resp, nil
}

// checkProperties validates property values against the database schema
// and returns them normalized with type and id set.
func checkProperties(db *tablestore.Database, properties tablestore.Properties) (tablestore.Properties, error) {
	values := make(tablestore.Properties, len(properties))
	for name, v := range properties {
		schema, ok := db.Properties[name]
		if !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("%s is not a property that exists.", name)}
		}
		if schema.Type == tablestore.TypeFormula {
			return nil, &ValidationError{Message: fmt.Sprintf("%s is a formula property and cannot be written.", name)}
		}

		got := v.Type
		if got == "" {
			got = inferValueType(v)
		}
		if got != schema.Type {
			return nil, &ValidationError{Message: fmt.Sprintf("%s is expected to be %s.", name, schema.Type)}
		}

		v.Type = schema.Type
		v.ID = schema.ID
		for i := range v.RichText {
			if v.RichText[i].Text != nil {
				v.RichText[i].PlainText = v.RichText[i].Text.Content
			}
		}
		for i := range v.Title {
			if v.Title[i].Text != nil {
				v.Title[i].PlainText = v.Title[i].Text.Content
			}
		}
		values[name] = v
	}
	return values, nil
}

func inferValueType(v tablestore.PropertyValue) tablestore.ColumnType {
	switch {
	case v.Title != nil:
		return tablestore.TypeTitle
	case v.RichText != nil:
		return tablestore.TypeRichText
	case v.Number != nil:
		return tablestore.TypeNumber
	case v.Date != nil:
		return tablestore.TypeDate
	case v.Select != nil:
		return tablestore.TypeSelect
	}
	return ""
}

// evaluateFormulas refreshes every formula property of a page.
func evaluateFormulas(db *tablestore.Database, page *tablestore.Page) {
	for name, schema := range db.Properties {
		if schema.Type != tablestore.TypeFormula || schema.Formula == nil {
			continue
		}
		value := tablestore.PropertyValue{ID: schema.ID, Type: tablestore.TypeFormula, Formula: &tablestore.FormulaValue{Type: "number"}}
		if n, err := Evaluate(schema.Formula.Expression, *page); err == nil {
			value.Formula.Number = &n
		}
		page.Properties[name] = value
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func putJSON(b *bolt.Bucket, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return b.Put(key, data)
}

func getJSON(b *bolt.Bucket, key []byte, value any) error {
	data := b.Get(key)
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, value)
}
