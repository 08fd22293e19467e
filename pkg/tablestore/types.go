// Package tablestore provides a client for a Notion style database API:
// database schemas, paginated page queries and natural key upserts.
package tablestore

import (
	"sort"
	"strings"
)

// ColumnType is the type tag of a database property.
type ColumnType string

const (
	TypeTitle    ColumnType = "title"
	TypeRichText ColumnType = "rich_text"
	TypeNumber   ColumnType = "number"
	TypeDate     ColumnType = "date"
	TypeSelect   ColumnType = "select"
	TypeFormula  ColumnType = "formula"
)

// Number display formats.
const (
	FormatNumber  = "number"
	FormatPercent = "percent"
)

// Column is a required database column. The set of implementations is closed.
type Column interface {
	Type() ColumnType
	schema() PropertySchema
}

// TextColumn is a rich text column.
type TextColumn struct{}

// NumberColumn is a number column with a display format such as
// "number", "percent" or a currency like "hong_kong_dollar".
type NumberColumn struct {
	Format string
}

// DateColumn is a date column.
type DateColumn struct{}

// SelectColumn is a single select column.
type SelectColumn struct {
	Options []Option
}

// FormulaColumn is a read-only column computed from other columns.
type FormulaColumn struct {
	Expression string
}

func (TextColumn) Type() ColumnType    { return TypeRichText }
func (NumberColumn) Type() ColumnType  { return TypeNumber }
func (DateColumn) Type() ColumnType    { return TypeDate }
func (SelectColumn) Type() ColumnType  { return TypeSelect }
func (FormulaColumn) Type() ColumnType { return TypeFormula }

func (TextColumn) schema() PropertySchema {
	return PropertySchema{Type: TypeRichText, RichText: &struct{}{}}
}

func (c NumberColumn) schema() PropertySchema {
	format := c.Format
	if format == "" {
		format = FormatNumber
	}
	return PropertySchema{Type: TypeNumber, Number: &NumberConfig{Format: format}}
}

func (DateColumn) schema() PropertySchema {
	return PropertySchema{Type: TypeDate, Date: &struct{}{}}
}

func (c SelectColumn) schema() PropertySchema {
	options := make([]Option, len(c.Options))
	copy(options, c.Options)
	return PropertySchema{Type: TypeSelect, Select: &SelectConfig{Options: options}}
}

func (c FormulaColumn) schema() PropertySchema {
	return PropertySchema{Type: TypeFormula, Formula: &FormulaConfig{Expression: c.Expression}}
}

// Schema maps column names to their required definition.
type Schema map[string]Column

// Names returns the column names, sorted.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Option is a select option.
type Option struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// NumberConfig is the configuration of a number property.
type NumberConfig struct {
	Format string `json:"format"`
}

// SelectConfig is the configuration of a select property.
type SelectConfig struct {
	Options []Option `json:"options"`
}

// FormulaConfig is the configuration of a formula property.
type FormulaConfig struct {
	Expression string `json:"expression"`
}

// PropertySchema is the wire form of a database property.
type PropertySchema struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Type     ColumnType     `json:"type,omitempty"`
	Title    *struct{}      `json:"title,omitempty"`
	RichText *struct{}      `json:"rich_text,omitempty"`
	Number   *NumberConfig  `json:"number,omitempty"`
	Date     *struct{}      `json:"date,omitempty"`
	Select   *SelectConfig  `json:"select,omitempty"`
	Formula  *FormulaConfig `json:"formula,omitempty"`
}

// Database represents a database object.
type Database struct {
	Object     string                    `json:"object"`
	ID         string                    `json:"id"`
	Title      []RichText                `json:"title,omitempty"`
	Properties map[string]PropertySchema `json:"properties"`
}

// RichText is a rich text fragment.
type RichText struct {
	Type      string       `json:"type"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

// TextContent is the content of a text fragment.
type TextContent struct {
	Content string `json:"content"`
}

// DateValue is the value of a date property.
type DateValue struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

// SelectValue is the value of a select property.
type SelectValue struct {
	Name string `json:"name"`
}

// FormulaValue is the computed value of a formula property.
type FormulaValue struct {
	Type   string   `json:"type"`
	Number *float64 `json:"number,omitempty"`
	String *string  `json:"string,omitempty"`
}

// PropertyValue is the value of one page property.
type PropertyValue struct {
	ID       string        `json:"id,omitempty"`
	Type     ColumnType    `json:"type,omitempty"`
	Title    []RichText    `json:"title,omitempty"`
	RichText []RichText    `json:"rich_text,omitempty"`
	Number   *float64      `json:"number,omitempty"`
	Date     *DateValue    `json:"date,omitempty"`
	Select   *SelectValue  `json:"select,omitempty"`
	Formula  *FormulaValue `json:"formula,omitempty"`
}

// Properties maps property names to values.
type Properties map[string]PropertyValue

// Merge returns a new Properties holding p overlaid with others, left to right.
func (p Properties) Merge(others ...Properties) Properties {
	result := make(Properties, len(p))
	for k, v := range p {
		result[k] = v
	}
	for _, o := range others {
		for k, v := range o {
			result[k] = v
		}
	}
	return result
}

// Parent identifies the database a page belongs to.
type Parent struct {
	Type       string `json:"type,omitempty"`
	DatabaseID string `json:"database_id"`
}

// Page represents a database row.
type Page struct {
	Object         string     `json:"object"`
	ID             string     `json:"id"`
	CreatedTime    string     `json:"created_time,omitempty"`
	LastEditedTime string     `json:"last_edited_time,omitempty"`
	Parent         Parent     `json:"parent"`
	Properties     Properties `json:"properties"`
}

// Text returns the plain text of a rich text, title or select property.
func (p Page) Text(name string) (string, bool) {
	v, ok := p.Properties[name]
	if !ok {
		return "", false
	}
	switch v.Type {
	case TypeSelect:
		if v.Select == nil {
			return "", false
		}
		return v.Select.Name, true
	case TypeTitle:
		return PlainText(v.Title), true
	default:
		return PlainText(v.RichText), true
	}
}

// Number returns the value of a number property, or of a formula that evaluates to a number.
func (p Page) Number(name string) (float64, bool) {
	v, ok := p.Properties[name]
	if !ok {
		return 0, false
	}
	if v.Number != nil {
		return *v.Number, true
	}
	if v.Formula != nil && v.Formula.Number != nil {
		return *v.Formula.Number, true
	}
	return 0, false
}

// Date returns the start of a date property.
func (p Page) Date(name string) (string, bool) {
	v, ok := p.Properties[name]
	if !ok || v.Date == nil {
		return "", false
	}
	return v.Date.Start, true
}

// PlainText concatenates rich text fragments.
func PlainText(fragments []RichText) string {
	var b strings.Builder
	for _, f := range fragments {
		switch {
		case f.Text != nil:
			b.WriteString(f.Text.Content)
		default:
			b.WriteString(f.PlainText)
		}
	}
	return b.String()
}

// TextProp builds a rich text property value.
func TextProp(s string) PropertyValue {
	return PropertyValue{Type: TypeRichText, RichText: []RichText{{Type: "text", Text: &TextContent{Content: s}, PlainText: s}}}
}

// NumberProp builds a number property value.
func NumberProp(f float64) PropertyValue {
	return PropertyValue{Type: TypeNumber, Number: &f}
}

// DateProp builds a date property value from a YYYY-MM-DD string.
func DateProp(start string) PropertyValue {
	return PropertyValue{Type: TypeDate, Date: &DateValue{Start: start}}
}

// SelectProp builds a select property value.
func SelectProp(name string) PropertyValue {
	return PropertyValue{Type: TypeSelect, Select: &SelectValue{Name: name}}
}

// Filter is a database query filter.
type Filter struct {
	Property string         `json:"property,omitempty"`
	RichText *TextCondition `json:"rich_text,omitempty"`
	And      []Filter       `json:"and,omitempty"`
}

// TextCondition is a condition on a rich text property.
type TextCondition struct {
	Equals   *string `json:"equals,omitempty"`
	Contains *string `json:"contains,omitempty"`
}

// TextEquals matches pages whose rich text property equals value.
func TextEquals(property, value string) Filter {
	return Filter{Property: property, RichText: &TextCondition{Equals: &value}}
}

// TextContains matches pages whose rich text property contains value.
func TextContains(property, value string) Filter {
	return Filter{Property: property, RichText: &TextCondition{Contains: &value}}
}

// And matches pages that satisfy every filter.
func And(filters ...Filter) Filter {
	return Filter{And: filters}
}

// QueryRequest is the body of a database query.
type QueryRequest struct {
	Filter      *Filter `json:"filter,omitempty"`
	StartCursor string  `json:"start_cursor,omitempty"`
	PageSize    int     `json:"page_size,omitempty"`
}

// QueryResponse is a page of query results.
type QueryResponse struct {
	Object     string  `json:"object"`
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// CreatePageRequest is the body of a page creation.
type CreatePageRequest struct {
	Parent     Parent     `json:"parent"`
	Properties Properties `json:"properties"`
}

// UpdatePageRequest is the body of a page update.
type UpdatePageRequest struct {
	Properties Properties `json:"properties"`
}

// UpdateDatabaseRequest is the body of a database update.
type UpdateDatabaseRequest struct {
	Properties map[string]PropertySchema `json:"properties"`
}
