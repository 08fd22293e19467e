package emulator

import (
	"strings"

	"github.com/shunichi-ikebuchi/position-sync/pkg/tablestore"
)

// matchFilter reports whether page satisfies filter. A nil filter matches everything.
func matchFilter(page tablestore.Page, filter *tablestore.Filter) bool {
	if filter == nil {
		return true
	}

	for i := range filter.And {
		if !matchFilter(page, &filter.And[i]) {
			return false
		}
	}

	if filter.RichText != nil {
		text, _ := page.Text(filter.Property)
		cond := filter.RichText
		if cond.Equals != nil && text != *cond.Equals {
			return false
		}
		if cond.Contains != nil && !strings.Contains(text, *cond.Contains) {
			return false
		}
	}

	return true
}

// validateFilter rejects conditions on properties the database lacks.
func validateFilter(db *tablestore.Database, filter *tablestore.Filter) error {
	if filter == nil {
		return nil
	}
	for i := range filter.And {
		if err := validateFilter(db, &filter.And[i]); err != nil {
			return err
		}
	}
	if filter.RichText == nil {
		return nil
	}
	prop, ok := db.Properties[filter.Property]
	if !ok {
		return &ValidationError{Message: "Could not find property with name or id: " + filter.Property}
	}
	if prop.Type != tablestore.TypeRichText && prop.Type != tablestore.TypeTitle {
		return &ValidationError{Message: "Filter rich_text does not match property type " + string(prop.Type)}
	}
	return nil
}
