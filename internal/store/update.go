package store

import (
	"errors"
	"fmt"
	"strings"

	"expenses/internal/core"
)

// ErrInvalidField is returned when an update names a field records do not have.
var ErrInvalidField = errors.New("invalid field")

// Update changes one field of a record. The set of implementations is closed:
// SetDate, SetCategory, SetDescription, SetAmount, SetCurrency and SetNotes.
type Update interface {
	apply(r *core.Record) error
	// Field returns the JSON name of the field the update changes.
	Field() string
}

type (
	SetDate        string
	SetCategory    core.Category
	SetDescription string
	SetAmount      string
	SetCurrency    string
	SetNotes       string
)

func (u SetDate) Field() string        { return "date" }
func (u SetCategory) Field() string    { return "category" }
func (u SetDescription) Field() string { return "description" }
func (u SetAmount) Field() string      { return "amount" }
func (u SetCurrency) Field() string    { return "currency" }
func (u SetNotes) Field() string       { return "notes" }

func (u SetDate) apply(r *core.Record) error {
	r.Date = string(u)
	return nil
}

func (u SetCategory) apply(r *core.Record) error {
	if err := core.Category(u).Validate(); err != nil {
		return fmt.Errorf("%w: %q", err, string(u))
	}
	r.Category = core.Category(u)
	return nil
}

func (u SetDescription) apply(r *core.Record) error {
	r.Description = string(u)
	return nil
}

// SetAmount stores the text as entered; it is parsed only when computing.
func (u SetAmount) apply(r *core.Record) error {
	r.Amount = string(u)
	return nil
}

func (u SetCurrency) apply(r *core.Record) error {
	if _, err := core.LookupCurrency(string(u)); err != nil {
		return err
	}
	r.Currency = string(u)
	return nil
}

func (u SetNotes) apply(r *core.Record) error {
	r.Notes = string(u)
	return nil
}

// ParseUpdate builds an Update from a field name, as used by form style callers.
func ParseUpdate(field, value string) (Update, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "date":
		return SetDate(value), nil
	case "category":
		c, err := core.ParseCategory(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, value)
		}
		return SetCategory(c), nil
	case "description":
		return SetDescription(value), nil
	case "amount":
		return SetAmount(value), nil
	case "currency":
		return SetCurrency(strings.ToUpper(strings.TrimSpace(value))), nil
	case "notes":
		return SetNotes(value), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
}

// Fields returns the names accepted by ParseUpdate.
func Fields() []string {
	return []string{"date", "category", "description", "amount", "currency", "notes"}
}
