package store

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Canonical contact field names as they appear on the wire and on disk.
const (
	FieldID        = "id"
	FieldName      = "nombre"
	FieldPhone     = "telefono"
	FieldEmail     = "email"
	FieldAddress   = "direccion"
	FieldCity      = "ciudad"
	FieldCountry   = "pais"
	FieldBirthDate = "fecha_nacimiento"
)

// BirthDateLayout is the accepted format for fecha_nacimiento.
const BirthDateLayout = "2006-01-02"

// fieldAliases maps accepted English spellings onto canonical names.
var fieldAliases = map[string]string{
	"name":       FieldName,
	"phone":      FieldPhone,
	"address":    FieldAddress,
	"city":       FieldCity,
	"country":    FieldCountry,
	"birth_date": FieldBirthDate,
}

var knownFields = map[string]bool{
	FieldID:        true,
	FieldName:      true,
	FieldPhone:     true,
	FieldEmail:     true,
	FieldAddress:   true,
	FieldCity:      true,
	FieldCountry:   true,
	FieldBirthDate: true,
}

// MutableFields lists the fields a caller may set, in schema order.
var MutableFields = []string{FieldName, FieldPhone, FieldEmail, FieldAddress, FieldCity, FieldCountry, FieldBirthDate}

// FieldError describes one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a proposed contact does not satisfy the
// schema. It lists every offending field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid contact: " + strings.Join(parts, "; ")
}

// NotFoundError is returned when no contact has the requested id.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("contact %d not found", e.ID)
}

// NormalizeFields rewrites alias keys to their canonical names. Unknown keys
// and alias/canonical collisions are reported as field errors; the returned
// map never contains them.
func NormalizeFields(fields map[string]any) (map[string]any, []FieldError) {
	out := make(map[string]any, len(fields))
	var errs []FieldError
	for key, value := range fields {
		canonical := key
		if alias, ok := fieldAliases[key]; ok {
			canonical = alias
		}
		if !knownFields[canonical] {
			errs = append(errs, FieldError{Field: key, Message: "unknown field"})
			continue
		}
		if _, dup := out[canonical]; dup {
			errs = append(errs, FieldError{Field: canonical, Message: "given more than once (alias and canonical name)"})
			continue
		}
		out[canonical] = value
	}
	return out, errs
}

// ValidateContact checks a proposed set of fields against the contact schema
// and builds the resulting Contact. Unknown keys are rejected.
func ValidateContact(fields map[string]any) (Contact, error) {
	return validateContact(fields, true)
}

// validateStored applies the type and required-field checks only. Records
// written by older clients may carry birth dates in other formats.
func validateStored(fields map[string]any) (Contact, error) {
	return validateContact(fields, false)
}

func validateContact(fields map[string]any, checkDate bool) (Contact, error) {
	normalized, errs := NormalizeFields(fields)
	var c Contact

	if raw, ok := normalized[FieldID]; ok && raw != nil {
		id, ok := asInt64(raw)
		if !ok || id < 1 {
			errs = append(errs, FieldError{Field: FieldID, Message: "must be a positive integer"})
		} else {
			c.ID = id
		}
	}

	switch v, ok := normalized[FieldName]; {
	case !ok || v == nil:
		errs = append(errs, FieldError{Field: FieldName, Message: "field required"})
	default:
		s, isString := v.(string)
		switch {
		case !isString:
			errs = append(errs, FieldError{Field: FieldName, Message: "must be a string"})
		case strings.TrimSpace(s) == "":
			errs = append(errs, FieldError{Field: FieldName, Message: "must not be empty"})
		default:
			c.Name = s
		}
	}

	switch v, ok := normalized[FieldPhone]; {
	case !ok || v == nil:
		errs = append(errs, FieldError{Field: FieldPhone, Message: "field required"})
	default:
		if s, isString := v.(string); isString {
			c.Phone = s
		} else {
			errs = append(errs, FieldError{Field: FieldPhone, Message: "must be a string"})
		}
	}

	optional := []struct {
		field string
		dst   **string
	}{
		{FieldEmail, &c.Email},
		{FieldAddress, &c.Address},
		{FieldCity, &c.City},
		{FieldCountry, &c.Country},
		{FieldBirthDate, &c.BirthDate},
	}
	for _, o := range optional {
		v, ok := normalized[o.field]
		if !ok || v == nil {
			continue
		}
		s, isString := v.(string)
		if !isString {
			errs = append(errs, FieldError{Field: o.field, Message: "must be a string or null"})
			continue
		}
		*o.dst = &s
	}

	if checkDate && c.BirthDate != nil && *c.BirthDate != "" {
		if _, err := time.Parse(BirthDateLayout, *c.BirthDate); err != nil {
			errs = append(errs, FieldError{Field: FieldBirthDate, Message: "must be a date in YYYY-MM-DD format"})
		}
	}

	if len(errs) > 0 {
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return Contact{}, &ValidationError{Fields: errs}
	}
	return c, nil
}

// asInt64 accepts the numeric shapes produced by encoding/json and by Go
// callers, and reports whether the value is an exact integer.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// MergeFields overlays proposed fields onto an existing contact. The result
// still has to go through ValidateContact; MergeFields only rejects patches
// whose keys are unusable or that try to change the id.
func MergeFields(existing Contact, patch map[string]any) (map[string]any, error) {
	normalized, errs := NormalizeFields(patch)
	if raw, ok := normalized[FieldID]; ok {
		if id, isInt := asInt64(raw); !isInt || id != existing.ID {
			errs = append(errs, FieldError{Field: FieldID, Message: "is immutable"})
		}
	}
	if len(errs) > 0 {
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return nil, &ValidationError{Fields: errs}
	}

	merged := existing.Fields()
	for key, value := range normalized {
		merged[key] = value
	}
	return merged, nil
}

// ValidateUpdate merges patch into existing and validates the result. The
// birth date format is only enforced when the patch sets it, so a stored
// legacy date does not block unrelated edits.
func ValidateUpdate(existing Contact, patch map[string]any) (Contact, error) {
	merged, err := MergeFields(existing, patch)
	if err != nil {
		return Contact{}, err
	}
	normalized, _ := NormalizeFields(patch)
	_, setsDate := normalized[FieldBirthDate]
	return validateContact(merged, setsDate)
}

// decodeDocument parses a stored collection, accepting alias keys written by
// other clients, and checks every record for type and required fields.
func decodeDocument(raw []byte) ([]Contact, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to decode contacts document: %w", err)
	}
	contacts := make([]Contact, 0, len(records))
	for i, record := range records {
		c, err := validateStored(record)
		if err != nil {
			return nil, fmt.Errorf("stored record %d: %w", i, err)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}
