package store

import (
	"encoding/json"
	"fmt"
)

// Contact is a directory entry. Optional fields are nil when absent and are
// serialised as null, matching the layout of database.json.
type Contact struct {
	ID        int64   `json:"id"`
	Name      string  `json:"nombre"`
	Phone     string  `json:"telefono"`
	Email     *string `json:"email"`
	Address   *string `json:"direccion"`
	City      *string `json:"ciudad"`
	Country   *string `json:"pais"`
	BirthDate *string `json:"fecha_nacimiento"`
}

// Fields returns the contact as a generic JSON object keyed by canonical
// field names. It is the shape used for merge-updates and queries.
func (c Contact) Fields() map[string]any {
	return map[string]any{
		FieldID:        c.ID,
		FieldName:      c.Name,
		FieldPhone:     c.Phone,
		FieldEmail:     derefOrNil(c.Email),
		FieldAddress:   derefOrNil(c.Address),
		FieldCity:      derefOrNil(c.City),
		FieldCountry:   derefOrNil(c.Country),
		FieldBirthDate: derefOrNil(c.BirthDate),
	}
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// ToDocument converts contacts into generic JSON values (the form a JSON
// decoder would produce), suitable for path-expression evaluation.
func ToDocument(contacts []Contact) ([]any, error) {
	raw, err := json.Marshal(contacts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contacts: %w", err)
	}
	doc := make([]any, 0, len(contacts))
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contacts document: %w", err)
	}
	return doc, nil
}

// NextID returns the id for a new contact: one more than the highest id in
// use, or 1 for an empty collection.
func NextID(contacts []Contact) int64 {
	var highest int64
	for _, c := range contacts {
		if c.ID > highest {
			highest = c.ID
		}
	}
	return highest + 1
}

// IndexOf returns the position of the contact with the given id, or -1.
func IndexOf(contacts []Contact, id int64) int {
	for i, c := range contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}
