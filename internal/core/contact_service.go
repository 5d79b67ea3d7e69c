package core

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/rs/zerolog"
	"gwi.com/agenda/internal/store"
)

// ContactService owns the contact collection. Each operation is a full
// load, mutate and save under one lock, so writers in this process never
// interleave.
type ContactService struct {
	mu    sync.Mutex
	store store.ContactStore
}

func NewContactService(s store.ContactStore) *ContactService {
	return &ContactService{store: s}
}

func (s *ContactService) List(ctx context.Context) ([]store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	return contacts, nil
}

func (s *ContactService) Get(ctx context.Context, id int64) (store.Contact, error) {
	contacts, err := s.List(ctx)
	if err != nil {
		return store.Contact{}, err
	}
	i := store.IndexOf(contacts, id)
	if i < 0 {
		return store.Contact{}, &store.NotFoundError{ID: id}
	}
	return contacts[i], nil
}

// Create validates fields and appends a new contact. Any id in fields is
// ignored; the store assigns max+1.
func (s *ContactService) Create(ctx context.Context, fields map[string]any) (store.Contact, error) {
	fields = maps.Clone(fields)
	delete(fields, store.FieldID)

	contact, err := store.ValidateContact(fields)
	if err != nil {
		return store.Contact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contacts, err := s.store.Load(ctx)
	if err != nil {
		return store.Contact{}, fmt.Errorf("failed to load contacts: %w", err)
	}
	contact.ID = store.NextID(contacts)
	contacts = append(contacts, contact)
	if err := s.store.Save(ctx, contacts); err != nil {
		return store.Contact{}, fmt.Errorf("failed to save contacts: %w", err)
	}

	zerolog.Ctx(ctx).Info().Int64("contact_id", contact.ID).Msg("Contact created")
	return contact, nil
}

// Replace overwrites the contact with the given id. The stored id always
// comes from the argument, not from fields.
func (s *ContactService) Replace(ctx context.Context, id int64, fields map[string]any) (store.Contact, error) {
	fields = maps.Clone(fields)
	if fields == nil {
		fields = map[string]any{}
	}
	fields[store.FieldID] = id

	contact, err := store.ValidateContact(fields)
	if err != nil {
		return store.Contact{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contacts, err := s.store.Load(ctx)
	if err != nil {
		return store.Contact{}, fmt.Errorf("failed to load contacts: %w", err)
	}
	i := store.IndexOf(contacts, id)
	if i < 0 {
		return store.Contact{}, &store.NotFoundError{ID: id}
	}
	contacts[i] = contact
	if err := s.store.Save(ctx, contacts); err != nil {
		return store.Contact{}, fmt.Errorf("failed to save contacts: %w", err)
	}

	zerolog.Ctx(ctx).Info().Int64("contact_id", id).Msg("Contact replaced")
	return contact, nil
}

// Merge overlays patch onto the stored contact and saves the result only if
// the merged record validates.
func (s *ContactService) Merge(ctx context.Context, id int64, patch map[string]any) (store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts, err := s.store.Load(ctx)
	if err != nil {
		return store.Contact{}, fmt.Errorf("failed to load contacts: %w", err)
	}
	i := store.IndexOf(contacts, id)
	if i < 0 {
		return store.Contact{}, &store.NotFoundError{ID: id}
	}

	contact, err := store.ValidateUpdate(contacts[i], patch)
	if err != nil {
		return store.Contact{}, err
	}

	contacts[i] = contact
	if err := s.store.Save(ctx, contacts); err != nil {
		return store.Contact{}, fmt.Errorf("failed to save contacts: %w", err)
	}

	zerolog.Ctx(ctx).Info().Int64("contact_id", id).Msg("Contact updated")
	return contact, nil
}

func (s *ContactService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}
	i := store.IndexOf(contacts, id)
	if i < 0 {
		return &store.NotFoundError{ID: id}
	}
	contacts = append(contacts[:i], contacts[i+1:]...)
	if err := s.store.Save(ctx, contacts); err != nil {
		return fmt.Errorf("failed to save contacts: %w", err)
	}

	zerolog.Ctx(ctx).Info().Int64("contact_id", id).Msg("Contact deleted")
	return nil
}
