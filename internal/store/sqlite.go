package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore keeps the collection in a contacts table. Save rewrites the
// whole table inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS contacts (
        id INTEGER PRIMARY KEY,
        position INTEGER NOT NULL,
        nombre TEXT NOT NULL,
        telefono TEXT NOT NULL,
        email TEXT,
        direccion TEXT,
        ciudad TEXT,
        pais TEXT,
        fecha_nacimiento TEXT
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, nombre, telefono, email, direccion, ciudad, pais, fecha_nacimiento
        FROM contacts
        ORDER BY position ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	contacts := []Contact{}
	for rows.Next() {
		var c Contact
		var email, address, city, country, birthDate sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &email, &address, &city, &country, &birthDate); err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		c.Email = nullableString(email)
		c.Address = nullableString(address)
		c.City = nullableString(city)
		c.Country = nullableString(country)
		c.BirthDate = nullableString(birthDate)
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact rows: %w", err)
	}
	return contacts, nil
}

func (s *SQLiteStore) Save(ctx context.Context, contacts []Contact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM contacts"); err != nil {
		return fmt.Errorf("failed to clear contacts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO contacts (id, position, nombre, telefono, email, direccion, ciudad, pais, fecha_nacimiento)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare contact insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range contacts {
		_, err := stmt.ExecContext(ctx, c.ID, i, c.Name, c.Phone, c.Email, c.Address, c.City, c.Country, c.BirthDate)
		if err != nil {
			return fmt.Errorf("failed to insert contact %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contacts: %w", err)
	}
	return nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
