package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// ResourceDirectory implements domain.ResourceDirectory on the store's
// connection.
type ResourceDirectory struct {
	db *sql.DB
}

// Resources returns the resource directory view of the store.
func (s *Store) Resources() *ResourceDirectory {
	return &ResourceDirectory{db: s.db}
}

func (d *ResourceDirectory) Register(ctx context.Context, res domain.Resource) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO resources (id, owner_id, title) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET owner_id = excluded.owner_id, title = excluded.title`,
		res.ID, res.OwnerID, res.Title,
	)
	if err != nil {
		return fmt.Errorf("registering resource: %w", err)
	}
	return nil
}

func (d *ResourceDirectory) GetByID(ctx context.Context, id string) (domain.Resource, error) {
	var res domain.Resource
	err := d.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title FROM resources WHERE id = ?`, id,
	).Scan(&res.ID, &res.OwnerID, &res.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Resource{}, domain.ErrResourceNotFound
		}
		return domain.Resource{}, fmt.Errorf("loading resource: %w", err)
	}
	return res, nil
}

// IdentityDirectory implements domain.IdentityDirectory on the store's
// connection.
type IdentityDirectory struct {
	db *sql.DB
}

// Identities returns the identity directory view of the store.
func (s *Store) Identities() *IdentityDirectory {
	return &IdentityDirectory{db: s.db}
}

// Record upserts the actor's contact card. Each authenticated mutation
// refreshes it, so the directory follows what callers last presented.
func (d *IdentityDirectory) Record(ctx context.Context, userID string, card domain.ContactCard) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO identities (user_id, name, email, phone) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET name = excluded.name, email = excluded.email, phone = excluded.phone`,
		userID, card.Name, card.Email, card.Phone,
	)
	if err != nil {
		return fmt.Errorf("recording identity: %w", err)
	}
	return nil
}

// GetContact returns the stored card for userID, or an empty card when the
// directory has never seen them.
func (d *IdentityDirectory) GetContact(ctx context.Context, userID string) (domain.ContactCard, error) {
	var card domain.ContactCard
	err := d.db.QueryRowContext(ctx,
		`SELECT name, email, phone FROM identities WHERE user_id = ?`, userID,
	).Scan(&card.Name, &card.Email, &card.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ContactCard{}, nil
		}
		return domain.ContactCard{}, fmt.Errorf("loading contact: %w", err)
	}
	return card, nil
}
