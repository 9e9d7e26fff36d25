package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// ContactListRepository defines the interface for contact list data access
type ContactListRepository interface {
	GetListMetadata(ctx context.Context, listID string) (*models.RecipientList, error)
	GetContactsInList(ctx context.Context, listID string) ([]*models.ContactRecord, error)
	ListByCompany(ctx context.Context, companyID string) ([]*models.RecipientList, error)
	CreateList(ctx context.Context, list *models.RecipientList) error
	UpsertContacts(ctx context.Context, listID string, contacts []*models.ContactRecord) (int, error)
}

// contactListRepository implements ContactListRepository using PostgreSQL
type contactListRepository struct {
	db *sqlx.DB
}

// NewContactListRepository creates a new contact list repository
func NewContactListRepository(db *sqlx.DB) ContactListRepository {
	return &contactListRepository{db: db}
}

// GetListMetadata retrieves a list's name, owner and denormalized count
func (r *contactListRepository) GetListMetadata(ctx context.Context, listID string) (*models.RecipientList, error) {
	query := `
		SELECT id, name, owner_company_id, contact_count, created_at, updated_at
		FROM contact_lists
		WHERE id = $1`

	list := &models.RecipientList{}
	err := r.db.GetContext(ctx, list, query, listID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("contact list %s not found", listID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact list: %w", err)
	}

	return list, nil
}

// GetContactsInList returns a list's contacts in insertion order
func (r *contactListRepository) GetContactsInList(ctx context.Context, listID string) ([]*models.ContactRecord, error) {
	query := `
		SELECT id, list_id, email, phone, fields, created_at
		FROM contacts
		WHERE list_id = $1
		ORDER BY position`

	contacts := []*models.ContactRecord{}
	if err := r.db.SelectContext(ctx, &contacts, query, listID); err != nil {
		return nil, fmt.Errorf("failed to get contacts for list %s: %w", listID, err)
	}

	return contacts, nil
}

// ListByCompany returns every list owned by companyID
func (r *contactListRepository) ListByCompany(ctx context.Context, companyID string) ([]*models.RecipientList, error) {
	query := `
		SELECT id, name, owner_company_id, contact_count, created_at, updated_at
		FROM contact_lists
		WHERE owner_company_id = $1
		ORDER BY name`

	lists := []*models.RecipientList{}
	if err := r.db.SelectContext(ctx, &lists, query, companyID); err != nil {
		return nil, fmt.Errorf("failed to list contact lists: %w", err)
	}

	return lists, nil
}

// CreateList inserts a list, or renames it when the id already belongs to the same owner
func (r *contactListRepository) CreateList(ctx context.Context, list *models.RecipientList) error {
	query := `
		INSERT INTO contact_lists (id, name, owner_company_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
		WHERE contact_lists.owner_company_id = EXCLUDED.owner_company_id
		RETURNING contact_count, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query, list.ID, list.Name, list.OwnerCompanyID).
		Scan(&list.ContactCount, &list.CreatedAt, &list.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrConflictWithMsg(fmt.Sprintf("contact list %s belongs to another company", list.ID))
	}
	if err != nil {
		return fmt.Errorf("failed to create contact list: %w", err)
	}

	return nil
}

// UpsertContacts inserts or replaces contacts and refreshes the list's contact_count.
// It returns the live count after the write.
func (r *contactListRepository) UpsertContacts(ctx context.Context, listID string, contacts []*models.ContactRecord) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO contacts (id, list_id, email, phone, fields)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (list_id, id) DO UPDATE
		SET email = EXCLUDED.email, phone = EXCLUDED.phone, fields = EXCLUDED.fields`

	for _, c := range contacts {
		if _, err := tx.ExecContext(ctx, upsert, c.ID, listID, c.Email, c.Phone, c.Fields); err != nil {
			return 0, fmt.Errorf("failed to upsert contact %s: %w", c.ID, err)
		}
	}

	var count int
	recount := `
		UPDATE contact_lists
		SET contact_count = (SELECT COUNT(*) FROM contacts WHERE list_id = $1), updated_at = NOW()
		WHERE id = $1
		RETURNING contact_count`
	if err := tx.GetContext(ctx, &count, recount, listID); err != nil {
		return 0, fmt.Errorf("failed to refresh contact count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit contacts: %w", err)
	}

	return count, nil
}
