package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/repository"
)

// ImportListRequest describes one list and its contacts
type ImportListRequest struct {
	ID       string                  `json:"id" yaml:"id" validate:"required"`
	Name     string                  `json:"name" yaml:"name" validate:"required"`
	Contacts []*models.ContactRecord `json:"contacts" yaml:"contacts"`
}

// ImportListResult reports the state of a list after import
type ImportListResult struct {
	ListID       string `json:"list_id"`
	Imported     int    `json:"imported"`
	ContactCount int    `json:"contact_count"`
}

// ContactListService manages a company's recipient lists
type ContactListService interface {
	Import(ctx context.Context, companyID string, req *ImportListRequest) (*ImportListResult, error)
	ListByCompany(ctx context.Context, companyID string) ([]*models.RecipientList, error)
}

type contactListService struct {
	lists  repository.ContactListRepository
	logger zerolog.Logger
}

// NewContactListService creates a new contact list service
func NewContactListService(lists repository.ContactListRepository, logger zerolog.Logger) ContactListService {
	return &contactListService{
		lists:  lists,
		logger: logger.With().Str("component", "contact_lists").Logger(),
	}
}

// Import creates or renames the list and upserts its contacts
func (s *contactListService) Import(ctx context.Context, companyID string, req *ImportListRequest) (*ImportListResult, error) {
	if companyID == "" {
		return nil, models.NewValidationError("company_id", "is required")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	for i, c := range req.Contacts {
		if c == nil {
			return nil, models.NewValidationError(fmt.Sprintf("contacts[%d]", i), "is required")
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("contacts[%d]: %w", i, err)
		}
		c.ListID = req.ID
	}

	list := &models.RecipientList{
		ID:             req.ID,
		Name:           strings.TrimSpace(req.Name),
		OwnerCompanyID: companyID,
	}
	if err := s.lists.CreateList(ctx, list); err != nil {
		return nil, err
	}

	count, err := s.lists.UpsertContacts(ctx, list.ID, req.Contacts)
	if err != nil {
		s.logger.Error().Err(err).Str("list_id", list.ID).Msg("failed to import contacts")
		return nil, fmt.Errorf("failed to import contacts: %w", err)
	}

	s.logger.Info().
		Str("list_id", list.ID).
		Str("company_id", companyID).
		Int("imported", len(req.Contacts)).
		Int("contact_count", count).
		Msg("contact list imported")

	return &ImportListResult{ListID: list.ID, Imported: len(req.Contacts), ContactCount: count}, nil
}

// ListByCompany returns every list the company owns
func (s *contactListService) ListByCompany(ctx context.Context, companyID string) ([]*models.RecipientList, error) {
	return s.lists.ListByCompany(ctx, companyID)
}
