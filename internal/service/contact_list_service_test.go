package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

func TestContactListService_Import(t *testing.T) {
	lists := newMockListRepository()
	svc := NewContactListService(lists, zerolog.Nop())

	result, err := svc.Import(context.Background(), "co-1", &ImportListRequest{
		ID:   "vip",
		Name: " VIP customers ",
		Contacts: []*models.ContactRecord{
			{ID: "1", Phone: "9876543210"},
			{ID: "2", Email: "a@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, &ImportListResult{ListID: "vip", Imported: 2, ContactCount: 2}, result)

	// Re-import replaces by contact id
	result, err = svc.Import(context.Background(), "co-1", &ImportListRequest{
		ID:       "vip",
		Name:     "VIP",
		Contacts: []*models.ContactRecord{{ID: "2", Email: "b@example.com"}, {ID: "3", Phone: "9123456789"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ContactCount)

	owned, err := svc.ListByCompany(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "VIP", owned[0].Name)
	assert.Equal(t, "vip", lists.contacts["vip"][0].ListID)
}

func TestContactListService_Import_Validation(t *testing.T) {
	svc := NewContactListService(newMockListRepository(), zerolog.Nop())

	tests := []struct {
		name      string
		companyID string
		req       *ImportListRequest
		field     string
	}{
		{"missing company", "", &ImportListRequest{ID: "l", Name: "n"}, "company_id"},
		{"missing id", "co-1", &ImportListRequest{Name: "n"}, "id"},
		{"missing name", "co-1", &ImportListRequest{ID: "l"}, "name"},
		{"nil contact", "co-1", &ImportListRequest{ID: "l", Name: "n", Contacts: []*models.ContactRecord{nil}}, "contacts[0]"},
		{"contact without address", "co-1", &ImportListRequest{ID: "l", Name: "n", Contacts: []*models.ContactRecord{{ID: "1"}}}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(context.Background(), tt.companyID, tt.req)
			var vErr *models.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestContactListService_Import_ForeignList(t *testing.T) {
	lists := newMockListRepository()
	lists.addList("co-2", "shared")
	svc := NewContactListService(lists, zerolog.Nop())

	_, err := svc.Import(context.Background(), "co-1", &ImportListRequest{ID: "shared", Name: "mine"})
	assert.ErrorIs(t, err, models.ErrConflict)
}
