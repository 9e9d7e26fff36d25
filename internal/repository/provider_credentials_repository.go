package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/patrickmn/go-cache"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
)

// ProviderCredentialsRepository reads a company's stored provider secrets and defaults
type ProviderCredentialsRepository interface {
	Get(ctx context.Context, companyID string, provider models.Provider) (*models.ProviderCredentials, error)
	Upsert(ctx context.Context, creds *models.ProviderCredentials) error
}

// providerCredentialsRepository implements ProviderCredentialsRepository using PostgreSQL
type providerCredentialsRepository struct {
	db *sqlx.DB
}

// NewProviderCredentialsRepository creates a new provider credentials repository
func NewProviderCredentialsRepository(db *sqlx.DB) ProviderCredentialsRepository {
	return &providerCredentialsRepository{db: db}
}

// Get retrieves the credentials of one company for one provider
func (r *providerCredentialsRepository) Get(ctx context.Context, companyID string, provider models.Provider) (*models.ProviderCredentials, error) {
	query := `
		SELECT company_id, provider, api_key, sender_identity, settings, updated_at
		FROM provider_credentials
		WHERE company_id = $1 AND provider = $2`

	creds := &models.ProviderCredentials{}
	err := r.db.GetContext(ctx, creds, query, companyID, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("no %s credentials for company %s", provider, companyID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider credentials: %w", err)
	}

	return creds, nil
}

// Upsert stores credentials, replacing any previous value
func (r *providerCredentialsRepository) Upsert(ctx context.Context, creds *models.ProviderCredentials) error {
	query := `
		INSERT INTO provider_credentials (company_id, provider, api_key, sender_identity, settings)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, provider) DO UPDATE
		SET api_key = EXCLUDED.api_key,
			sender_identity = EXCLUDED.sender_identity,
			settings = EXCLUDED.settings,
			updated_at = NOW()
		RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		creds.CompanyID, creds.Provider, creds.APIKey, creds.SenderIdentity, creds.Settings,
	).Scan(&creds.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert provider credentials: %w", err)
	}

	return nil
}

// cachedCredentialsRepository keeps found credentials in memory for a TTL.
// Misses are not cached so newly stored credentials are picked up immediately.
type cachedCredentialsRepository struct {
	next  ProviderCredentialsRepository
	cache *cache.Cache
}

// NewCachedCredentialsRepository wraps next with an in-process TTL cache
func NewCachedCredentialsRepository(next ProviderCredentialsRepository, ttl time.Duration) ProviderCredentialsRepository {
	return &cachedCredentialsRepository{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func credentialsKey(companyID string, provider models.Provider) string {
	return companyID + "/" + string(provider)
}

func (r *cachedCredentialsRepository) Get(ctx context.Context, companyID string, provider models.Provider) (*models.ProviderCredentials, error) {
	key := credentialsKey(companyID, provider)
	if cached, found := r.cache.Get(key); found {
		creds := *cached.(*models.ProviderCredentials)
		return &creds, nil
	}

	creds, err := r.next.Get(ctx, companyID, provider)
	if err != nil {
		return nil, err
	}

	stored := *creds
	r.cache.Set(key, &stored, cache.DefaultExpiration)
	return creds, nil
}

func (r *cachedCredentialsRepository) Upsert(ctx context.Context, creds *models.ProviderCredentials) error {
	if err := r.next.Upsert(ctx, creds); err != nil {
		return err
	}
	r.cache.Delete(credentialsKey(creds.CompanyID, creds.Provider))
	return nil
}
