package service

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/models"
	"github.com/Raymond9734/campaign-dispatch-backend/internal/repository"
)

// Resolution is the deduplicated recipient set of a dispatch
type Resolution struct {
	Recipients        []models.Recipient
	DuplicatesRemoved int
	SkippedNoIdentity int
	Lists             []models.ListSummary
}

// RecipientResolver loads and deduplicates contacts from recipient lists
type RecipientResolver interface {
	Resolve(ctx context.Context, companyID string, listIDs []string, kind models.IdentityKind) (*Resolution, error)
}

// ResolverConfig tunes recipient resolution
type ResolverConfig struct {
	DefaultCountryCode string
	FetchConcurrency   int
}

type recipientResolver struct {
	lists  repository.ContactListRepository
	cfg    ResolverConfig
	logger zerolog.Logger
}

// NewRecipientResolver creates a new recipient resolver
func NewRecipientResolver(lists repository.ContactListRepository, cfg ResolverConfig, logger zerolog.Logger) RecipientResolver {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 4
	}
	return &recipientResolver{
		lists:  lists,
		cfg:    cfg,
		logger: logger.With().Str("component", "recipient_resolver").Logger(),
	}
}

type fetchedList struct {
	summary  models.ListSummary
	contacts []*models.ContactRecord
}

// Resolve fetches every list concurrently, then deduplicates in list input order so
// the first-seen contact wins. A missing, unreadable or foreign list contributes
// zero contacts. The only error is context cancellation.
func (r *recipientResolver) Resolve(ctx context.Context, companyID string, listIDs []string, kind models.IdentityKind) (*Resolution, error) {
	fetched := make([]fetchedList, len(listIDs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.FetchConcurrency)

	for i, listID := range listIDs {
		i, listID := i, listID
		eg.Go(func() error {
			fetched[i] = r.fetch(egCtx, companyID, listID)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Resolution{
		Recipients: []models.Recipient{},
		Lists:      make([]models.ListSummary, 0, len(fetched)),
	}
	seen := make(map[string]bool)

	for _, fl := range fetched {
		res.Lists = append(res.Lists, fl.summary)
		for _, c := range fl.contacts {
			key := models.IdentityKey(kind, c, r.cfg.DefaultCountryCode)
			if key == "" {
				res.SkippedNoIdentity++
				continue
			}
			if seen[key] {
				res.DuplicatesRemoved++
				continue
			}
			seen[key] = true
			res.Recipients = append(res.Recipients, models.Recipient{Contact: c, IdentityKey: key})
		}
	}

	r.logger.Debug().
		Str("company_id", companyID).
		Int("lists", len(listIDs)).
		Int("recipients", len(res.Recipients)).
		Int("duplicates_removed", res.DuplicatesRemoved).
		Int("skipped_no_identity", res.SkippedNoIdentity).
		Msg("recipients resolved")

	return res, nil
}

func (r *recipientResolver) fetch(ctx context.Context, companyID, listID string) fetchedList {
	out := fetchedList{summary: models.ListSummary{ListID: listID}}
	log := r.logger.With().Str("company_id", companyID).Str("list_id", listID).Logger()

	meta, err := r.lists.GetListMetadata(ctx, listID)
	if err != nil {
		log.Warn().Err(err).Msg("list unavailable, counting zero contacts")
		out.summary.Missing = true
		return out
	}
	if meta.OwnerCompanyID != companyID {
		log.Warn().Msg("list belongs to another company, counting zero contacts")
		out.summary.Missing = true
		return out
	}

	out.summary.Name = meta.Name
	out.summary.Declared = meta.ContactCount

	contacts, err := r.lists.GetContactsInList(ctx, listID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read list contacts, counting zero contacts")
		return out
	}

	out.contacts = contacts
	out.summary.Fetched = len(contacts)
	if out.summary.Fetched != out.summary.Declared {
		log.Info().
			Int("declared", out.summary.Declared).
			Int("fetched", out.summary.Fetched).
			Msg("list contact_count drifted from live count")
	}
	return out
}
