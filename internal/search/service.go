package search

import (
	"context"
	"log"

	"leadflow/api/internal/store"
)

// LeadSource hydrates search hits into full lead rows.
type LeadSource interface {
	ListLeadsByIDs(ctx context.Context, ids []int64) ([]store.Lead, error)
}

// Service tries the primary searcher first and falls back to the secondary
// when the primary is unconfigured, unhealthy or erroring. The secondary is
// expected to always be available (it runs against the main database).
type Service struct {
	primary  Searcher
	fallback Searcher
	indexer  Indexer
	leads    LeadSource
}

// NewService creates a search service. primary and indexer may be nil when no
// external search engine is configured.
func NewService(primary Searcher, fallback Searcher, indexer Indexer, leads LeadSource) *Service {
	return &Service{primary: primary, fallback: fallback, indexer: indexer, leads: leads}
}

// Search resolves a free-text query to leads, best match first.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]store.Lead, error) {
	if s.primary != nil && s.primary.Healthy() {
		ids, err := s.primary.SearchLeadIDs(ctx, query, limit)
		if err == nil {
			return s.hydrate(ctx, ids)
		}
		log.Printf("search: primary engine error, falling back: %v", err)
	}

	ids, err := s.fallback.SearchLeadIDs(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, ids)
}

// hydrate fetches the full rows and restores the ranking order of ids.
func (s *Service) hydrate(ctx context.Context, ids []int64) ([]store.Lead, error) {
	if len(ids) == 0 {
		return []store.Lead{}, nil
	}
	leads, err := s.leads.ListLeadsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.Lead, len(leads))
	for _, lead := range leads {
		byID[lead.ID] = lead
	}
	ordered := make([]store.Lead, 0, len(ids))
	for _, id := range ids {
		if lead, ok := byID[id]; ok {
			ordered = append(ordered, lead)
		}
	}
	return ordered, nil
}

// IndexLead pushes a lead into the search index (fire-and-forget).
func (s *Service) IndexLead(lead store.Lead) {
	if s.indexer == nil {
		return
	}
	record := LeadRecord{
		ID:          lead.ID,
		Name:        lead.Name,
		Email:       lead.Email,
		PhoneNumber: lead.PhoneNumber,
		Address:     lead.Address,
		Notes:       lead.Notes,
		Status:      lead.Status,
		Priority:    lead.Priority,
	}
	go func() {
		if err := s.indexer.IndexLead(record); err != nil {
			log.Printf("search: index lead %d: %v", record.ID, err)
		}
	}()
}

// RemoveLead drops a lead from the search index (fire-and-forget).
func (s *Service) RemoveLead(id int64) {
	if s.indexer == nil {
		return
	}
	go func() {
		if err := s.indexer.DeleteLead(id); err != nil {
			log.Printf("search: delete lead %d: %v", id, err)
		}
	}()
}
