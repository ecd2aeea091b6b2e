package search

import "context"

// LeadRecord is the data we index for a lead.
type LeadRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	Notes       string `json:"notes"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

// Searcher resolves a free-text query to matching lead ids, best first.
type Searcher interface {
	SearchLeadIDs(ctx context.Context, query string, limit int) ([]int64, error)
	Healthy() bool
}

// Indexer keeps the lead index in sync with the store.
type Indexer interface {
	IndexLead(record LeadRecord) error
	DeleteLead(id int64) error
}
