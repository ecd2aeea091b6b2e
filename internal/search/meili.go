package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxLeads = "leadflow_leads"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the leads index.
// An unreachable server is tolerated; the health loop retries.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxLeads,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxLeads, err)
	}

	index := m.client.Index(idxLeads)
	searchable := []string{"name", "email", "phone_number", "address", "notes"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxLeads, err)
	}
	filterable := []interface{}{"status", "priority"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxLeads, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// SearchLeadIDs queries the leads index and returns matching ids, best first.
func (m *Meili) SearchLeadIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 50
	}

	resp, err := m.client.Index(idxLeads).SearchWithContext(ctx, query, &meili.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]int64, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if id, ok := hitID(hit); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func hitID(hit meili.Hit) (int64, bool) {
	raw, ok := hit["id"]
	if !ok {
		return 0, false
	}
	var id json.Number
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	parsed, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// IndexLead adds or replaces a lead document in the index.
func (m *Meili) IndexLead(record LeadRecord) error {
	if _, err := m.client.Index(idxLeads).AddDocuments([]LeadRecord{record}, nil); err != nil {
		return fmt.Errorf("index lead %d: %w", record.ID, err)
	}
	return nil
}

// DeleteLead removes a lead document from the index.
func (m *Meili) DeleteLead(id int64) error {
	if _, err := m.client.Index(idxLeads).DeleteDocument(strconv.FormatInt(id, 10), nil); err != nil {
		return fmt.Errorf("delete lead %d from index: %w", id, err)
	}
	return nil
}
