package search

import (
	"context"
	"errors"
	"testing"

	"leadflow/api/internal/store"
)

type fakeSearcher struct {
	ids     []int64
	err     error
	healthy bool
	calls   int
	lastCtx context.Context
}

func (f *fakeSearcher) SearchLeadIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	f.calls++
	f.lastCtx = ctx
	return f.ids, f.err
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

type fakeLeadSource struct {
	leads []store.Lead
	err   error
}

func (f *fakeLeadSource) ListLeadsByIDs(ctx context.Context, ids []int64) ([]store.Lead, error) {
	return f.leads, f.err
}

func TestSearchUsesPrimaryOrder(t *testing.T) {
	primary := &fakeSearcher{ids: []int64{3, 1}, healthy: true}
	fallback := &fakeSearcher{ids: []int64{1, 3}, healthy: true}
	source := &fakeLeadSource{leads: []store.Lead{{ID: 1, Name: "a"}, {ID: 3, Name: "b"}}}
	svc := NewService(primary, fallback, nil, source)

	got, err := svc.Search(context.Background(), "acme", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 1 {
		t.Fatalf("expected ranking order [3 1], got %+v", got)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not be called when primary succeeds")
	}
}

func TestSearchFallsBackWhenPrimaryUnhealthy(t *testing.T) {
	primary := &fakeSearcher{ids: []int64{3}, healthy: false}
	fallback := &fakeSearcher{ids: []int64{1}, healthy: true}
	source := &fakeLeadSource{leads: []store.Lead{{ID: 1}}}
	svc := NewService(primary, fallback, nil, source)

	got, err := svc.Search(context.Background(), "acme", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("unhealthy primary should be skipped")
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected fallback result, got %+v", got)
	}
}

func TestSearchFallsBackOnPrimaryError(t *testing.T) {
	primary := &fakeSearcher{err: errors.New("engine down"), healthy: true}
	fallback := &fakeSearcher{ids: []int64{2}, healthy: true}
	source := &fakeLeadSource{leads: []store.Lead{{ID: 2}}}
	svc := NewService(primary, fallback, nil, source)

	got, err := svc.Search(context.Background(), "acme", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("expected fallback call after primary error")
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("expected fallback result, got %+v", got)
	}
}

func TestSearchNilPrimary(t *testing.T) {
	fallback := &fakeSearcher{ids: []int64{}, healthy: true}
	svc := NewService(nil, fallback, nil, &fakeLeadSource{})

	got, err := svc.Search(context.Background(), "nothing", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestSearchPassesRequestContext(t *testing.T) {
	type ctxKey struct{}
	primary := &fakeSearcher{ids: []int64{1}, healthy: true}
	fallback := &fakeSearcher{err: errors.New("down"), healthy: true}
	source := &fakeLeadSource{leads: []store.Lead{{ID: 1}}}
	svc := NewService(primary, fallback, nil, source)

	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
	if _, err := svc.Search(ctx, "acme", 20); err != nil {
		t.Fatalf("search: %v", err)
	}
	if primary.lastCtx == nil || primary.lastCtx.Value(ctxKey{}) != "req-1" {
		t.Fatal("request context was not passed through to the searcher")
	}
}

func TestSearchDropsStaleHits(t *testing.T) {
	primary := &fakeSearcher{ids: []int64{5, 6}, healthy: true}
	source := &fakeLeadSource{leads: []store.Lead{{ID: 6}}}
	svc := NewService(primary, &fakeSearcher{}, nil, source)

	got, err := svc.Search(context.Background(), "acme", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != 6 {
		t.Fatalf("hit without a row should be dropped, got %+v", got)
	}
}
