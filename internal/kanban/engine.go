package kanban

import (
	"context"
	"fmt"
	"log"
	"sync"

	"leadflow/api/internal/store"
)

// Gateway is the engine's view of the remote store. *store.PostgresStore
// satisfies it; tests substitute fakes.
type Gateway interface {
	ListLeads(ctx context.Context) ([]store.Lead, error)
	ListStages(ctx context.Context) ([]store.Stage, error)
	CreateStage(ctx context.Context, title, color string) (store.Stage, error)
	UpdateStage(ctx context.Context, stageID string, title, color *string) (store.Stage, error)
	DeleteStage(ctx context.Context, stageID, fallbackStageID string) error
	UpdatePositions(ctx context.Context, positions []store.StagePosition) error
	UpdateLeadStatus(ctx context.Context, leadID int64, status string) (store.Lead, error)
	DeleteLead(ctx context.Context, leadID int64) error
	CreateHistoryEntry(ctx context.Context, entry store.HistoryEntry) (store.HistoryEntry, error)
}

// StagePatch is a partial stage edit; nil fields are left untouched.
type StagePatch struct {
	Title *string
	Color *Color
}

// Engine owns the working copy of stages and leads and pairs every
// successful cross-stage move with a history entry.
//
// The mutex guards the working copy for memory safety only; it is never held
// across a remote call. Overlapping intents against the same lead therefore
// race, and the last remote call to resolve determines the final
// working-copy state.
type Engine struct {
	gateway Gateway

	mu     sync.Mutex
	stages []StageMeta
	leads  []store.Lead
	view   []Stage
}

func New(gateway Gateway) *Engine {
	return &Engine{gateway: gateway, view: []Stage{}}
}

// Load fetches authoritative state from the remote store and rebuilds the
// working copy. It is both the initial load and the full-resync path.
func (e *Engine) Load(ctx context.Context) error {
	stages, err := e.gateway.ListStages(ctx)
	if err != nil {
		return remoteError("load stages", err)
	}
	leads, err := e.gateway.ListLeads(ctx)
	if err != nil {
		return remoteError("load leads", err)
	}

	metas := make([]StageMeta, len(stages))
	for i, stage := range stages {
		metas[i] = StageMeta{
			ID:       stage.ID,
			Title:    stage.Title,
			Color:    Color(stage.Color),
			Position: stage.Position,
		}
	}

	e.mutate(func() {
		e.stages = metas
		e.leads = leads
	})
	return nil
}

// View returns the current resolved snapshot. The returned slice is replaced,
// never mutated, on the next recomputation, so callers may hold it.
func (e *Engine) View() []Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Stages returns the ordered stage metadata of the working copy.
func (e *Engine) Stages() []StageMeta {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]StageMeta, len(e.stages))
	copy(out, e.stages)
	return out
}

// mutate applies fn to the working copy under the lock and recomputes the
// derived view. Every local mutation goes through here so the view is never
// stale.
func (e *Engine) mutate(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
	e.view = Resolve(e.leads, e.stages)
}

// MoveLead moves a lead to another stage: optimistic status change first,
// then the remote update, then a best-effort history entry. A failed remote
// update restores the previous status; a failed history write is logged and
// does not undo the move. Moving a lead onto its current stage is a no-op.
func (e *Engine) MoveLead(ctx context.Context, leadID int64, targetStageID, notes string) error {
	e.mu.Lock()
	idx := e.leadIndex(leadID)
	if idx < 0 {
		e.mu.Unlock()
		return ErrUnknownLead
	}
	target, ok := e.stageByID(targetStageID)
	if !ok {
		e.mu.Unlock()
		return ErrUnknownStage
	}
	prevStatus := e.leads[idx].Status
	if prevStatus == targetStageID {
		e.mu.Unlock()
		return nil
	}
	fromTitle := e.stageTitle(prevStatus)
	e.mu.Unlock()

	e.mutate(func() {
		if i := e.leadIndex(leadID); i >= 0 {
			e.leads[i].Status = targetStageID
		}
	})

	updated, err := e.gateway.UpdateLeadStatus(ctx, leadID, targetStageID)
	if err != nil {
		e.mutate(func() {
			if i := e.leadIndex(leadID); i >= 0 && e.leads[i].Status == targetStageID {
				e.leads[i].Status = prevStatus
			}
		})
		return remoteError(fmt.Sprintf("move lead %d", leadID), err)
	}

	e.mutate(func() {
		if i := e.leadIndex(leadID); i >= 0 {
			e.leads[i] = updated
		}
	})

	if _, histErr := e.gateway.CreateHistoryEntry(ctx, store.HistoryEntry{
		LeadID:          leadID,
		FromColumn:      prevStatus,
		ToColumn:        targetStageID,
		FromColumnTitle: fromTitle,
		ToColumnTitle:   target.Title,
		Notes:           notes,
	}); histErr != nil {
		// History is an audit nicety, not part of the move's contract.
		log.Printf("kanban: history entry for lead %d (%s -> %s) failed: %v", leadID, prevStatus, targetStageID, histErr)
	}
	return nil
}

// DeleteLead removes a lead optimistically and reinserts it if the remote
// delete fails. History rows cascade away with the lead on the remote side.
func (e *Engine) DeleteLead(ctx context.Context, leadID int64) error {
	e.mu.Lock()
	idx := e.leadIndex(leadID)
	if idx < 0 {
		e.mu.Unlock()
		return ErrUnknownLead
	}
	snapshot := e.leads[idx]
	e.mu.Unlock()

	e.mutate(func() {
		if i := e.leadIndex(leadID); i >= 0 {
			e.leads = append(e.leads[:i], e.leads[i+1:]...)
		}
	})

	if err := e.gateway.DeleteLead(ctx, leadID); err != nil {
		e.mutate(func() {
			if e.leadIndex(leadID) < 0 {
				e.leads = append(e.leads, snapshot)
			}
		})
		return remoteError(fmt.Sprintf("delete lead %d", leadID), err)
	}
	return nil
}

// AddStage creates a stage at the end of the pipeline. Nothing is applied
// locally until the remote create succeeds, so there is nothing to roll back.
func (e *Engine) AddStage(ctx context.Context, title string, color Color) (StageMeta, error) {
	created, err := e.gateway.CreateStage(ctx, title, string(color))
	if err != nil {
		return StageMeta{}, remoteError("add stage", err)
	}

	meta := StageMeta{
		ID:       created.ID,
		Title:    created.Title,
		Color:    Color(created.Color),
		Position: created.Position,
	}
	e.mutate(func() {
		e.stages = append(e.stages, meta)
	})
	return meta, nil
}

// UpdateStage edits stage title or color. Low-frequency path: the patch is
// merged only after the remote update succeeds.
func (e *Engine) UpdateStage(ctx context.Context, stageID string, patch StagePatch) (StageMeta, error) {
	e.mu.Lock()
	_, ok := e.stageByID(stageID)
	e.mu.Unlock()
	if !ok {
		return StageMeta{}, ErrUnknownStage
	}

	var colorStr *string
	if patch.Color != nil {
		s := string(*patch.Color)
		colorStr = &s
	}
	updated, err := e.gateway.UpdateStage(ctx, stageID, patch.Title, colorStr)
	if err != nil {
		return StageMeta{}, remoteError("update stage "+stageID, err)
	}

	meta := StageMeta{
		ID:       updated.ID,
		Title:    updated.Title,
		Color:    Color(updated.Color),
		Position: updated.Position,
	}
	e.mutate(func() {
		for i := range e.stages {
			if e.stages[i].ID == stageID {
				e.stages[i] = meta
				return
			}
		}
	})
	return meta, nil
}

// RemoveStage deletes a stage and reassigns its leads to the first remaining
// stage, locally and remotely. Removing the last stage is rejected: orphan
// resolution needs a fallback. Failures trigger a full resync instead of a
// fine-grained rollback of a multi-lead reassignment.
func (e *Engine) RemoveStage(ctx context.Context, stageID string) error {
	e.mu.Lock()
	if _, ok := e.stageByID(stageID); !ok {
		e.mu.Unlock()
		return ErrUnknownStage
	}
	if len(e.stages) <= 1 {
		e.mu.Unlock()
		return ErrLastStage
	}
	fallback := firstStageExcluding(e.stages, stageID)
	e.mu.Unlock()

	e.mutate(func() {
		for i := range e.leads {
			if e.leads[i].Status == stageID {
				e.leads[i].Status = fallback.ID
			}
		}
		kept := e.stages[:0:0]
		for _, stage := range e.stages {
			if stage.ID != stageID {
				kept = append(kept, stage)
			}
		}
		e.stages = kept
	})

	if err := e.gateway.DeleteStage(ctx, stageID, fallback.ID); err != nil {
		e.resync(ctx)
		return remoteError("remove stage "+stageID, err)
	}
	return nil
}

// ReorderStages applies a new stage order, rewriting positions as a dense
// 0..N-1 sequence, then persists the (id, position) pairs in bulk. The order
// must be a permutation of the current stage set. Failures trigger a full
// resync, matching RemoveStage.
func (e *Engine) ReorderStages(ctx context.Context, orderedIDs []string) error {
	e.mu.Lock()
	if !samePermutation(e.stages, orderedIDs) {
		e.mu.Unlock()
		return ErrStageSetMismatch
	}
	e.mu.Unlock()

	positions := make([]store.StagePosition, len(orderedIDs))
	e.mutate(func() {
		byID := make(map[string]StageMeta, len(e.stages))
		for _, stage := range e.stages {
			byID[stage.ID] = stage
		}
		reordered := make([]StageMeta, len(orderedIDs))
		for i, id := range orderedIDs {
			stage := byID[id]
			stage.Position = i
			reordered[i] = stage
			positions[i] = store.StagePosition{ID: id, Position: i}
		}
		e.stages = reordered
	})

	if err := e.gateway.UpdatePositions(ctx, positions); err != nil {
		e.resync(ctx)
		return remoteError("reorder stages", err)
	}
	return nil
}

// UpsertLead folds an externally created or updated lead into the working
// copy. New leads go to the front, matching the remote newest-first order.
func (e *Engine) UpsertLead(lead store.Lead) {
	e.mutate(func() {
		if i := e.leadIndex(lead.ID); i >= 0 {
			e.leads[i] = lead
			return
		}
		e.leads = append([]store.Lead{lead}, e.leads...)
	})
}

// resync refetches authoritative state after a multi-row remote failure.
func (e *Engine) resync(ctx context.Context) {
	if err := e.Load(ctx); err != nil {
		log.Printf("kanban: resync failed, working copy may be stale: %v", err)
	}
}

// Callers of the helpers below hold e.mu.

func (e *Engine) leadIndex(leadID int64) int {
	for i := range e.leads {
		if e.leads[i].ID == leadID {
			return i
		}
	}
	return -1
}

func (e *Engine) stageByID(stageID string) (StageMeta, bool) {
	for _, stage := range e.stages {
		if stage.ID == stageID {
			return stage, true
		}
	}
	return StageMeta{}, false
}

// stageTitle falls back to the raw id for unknown stages, so history stays
// meaningful for orphaned leads.
func (e *Engine) stageTitle(stageID string) string {
	if stage, ok := e.stageByID(stageID); ok {
		return stage.Title
	}
	return stageID
}

func firstStageExcluding(stages []StageMeta, excludeID string) StageMeta {
	var first StageMeta
	found := false
	for _, stage := range stages {
		if stage.ID == excludeID {
			continue
		}
		if !found || stage.Position < first.Position {
			first = stage
			found = true
		}
	}
	return first
}

func samePermutation(stages []StageMeta, orderedIDs []string) bool {
	if len(stages) != len(orderedIDs) {
		return false
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	for _, stage := range stages {
		if _, ok := seen[stage.ID]; !ok {
			return false
		}
	}
	return true
}
