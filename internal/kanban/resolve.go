package kanban

import (
	"sort"

	"leadflow/api/internal/store"
)

// StageMeta is the stage metadata the engine works with: stored fields only,
// no leads.
type StageMeta struct {
	ID       string
	Title    string
	Color    Color
	Position int
}

// Stage is one resolved pipeline column: metadata plus the leads it owns, in
// display order.
type Stage struct {
	StageMeta
	Leads []store.Lead
}

// Resolve groups a flat lead list under the given stages by lead status,
// ordering stages by ascending position. Leads whose status matches no stage
// id are orphans and are appended, in their original relative order, to the
// first stage. Their status field is left untouched; only the grouping
// changes. With no stages the result is empty regardless of leads.
//
// Resolve is pure: it never mutates its inputs, and resolving the same
// inputs twice yields identical output.
func Resolve(leads []store.Lead, stages []StageMeta) []Stage {
	if len(stages) == 0 {
		return []Stage{}
	}

	ordered := make([]StageMeta, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	byStage := make(map[string][]store.Lead, len(ordered))
	known := make(map[string]struct{}, len(ordered))
	for _, stage := range ordered {
		known[stage.ID] = struct{}{}
		byStage[stage.ID] = []store.Lead{}
	}

	var orphans []store.Lead
	for _, lead := range leads {
		if _, ok := known[lead.Status]; ok {
			byStage[lead.Status] = append(byStage[lead.Status], lead)
		} else {
			orphans = append(orphans, lead)
		}
	}

	resolved := make([]Stage, len(ordered))
	for i, stage := range ordered {
		resolved[i] = Stage{StageMeta: stage, Leads: byStage[stage.ID]}
	}
	resolved[0].Leads = append(resolved[0].Leads, orphans...)
	return resolved
}
