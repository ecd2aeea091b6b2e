package app

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"leadflow/api/internal/auth"
	"leadflow/api/internal/authpw"
	"leadflow/api/internal/config"
	"leadflow/api/internal/kanban"
	"leadflow/api/internal/store"
	"leadflow/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type CreateLeadInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
	Notes       string `json:"notes"`
	Priority    string `json:"priority"`
}

// UpdateLeadInput is a partial edit; nil fields are left untouched. Stage
// membership is not editable here, moves go through the board.
type UpdateLeadInput struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
	Address     *string `json:"address"`
	Notes       *string `json:"notes"`
	Priority    *string `json:"priority"`
}

type CreateStageInput struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

type UpdateStageInput struct {
	Title *string `json:"title"`
	Color *string `json:"color"`
}

var allowedPriorities = map[string]struct{}{
	"":       {},
	"low":    {},
	"medium": {},
	"high":   {},
}

var defaultStages = []store.Stage{
	{ID: "new", Title: "New Leads", Color: "blue", Position: 0},
	{ID: "contacted", Title: "Contacted", Color: "yellow", Position: 1},
	{ID: "qualified", Title: "Qualified", Color: "green", Position: 2},
	{ID: "proposal", Title: "Proposal", Color: "purple", Position: 3},
	{ID: "closed", Title: "Closed", Color: "gray", Position: 4},
}

type dataStore interface {
	ListStages(context.Context) ([]store.Stage, error)
	InsertStage(context.Context, store.Stage) error
	ListLeads(context.Context) ([]store.Lead, error)
	GetLead(context.Context, int64) (store.Lead, error)
	CreateLead(context.Context, store.NewLead) (store.Lead, error)
	UpdateLead(context.Context, int64, store.LeadPatch) (store.Lead, error)
	ListHistory(context.Context, int64) ([]store.HistoryEntry, error)
	ListPropertyChanges(context.Context, int64) ([]store.PropertyChange, error)
	CreatePropertyChange(context.Context, store.PropertyChange) (store.PropertyChange, error)
	GetUserByID(context.Context, string) (store.User, error)
	Ping(ctx context.Context) error
}

type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type leadSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]store.Lead, error)
	IndexLead(lead store.Lead)
	RemoveLead(id int64)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	board    *kanban.Engine
	search   leadSearcher
	accounts *authpw.Service
}

func New(cfg config.Config, dataStore dataStore, sessions refreshStore, board *kanban.Engine, search leadSearcher, accounts *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		board:    board,
		search:   search,
		accounts: accounts,
	}
}

// Bootstrap seeds the default pipeline on an empty database, then builds the
// in-memory board from the authoritative rows.
func (s *Service) Bootstrap(ctx context.Context) error {
	stages, err := s.store.ListStages(ctx)
	if err != nil {
		return err
	}
	if len(stages) == 0 {
		for _, stage := range defaultStages {
			if err := s.store.InsertStage(ctx, stage); err != nil {
				return err
			}
		}
	}
	return s.board.Load(ctx)
}

// ── Sessions ──

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.accounts.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked before the new
// session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// ── Board ──

func (s *Service) Board(ctx context.Context) map[string]any {
	return boardPayload(s.board.View())
}

// ReloadBoard discards the working copy and refetches authoritative state.
func (s *Service) ReloadBoard(ctx context.Context) (map[string]any, error) {
	if err := s.board.Load(ctx); err != nil {
		return nil, err
	}
	return boardPayload(s.board.View()), nil
}

func (s *Service) MoveLead(ctx context.Context, leadID int64, stageID, notes string) (map[string]any, error) {
	if err := s.board.MoveLead(ctx, leadID, stageID, notes); err != nil {
		return nil, err
	}
	if lead, err := s.store.GetLead(ctx, leadID); err == nil {
		s.search.IndexLead(lead)
	}
	return boardPayload(s.board.View()), nil
}

func (s *Service) AddStage(ctx context.Context, input CreateStageInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	color, err := kanban.ParseColor(input.Color)
	if err != nil {
		return nil, validationError(err.Error())
	}
	meta, err := s.board.AddStage(ctx, title, color)
	if err != nil {
		return nil, err
	}
	return stageMetaPayload(meta), nil
}

func (s *Service) UpdateStage(ctx context.Context, stageID string, input UpdateStageInput) (map[string]any, error) {
	patch := kanban.StagePatch{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, validationError("title must not be empty")
		}
		patch.Title = &title
	}
	if input.Color != nil {
		color, err := kanban.ParseColor(*input.Color)
		if err != nil {
			return nil, validationError(err.Error())
		}
		patch.Color = &color
	}
	meta, err := s.board.UpdateStage(ctx, stageID, patch)
	if err != nil {
		return nil, err
	}
	return stageMetaPayload(meta), nil
}

func (s *Service) RemoveStage(ctx context.Context, stageID string) (map[string]any, error) {
	if err := s.board.RemoveStage(ctx, stageID); err != nil {
		return nil, err
	}
	return boardPayload(s.board.View()), nil
}

func (s *Service) ReorderStages(ctx context.Context, orderedIDs []string) (map[string]any, error) {
	if err := s.board.ReorderStages(ctx, orderedIDs); err != nil {
		return nil, err
	}
	return boardPayload(s.board.View()), nil
}

// ── Leads ──

func (s *Service) ListLeads(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		leads []store.Lead
		err   error
	)
	if strings.TrimSpace(query) != "" {
		leads, err = s.search.Search(ctx, strings.TrimSpace(query), limit)
	} else {
		leads, err = s.store.ListLeads(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(leads) > limit {
		leads = leads[:limit]
	}
	items := make([]map[string]any, len(leads))
	for i, lead := range leads {
		items[i] = leadPayload(lead)
	}
	return items, nil
}

func (s *Service) GetLead(ctx context.Context, leadID int64) (map[string]any, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return leadPayload(lead), nil
}

// CreateLead puts new leads into the first pipeline stage.
func (s *Service) CreateLead(ctx context.Context, input CreateLeadInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, validationError("email is required")
	}
	if _, ok := allowedPriorities[input.Priority]; !ok {
		return nil, validationError("priority must be low, medium or high")
	}
	stages := s.board.Stages()
	if len(stages) == 0 {
		return nil, domainError(http.StatusConflict, codeNoStages, "the pipeline has no stages", nil)
	}

	lead, err := s.store.CreateLead(ctx, store.NewLead{
		Name:        name,
		Email:       email,
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		Address:     strings.TrimSpace(input.Address),
		Notes:       input.Notes,
		Status:      stages[0].ID,
		Priority:    input.Priority,
	})
	if err != nil {
		return nil, err
	}

	s.board.UpsertLead(lead)
	s.search.IndexLead(lead)
	return leadPayload(lead), nil
}

func (s *Service) UpdateLead(ctx context.Context, leadID int64, input UpdateLeadInput) (map[string]any, error) {
	current, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if input.Priority != nil {
		if _, ok := allowedPriorities[*input.Priority]; !ok {
			return nil, validationError("priority must be low, medium or high")
		}
	}
	if input.Email != nil && strings.TrimSpace(*input.Email) == "" {
		return nil, validationError("email cannot be empty")
	}

	lead, err := s.store.UpdateLead(ctx, leadID, store.LeadPatch{
		Name:        input.Name,
		Email:       input.Email,
		PhoneNumber: input.PhoneNumber,
		Address:     input.Address,
		Notes:       input.Notes,
		Priority:    input.Priority,
	})
	if err != nil {
		return nil, err
	}

	if input.Priority != nil && *input.Priority != current.Priority {
		if _, err := s.store.CreatePropertyChange(ctx, store.PropertyChange{
			LeadID:       leadID,
			PropertyName: "priority",
			FromValue:    current.Priority,
			ToValue:      *input.Priority,
		}); err != nil {
			// Property history is best-effort audit data.
			log.Printf("app: record priority change for lead %d: %v", leadID, err)
		}
	}

	s.board.UpsertLead(lead)
	s.search.IndexLead(lead)
	return leadPayload(lead), nil
}

func (s *Service) DeleteLead(ctx context.Context, leadID int64) error {
	if err := s.board.DeleteLead(ctx, leadID); err != nil {
		return err
	}
	s.search.RemoveLead(leadID)
	return nil
}

// ── History ──

func (s *Service) LeadHistory(ctx context.Context, leadID int64) ([]map[string]any, error) {
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, leadID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, len(entries))
	for i, entry := range entries {
		items[i] = historyPayload(entry)
	}
	return items, nil
}

func (s *Service) LeadPropertyHistory(ctx context.Context, leadID int64) ([]map[string]any, error) {
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return nil, err
	}
	changes, err := s.store.ListPropertyChanges(ctx, leadID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, len(changes))
	for i, change := range changes {
		items[i] = propertyChangePayload(change)
	}
	return items, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ── Payload shaping ──

func boardPayload(stages []kanban.Stage) map[string]any {
	items := make([]map[string]any, len(stages))
	for i, stage := range stages {
		leads := make([]map[string]any, len(stage.Leads))
		for j, lead := range stage.Leads {
			leads[j] = leadPayload(lead)
		}
		items[i] = map[string]any{
			"id":       stage.ID,
			"title":    stage.Title,
			"color":    string(stage.Color),
			"position": stage.Position,
			"leads":    leads,
		}
	}
	return map[string]any{"stages": items}
}

func stageMetaPayload(meta kanban.StageMeta) map[string]any {
	return map[string]any{
		"id":       meta.ID,
		"title":    meta.Title,
		"color":    string(meta.Color),
		"position": meta.Position,
	}
}

func leadPayload(lead store.Lead) map[string]any {
	return map[string]any{
		"id":          lead.ID,
		"name":        lead.Name,
		"email":       lead.Email,
		"phoneNumber": lead.PhoneNumber,
		"address":     lead.Address,
		"notes":       lead.Notes,
		"status":      lead.Status,
		"priority":    lead.Priority,
		"createdAt":   lead.CreatedAt,
		"updatedAt":   lead.UpdatedAt,
	}
}

func historyPayload(entry store.HistoryEntry) map[string]any {
	return map[string]any{
		"id":              entry.ID,
		"leadId":          entry.LeadID,
		"fromColumn":      entry.FromColumn,
		"toColumn":        entry.ToColumn,
		"fromColumnTitle": entry.FromColumnTitle,
		"toColumnTitle":   entry.ToColumnTitle,
		"notes":           entry.Notes,
		"createdAt":       entry.CreatedAt,
	}
}

func propertyChangePayload(change store.PropertyChange) map[string]any {
	return map[string]any{
		"id":        change.ID,
		"leadId":    change.LeadID,
		"property":  change.PropertyName,
		"from":      change.FromValue,
		"to":        change.ToValue,
		"notes":     change.Notes,
		"createdAt": change.CreatedAt,
	}
}
