package store

import "time"

type Lead struct {
	ID          int64
	Name        string
	Email       string
	PhoneNumber string
	Address     string
	Notes       string
	Status      string
	Priority    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewLead carries the caller-supplied fields for lead creation.
type NewLead struct {
	Name        string
	Email       string
	PhoneNumber string
	Address     string
	Notes       string
	Status      string
	Priority    string
}

// LeadPatch is a partial lead update; nil fields are left untouched.
type LeadPatch struct {
	Name        *string
	Email       *string
	PhoneNumber *string
	Address     *string
	Notes       *string
	Status      *string
	Priority    *string
}

type Stage struct {
	ID       string
	Title    string
	Color    string
	Position int
}

type StagePosition struct {
	ID       string
	Position int
}

// HistoryEntry is one immutable record of a lead moving between stages.
// Titles are denormalized at move time so history survives stage renames.
type HistoryEntry struct {
	ID              string
	LeadID          int64
	FromColumn      string
	ToColumn        string
	FromColumnTitle string
	ToColumnTitle   string
	Notes           string
	CreatedAt       time.Time
}

// PropertyChange records a non-stage lead edit (priority and the like).
type PropertyChange struct {
	ID           string
	LeadID       int64
	PropertyName string
	FromValue    string
	ToValue      string
	Notes        string
	CreatedAt    time.Time
}

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
