package queue

import (
	"strings"
	"time"

	"docforge/internal/tracing"
)

// Status represents the lifecycle of an enhancement job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status can never transition again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Priority is the scheduling bucket for a job. Lower sorts first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

// ParsePriority converts a priority hint string into a Priority.
func ParsePriority(value string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return PriorityHigh, true
	case "normal":
		return PriorityNormal, true
	case "low":
		return PriorityLow, true
	default:
		return 0, false
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Job represents an enhancement job persisted in SQLite.
type Job struct {
	ID              string
	DocumentID      string
	UserID          string
	BatchID         string
	Tier            string
	Status          Status
	Priority        Priority
	Attempts        int
	MaxAttempts     int
	NextAttemptAt   *time.Time
	CancelRequested bool
	Worker          *int
	LastHeartbeat   *time.Time
	CurrentStage    string
	StageProgress   float64
	OverallProgress float64
	ProgressMessage string
	SettingsJSON    string
	ResultJSON      string
	ErrorCode       string
	ErrorMessage    string
	ErrorRetryable  bool
	Trace           tracing.Context
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// HasError reports whether a structured error is recorded on the job.
func (j *Job) HasError() bool {
	return j != nil && j.ErrorCode != ""
}

// SetError records the structured failure surfaced by status responses.
func (j *Job) SetError(code, message string, retryable bool) {
	j.ErrorCode = code
	j.ErrorMessage = message
	j.ErrorRetryable = retryable
}

// ClearError removes any recorded failure, e.g. before a retry attempt.
func (j *Job) ClearError() {
	j.ErrorCode = ""
	j.ErrorMessage = ""
	j.ErrorRetryable = false
}

// SetProgress updates stage and overall progress together. Overall progress
// never regresses while the job is live.
func (j *Job) SetProgress(stage string, stageProgress, overall float64, message string) {
	j.CurrentStage = stage
	j.StageProgress = stageProgress
	if overall > j.OverallProgress {
		j.OverallProgress = overall
	}
	j.ProgressMessage = message
}

// Batch represents a user-submitted group of jobs sharing settings.
type Batch struct {
	ID        string
	UserID    string
	Tier      string
	TierLimit int
	// Status caches the last computed aggregate. Read paths recompute from
	// member statuses; this field exists for listing surfaces only.
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
