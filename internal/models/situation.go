// internal/models/situation.go
package models

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for threshold comparisons (low=0 .. critical=3).
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

type KPIValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

type SituationStatus string

const (
	SituationOpen      SituationStatus = "open"
	SituationAssigned  SituationStatus = "assigned"
	SituationDelegated SituationStatus = "delegated"
	SituationEscalated SituationStatus = "escalated"
	SituationSnoozed   SituationStatus = "snoozed"
)

// Situation is a detected anomaly surfaced by a situation scan. The action
// fields (Status, AssignedTo, DelegatedTo, EscalationLevel, SnoozedUntil,
// LastNotifiedAt) are owned by the situation-action domain; stage executors
// never touch them.
type Situation struct {
	SituationID      string    `json:"situation_id"`
	KPIName          string    `json:"kpi_name"`
	Severity         Severity  `json:"severity"`
	Description      string    `json:"description"`
	KPIValue         *KPIValue `json:"kpi_value,omitempty"`
	SuggestedActions []string  `json:"suggested_actions,omitempty"`

	Status          SituationStatus `json:"status"`
	AssignedTo      string          `json:"assigned_to,omitempty"`
	DelegatedTo     string          `json:"delegated_to,omitempty"`
	EscalationLevel int             `json:"escalation_level,omitempty"`
	SnoozedUntil    *time.Time      `json:"snoozed_until,omitempty"`
	LastNotifiedAt  *time.Time      `json:"last_notified_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type ActionType string

const (
	ActionAssign   ActionType = "assign"
	ActionDelegate ActionType = "delegate"
	ActionEscalate ActionType = "escalate"
	ActionSnooze   ActionType = "snooze"
	ActionNotify   ActionType = "notify"
)

func ParseActionType(s string) (ActionType, error) {
	switch at := ActionType(s); at {
	case ActionAssign, ActionDelegate, ActionEscalate, ActionSnooze, ActionNotify:
		return at, nil
	default:
		return "", fmt.Errorf("unknown action type %q", s)
	}
}

// Annotation is a human note attached to a situation-scan run.
type Annotation struct {
	AnnotationID string    `json:"annotation_id"`
	RequestID    string    `json:"request_id"`
	Author       string    `json:"author"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}
