package models

import "time"

// ActionType enumerates the metered actions.
type ActionType string

const (
	ActionAIAnalysis  ActionType = "ai_analysis"
	ActionRemix       ActionType = "remix"
	ActionPolicyCheck ActionType = "policy_check"
	ActionExport      ActionType = "export"
)

// ActionTypes lists every metered action in display order.
var ActionTypes = []ActionType{ActionAIAnalysis, ActionRemix, ActionPolicyCheck, ActionExport}

func (a ActionType) Valid() bool {
	switch a {
	case ActionAIAnalysis, ActionRemix, ActionPolicyCheck, ActionExport:
		return true
	}
	return false
}

// UsageRecord is the per-user, per-action, per-month counter.
type UsageRecord struct {
	UserID     string     `db:"user_id" json:"userId"`
	ActionType ActionType `db:"action_type" json:"actionType"`
	Month      string     `db:"month" json:"month"`
	Count      int        `db:"count" json:"count"`
}

// MonthKey returns the YYYY-MM usage bucket for t.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
