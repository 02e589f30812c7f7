package moderation

import (
	"time"

	"github.com/quorum-social/quorum/models"
)

// ActionView is the public projection of a ModerationAction. Timestamps are
// RFC3339 strings, nullable ones as pointers.
type ActionView struct {
	ID            uint64  `json:"id"`
	TargetType    string  `json:"targetType"`
	TargetID      string  `json:"targetId"`
	ActionType    string  `json:"actionType"`
	Severity      string  `json:"severity"`
	Reasoning     string  `json:"reasoning"`
	Status        string  `json:"status"`
	AIRecommended bool    `json:"aiRecommended"`
	AIConfidence  float64 `json:"aiConfidence"`

	ApprovedByID *string `json:"approvedById,omitempty"`
	ApprovedAt   *string `json:"approvedAt,omitempty"`
	ExecutedAt   *string `json:"executedAt,omitempty"`

	IsTemporary     bool    `json:"isTemporary,omitempty"`
	BanDurationDays *int    `json:"banDurationDays,omitempty"`
	ExpiresAt       *string `json:"expiresAt,omitempty"`
	LiftedAt        *string `json:"liftedAt,omitempty"`

	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// AppealView is the public projection of an Appeal.
type AppealView struct {
	ID                 uint64  `json:"id"`
	ModerationActionID uint64  `json:"moderationActionId"`
	AppellantID        string  `json:"appellantId"`
	Reason             string  `json:"reason"`
	Status             string  `json:"status"`
	ReviewerID         *string `json:"reviewerId,omitempty"`
	DecisionReasoning  *string `json:"decisionReasoning,omitempty"`
	CreatedAt          string  `json:"createdAt"`
	ResolvedAt         *string `json:"resolvedAt,omitempty"`
}

// ActionDetail is the moderator detail view: the action plus its most recent
// appeal, or a nil appeal when none was ever filed.
type ActionDetail struct {
	Action       ActionView  `json:"action"`
	LatestAppeal *AppealView `json:"latestAppeal"`
}

func hydrateActionView(row *models.ModerationAction) ActionView {
	return ActionView{
		ID:              row.ID,
		TargetType:      row.TargetType,
		TargetID:        row.TargetID,
		ActionType:      row.ActionType,
		Severity:        row.Severity,
		Reasoning:       row.Reasoning,
		Status:          row.Status,
		AIRecommended:   row.AIRecommended,
		AIConfidence:    row.AIConfidence,
		ApprovedByID:    row.ApprovedByID,
		ApprovedAt:      formatTimePtr(row.ApprovedAt),
		ExecutedAt:      formatTimePtr(row.ExecutedAt),
		IsTemporary:     row.IsTemporary,
		BanDurationDays: row.BanDurationDays,
		ExpiresAt:       formatTimePtr(row.ExpiresAt),
		LiftedAt:        formatTimePtr(row.LiftedAt),
		CreatedAt:       row.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       row.UpdatedAt.Format(time.RFC3339),
	}
}

func hydrateActionViews(rows []models.ModerationAction) []ActionView {
	out := make([]ActionView, len(rows))
	for i := range rows {
		out[i] = hydrateActionView(&rows[i])
	}
	return out
}

func hydrateAppealView(row *models.Appeal) AppealView {
	return AppealView{
		ID:                 row.ID,
		ModerationActionID: row.ModerationActionID,
		AppellantID:        row.AppellantID,
		Reason:             row.Reason,
		Status:             row.Status,
		ReviewerID:         row.ReviewerID,
		DecisionReasoning:  row.DecisionReasoning,
		CreatedAt:          row.CreatedAt.Format(time.RFC3339),
		ResolvedAt:         formatTimePtr(row.ResolvedAt),
	}
}

func hydrateAppealViews(rows []models.Appeal) []AppealView {
	out := make([]AppealView, len(rows))
	for i := range rows {
		out[i] = hydrateAppealView(&rows[i])
	}
	return out
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
