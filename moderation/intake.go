package moderation

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/quorum-social/quorum/events"
	"github.com/quorum-social/quorum/models"

	"gorm.io/gorm"
)

// Intake accepts recommendations from the automated content-screening
// pipeline. Every recommendation is born PENDING and waits for a moderator.
type Intake struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewIntake(db *gorm.DB, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		db:     db,
		logger: logger.With("system", "intake"),
	}
}

// SubmitRecommendationRequest carries one screening-pipeline recommendation.
// AnalysisDetails is opaque to this core; it is only passed through on the
// published event as violation context.
type SubmitRecommendationRequest struct {
	TargetType      string         `json:"targetType"`
	TargetID        string         `json:"targetId"`
	ActionType      string         `json:"actionType"`
	Reasoning       string         `json:"reasoning"`
	Confidence      float64        `json:"confidence"`
	AnalysisDetails map[string]any `json:"analysisDetails,omitempty"`
}

func (ix *Intake) Submit(ctx context.Context, req *SubmitRecommendationRequest) (*ActionView, error) {
	targetType, err := ParseTargetType(req.TargetType)
	if err != nil {
		return nil, err
	}
	actionType, err := ParseActionType(req.ActionType)
	if err != nil {
		return nil, err
	}
	if err := validateReasoning(req.Reasoning); err != nil {
		return nil, err
	}
	if req.Confidence < 0.0 || req.Confidence > 1.0 {
		return nil, &ValidationError{Msg: "AI confidence must be between 0.0 and 1.0"}
	}
	if req.TargetID == "" {
		return nil, &ValidationError{Msg: "target id must not be empty"}
	}

	severity := SeverityFor(actionType)
	row := models.ModerationAction{
		TargetType:    string(targetType),
		TargetID:      req.TargetID,
		ActionType:    string(actionType),
		Severity:      string(severity),
		Reasoning:     req.Reasoning,
		Status:        string(ActionStatusPending),
		AIRecommended: true,
		AIConfidence:  req.Confidence,
	}

	err = ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		evt := events.ModerationActionRequested{
			TargetType:       row.TargetType,
			TargetID:         row.TargetID,
			ActionType:       row.ActionType,
			Severity:         row.Severity,
			Reasoning:        row.Reasoning,
			AIConfidence:     row.AIConfidence,
			ViolationContext: req.AnalysisDetails,
			RequestedAt:      row.CreatedAt,
		}
		meta := events.Meta{Source: "content-screening"}
		if err := events.PublishTx(tx, events.KindModerationActionRequested, evt, meta); err != nil {
			// the recommendation row is the source of truth; losing the
			// event only delays downstream consumers
			ix.logger.Error("failed to enqueue action-requested event", "err", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recommendationsReceived.WithLabelValues(row.ActionType).Inc()
	ix.logger.Info("AI recommendation accepted", "actionId", row.ID, "actionType", row.ActionType, "confidence", row.AIConfidence)

	view := hydrateActionView(&row)
	return &view, nil
}

// ListPending returns PENDING AI recommendations, most confident first;
// ties go to the oldest submission.
func (ix *Intake) ListPending(ctx context.Context, limit int) ([]ActionView, error) {
	limit = clampLimit(limit)
	var rows []models.ModerationAction
	err := ix.db.WithContext(ctx).
		Where("status = ? AND ai_recommended = ?", string(ActionStatusPending), true).
		Order("ai_confidence desc, created_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return hydrateActionViews(rows), nil
}

// IntakeStats summarizes the AI recommendation backlog.
type IntakeStats struct {
	TotalPending  int64            `json:"totalPending"`
	ByActionType  map[string]int64 `json:"byActionType"`
	AvgConfidence float64          `json:"avgConfidence"`
	ApprovalRate  float64          `json:"approvalRate"`
}

func (ix *Intake) Stats(ctx context.Context) (*IntakeStats, error) {
	db := ix.db.WithContext(ctx)
	pending := db.Model(&models.ModerationAction{}).
		Where("status = ? AND ai_recommended = ?", string(ActionStatusPending), true)

	out := IntakeStats{ByActionType: map[string]int64{}}
	if err := pending.Count(&out.TotalPending).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		ActionType string
		N          int64
	}
	var buckets []bucket
	err := db.Model(&models.ModerationAction{}).
		Select("action_type, count(*) as n").
		Where("status = ? AND ai_recommended = ?", string(ActionStatusPending), true).
		Group("action_type").
		Scan(&buckets).Error
	if err != nil {
		return nil, err
	}
	for _, b := range buckets {
		out.ByActionType[b.ActionType] = b.N
	}

	if out.TotalPending > 0 {
		err = db.Model(&models.ModerationAction{}).
			Select("avg(ai_confidence)").
			Where("status = ? AND ai_recommended = ?", string(ActionStatusPending), true).
			Scan(&out.AvgConfidence).Error
		if err != nil {
			return nil, err
		}
	}

	// "resolved" means any status other than PENDING
	var resolved int64
	err = db.Model(&models.ModerationAction{}).
		Where("status != ? AND ai_recommended = ?", string(ActionStatusPending), true).
		Count(&resolved).Error
	if err != nil {
		return nil, err
	}
	if resolved+out.TotalPending > 0 {
		out.ApprovalRate = float64(resolved) / float64(resolved+out.TotalPending)
	}

	return &out, nil
}

// Length bounds count characters, not bytes.
func validateReasoning(reasoning string) error {
	if utf8.RuneCountInString(reasoning) < minReasoningLen {
		return &ValidationError{Msg: "Reasoning must be at least 20 characters long"}
	}
	return nil
}

const (
	minReasoningLen         = 20
	maxAppealReasonLen      = 5000
	maxDecisionReasoningLen = 2000
	defaultPageLimit        = 20
	maxPageLimit            = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
