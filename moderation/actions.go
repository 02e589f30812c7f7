package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/quorum-social/quorum/events"
	"github.com/quorum-social/quorum/models"
	"github.com/quorum-social/quorum/notifs"

	"gorm.io/gorm"
)

// Actions owns the moderation-action lifecycle: direct creation by
// moderators, approval/rejection of pending recommendations, and the read
// side used by moderator tooling. Every status write is a compare-and-swap
// against the status observed at read time.
type Actions struct {
	db       *gorm.DB
	logger   *slog.Logger
	notifier notifs.Notifier
}

func NewActions(db *gorm.DB, notifier notifs.Notifier, logger *slog.Logger) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = &notifs.NullNotifier{}
	}
	return &Actions{
		db:       db,
		logger:   logger.With("system", "actions"),
		notifier: notifier,
	}
}

type CreateActionRequest struct {
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	ActionType string `json:"actionType"`
	Reasoning  string `json:"reasoning"`

	// Optional, only honored for BAN and SUSPEND.
	IsTemporary     bool `json:"isTemporary,omitempty"`
	BanDurationDays *int `json:"banDurationDays,omitempty"`
}

// CreateAction records a direct moderator decision. It never passes through
// PENDING: the acting moderator is the approver and the action takes effect
// immediately. A human decision carries full confidence by convention.
func (a *Actions) CreateAction(ctx context.Context, req *CreateActionRequest, moderatorID string) (*ActionView, error) {
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
	if req.TargetID == "" {
		return nil, &ValidationError{Msg: "target id must not be empty"}
	}
	if moderatorID == "" {
		return nil, &ValidationError{Msg: "moderator id must not be empty"}
	}

	now := time.Now()
	row := models.ModerationAction{
		TargetType:    string(targetType),
		TargetID:      req.TargetID,
		ActionType:    string(actionType),
		Severity:      string(SeverityFor(actionType)),
		Reasoning:     req.Reasoning,
		Status:        string(ActionStatusActive),
		AIRecommended: false,
		AIConfidence:  1.0,
		ApprovedByID:  &moderatorID,
		ApprovedAt:    &now,
		ExecutedAt:    &now,
	}
	if req.IsTemporary && actionType.IsTemporal() {
		if req.BanDurationDays == nil || *req.BanDurationDays <= 0 {
			return nil, &ValidationError{Msg: "temporary bans require a positive duration in days"}
		}
		row.IsTemporary = true
		row.BanDurationDays = req.BanDurationDays
		expires := now.AddDate(0, 0, *req.BanDurationDays)
		row.ExpiresAt = &expires
	}

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		evt := events.ModerationActionRequested{
			TargetType:   row.TargetType,
			TargetID:     row.TargetID,
			ActionType:   row.ActionType,
			Severity:     row.Severity,
			Reasoning:    row.Reasoning,
			AIConfidence: row.AIConfidence,
			RequestedAt:  row.CreatedAt,
		}
		meta := events.Meta{Source: "moderation", UserID: moderatorID}
		if err := events.PublishTx(tx, events.KindModerationActionRequested, evt, meta); err != nil {
			a.logger.Error("failed to enqueue action-requested event", "err", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transitionsTaken.WithLabelValues("action", "create").Inc()
	a.logger.Info("moderation action created", "actionId", row.ID, "actionType", row.ActionType, "moderator", moderatorID)

	view := hydrateActionView(&row)
	return &view, nil
}

// ApproveAction puts a PENDING recommendation into force. Only CONSEQUENTIAL
// actions go through explicit approval; non-punitive recommendations have no
// approval path and must be dismissed via RejectAction if unwanted.
func (a *Actions) ApproveAction(ctx context.Context, actionID uint64, moderatorID string, modifiedReasoning *string) (*ActionView, error) {
	row, err := a.fetchAction(ctx, actionID)
	if err != nil {
		return nil, err
	}

	if _, err := NextActionStatus(ActionStatus(row.Status), OpApprove); err != nil {
		return nil, err
	}
	if SeverityFor(ActionType(row.ActionType)) == SeverityNonPunitive {
		return nil, &InvalidTransitionError{Msg: "Non-punitive actions cannot be explicitly approved"}
	}
	if modifiedReasoning != nil {
		if err := validateReasoning(*modifiedReasoning); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	updates := map[string]any{
		"status":         string(ActionStatusActive),
		"approved_by_id": moderatorID,
		"approved_at":    now,
		"executed_at":    now,
		"updated_at":     now,
	}
	if modifiedReasoning != nil {
		updates["reasoning"] = *modifiedReasoning
	}

	if err := a.casAction(ctx, actionID, ActionStatus(row.Status), updates); err != nil {
		return nil, err
	}

	transitionsTaken.WithLabelValues("action", "approve").Inc()
	a.logger.Info("moderation action approved", "actionId", actionID, "moderator", moderatorID)
	return a.GetActionView(ctx, actionID)
}

type RejectActionRequest struct {
	RejectReasoning string `json:"rejectReasoning"`
}

// RejectAction dismisses a PENDING recommendation. The rejection reasoning is
// appended to the audit trail as a bracketed annotation; REJECTED is the one
// canonical terminal status for dismissed recommendations.
func (a *Actions) RejectAction(ctx context.Context, actionID uint64, moderatorID string, req *RejectActionRequest) (*ActionView, error) {
	if err := validateReasoning(req.RejectReasoning); err != nil {
		return nil, err
	}

	row, err := a.fetchAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if _, err := NextActionStatus(ActionStatus(row.Status), OpReject); err != nil {
		return nil, err
	}

	now := time.Now()
	annotated := fmt.Sprintf("%s [REJECTED BY MODERATOR: %s]", row.Reasoning, req.RejectReasoning)
	updates := map[string]any{
		"status":     string(ActionStatusRejected),
		"reasoning":  annotated,
		"updated_at": now,
	}
	if err := a.casAction(ctx, actionID, ActionStatus(row.Status), updates); err != nil {
		return nil, err
	}

	transitionsTaken.WithLabelValues("action", "reject").Inc()
	a.logger.Info("moderation action rejected", "actionId", actionID, "moderator", moderatorID)
	return a.GetActionView(ctx, actionID)
}

type ListActionsQuery struct {
	TargetType string
	Status     string
	Severity   string
	Limit      int
	Cursor     string
}

type ActionPage struct {
	Actions    []ActionView `json:"actions"`
	TotalCount int64        `json:"totalCount"`
	NextCursor *string      `json:"nextCursor"`
}

// ListActions pages newest-first over actions matching the filters. The
// cursor is the id of the last item of the previous page; NextCursor is nil
// exactly when the page came back short.
func (a *Actions) ListActions(ctx context.Context, q *ListActionsQuery) (*ActionPage, error) {
	limit := clampLimit(q.Limit)

	base := a.db.WithContext(ctx).Model(&models.ModerationAction{})
	if q.TargetType != "" {
		tt, err := ParseTargetType(q.TargetType)
		if err != nil {
			return nil, err
		}
		base = base.Where("target_type = ?", string(tt))
	}
	if q.Status != "" {
		st, err := ParseActionStatus(q.Status)
		if err != nil {
			return nil, err
		}
		base = base.Where("status = ?", string(st))
	}
	if q.Severity != "" {
		sv, err := ParseSeverity(q.Severity)
		if err != nil {
			return nil, err
		}
		base = base.Where("severity = ?", string(sv))
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	page := base.Session(&gorm.Session{}).Order("id desc").Limit(limit)
	if q.Cursor != "" {
		cursorID, err := strconv.ParseUint(q.Cursor, 10, 64)
		if err != nil {
			return nil, &ValidationError{Msg: fmt.Sprintf("invalid cursor: %q", q.Cursor)}
		}
		page = page.Where("id < ?", cursorID)
	}

	var rows []models.ModerationAction
	if err := page.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := ActionPage{
		Actions:    hydrateActionViews(rows),
		TotalCount: total,
	}
	if len(rows) == limit {
		cur := strconv.FormatUint(rows[len(rows)-1].ID, 10)
		out.NextCursor = &cur
	}
	return &out, nil
}

// GetAction returns the action plus its most recent appeal, for moderator
// detail views.
func (a *Actions) GetAction(ctx context.Context, actionID uint64) (*ActionDetail, error) {
	row, err := a.fetchAction(ctx, actionID)
	if err != nil {
		return nil, err
	}

	out := ActionDetail{Action: hydrateActionView(row)}

	var appeal models.Appeal
	err = a.db.WithContext(ctx).
		Where("moderation_action_id = ?", actionID).
		Order("created_at desc, id desc").
		First(&appeal).Error
	if err == nil {
		v := hydrateAppealView(&appeal)
		out.LatestAppeal = &v
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &out, nil
}

// GetUserActions returns a user's enforcement history, most recent first.
func (a *Actions) GetUserActions(ctx context.Context, userID string) ([]ActionView, error) {
	var rows []models.ModerationAction
	err := a.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", string(TargetUser), userID).
		Order("created_at desc, id desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return hydrateActionViews(rows), nil
}

// SendCoolingOffPrompt broadcasts a nudge to users in a contentious
// discussion. It is not a moderation action and never enters the state
// machine; per-user delivery failures are logged and skipped. Returns the
// number of users actually reached.
func (a *Actions) SendCoolingOffPrompt(ctx context.Context, userIDs []string, topicID, message string) (int, error) {
	if message == "" {
		return 0, &ValidationError{Msg: "cooling-off message must not be empty"}
	}

	note := notifs.Notification{
		Kind:    notifs.KindCoolingOff,
		TopicID: topicID,
		Message: message,
		SentAt:  time.Now(),
	}

	seen := make(map[string]bool, len(userIDs))
	delivered := 0
	for _, uid := range userIDs {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		if err := a.notifier.Push(ctx, uid, note); err != nil {
			a.logger.Warn("cooling-off prompt delivery failed", "user", uid, "topic", topicID, "err", err)
			continue
		}
		delivered++
	}
	coolingOffPromptsSent.Add(float64(delivered))
	return delivered, nil
}

// GetActionView fetches a single action's public projection.
func (a *Actions) GetActionView(ctx context.Context, actionID uint64) (*ActionView, error) {
	row, err := a.fetchAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	view := hydrateActionView(row)
	return &view, nil
}

func (a *Actions) fetchAction(ctx context.Context, actionID uint64) (*models.ModerationAction, error) {
	var row models.ModerationAction
	err := a.db.WithContext(ctx).First(&row, actionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "moderation action", ID: strconv.FormatUint(actionID, 10)}
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// casAction performs the conditional status write shared by every action
// transition. Zero matched rows means another caller won the race.
func (a *Actions) casAction(ctx context.Context, actionID uint64, expected ActionStatus, updates map[string]any) error {
	res := a.db.WithContext(ctx).Model(&models.ModerationAction{}).
		Where("id = ? AND status = ?", actionID, string(expected)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		concurrencyConflicts.WithLabelValues("action").Inc()
		return &ConcurrencyConflictError{Kind: "moderation action", ID: actionID}
	}
	return nil
}
