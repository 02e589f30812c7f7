package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/quorum-social/quorum/directory"
	"github.com/quorum-social/quorum/events"
	"github.com/quorum-social/quorum/models"

	"gorm.io/gorm"
)

// Appeals owns the appeal lifecycle: creation by the affected user,
// assignment to a reviewing moderator, and the review decision with its
// reversal side effects.
type Appeals struct {
	db     *gorm.DB
	logger *slog.Logger
	dir    directory.Directory
}

func NewAppeals(db *gorm.DB, dir directory.Directory, logger *slog.Logger) *Appeals {
	if logger == nil {
		logger = slog.Default()
	}
	return &Appeals{
		db:     db,
		logger: logger.With("system", "appeals"),
		dir:    dir,
	}
}

type CreateAppealRequest struct {
	Reason string `json:"reason"`
}

// CreateAppeal opens a contest against an action and unconditionally moves
// the action to APPEALED. A REVERSED action can never receive a new appeal,
// and an appellant may hold at most one unresolved appeal per action.
func (ap *Appeals) CreateAppeal(ctx context.Context, actionID uint64, appellantID string, req *CreateAppealRequest) (*AppealView, error) {
	if n := utf8.RuneCountInString(req.Reason); n < minReasoningLen || n > maxAppealReasonLen {
		return nil, &ValidationError{Msg: "Appeal reason must be between 20 and 5000 characters long"}
	}
	if appellantID == "" {
		return nil, &ValidationError{Msg: "appellant id must not be empty"}
	}

	var action models.ModerationAction
	err := ap.db.WithContext(ctx).First(&action, actionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "moderation action", ID: strconv.FormatUint(actionID, 10)}
	}
	if err != nil {
		return nil, err
	}

	nextStatus, err := NextActionStatus(ActionStatus(action.Status), OpAppeal)
	if err != nil {
		return nil, err
	}

	row := models.Appeal{
		ModerationActionID: actionID,
		AppellantID:        appellantID,
		Reason:             req.Reason,
		Status:             string(AppealStatusPending),
	}

	err = ap.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// checked under the transaction; the partial unique index on
		// (moderation_action_id, appellant_id) backstops racing creates
		var active int64
		err := tx.Model(&models.Appeal{}).
			Where("moderation_action_id = ? AND appellant_id = ? AND status IN ?",
				actionID, appellantID, []string{string(AppealStatusPending), string(AppealStatusUnderReview)}).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return &DuplicateAppealError{ActionID: actionID, AppellantID: appellantID}
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		res := tx.Model(&models.ModerationAction{}).
			Where("id = ? AND status = ?", actionID, action.Status).
			Updates(map[string]any{"status": string(nextStatus), "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			concurrencyConflicts.WithLabelValues("action").Inc()
			return &ConcurrencyConflictError{Kind: "moderation action", ID: actionID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transitionsTaken.WithLabelValues("appeal", "create").Inc()
	ap.logger.Info("appeal created", "appealId", row.ID, "actionId", actionID, "appellant", appellantID)

	view := hydrateAppealView(&row)
	return &view, nil
}

// AssignAppealToModerator claims a PENDING appeal for review.
func (ap *Appeals) AssignAppealToModerator(ctx context.Context, appealID uint64, moderatorID string) (*AppealView, error) {
	if _, err := ap.dir.GetModerator(ctx, moderatorID); err != nil {
		if errors.Is(err, directory.ErrModeratorNotFound) {
			return nil, &NotFoundError{Kind: "moderator", ID: moderatorID}
		}
		return nil, err
	}

	row, err := ap.fetchAppeal(ctx, appealID)
	if err != nil {
		return nil, err
	}
	nextStatus, err := NextAppealStatus(AppealStatus(row.Status), OpAssign)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":      string(nextStatus),
		"reviewer_id": moderatorID,
	}
	if err := ap.casAppeal(ctx, appealID, AppealStatus(row.Status), updates); err != nil {
		return nil, err
	}

	transitionsTaken.WithLabelValues("appeal", "assign").Inc()
	ap.logger.Info("appeal assigned", "appealId", appealID, "moderator", moderatorID)
	return ap.GetAppealByID(ctx, appealID)
}

// UnassignAppeal returns an UNDER_REVIEW appeal to the pending pool.
func (ap *Appeals) UnassignAppeal(ctx context.Context, appealID uint64) (*AppealView, error) {
	row, err := ap.fetchAppeal(ctx, appealID)
	if err != nil {
		return nil, err
	}
	nextStatus, err := NextAppealStatus(AppealStatus(row.Status), OpUnassign)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":      string(nextStatus),
		"reviewer_id": nil,
	}
	if err := ap.casAppeal(ctx, appealID, AppealStatus(row.Status), updates); err != nil {
		return nil, err
	}

	transitionsTaken.WithLabelValues("appeal", "unassign").Inc()
	ap.logger.Info("appeal unassigned", "appealId", appealID)
	return ap.GetAppealByID(ctx, appealID)
}

type ReviewAppealRequest struct {
	Decision  string `json:"decision"`
	Reasoning string `json:"reasoning"`
}

// ReviewAppeal resolves an appeal. Upholding it reverses the linked action,
// appends an audit annotation, and queues a trust-feedback event for the
// appellant; denying it leaves the action untouched and publishes nothing.
func (ap *Appeals) ReviewAppeal(ctx context.Context, appealID uint64, reviewerID string, req *ReviewAppealRequest) (*AppealView, error) {
	decision, err := ParseDecision(req.Decision)
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(req.Reasoning); n < minReasoningLen || n > maxDecisionReasoningLen {
		return nil, &ValidationError{Msg: "Decision reasoning must be between 20 and 2000 characters long"}
	}
	if _, err := ap.dir.GetModerator(ctx, reviewerID); err != nil {
		if errors.Is(err, directory.ErrModeratorNotFound) {
			return nil, &NotFoundError{Kind: "moderator", ID: reviewerID}
		}
		return nil, err
	}

	row, err := ap.fetchAppeal(ctx, appealID)
	if err != nil {
		return nil, err
	}

	op := OpDeny
	if decision == DecisionUpheld {
		op = OpUphold
	}
	nextStatus, err := NextAppealStatus(AppealStatus(row.Status), op)
	if err != nil {
		return nil, err
	}

	var action models.ModerationAction
	err = ap.db.WithContext(ctx).First(&action, row.ModerationActionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "moderation action", ID: strconv.FormatUint(row.ModerationActionID, 10)}
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = ap.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Appeal{}).
			Where("id = ? AND status = ?", appealID, row.Status).
			Updates(map[string]any{
				"status":             string(nextStatus),
				"reviewer_id":        reviewerID,
				"decision_reasoning": req.Reasoning,
				"resolved_at":        now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			concurrencyConflicts.WithLabelValues("appeal").Inc()
			return &ConcurrencyConflictError{Kind: "appeal", ID: appealID}
		}

		if decision != DecisionUpheld {
			return nil
		}

		reversedStatus, err := NextActionStatus(ActionStatus(action.Status), OpReverse)
		if err != nil {
			return err
		}
		annotated := fmt.Sprintf("%s [APPEAL UPHELD: %s]", action.Reasoning, req.Reasoning)
		res = tx.Model(&models.ModerationAction{}).
			Where("id = ? AND status = ?", action.ID, action.Status).
			Updates(map[string]any{
				"status":     string(reversedStatus),
				"reasoning":  annotated,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			concurrencyConflicts.WithLabelValues("action").Inc()
			return &ConcurrencyConflictError{Kind: "moderation action", ID: action.ID}
		}

		evt := events.TrustUpdated{
			UserID:             row.AppellantID,
			Reason:             "appeal_upheld",
			ModerationActionID: action.ID,
			UpdatedAt:          now,
		}
		meta := events.Meta{Source: "moderation", UserID: reviewerID}
		if err := events.PublishTx(tx, events.KindTrustUpdated, evt, meta); err != nil {
			// the reversal stands either way; trust feedback catches up later
			ap.logger.Error("failed to enqueue trust-updated event", "err", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transitionsTaken.WithLabelValues("appeal", decision).Inc()
	ap.logger.Info("appeal reviewed", "appealId", appealID, "decision", decision, "reviewer", reviewerID)
	return ap.GetAppealByID(ctx, appealID)
}

type PendingAppealsQuery struct {
	Limit               int
	Cursor              string
	AssignedModeratorID string
}

type AppealPage struct {
	Appeals    []AppealView `json:"appeals"`
	TotalCount int64        `json:"totalCount"`
	NextCursor *string      `json:"nextCursor"`
}

// GetPendingAppeals pages oldest-first over unresolved appeals, optionally
// narrowed to one reviewer's assignments.
func (ap *Appeals) GetPendingAppeals(ctx context.Context, q *PendingAppealsQuery) (*AppealPage, error) {
	limit := clampLimit(q.Limit)

	base := ap.db.WithContext(ctx).Model(&models.Appeal{}).
		Where("status IN ?", []string{string(AppealStatusPending), string(AppealStatusUnderReview)})
	if q.AssignedModeratorID != "" {
		base = base.Where("reviewer_id = ?", q.AssignedModeratorID)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	page := base.Session(&gorm.Session{}).Order("id asc").Limit(limit)
	if q.Cursor != "" {
		cursorID, err := strconv.ParseUint(q.Cursor, 10, 64)
		if err != nil {
			return nil, &ValidationError{Msg: fmt.Sprintf("invalid cursor: %q", q.Cursor)}
		}
		page = page.Where("id > ?", cursorID)
	}

	var rows []models.Appeal
	if err := page.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := AppealPage{
		Appeals:    hydrateAppealViews(rows),
		TotalCount: total,
	}
	if len(rows) == limit {
		cur := strconv.FormatUint(rows[len(rows)-1].ID, 10)
		out.NextCursor = &cur
	}
	return &out, nil
}

func (ap *Appeals) GetAppealByID(ctx context.Context, appealID uint64) (*AppealView, error) {
	row, err := ap.fetchAppeal(ctx, appealID)
	if err != nil {
		return nil, err
	}
	view := hydrateAppealView(row)
	return &view, nil
}

// AppealStatistics is a dashboard projection over a creation-time window.
type AppealStatistics struct {
	Total                int64            `json:"total"`
	ByStatus             map[string]int64 `json:"byStatus"`
	UpheldRate           float64          `json:"upheldRate"`
	AvgResolutionMinutes float64          `json:"avgResolutionMinutes"`
}

func (ap *Appeals) GetAppealStatistics(ctx context.Context, startDate, endDate *time.Time) (*AppealStatistics, error) {
	base := ap.db.WithContext(ctx).Model(&models.Appeal{})
	if startDate != nil {
		base = base.Where("created_at >= ?", *startDate)
	}
	if endDate != nil {
		base = base.Where("created_at < ?", *endDate)
	}

	out := AppealStatistics{ByStatus: map[string]int64{}}
	if err := base.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Status string
		N      int64
	}
	var buckets []bucket
	if err := base.Session(&gorm.Session{}).Select("status, count(*) as n").Group("status").Scan(&buckets).Error; err != nil {
		return nil, err
	}
	for _, b := range buckets {
		out.ByStatus[b.Status] = b.N
	}

	upheld := out.ByStatus[string(AppealStatusUpheld)]
	denied := out.ByStatus[string(AppealStatusDenied)]
	if upheld+denied > 0 {
		out.UpheldRate = float64(upheld) / float64(upheld+denied) * 100
	}

	// resolution times computed in-process; date arithmetic in SQL is not
	// portable across sqlite and postgres
	var resolved []models.Appeal
	err := base.Session(&gorm.Session{}).
		Select("created_at, resolved_at").
		Where("resolved_at IS NOT NULL").
		Find(&resolved).Error
	if err != nil {
		return nil, err
	}
	if len(resolved) > 0 {
		var totalMinutes float64
		for _, r := range resolved {
			totalMinutes += r.ResolvedAt.Sub(r.CreatedAt).Minutes()
		}
		out.AvgResolutionMinutes = totalMinutes / float64(len(resolved))
	}

	return &out, nil
}

func (ap *Appeals) fetchAppeal(ctx context.Context, appealID uint64) (*models.Appeal, error) {
	var row models.Appeal
	err := ap.db.WithContext(ctx).First(&row, appealID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "appeal", ID: strconv.FormatUint(appealID, 10)}
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (ap *Appeals) casAppeal(ctx context.Context, appealID uint64, expected AppealStatus, updates map[string]any) error {
	res := ap.db.WithContext(ctx).Model(&models.Appeal{}).
		Where("id = ? AND status = ?", appealID, string(expected)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		concurrencyConflicts.WithLabelValues("appeal").Inc()
		return &ConcurrencyConflictError{Kind: "appeal", ID: appealID}
	}
	return nil
}
