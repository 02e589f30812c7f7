package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/quorum-social/quorum/models"

	"gorm.io/gorm"
)

// Report reason types accepted from users.
const (
	ReportReasonSpam           = "SPAM"
	ReportReasonHarassment     = "HARASSMENT"
	ReportReasonMisinformation = "MISINFORMATION"
	ReportReasonOther          = "OTHER"
)

func ParseReportReason(s string) (string, error) {
	switch r := strings.ToUpper(s); r {
	case ReportReasonSpam, ReportReasonHarassment, ReportReasonMisinformation, ReportReasonOther:
		return r, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("unrecognized report reason type: %q", s)}
	}
}

// Reports handles user-filed flags. A report is not a state machine: it is
// either open or resolved-by-an-action, and only feeds the work queue.
type Reports struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewReports(db *gorm.DB, logger *slog.Logger) *Reports {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reports{db: db, logger: logger.With("system", "reports")}
}

// ReportView is the public projection of a Report.
type ReportView struct {
	ID                 uint64  `json:"id"`
	TargetType         string  `json:"targetType"`
	TargetID           string  `json:"targetId"`
	ReasonType         string  `json:"reasonType"`
	Reason             *string `json:"reason,omitempty"`
	ReportedByID       string  `json:"reportedById"`
	ResolvedByActionID *uint64 `json:"resolvedByActionId,omitempty"`
	ResolvedAt         *string `json:"resolvedAt,omitempty"`
	CreatedAt          string  `json:"createdAt"`
}

type CreateReportRequest struct {
	TargetType string  `json:"targetType"`
	TargetID   string  `json:"targetId"`
	ReasonType string  `json:"reasonType"`
	Reason     *string `json:"reason,omitempty"`
}

func (r *Reports) Create(ctx context.Context, req *CreateReportRequest, reporterID string) (*ReportView, error) {
	targetType, err := ParseTargetType(req.TargetType)
	if err != nil {
		return nil, err
	}
	reasonType, err := ParseReportReason(req.ReasonType)
	if err != nil {
		return nil, err
	}
	if req.TargetID == "" {
		return nil, &ValidationError{Msg: "target id must not be empty"}
	}
	if reporterID == "" {
		return nil, &ValidationError{Msg: "reporter id must not be empty"}
	}

	row := models.Report{
		TargetType:   string(targetType),
		TargetID:     req.TargetID,
		ReasonType:   reasonType,
		Reason:       req.Reason,
		ReportedByID: reporterID,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}

	r.logger.Info("report filed", "reportId", row.ID, "targetType", row.TargetType, "reasonType", row.ReasonType)
	view := hydrateReportView(&row)
	return &view, nil
}

// Resolve links an open report to the moderation action that addressed it.
func (r *Reports) Resolve(ctx context.Context, reportID, actionID uint64) (*ReportView, error) {
	var row models.Report
	err := r.db.WithContext(ctx).First(&row, reportID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "report", ID: strconv.FormatUint(reportID, 10)}
	}
	if err != nil {
		return nil, err
	}
	if row.ResolvedAt != nil {
		return nil, &InvalidTransitionError{Msg: fmt.Sprintf("Report %d has already been resolved", reportID)}
	}

	var action models.ModerationAction
	err = r.db.WithContext(ctx).First(&action, actionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "moderation action", ID: strconv.FormatUint(actionID, 10)}
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND resolved_at IS NULL", reportID).
		Updates(map[string]any{"resolved_by_action_id": actionID, "resolved_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		concurrencyConflicts.WithLabelValues("report").Inc()
		return nil, &ConcurrencyConflictError{Kind: "report", ID: reportID}
	}

	row.ResolvedByActionID = &actionID
	row.ResolvedAt = &now
	view := hydrateReportView(&row)
	return &view, nil
}

// ListOpen returns unresolved reports, oldest first.
func (r *Reports) ListOpen(ctx context.Context, limit int) ([]ReportView, error) {
	limit = clampLimit(limit)
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ReportView, len(rows))
	for i := range rows {
		out[i] = hydrateReportView(&rows[i])
	}
	return out, nil
}

func hydrateReportView(row *models.Report) ReportView {
	return ReportView{
		ID:                 row.ID,
		TargetType:         row.TargetType,
		TargetID:           row.TargetID,
		ReasonType:         row.ReasonType,
		Reason:             row.Reason,
		ReportedByID:       row.ReportedByID,
		ResolvedByActionID: row.ResolvedByActionID,
		ResolvedAt:         formatTimePtr(row.ResolvedAt),
		CreatedAt:          row.CreatedAt.Format(time.RFC3339),
	}
}
