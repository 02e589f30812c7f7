package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quorum-social/quorum/cachestore"
	"github.com/quorum-social/quorum/models"

	"gorm.io/gorm"
)

// Queue item types.
const (
	QueueItemAction = "action"
	QueueItemAppeal = "appeal"
	QueueItemReport = "report"
)

// Queue priorities, in rank order.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

const statsCacheTTL = 30 * time.Second

// Queue merges everything awaiting moderator attention into one ranked work
// list, and serves the ops dashboards. All reads here are eventually
// consistent: the merge and ranking happen in memory over a snapshot, and the
// stats and analytics responses are served from a short-lived cache.
type Queue struct {
	db     *gorm.DB
	logger *slog.Logger
	cache  cachestore.CacheStore
}

func NewQueue(db *gorm.DB, cache cachestore.CacheStore, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = cachestore.NewMemCacheStore(1024, statsCacheTTL)
	}
	return &Queue{db: db, logger: logger.With("system", "queue"), cache: cache}
}

// QueueItem is one unit of pending moderator work. Exactly one of Action,
// Appeal, Report is set, matching Type.
type QueueItem struct {
	Type     string `json:"type"`
	ID       uint64 `json:"id"`
	Priority string `json:"priority"`
	WaitTime string `json:"waitTime"`
	Summary  string `json:"summary"`

	Action *ActionView `json:"action,omitempty"`
	Appeal *AppealView `json:"appeal,omitempty"`
	Report *ReportView `json:"report,omitempty"`

	createdAt time.Time
}

type QueuePage struct {
	Items      []QueueItem `json:"items"`
	NextCursor *string     `json:"nextCursor"`
}

type QueueRequest struct {
	// Type restricts the queue to "action", "appeal" or "report" items.
	Type string
	// Status filters items by their underlying status value.
	Status string
	Limit  int
	Cursor string
}

// GetQueue returns the ranked work queue: high priority first, then oldest
// first within a rank. The ranking is recomputed per call over a snapshot of
// the open items, so the cursor is the composite key of the last returned
// item rather than a row offset.
func (q *Queue) GetQueue(ctx context.Context, req *QueueRequest) (*QueuePage, error) {
	itemType, err := parseQueueItemType(req.Type)
	if err != nil {
		return nil, err
	}
	statusFilter := strings.ToUpper(req.Status)
	limit := clampLimit(req.Limit)

	items, err := q.collectItems(ctx, itemType)
	if err != nil {
		return nil, err
	}
	if statusFilter != "" {
		filtered := items[:0]
		for _, it := range items {
			if queueItemStatus(&it) == statusFilter {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := priorityRank(items[i].Priority), priorityRank(items[j].Priority)
		if ri != rj {
			return ri < rj
		}
		if !items[i].createdAt.Equal(items[j].createdAt) {
			return items[i].createdAt.Before(items[j].createdAt)
		}
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		return items[i].ID < items[j].ID
	})

	start := 0
	if req.Cursor != "" {
		cursorType, cursorID, err := parseQueueCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		for i, it := range items {
			if it.Type == cursorType && it.ID == cursorID {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	page := items[start:end]

	out := &QueuePage{Items: page}
	if out.Items == nil {
		out.Items = []QueueItem{}
	}
	if len(page) == limit && len(page) > 0 {
		last := page[len(page)-1]
		cursor := fmt.Sprintf("%s:%d", last.Type, last.ID)
		out.NextCursor = &cursor
	}
	return out, nil
}

func (q *Queue) collectItems(ctx context.Context, itemType string) ([]QueueItem, error) {
	var items []QueueItem

	if itemType == "" || itemType == QueueItemAction {
		var actions []models.ModerationAction
		err := q.db.WithContext(ctx).
			Where("status = ?", string(ActionStatusPending)).
			Find(&actions).Error
		if err != nil {
			return nil, err
		}
		for i := range actions {
			items = append(items, actionQueueItem(&actions[i]))
		}
	}

	if itemType == "" || itemType == QueueItemAppeal {
		var appeals []models.Appeal
		err := q.db.WithContext(ctx).
			Where("status IN ?", []string{string(AppealStatusPending), string(AppealStatusUnderReview)}).
			Find(&appeals).Error
		if err != nil {
			return nil, err
		}
		severities, err := q.actionSeverities(ctx, appeals)
		if err != nil {
			return nil, err
		}
		for i := range appeals {
			items = append(items, appealQueueItem(&appeals[i], severities[appeals[i].ModerationActionID]))
		}
	}

	if itemType == "" || itemType == QueueItemReport {
		var reports []models.Report
		err := q.db.WithContext(ctx).
			Where("resolved_at IS NULL").
			Find(&reports).Error
		if err != nil {
			return nil, err
		}
		for i := range reports {
			items = append(items, reportQueueItem(&reports[i]))
		}
	}

	return items, nil
}

// actionSeverities fetches the severity of each appeal's underlying action in
// one query, keyed by action id.
func (q *Queue) actionSeverities(ctx context.Context, appeals []models.Appeal) (map[uint64]string, error) {
	out := make(map[uint64]string, len(appeals))
	if len(appeals) == 0 {
		return out, nil
	}
	ids := make([]uint64, 0, len(appeals))
	for i := range appeals {
		ids = append(ids, appeals[i].ModerationActionID)
	}
	var rows []struct {
		ID       uint64
		Severity string
	}
	err := q.db.WithContext(ctx).Model(&models.ModerationAction{}).
		Select("id, severity").
		Where("id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.Severity
	}
	return out, nil
}

func actionQueueItem(row *models.ModerationAction) QueueItem {
	priority := PriorityLow
	consequential := row.Severity == string(SeverityConsequential)
	switch {
	case consequential && row.AIConfidence >= 0.8:
		priority = PriorityHigh
	case consequential || row.AIConfidence >= 0.5:
		priority = PriorityNormal
	}
	view := hydrateActionView(row)
	return QueueItem{
		Type:      QueueItemAction,
		ID:        row.ID,
		Priority:  priority,
		WaitTime:  humanizeWait(time.Since(row.CreatedAt)),
		Summary:   fmt.Sprintf("%s %s %s: %s", row.ActionType, strings.ToLower(row.TargetType), row.TargetID, truncate(row.Reasoning, 120)),
		Action:    &view,
		createdAt: row.CreatedAt,
	}
}

func appealQueueItem(row *models.Appeal, actionSeverity string) QueueItem {
	priority := PriorityNormal
	if actionSeverity == string(SeverityConsequential) {
		priority = PriorityHigh
	}
	view := hydrateAppealView(row)
	return QueueItem{
		Type:      QueueItemAppeal,
		ID:        row.ID,
		Priority:  priority,
		WaitTime:  humanizeWait(time.Since(row.CreatedAt)),
		Summary:   fmt.Sprintf("Appeal of action %d by %s: %s", row.ModerationActionID, row.AppellantID, truncate(row.Reason, 120)),
		Appeal:    &view,
		createdAt: row.CreatedAt,
	}
}

func reportQueueItem(row *models.Report) QueueItem {
	priority := PriorityNormal
	if row.ReasonType == ReportReasonHarassment {
		priority = PriorityHigh
	}
	view := hydrateReportView(row)
	return QueueItem{
		Type:      QueueItemReport,
		ID:        row.ID,
		Priority:  priority,
		WaitTime:  humanizeWait(time.Since(row.CreatedAt)),
		Summary:   fmt.Sprintf("%s report on %s %s", row.ReasonType, strings.ToLower(row.TargetType), row.TargetID),
		Report:    &view,
		createdAt: row.CreatedAt,
	}
}

// QueueStats is the SLA dashboard summary.
type QueueStats struct {
	PendingActions       int64    `json:"pendingActions"`
	PendingAppeals       int64    `json:"pendingAppeals"`
	OpenReports          int64    `json:"openReports"`
	TotalQueueSize       int64    `json:"totalQueueSize"`
	AvgResolutionMinutes *float64 `json:"avgResolutionMinutes"`
	OldestItemWaitTime   *string  `json:"oldestItemWaitTime"`
}

// GetQueueStats computes the queue summary, serving a cached copy when one is
// fresher than 30 seconds.
func (q *Queue) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	const cacheKey = "queue:stats"
	if raw, ok, err := q.cache.Get(ctx, cacheKey); err != nil {
		q.logger.Warn("stats cache read failed", "err", err)
	} else if ok {
		var cached QueueStats
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	}

	stats := &QueueStats{}
	db := q.db.WithContext(ctx)

	err := db.Model(&models.ModerationAction{}).
		Where("status = ?", string(ActionStatusPending)).
		Count(&stats.PendingActions).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&models.Appeal{}).
		Where("status IN ?", []string{string(AppealStatusPending), string(AppealStatusUnderReview)}).
		Count(&stats.PendingAppeals).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&models.Report{}).
		Where("resolved_at IS NULL").
		Count(&stats.OpenReports).Error
	if err != nil {
		return nil, err
	}
	stats.TotalQueueSize = stats.PendingActions + stats.PendingAppeals + stats.OpenReports

	avg, err := q.meanResolutionMinutes(ctx)
	if err != nil {
		return nil, err
	}
	stats.AvgResolutionMinutes = avg

	oldest, err := q.oldestUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	if oldest != nil {
		wait := humanizeWait(time.Since(*oldest))
		stats.OldestItemWaitTime = &wait
	}

	if raw, err := json.Marshal(stats); err == nil {
		if err := q.cache.Set(ctx, cacheKey, raw, statsCacheTTL); err != nil {
			q.logger.Warn("stats cache write failed", "err", err)
		}
	}
	return stats, nil
}

// meanResolutionMinutes averages time-to-resolution over approved actions and
// resolved appeals. Intervals are computed in Go to stay portable between
// sqlite and postgres.
func (q *Queue) meanResolutionMinutes(ctx context.Context) (*float64, error) {
	var spans []struct {
		CreatedAt time.Time
		DoneAt    time.Time
	}
	err := q.db.WithContext(ctx).Model(&models.ModerationAction{}).
		Select("created_at, approved_at as done_at").
		Where("approved_at IS NOT NULL").
		Scan(&spans).Error
	if err != nil {
		return nil, err
	}
	var appealSpans []struct {
		CreatedAt time.Time
		DoneAt    time.Time
	}
	err = q.db.WithContext(ctx).Model(&models.Appeal{}).
		Select("created_at, resolved_at as done_at").
		Where("resolved_at IS NOT NULL").
		Scan(&appealSpans).Error
	if err != nil {
		return nil, err
	}
	spans = append(spans, appealSpans...)
	if len(spans) == 0 {
		return nil, nil
	}
	var total time.Duration
	for _, s := range spans {
		total += s.DoneAt.Sub(s.CreatedAt)
	}
	mins := total.Minutes() / float64(len(spans))
	return &mins, nil
}

func (q *Queue) oldestUnresolved(ctx context.Context) (*time.Time, error) {
	var oldest *time.Time
	consider := func(t time.Time) {
		if oldest == nil || t.Before(*oldest) {
			c := t
			oldest = &c
		}
	}

	var action models.ModerationAction
	err := q.db.WithContext(ctx).
		Where("status = ?", string(ActionStatusPending)).
		Order("created_at asc").
		First(&action).Error
	if err == nil {
		consider(action.CreatedAt)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var appeal models.Appeal
	err = q.db.WithContext(ctx).
		Where("status IN ?", []string{string(AppealStatusPending), string(AppealStatusUnderReview)}).
		Order("created_at asc").
		First(&appeal).Error
	if err == nil {
		consider(appeal.CreatedAt)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var report models.Report
	err = q.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at asc").
		First(&report).Error
	if err == nil {
		consider(report.CreatedAt)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return oldest, nil
}

// Analytics is the reporting rollup over actions created in a window.
type Analytics struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`

	TotalActions    int64 `json:"totalActions"`
	ApprovedActions int64 `json:"approvedActions"`
	RejectedActions int64 `json:"rejectedActions"`
	ReversedActions int64 `json:"reversedActions"`
	PendingActions  int64 `json:"pendingActions"`

	ApprovalRate float64 `json:"approvalRate"`
	ReversalRate float64 `json:"reversalRate"`

	ByActionType map[string]int64 `json:"byActionType"`

	AvgTimeToApprovalMinutes   *float64 `json:"avgTimeToApprovalMinutes"`
	AvgAppealResolutionMinutes *float64 `json:"avgAppealResolutionMinutes"`
}

// GetAnalytics rolls up actions created in [since, until). Zero times leave
// that bound open.
func (q *Queue) GetAnalytics(ctx context.Context, since, until time.Time) (*Analytics, error) {
	out := &Analytics{ByActionType: map[string]int64{}}
	if !since.IsZero() {
		out.StartDate = since.Format(time.RFC3339)
	}
	if !until.IsZero() {
		out.EndDate = until.Format(time.RFC3339)
	}

	query := q.db.WithContext(ctx).Model(&models.ModerationAction{})
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	if !until.IsZero() {
		query = query.Where("created_at < ?", until)
	}

	var actions []models.ModerationAction
	if err := query.Find(&actions).Error; err != nil {
		return nil, err
	}

	var approvalSpan time.Duration
	var approvedWithTimestamp int64
	for i := range actions {
		a := &actions[i]
		out.TotalActions++
		out.ByActionType[a.ActionType]++
		switch ActionStatus(a.Status) {
		case ActionStatusRejected:
			out.RejectedActions++
		case ActionStatusReversed:
			out.ReversedActions++
		case ActionStatusPending:
			out.PendingActions++
		}
		if a.ApprovedAt != nil {
			out.ApprovedActions++
			approvalSpan += a.ApprovedAt.Sub(a.CreatedAt)
			approvedWithTimestamp++
		}
	}
	if out.TotalActions > 0 {
		out.ApprovalRate = float64(out.ApprovedActions) / float64(out.TotalActions) * 100
		out.ReversalRate = float64(out.ReversedActions) / float64(out.TotalActions) * 100
	}
	if approvedWithTimestamp > 0 {
		mins := approvalSpan.Minutes() / float64(approvedWithTimestamp)
		out.AvgTimeToApprovalMinutes = &mins
	}

	appealQuery := q.db.WithContext(ctx).Model(&models.Appeal{}).Where("resolved_at IS NOT NULL")
	if !since.IsZero() {
		appealQuery = appealQuery.Where("created_at >= ?", since)
	}
	if !until.IsZero() {
		appealQuery = appealQuery.Where("created_at < ?", until)
	}
	var appeals []models.Appeal
	if err := appealQuery.Find(&appeals).Error; err != nil {
		return nil, err
	}
	if len(appeals) > 0 {
		var span time.Duration
		for i := range appeals {
			span += appeals[i].ResolvedAt.Sub(appeals[i].CreatedAt)
		}
		mins := span.Minutes() / float64(len(appeals))
		out.AvgAppealResolutionMinutes = &mins
	}

	return out, nil
}

func parseQueueItemType(s string) (string, error) {
	switch t := strings.ToLower(s); t {
	case "", QueueItemAction, QueueItemAppeal, QueueItemReport:
		return t, nil
	default:
		return "", &ValidationError{Msg: fmt.Sprintf("unrecognized queue item type: %q", s)}
	}
}

func parseQueueCursor(s string) (string, uint64, error) {
	itemType, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, &ValidationError{Msg: fmt.Sprintf("malformed queue cursor: %q", s)}
	}
	if itemType != QueueItemAction && itemType != QueueItemAppeal && itemType != QueueItemReport {
		return "", 0, &ValidationError{Msg: fmt.Sprintf("malformed queue cursor: %q", s)}
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return "", 0, &ValidationError{Msg: fmt.Sprintf("malformed queue cursor: %q", s)}
	}
	return itemType, id, nil
}

func queueItemStatus(it *QueueItem) string {
	switch {
	case it.Action != nil:
		return it.Action.Status
	case it.Appeal != nil:
		return it.Appeal.Status
	default:
		// only open reports enter the queue; surface them as PENDING so a
		// status filter treats all unresolved work alike
		return string(ActionStatusPending)
	}
}

func priorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

func humanizeWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
