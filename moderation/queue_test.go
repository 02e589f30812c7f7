package moderation

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testQueue(db *gorm.DB) *Queue {
	return NewQueue(db, nil, testLogger())
}

func submitRec(t *testing.T, ix *Intake, actionType string, confidence float64) *ActionView {
	t.Helper()
	v, err := ix.Submit(context.Background(), &SubmitRecommendationRequest{
		TargetType: "response", TargetID: "r1", ActionType: actionType,
		Reasoning: "Automated classifier flagged this content for review", Confidence: confidence,
	})
	require.NoError(t, err)
	return v
}

func TestQueuePriorities(t *testing.T) {
	db := testDB(t)
	ix := testIntake(db)
	q := testQueue(db)
	ctx := context.Background()

	high := submitRec(t, ix, "remove", 0.9)
	normal := submitRec(t, ix, "remove", 0.3)
	alsoNormal := submitRec(t, ix, "warn", 0.6)
	low := submitRec(t, ix, "warn", 0.3)

	page, err := q.GetQueue(ctx, &QueueRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 4)

	byID := map[uint64]QueueItem{}
	for _, it := range page.Items {
		require.Equal(t, QueueItemAction, it.Type)
		byID[it.ID] = it
	}
	assert.Equal(t, PriorityHigh, byID[high.ID].Priority)
	assert.Equal(t, PriorityNormal, byID[normal.ID].Priority)
	assert.Equal(t, PriorityNormal, byID[alsoNormal.ID].Priority)
	assert.Equal(t, PriorityLow, byID[low.ID].Priority)

	// high priority items come first, low last
	assert.Equal(t, high.ID, page.Items[0].ID)
	assert.Equal(t, low.ID, page.Items[3].ID)
}

func TestQueueMergesAppealsAndReports(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	rp := NewReports(db, testLogger())
	q := testQueue(db)
	ctx := context.Background()

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "user", TargetID: "u1", ActionType: "ban",
		Reasoning: "Persistent harassment after repeated warnings",
	}, "mod-1")
	require.NoError(t, err)
	appeal, err := ap.CreateAppeal(ctx, action.ID, "u1", &CreateAppealRequest{
		Reason: "The cited messages were taken badly out of context.",
	})
	require.NoError(t, err)

	reason := "keeps posting the same link"
	report, err := rp.Create(ctx, &CreateReportRequest{
		TargetType: "response", TargetID: "r2", ReasonType: "spam", Reason: &reason,
	}, "user-5")
	require.NoError(t, err)

	page, err := q.GetQueue(ctx, &QueueRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	types := map[string]QueueItem{}
	for _, it := range page.Items {
		types[it.Type] = it
	}

	// the appealed BAN is consequential, so its appeal ranks high
	appealItem, ok := types[QueueItemAppeal]
	require.True(t, ok)
	assert.Equal(t, appeal.ID, appealItem.ID)
	assert.Equal(t, PriorityHigh, appealItem.Priority)
	require.NotNil(t, appealItem.Appeal)

	reportItem, ok := types[QueueItemReport]
	require.True(t, ok)
	assert.Equal(t, report.ID, reportItem.ID)
	assert.Equal(t, PriorityNormal, reportItem.Priority)

	// type filter narrows to one kind
	page, err = q.GetQueue(ctx, &QueueRequest{Type: "report"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, QueueItemReport, page.Items[0].Type)

	// open reports surface as PENDING, so a status filter keeps them
	page, err = q.GetQueue(ctx, &QueueRequest{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	var ve *ValidationError
	_, err = q.GetQueue(ctx, &QueueRequest{Type: "bogus"})
	require.ErrorAs(t, err, &ve)
}

func TestQueuePagination(t *testing.T) {
	db := testDB(t)
	ix := testIntake(db)
	q := testQueue(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		submitRec(t, ix, "hide", 0.9)
	}

	seen := map[uint64]bool{}
	var cursor string
	for {
		page, err := q.GetQueue(ctx, &QueueRequest{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, it := range page.Items {
			assert.False(t, seen[it.ID], "item %d repeated across pages", it.ID)
			seen[it.ID] = true
		}
		if page.NextCursor == nil {
			assert.Less(t, len(page.Items), 2)
			break
		}
		require.Len(t, page.Items, 2)
		cursor = *page.NextCursor
	}
	assert.Len(t, seen, 5)

	var ve *ValidationError
	_, err := q.GetQueue(ctx, &QueueRequest{Cursor: "not-a-cursor"})
	require.ErrorAs(t, err, &ve)
}

func TestQueueStats(t *testing.T) {
	db := testDB(t)
	ix := testIntake(db)
	ac := testActions(db, nil)
	ctx := context.Background()

	submitRec(t, ix, "remove", 0.9)
	_, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "hide",
		Reasoning: "Off-topic flame bait derailing discussion",
	}, "mod-1")
	require.NoError(t, err)

	q := testQueue(db)
	stats, err := q.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingActions)
	assert.Equal(t, int64(0), stats.PendingAppeals)
	assert.Equal(t, int64(0), stats.OpenReports)
	assert.Equal(t, int64(1), stats.TotalQueueSize)
	require.NotNil(t, stats.AvgResolutionMinutes)
	require.NotNil(t, stats.OldestItemWaitTime)

	// a second read within the TTL is served from cache
	submitRec(t, ix, "remove", 0.9)
	cached, err := q.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.PendingActions)

	// a fresh cache sees the new row
	fresh, err := testQueue(db).GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.PendingActions)
}

func TestGetAnalytics(t *testing.T) {
	db := testDB(t)
	ix := testIntake(db)
	ac := testActions(db, nil)
	q := testQueue(db)
	ctx := context.Background()

	// two approved, one rejected, one still pending
	for i := 0; i < 2; i++ {
		_, err := ac.CreateAction(ctx, &CreateActionRequest{
			TargetType: "response", TargetID: "r1", ActionType: "hide",
			Reasoning: "Off-topic flame bait derailing discussion",
		}, "mod-1")
		require.NoError(t, err)
	}
	rec := submitRec(t, ix, "remove", 0.6)
	_, err := ac.RejectAction(ctx, rec.ID, "mod-1", &RejectActionRequest{
		RejectReasoning: "Classifier misread satire as misinformation",
	})
	require.NoError(t, err)
	submitRec(t, ix, "remove", 0.6)

	out, err := q.GetAnalytics(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), out.TotalActions)
	assert.Equal(t, int64(2), out.ApprovedActions)
	assert.Equal(t, int64(1), out.RejectedActions)
	assert.Equal(t, int64(1), out.PendingActions)
	assert.Equal(t, int64(0), out.ReversedActions)
	assert.InDelta(t, 50.0, out.ApprovalRate, 0.001)
	assert.Equal(t, 0.0, out.ReversalRate)
	assert.Equal(t, int64(2), out.ByActionType["HIDE"])
	assert.Equal(t, int64(2), out.ByActionType["REMOVE"])
	require.NotNil(t, out.AvgTimeToApprovalMinutes)

	// an empty window rolls up to zeros without dividing by zero
	until := time.Now().Add(-24 * time.Hour)
	empty, err := q.GetAnalytics(ctx, time.Time{}, until)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalActions)
	assert.Equal(t, 0.0, empty.ApprovalRate)
}

func TestHumanizeWait(t *testing.T) {
	assert.Equal(t, "0h 5m", humanizeWait(5*time.Minute))
	assert.Equal(t, "1h 30m", humanizeWait(90*time.Minute))
	assert.Equal(t, "23h 59m", humanizeWait(24*time.Hour-time.Minute))
	assert.Equal(t, "1d", humanizeWait(26*time.Hour))
	assert.Equal(t, "3d", humanizeWait(80*time.Hour))
	assert.Equal(t, "0h 0m", humanizeWait(-time.Minute))
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 120))

	out := truncate(strings.Repeat("é", 130), 120)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 121, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))
}
