package moderation

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/quorum-social/quorum/events"
	"github.com/quorum-social/quorum/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAppeal(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "remove",
		Reasoning: "Removed as a personal attack on another participant",
	}, "mod-1")
	require.NoError(t, err)

	appeal, err := ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "This action misread my comment as an attack; it was a quotation.",
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", appeal.Status)
	assert.Equal(t, "user-9", appeal.AppellantID)
	assert.Equal(t, action.ID, appeal.ModerationActionID)

	view, err := ac.GetActionView(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, "APPEALED", view.Status)
}

func TestCreateAppealValidation(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "remove",
		Reasoning: "Removed as a personal attack on another participant",
	}, "mod-1")
	require.NoError(t, err)

	var ve *ValidationError
	_, err = ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{Reason: "unfair"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Appeal reason must be between 20 and 5000 characters long", err.Error())

	_, err = ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: strings.Repeat("x", 5001),
	})
	require.ErrorAs(t, err, &ve)

	// bounds count characters, not bytes
	_, err = ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: strings.Repeat("é", 15),
	})
	require.ErrorAs(t, err, &ve)

	var nfe *NotFoundError
	_, err = ap.CreateAppeal(ctx, 9999, "user-9", &CreateAppealRequest{
		Reason: "This action misread my comment as an attack entirely.",
	})
	require.ErrorAs(t, err, &nfe)
}

func TestDuplicateAppeal(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "remove",
		Reasoning: "Removed as a personal attack on another participant",
	}, "mod-1")
	require.NoError(t, err)

	_, err = ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "This action misread my comment as an attack; it was a quotation.",
	})
	require.NoError(t, err)

	var dae *DuplicateAppealError
	_, err = ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "Filing again because the first appeal is taking too long.",
	})
	require.ErrorAs(t, err, &dae)

	// a different appellant may still appeal the same action
	_, err = ap.CreateAppeal(ctx, action.ID, "user-10", &CreateAppealRequest{
		Reason: "I quoted the same source and my reply vanished with this removal.",
	})
	require.NoError(t, err)
}

func TestAppealAgainAfterDenial(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()
	seedModerator(t, db, "mod-3")

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "remove",
		Reasoning: "Removed as a personal attack on another participant",
	}, "mod-1")
	require.NoError(t, err)
	appeal, err := ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "This action misread my comment as an attack; it was a quotation.",
	})
	require.NoError(t, err)

	_, err = ap.ReviewAppeal(ctx, appeal.ID, "mod-3", &ReviewAppealRequest{
		Decision:  "denied",
		Reasoning: "The full thread shows a sustained pattern of attacks.",
	})
	require.NoError(t, err)

	// a resolved appeal no longer blocks the same appellant
	again, err := ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "New context: the cited moderator note refers to a different comment.",
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", again.Status)
	assert.NotEqual(t, appeal.ID, again.ID)

	view, err := ac.GetActionView(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, "APPEALED", view.Status)
}

func TestActiveAppealUniqueIndex(t *testing.T) {
	db := testDB(t)

	mk := func(status string) *models.Appeal {
		return &models.Appeal{
			ModerationActionID: 1,
			AppellantID:        "user-9",
			Reason:             "This action misread my comment as an attack; it was a quotation.",
			Status:             status,
		}
	}

	require.NoError(t, db.Create(mk("PENDING")).Error)
	// a second unresolved appeal for the same (action, appellant) is
	// rejected at the database even if the service check is raced past
	require.Error(t, db.Create(mk("PENDING")).Error)

	// resolved rows fall outside the partial index
	require.NoError(t, db.Create(mk("DENIED")).Error)
}

func TestAssignAndUnassignAppeal(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()
	seedModerator(t, db, "mod-3")

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "remove",
		Reasoning: "Removed as a personal attack on another participant",
	}, "mod-1")
	require.NoError(t, err)
	appeal, err := ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "This action misread my comment as an attack; it was a quotation.",
	})
	require.NoError(t, err)

	var nfe *NotFoundError
	_, err = ap.AssignAppealToModerator(ctx, appeal.ID, "mod-unknown")
	require.ErrorAs(t, err, &nfe)

	assigned, err := ap.AssignAppealToModerator(ctx, appeal.ID, "mod-3")
	require.NoError(t, err)
	assert.Equal(t, "UNDER_REVIEW", assigned.Status)
	require.NotNil(t, assigned.ReviewerID)
	assert.Equal(t, "mod-3", *assigned.ReviewerID)

	var ite *InvalidTransitionError
	_, err = ap.AssignAppealToModerator(ctx, appeal.ID, "mod-3")
	require.ErrorAs(t, err, &ite)

	unassigned, err := ap.UnassignAppeal(ctx, appeal.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", unassigned.Status)
	assert.Nil(t, unassigned.ReviewerID)
}

func TestReviewAppealUpheld(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()
	seedModerator(t, db, "mod-3")

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "remove",
		Reasoning: "Removed as a personal attack on another participant",
	}, "mod-1")
	require.NoError(t, err)
	appeal, err := ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "This action misread my comment as an attack; it was a quotation.",
	})
	require.NoError(t, err)

	reviewed, err := ap.ReviewAppeal(ctx, appeal.ID, "mod-3", &ReviewAppealRequest{
		Decision:  "upheld",
		Reasoning: "Confirmed the quoted text was misattributed; reversing action.",
	})
	require.NoError(t, err)
	assert.Equal(t, "UPHELD", reviewed.Status)
	require.NotNil(t, reviewed.ReviewerID)
	assert.Equal(t, "mod-3", *reviewed.ReviewerID)
	assert.NotNil(t, reviewed.ResolvedAt)

	view, err := ac.GetActionView(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, "REVERSED", view.Status)
	assert.Contains(t, view.Reasoning, "[APPEAL UPHELD: Confirmed the quoted text was misattributed; reversing action.]")

	// exactly one trust-feedback event queued for the appellant
	rows := outboxRows(t, db, events.KindTrustUpdated)
	require.Len(t, rows, 1)
	var payload events.TrustUpdated
	require.NoError(t, json.Unmarshal(rows[0].Payload, &payload))
	assert.Equal(t, "user-9", payload.UserID)
	assert.Equal(t, "appeal_upheld", payload.Reason)
	assert.Equal(t, action.ID, payload.ModerationActionID)
	assert.Equal(t, "mod-3", rows[0].UserID)

	// a reversed action cannot be appealed again
	var ite *InvalidTransitionError
	_, err = ap.CreateAppeal(ctx, action.ID, "user-10", &CreateAppealRequest{
		Reason: "Trying to appeal the same removal one more time here.",
	})
	require.ErrorAs(t, err, &ite)
}

func TestReviewAppealDenied(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()
	seedModerator(t, db, "mod-3")

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "remove",
		Reasoning: "Removed as a personal attack on another participant",
	}, "mod-1")
	require.NoError(t, err)
	appeal, err := ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "This action misread my comment as an attack; it was a quotation.",
	})
	require.NoError(t, err)

	reviewed, err := ap.ReviewAppeal(ctx, appeal.ID, "mod-3", &ReviewAppealRequest{
		Decision:  "denied",
		Reasoning: "The full thread shows a sustained pattern of attacks.",
	})
	require.NoError(t, err)
	assert.Equal(t, "DENIED", reviewed.Status)

	// the action keeps its status and reasoning, and no trust event fires
	view, err := ac.GetActionView(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, "APPEALED", view.Status)
	assert.NotContains(t, view.Reasoning, "[APPEAL UPHELD")
	assert.Empty(t, outboxRows(t, db, events.KindTrustUpdated))

	// resolved appeals cannot be re-reviewed
	var ite *InvalidTransitionError
	_, err = ap.ReviewAppeal(ctx, appeal.ID, "mod-3", &ReviewAppealRequest{
		Decision:  "upheld",
		Reasoning: "Changed my mind about the whole situation after all.",
	})
	require.ErrorAs(t, err, &ite)
}

func TestReviewAppealValidation(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()
	seedModerator(t, db, "mod-3")

	action, err := ac.CreateAction(ctx, &CreateActionRequest{
		TargetType: "response", TargetID: "r1", ActionType: "remove",
		Reasoning: "Removed as a personal attack on another participant",
	}, "mod-1")
	require.NoError(t, err)
	appeal, err := ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
		Reason: "This action misread my comment as an attack; it was a quotation.",
	})
	require.NoError(t, err)

	var ve *ValidationError
	_, err = ap.ReviewAppeal(ctx, appeal.ID, "mod-3", &ReviewAppealRequest{
		Decision: "maybe", Reasoning: "Confirmed the quoted text was misattributed entirely.",
	})
	require.ErrorAs(t, err, &ve)

	_, err = ap.ReviewAppeal(ctx, appeal.ID, "mod-3", &ReviewAppealRequest{
		Decision: "upheld", Reasoning: "too short",
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Decision reasoning must be between 20 and 2000 characters long", err.Error())

	// bounds count characters, not bytes
	_, err = ap.ReviewAppeal(ctx, appeal.ID, "mod-3", &ReviewAppealRequest{
		Decision: "upheld", Reasoning: strings.Repeat("é", 15),
	})
	require.ErrorAs(t, err, &ve)

	var nfe *NotFoundError
	_, err = ap.ReviewAppeal(ctx, appeal.ID, "mod-unknown", &ReviewAppealRequest{
		Decision: "upheld", Reasoning: "Confirmed the quoted text was misattributed entirely.",
	})
	require.ErrorAs(t, err, &nfe)
}

func TestGetPendingAppealsPagination(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()
	seedModerator(t, db, "mod-3")

	for i := 0; i < 5; i++ {
		action, err := ac.CreateAction(ctx, &CreateActionRequest{
			TargetType: "response", TargetID: "r1", ActionType: "hide",
			Reasoning: "Off-topic flame bait derailing discussion",
		}, "mod-1")
		require.NoError(t, err)
		_, err = ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
			Reason: "My reply was on topic and responded to the question asked.",
		})
		require.NoError(t, err)
	}

	page, err := ap.GetPendingAppeals(ctx, &PendingAppealsQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)
	require.Len(t, page.Appeals, 2)
	require.NotNil(t, page.NextCursor)

	page2, err := ap.GetPendingAppeals(ctx, &PendingAppealsQuery{Limit: 2, Cursor: *page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Appeals, 2)
	assert.Greater(t, page2.Appeals[0].ID, page.Appeals[1].ID)

	require.NotNil(t, page2.NextCursor)
	page3, err := ap.GetPendingAppeals(ctx, &PendingAppealsQuery{Limit: 2, Cursor: *page2.NextCursor})
	require.NoError(t, err)
	require.Len(t, page3.Appeals, 1)
	assert.Nil(t, page3.NextCursor)

	// reviewer filter only returns that moderator's assignments
	_, err = ap.AssignAppealToModerator(ctx, page.Appeals[0].ID, "mod-3")
	require.NoError(t, err)
	filtered, err := ap.GetPendingAppeals(ctx, &PendingAppealsQuery{AssignedModeratorID: "mod-3"})
	require.NoError(t, err)
	require.Len(t, filtered.Appeals, 1)
	assert.Equal(t, page.Appeals[0].ID, filtered.Appeals[0].ID)
}

func TestGetAppealStatistics(t *testing.T) {
	db := testDB(t)
	ac := testActions(db, nil)
	ap := testAppeals(db)
	ctx := context.Background()
	seedModerator(t, db, "mod-3")

	decisions := []string{"upheld", "denied", "denied"}
	for _, decision := range decisions {
		action, err := ac.CreateAction(ctx, &CreateActionRequest{
			TargetType: "response", TargetID: "r1", ActionType: "hide",
			Reasoning: "Off-topic flame bait derailing discussion",
		}, "mod-1")
		require.NoError(t, err)
		appeal, err := ap.CreateAppeal(ctx, action.ID, "user-9", &CreateAppealRequest{
			Reason: "My reply was on topic and responded to the question asked.",
		})
		require.NoError(t, err)
		_, err = ap.ReviewAppeal(ctx, appeal.ID, "mod-3", &ReviewAppealRequest{
			Decision:  decision,
			Reasoning: "Reviewed the full thread before making this decision.",
		})
		require.NoError(t, err)
	}

	stats, err := ap.GetAppealStatistics(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.ByStatus["UPHELD"])
	assert.Equal(t, int64(2), stats.ByStatus["DENIED"])
	assert.InDelta(t, 100.0/3.0, stats.UpheldRate, 0.001)
	assert.GreaterOrEqual(t, stats.AvgResolutionMinutes, 0.0)

	// a window in the far past matches nothing
	past := time.Now().Add(-48 * time.Hour)
	cutoff := time.Now().Add(-24 * time.Hour)
	empty, err := ap.GetAppealStatistics(ctx, &past, &cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Total)
	assert.Equal(t, 0.0, empty.UpheldRate)
}
