// Package fakedata generates plausible moderation traffic against a live
// database. Intended for development and benchmarking.
package fakedata

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/quorum-social/quorum/directory"
	"github.com/quorum-social/quorum/models"
	"github.com/quorum-social/quorum/moderation"
	"github.com/quorum-social/quorum/notifs"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

type Generator struct {
	db     *gorm.DB
	logger *slog.Logger

	intake  *moderation.Intake
	actions *moderation.Actions
	appeals *moderation.Appeals
	reports *moderation.Reports
}

func NewGenerator(db *gorm.DB, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "fakedata")
	return &Generator{
		db:      db,
		logger:  logger,
		intake:  moderation.NewIntake(db, logger),
		actions: moderation.NewActions(db, &notifs.NullNotifier{}, logger),
		appeals: moderation.NewAppeals(db, directory.NewGormDirectory(db), logger),
		reports: moderation.NewReports(db, logger),
	}
}

var actionTypes = []string{"EDUCATE", "WARN", "HIDE", "REMOVE", "SUSPEND", "BAN"}
var targetTypes = []string{"RESPONSE", "USER", "TOPIC"}
var reportReasons = []string{"SPAM", "HARASSMENT", "MISINFORMATION", "OTHER"}

// GenModerators creates n active moderator accounts and returns their ids.
func (g *Generator) GenModerators(ctx context.Context, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		mod := models.Moderator{
			ID:          fmt.Sprintf("mod-%s", gofakeit.UUID()),
			Handle:      gofakeit.Username(),
			DisplayName: gofakeit.Name(),
			Active:      true,
		}
		if err := g.db.WithContext(ctx).Create(&mod).Error; err != nil {
			return nil, err
		}
		ids = append(ids, mod.ID)
	}
	g.logger.Info("created moderators", "count", n)
	return ids, nil
}

// GenRecommendations submits n AI recommendations through the intake path,
// so they land as PENDING actions with outbox events.
func (g *Generator) GenRecommendations(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		req := &moderation.SubmitRecommendationRequest{
			TargetType: targetTypes[rand.Intn(len(targetTypes))],
			TargetID:   gofakeit.UUID(),
			ActionType: actionTypes[rand.Intn(len(actionTypes))],
			Reasoning:  gofakeit.Sentence(12),
			Confidence: gofakeit.Float64Range(0.3, 0.99),
			AnalysisDetails: map[string]any{
				"riskScore":    gofakeit.Float64Range(0, 1),
				"fallacyTypes": []string{gofakeit.BuzzWord()},
			},
		}
		if _, err := g.intake.Submit(ctx, req); err != nil {
			return err
		}
	}
	g.logger.Info("submitted recommendations", "count", n)
	return nil
}

// GenModeratorActivity walks the pending queue and has random moderators
// approve fracApprove of the consequential items and reject the rest.
// Non-punitive items are left pending, matching real moderator behavior.
func (g *Generator) GenModeratorActivity(ctx context.Context, moderatorIDs []string, fracApprove float64) error {
	if len(moderatorIDs) == 0 {
		return fmt.Errorf("no moderators to act with")
	}
	pending, err := g.intake.ListPending(ctx, 100)
	if err != nil {
		return err
	}
	var approved, rejected int
	for _, av := range pending {
		mod := moderatorIDs[rand.Intn(len(moderatorIDs))]
		if moderation.SeverityFor(moderation.ActionType(av.ActionType)) == moderation.SeverityNonPunitive {
			continue
		}
		if rand.Float64() < fracApprove {
			if _, err := g.actions.ApproveAction(ctx, av.ID, mod, nil); err != nil {
				return err
			}
			approved++
		} else {
			req := &moderation.RejectActionRequest{RejectReasoning: gofakeit.Sentence(10)}
			if _, err := g.actions.RejectAction(ctx, av.ID, mod, req); err != nil {
				return err
			}
			rejected++
		}
	}
	g.logger.Info("processed pending actions", "approved", approved, "rejected", rejected)
	return nil
}

// GenDirectActions creates n moderator-initiated actions, which go ACTIVE
// immediately.
func (g *Generator) GenDirectActions(ctx context.Context, moderatorIDs []string, n int) error {
	if len(moderatorIDs) == 0 {
		return fmt.Errorf("no moderators to act with")
	}
	for i := 0; i < n; i++ {
		req := &moderation.CreateActionRequest{
			TargetType: targetTypes[rand.Intn(len(targetTypes))],
			TargetID:   gofakeit.UUID(),
			ActionType: actionTypes[rand.Intn(len(actionTypes))],
			Reasoning:  gofakeit.Sentence(12),
		}
		if req.ActionType == "BAN" || req.ActionType == "SUSPEND" {
			days := rand.Intn(30) + 1
			req.IsTemporary = true
			req.BanDurationDays = &days
		}
		mod := moderatorIDs[rand.Intn(len(moderatorIDs))]
		if _, err := g.actions.CreateAction(ctx, req, mod); err != nil {
			return err
		}
	}
	g.logger.Info("created direct actions", "count", n)
	return nil
}

// GenAppeals appeals fracAppeal of the ACTIVE actions, then has moderators
// resolve half of the appeals at random.
func (g *Generator) GenAppeals(ctx context.Context, moderatorIDs []string, fracAppeal float64) error {
	if len(moderatorIDs) == 0 {
		return fmt.Errorf("no moderators to act with")
	}
	page, err := g.actions.ListActions(ctx, &moderation.ListActionsQuery{Status: "ACTIVE", Limit: 100})
	if err != nil {
		return err
	}
	var opened, resolved int
	for _, av := range page.Actions {
		if rand.Float64() >= fracAppeal {
			continue
		}
		appellant := av.TargetID
		if av.TargetType != "USER" {
			appellant = fmt.Sprintf("user-%s", gofakeit.UUID())
		}
		appeal, err := g.appeals.CreateAppeal(ctx, av.ID, appellant, &moderation.CreateAppealRequest{
			Reason: gofakeit.Sentence(15),
		})
		if err != nil {
			return err
		}
		opened++
		if rand.Float64() < 0.5 {
			continue
		}
		mod := moderatorIDs[rand.Intn(len(moderatorIDs))]
		if _, err := g.appeals.AssignAppealToModerator(ctx, appeal.ID, mod); err != nil {
			return err
		}
		decision := "denied"
		if rand.Float64() < 0.3 {
			decision = "upheld"
		}
		_, err = g.appeals.ReviewAppeal(ctx, appeal.ID, mod, &moderation.ReviewAppealRequest{
			Decision:  decision,
			Reasoning: gofakeit.Sentence(12),
		})
		if err != nil {
			return err
		}
		resolved++
	}
	g.logger.Info("generated appeals", "opened", opened, "resolved", resolved)
	return nil
}

// GenReports files n user reports against random targets.
func (g *Generator) GenReports(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		reason := gofakeit.Sentence(8)
		req := &moderation.CreateReportRequest{
			TargetType: targetTypes[rand.Intn(len(targetTypes))],
			TargetID:   gofakeit.UUID(),
			ReasonType: reportReasons[rand.Intn(len(reportReasons))],
			Reason:     &reason,
		}
		reporter := fmt.Sprintf("user-%s", gofakeit.UUID())
		if _, err := g.reports.Create(ctx, req, reporter); err != nil {
			return err
		}
	}
	g.logger.Info("filed reports", "count", n)
	return nil
}
