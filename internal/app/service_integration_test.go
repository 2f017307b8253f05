package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	service "github.com/okian/mixseek/internal/app"
	"github.com/okian/mixseek/internal/adapters/repository"
	"github.com/okian/mixseek/internal/domain/evaluation"
	"github.com/okian/mixseek/internal/domain/judgment"
	"github.com/okian/mixseek/internal/domain/prompt"
	"github.com/okian/mixseek/internal/domain/team"
	"github.com/okian/mixseek/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service on sqlite with the local collaborators", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "mixseek.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		cfg := newTestConfig()
		cfg.MaxRounds = 4
		svc := service.New(cfg, store, service.Collaborators{
			Runtime:   team.NewSimulatedRuntime(team.WithLatencyRange(0, 0)),
			Evaluator: evaluation.NewInMemoryEvaluator(evaluation.WithLatencyRange(0, 0)),
			Judge:     judgment.NewPlateauJudge(judgment.WithMinImprovement(0.5)),
			Prompts:   prompt.NewTemplateBuilder(),
		}, service.WithLogger(logger.Get()))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(context.Background()) }()

		Convey("When four teams run concurrently", func() {
			best, err := svc.Run(ctx, service.SubmitRequest{
				UserQuery: "explain how raft elects a leader",
				Metadata:  map[string]string{"audience": "students"},
				Teams:     teams("alpha", "beta", "gamma", "delta"),
			})
			So(err, ShouldBeNil)
			So(best, ShouldHaveLength, 4)

			Convey("Then every team has gap-free rounds, one final and one exit reason", func() {
				for teamID, b := range best {
					hist, err := store.History(ctx, b.ExecutionID, teamID)
					So(err, ShouldBeNil)
					So(len(hist), ShouldBeBetweenOrEqual, 1, 4)

					finals, reasons := 0, 0
					for i, e := range hist {
						So(e.RoundNumber, ShouldEqual, i+1)
						So(e.Score, ShouldBeBetweenOrEqual, 0, 100)
						So(e.Score, ShouldBeLessThanOrEqualTo, b.Score)
						if e.FinalSubmission {
							finals++
						}
						if e.ExitReason != nil {
							reasons++
							So(e.RoundNumber, ShouldEqual, len(hist))
						}
					}
					So(finals, ShouldEqual, 1)
					So(reasons, ShouldEqual, 1)

					statuses, err := store.RoundStatuses(ctx, b.ExecutionID, teamID)
					So(err, ShouldBeNil)
					So(statuses, ShouldHaveLength, len(hist))
					So(statuses[0].MessageHistory, ShouldNotBeEmpty)
				}
			})

			Convey("Then re-querying the best entry is stable", func() {
				for teamID, b := range best {
					for i := 0; i < 3; i++ {
						again, err := svc.Best(ctx, b.ExecutionID, teamID)
						So(err, ShouldBeNil)
						So(again.ID, ShouldEqual, b.ID)
						So(again.Score, ShouldEqual, b.Score)
					}
				}
			})
		})
	})
}
