package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/mixseek/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	clock := WithClock(func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) })
	return []storeFactory{
		{name: "memory", open: func(t *testing.T) Store { return NewMemoryStore(clock) }},
		{name: "sqlite", open: func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rounds.db"), clock)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		}},
	}
}

func entry(exec, team string, round int, score float64) *model.LeaderBoardEntry {
	return &model.LeaderBoardEntry{
		ExecutionID:       exec,
		TeamID:            team,
		TeamName:          "Team " + team,
		RoundNumber:       round,
		SubmissionContent: "# answer",
		Score:             score,
		ScoreDetails:      map[string]any{"relevance": score},
	}
}

func TestStoreContract(t *testing.T) {
	for _, f := range storeFactories() {
		f := f
		Convey("Given a "+f.name+" store", t, func() {
			s := f.open(t)
			defer s.Close()
			ctx := context.Background()

			Convey("When a round status is created and updated", func() {
				rec := &model.RoundStatusRecord{
					ExecutionID: "e1", TeamID: "alpha", TeamName: "Alpha",
					RoundNumber: 1, Status: model.RoundRunning,
				}
				So(s.CreateRoundStatus(ctx, rec), ShouldBeNil)
				So(rec.ID, ShouldBeGreaterThan, 0)

				rec.Status = model.RoundCompleted
				rec.MessageHistory = []model.Message{{Role: "assistant", Agent: "writer", Content: "draft"}}
				So(s.UpdateRoundStatus(ctx, rec), ShouldBeNil)

				Convey("Then the stored row carries the new status and history", func() {
					rows, err := s.RoundStatuses(ctx, "e1", "alpha")
					So(err, ShouldBeNil)
					So(rows, ShouldHaveLength, 1)
					So(rows[0].Status, ShouldEqual, model.RoundCompleted)
					So(rows[0].MessageHistory, ShouldHaveLength, 1)
					So(rows[0].MessageHistory[0].Agent, ShouldEqual, "writer")
				})

				Convey("Then a second row for the same round is rejected", func() {
					dup := &model.RoundStatusRecord{ExecutionID: "e1", TeamID: "alpha", RoundNumber: 1, Status: model.RoundRunning}
					So(errors.Is(s.CreateRoundStatus(ctx, dup), ErrDuplicateRound), ShouldBeTrue)
				})
			})

			Convey("When updating a status that does not exist", func() {
				err := s.UpdateRoundStatus(ctx, &model.RoundStatusRecord{ExecutionID: "e1", TeamID: "nobody", RoundNumber: 3})
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("When leaderboard rows are inserted out of order", func() {
				So(s.InsertLeaderBoardEntry(ctx, entry("e1", "alpha", 2, 70)), ShouldBeNil)
				So(s.InsertLeaderBoardEntry(ctx, entry("e1", "alpha", 1, 50)), ShouldBeNil)

				Convey("Then History returns them by round with defaults applied", func() {
					hist, err := s.History(ctx, "e1", "alpha")
					So(err, ShouldBeNil)
					So(hist, ShouldHaveLength, 2)
					So(hist[0].RoundNumber, ShouldEqual, 1)
					So(hist[1].RoundNumber, ShouldEqual, 2)
					So(hist[0].FinalSubmission, ShouldBeFalse)
					So(hist[0].ExitReason, ShouldBeNil)
				})

				Convey("Then a duplicate round is rejected", func() {
					err := s.InsertLeaderBoardEntry(ctx, entry("e1", "alpha", 2, 10))
					So(errors.Is(err, ErrDuplicateRound), ShouldBeTrue)
				})

				Convey("Then Best is not found before finalization", func() {
					_, err := s.Best(ctx, "e1", "alpha")
					So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When a team is finalized", func() {
				for i, score := range []float64{60, 80, 75} {
					So(s.InsertLeaderBoardEntry(ctx, entry("e1", "alpha", i+1, score)), ShouldBeNil)
				}
				So(s.Finalize(ctx, "e1", "alpha", 2, 3, model.ExitMaxRounds), ShouldBeNil)

				Convey("Then exactly one row is final and the terminal row has the exit reason", func() {
					hist, err := s.History(ctx, "e1", "alpha")
					So(err, ShouldBeNil)
					finals := 0
					for _, e := range hist {
						if e.FinalSubmission {
							finals++
							So(e.RoundNumber, ShouldEqual, 2)
						}
					}
					So(finals, ShouldEqual, 1)
					So(hist[2].ExitReason, ShouldNotBeNil)
					So(*hist[2].ExitReason, ShouldEqual, model.ExitMaxRounds)
					So(hist[0].ExitReason, ShouldBeNil)
				})

				Convey("Then Best returns the same row on repeated calls", func() {
					a, err := s.Best(ctx, "e1", "alpha")
					So(err, ShouldBeNil)
					b, err := s.Best(ctx, "e1", "alpha")
					So(err, ShouldBeNil)
					So(a.RoundNumber, ShouldEqual, 2)
					So(a.Score, ShouldEqual, 80.0)
					So(b.ID, ShouldEqual, a.ID)
					So(a.ScoreDetails["relevance"], ShouldEqual, 80.0)
				})

				Convey("Then a second finalization is rejected", func() {
					err := s.Finalize(ctx, "e1", "alpha", 1, 3, model.ExitMaxRounds)
					So(errors.Is(err, ErrAlreadyFinalized), ShouldBeTrue)
				})
			})

			Convey("When finalizing a round that was never recorded", func() {
				So(s.InsertLeaderBoardEntry(ctx, entry("e1", "beta", 1, 40)), ShouldBeNil)
				err := s.Finalize(ctx, "e1", "beta", 1, 4, model.ExitRoundFailure)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)

				Convey("Then nothing is marked final", func() {
					_, err := s.Best(ctx, "e1", "beta")
					So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When several teams finalize in one execution", func() {
				teams := map[string]float64{"alpha": 70, "beta": 90, "gamma": 70, "delta": 55}
				for team, score := range teams {
					So(s.InsertLeaderBoardEntry(ctx, entry("e2", team, 1, score)), ShouldBeNil)
					So(s.Finalize(ctx, "e2", team, 1, 1, model.ExitMaxRounds), ShouldBeNil)
				}
				So(s.InsertLeaderBoardEntry(ctx, entry("other", "omega", 1, 99)), ShouldBeNil)
				So(s.Finalize(ctx, "other", "omega", 1, 1, model.ExitMaxRounds), ShouldBeNil)

				Convey("Then TopFinal ranks by score with team id as tie-break", func() {
					top, err := s.TopFinal(ctx, "e2", 3)
					So(err, ShouldBeNil)
					So(top, ShouldHaveLength, 3)
					So(top[0].TeamID, ShouldEqual, "beta")
					So(top[1].TeamID, ShouldEqual, "alpha")
					So(top[2].TeamID, ShouldEqual, "gamma")
				})

				Convey("Then an invalid limit is rejected", func() {
					_, err := s.TopFinal(ctx, "e2", 0)
					So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
				})
			})

			Convey("When teams write concurrently", func() {
				var wg sync.WaitGroup
				errs := make(chan error, 40)
				for _, team := range []string{"t1", "t2", "t3", "t4"} {
					wg.Add(1)
					go func(team string) {
						defer wg.Done()
						for round := 1; round <= 10; round++ {
							errs <- s.InsertLeaderBoardEntry(ctx, entry("e3", team, round, float64(round)))
						}
					}(team)
				}
				wg.Wait()
				close(errs)

				Convey("Then every write succeeds and histories are gap-free", func() {
					for err := range errs {
						So(err, ShouldBeNil)
					}
					hist, err := s.History(ctx, "e3", "t3")
					So(err, ShouldBeNil)
					So(hist, ShouldHaveLength, 10)
					for i, e := range hist {
						So(e.RoundNumber, ShouldEqual, i+1)
					}
				})
			})
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	Convey("Given sqlite DSNs", t, func() {
		So(sqliteDSN(":memory:", 100), ShouldEqual, ":memory:?_pragma=busy_timeout(100)&_txlock=immediate")
		So(sqliteDSN("file:x.db?mode=rwc", 5000), ShouldContainSubstring, "file:x.db?mode=rwc&_pragma=busy_timeout(5000)")
		So(sqliteDSN("x.db", 5000), ShouldContainSubstring, "journal_mode(WAL)")
	})
}

func TestSQLiteReopen(t *testing.T) {
	Convey("Given a sqlite file that already has the schema", t, func() {
		path := filepath.Join(t.TempDir(), "reopen.db")
		ctx := context.Background()
		s, err := OpenSQLite(ctx, path)
		So(err, ShouldBeNil)
		So(s.InsertLeaderBoardEntry(ctx, entry("e1", "alpha", 1, 42)), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When it is opened again", func() {
			s, err := OpenSQLite(ctx, path)
			So(err, ShouldBeNil)
			defer s.Close()

			Convey("Then migrations are a no-op and rows survive", func() {
				hist, err := s.History(ctx, "e1", "alpha")
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 1)
				So(hist[0].Score, ShouldEqual, 42.0)
			})
		})
	})
}
