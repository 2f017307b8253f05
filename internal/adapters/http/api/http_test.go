package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/mixseek/internal/adapters/http/api"
	"github.com/okian/mixseek/internal/adapters/repository"
	service "github.com/okian/mixseek/internal/app"
	"github.com/okian/mixseek/internal/domain/model"
)

type fakeService struct {
	submitErr  error
	submitted  []service.SubmitRequest
	executions map[string]service.Execution
	board      []model.LeaderBoardEntry
	lastLimit  int
	best       map[string]model.LeaderBoardEntry
	rounds     map[string]service.TeamRounds
}

func newFakeService() *fakeService {
	reason := model.ExitMaxRounds
	entry := model.LeaderBoardEntry{
		ExecutionID: "exec-1", TeamID: "alpha", RoundNumber: 2, Score: 81.5,
		FinalSubmission: true, ExitReason: &reason,
	}
	return &fakeService{
		executions: map[string]service.Execution{
			"exec-1": {ID: "exec-1", UserQuery: "q", CreatedAt: time.Unix(0, 0).UTC(), Done: true,
				Teams: []service.TeamOutcome{{TeamID: "alpha", TeamName: "Alpha", Status: service.TeamFinalized, Best: &entry}}},
		},
		board: []model.LeaderBoardEntry{entry},
		best:  map[string]model.LeaderBoardEntry{"exec-1/alpha": entry},
		rounds: map[string]service.TeamRounds{"exec-1/alpha": {
			Statuses: []model.RoundStatusRecord{{ExecutionID: "exec-1", TeamID: "alpha", RoundNumber: 1, Status: model.RoundCompleted}},
			Entries:  []model.LeaderBoardEntry{entry},
		}},
	}
}

func (f *fakeService) Submit(_ context.Context, req service.SubmitRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "exec-new", nil
}

func (f *fakeService) Execution(_ context.Context, id string) (service.Execution, error) {
	e, ok := f.executions[id]
	if !ok {
		return service.Execution{}, fmt.Errorf("%w: %s", service.ErrUnknownExecution, id)
	}
	return e, nil
}

func (f *fakeService) Executions(context.Context) []service.Execution {
	out := make([]service.Execution, 0, len(f.executions))
	for _, e := range f.executions {
		out = append(out, e)
	}
	return out
}

func (f *fakeService) Leaderboard(_ context.Context, id string, limit int) ([]model.LeaderBoardEntry, error) {
	f.lastLimit = limit
	if limit > 100 {
		return nil, service.ErrInvalidLimit
	}
	if _, ok := f.executions[id]; !ok {
		return nil, service.ErrUnknownExecution
	}
	return f.board, nil
}

func (f *fakeService) Best(_ context.Context, id, teamID string) (model.LeaderBoardEntry, error) {
	e, ok := f.best[id+"/"+teamID]
	if !ok {
		return model.LeaderBoardEntry{}, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeService) Rounds(_ context.Context, id, teamID string) (service.TeamRounds, error) {
	r, ok := f.rounds[id+"/"+teamID]
	if !ok {
		return service.TeamRounds{}, repository.ErrNotFound
	}
	return r, nil
}

type fakeStats struct{}

func (fakeStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "executions": 1}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}

func TestSubmitExecution(t *testing.T) {
	Convey("Given an API server", t, func() {
		svc := newFakeService()
		router := api.NewServer(svc, fakeStats{}, nil).Router(context.Background())

		Convey("When a valid execution is posted", func() {
			w := do(router, http.MethodPost, "/executions",
				`{"user_query":"compare runtimes","teams":[{"team_id":"alpha","team_name":"Alpha"}]}`)

			Convey("Then it is accepted with an execution id", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var body map[string]string
				So(decode(w, &body), ShouldBeNil)
				So(body["execution_id"], ShouldEqual, "exec-new")
				So(svc.submitted, ShouldHaveLength, 1)
				So(svc.submitted[0].Teams[0].ID, ShouldEqual, "alpha")
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(router, http.MethodPost, "/executions", `{"user_query":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body has unknown fields", func() {
			w := do(router, http.MethodPost, "/executions", `{"user_query":"q","rounds":3}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service rejects the request", func() {
			cases := []struct {
				err  error
				code int
			}{
				{fmt.Errorf("%w: missing user_query", service.ErrInvalidRequest), http.StatusBadRequest},
				{fmt.Errorf("%w: alpha", service.ErrDuplicateTeam), http.StatusConflict},
				{fmt.Errorf("%w: req-1", service.ErrRequestInFlight), http.StatusConflict},
				{fmt.Errorf("%w: queue full", service.ErrBackpressure), http.StatusTooManyRequests},
				{service.ErrNotStarted, http.StatusServiceUnavailable},
				{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
			}
			for _, tc := range cases {
				svc.submitErr = tc.err
				w := do(router, http.MethodPost, "/executions", `{"user_query":"q","teams":[{"team_id":"a"}]}`)
				So(w.Code, ShouldEqual, tc.code)
				var body map[string]string
				So(decode(w, &body), ShouldBeNil)
				So(body["message"], ShouldContainSubstring, "api.submit_execution")
			}
		})
	})
}

func TestReadEndpoints(t *testing.T) {
	Convey("Given an API server with one finished execution", t, func() {
		svc := newFakeService()
		router := api.NewServer(svc, fakeStats{}, nil).Router(context.Background())

		Convey("Then the execution can be fetched", func() {
			w := do(router, http.MethodGet, "/executions/exec-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var exec service.Execution
			So(decode(w, &exec), ShouldBeNil)
			So(exec.Teams, ShouldHaveLength, 1)
			So(exec.Teams[0].Best.Score, ShouldEqual, 81.5)
		})

		Convey("Then executions are listed", func() {
			w := do(router, http.MethodGet, "/executions", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var list []service.Execution
			So(decode(w, &list), ShouldBeNil)
			So(list, ShouldHaveLength, 1)
		})

		Convey("Then an unknown execution is not found", func() {
			So(do(router, http.MethodGet, "/executions/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(router, http.MethodGet, "/executions/nope/leaderboard", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then the leaderboard honours limit", func() {
			w := do(router, http.MethodGet, "/executions/exec-1/leaderboard?limit=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(svc.lastLimit, ShouldEqual, 5)
			var entries []model.LeaderBoardEntry
			So(decode(w, &entries), ShouldBeNil)
			So(entries, ShouldHaveLength, 1)

			So(do(router, http.MethodGet, "/executions/exec-1/leaderboard", "").Code, ShouldEqual, http.StatusOK)
			So(svc.lastLimit, ShouldEqual, 10)
		})

		Convey("Then an invalid limit is rejected", func() {
			So(do(router, http.MethodGet, "/executions/exec-1/leaderboard?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(router, http.MethodGet, "/executions/exec-1/leaderboard?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(router, http.MethodGet, "/executions/exec-1/leaderboard?limit=500", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then a team's best entry is served", func() {
			w := do(router, http.MethodGet, "/executions/exec-1/teams/alpha/best", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var entry model.LeaderBoardEntry
			So(decode(w, &entry), ShouldBeNil)
			So(entry.FinalSubmission, ShouldBeTrue)
			So(*entry.ExitReason, ShouldEqual, model.ExitMaxRounds)

			body := w.Body.String()
			So(body, ShouldContainSubstring, `"round_number":2`)
			So(body, ShouldContainSubstring, `"final_submission":true`)
			So(body, ShouldContainSubstring, `"exit_reason":"max rounds reached"`)
			So(body, ShouldNotContainSubstring, "RoundNumber")

			So(do(router, http.MethodGet, "/executions/exec-1/teams/beta/best", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a team's rounds are served", func() {
			w := do(router, http.MethodGet, "/executions/exec-1/teams/alpha/rounds", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var rounds service.TeamRounds
			So(decode(w, &rounds), ShouldBeNil)
			So(rounds.Statuses, ShouldHaveLength, 1)
			So(rounds.Entries, ShouldHaveLength, 1)
			So(w.Body.String(), ShouldContainSubstring, `"status":"completed"`)
			So(w.Body.String(), ShouldContainSubstring, `"score_details"`)
		})

		Convey("Then health and stats respond", func() {
			So(do(router, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			w := do(router, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"executions":1`)
		})

		Convey("Then unknown routes and methods are rejected", func() {
			So(do(router, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(router, http.MethodDelete, "/executions/exec-1", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given op-tagged errors", t, func() {
		cause := fmt.Errorf("boom")

		Convey("Then kinds and causes both match", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: boom")

			So(api.NewKind("api.op", api.ErrNotFound).Error(), ShouldEqual, "api.op: not found")
			So(errors.Is(api.Wrap("api.op", cause), api.ErrInternal), ShouldBeTrue)
			So(api.Wrap("api.op", nil), ShouldBeNil)
		})
	})
}
