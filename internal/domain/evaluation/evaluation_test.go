package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/okian/mixseek/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryEvaluator(t *testing.T) {
	Convey("Given an evaluator without latency", t, func() {
		e := NewInMemoryEvaluator(WithLatencyRange(0, 0))
		ctx := context.Background()
		task := model.RoundTask{UserQuery: "compare vector databases for search"}

		Convey("When scoring a well structured relevant answer", func() {
			body := "# Vector databases\n\nThis report will compare vector databases for search workloads.\n\n" +
				"## Options\n\n- pgvector\n- qdrant\n- milvus\n\n" + strings.Repeat("latency recall cost ", 50)
			res, err := e.Evaluate(ctx, task, model.Submission{Content: body})

			Convey("Then the score is high and every metric is reported", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldBeGreaterThan, 90)
				So(res.Score, ShouldBeLessThanOrEqualTo, 100)
				So(res.Details, ShouldContainKey, MetricRelevance)
				So(res.Details, ShouldContainKey, MetricCoverage)
				So(res.Details, ShouldContainKey, MetricStructure)
				So(res.Details, ShouldContainKey, "comment")
			})
		})

		Convey("When scoring a short unrelated answer", func() {
			res, err := e.Evaluate(ctx, task, model.Submission{Content: "no idea"})

			Convey("Then the score is low and the comment names the weakest metric", func() {
				So(err, ShouldBeNil)
				So(res.Score, ShouldBeLessThan, 20)
				So(res.Details["comment"], ShouldContainSubstring, "weakest metric is relevance")
			})
		})

		Convey("When the same submission is scored twice", func() {
			sub := model.Submission{Content: "# search\n\nvector databases compared"}
			a, _ := e.Evaluate(ctx, task, sub)
			b, _ := e.Evaluate(ctx, task, sub)
			So(a.Score, ShouldEqual, b.Score)
		})

		Convey("When the submission is empty", func() {
			_, err := e.Evaluate(ctx, task, model.Submission{Content: "  "})
			So(errors.Is(err, ErrEmptySubmission), ShouldBeTrue)
		})
	})

	Convey("Given custom weights", t, func() {
		e := NewInMemoryEvaluator(WithLatencyRange(0, 0), WithMetricWeights(map[string]float64{
			MetricRelevance: 1,
			"unknown":       5,
			MetricCoverage:  0,
		}))

		Convey("Then only known positive weights are used", func() {
			So(e.weights, ShouldResemble, map[string]float64{MetricRelevance: 1})
			res, err := e.Evaluate(context.Background(), model.RoundTask{UserQuery: "golang"}, model.Submission{Content: "golang"})
			So(err, ShouldBeNil)
			So(res.Score, ShouldEqual, 100.0)
		})
	})

	Convey("Given simulated latency longer than the deadline", t, func() {
		e := NewInMemoryEvaluator(WithLatencyRange(time.Second, 2*time.Second))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := e.Evaluate(ctx, model.RoundTask{UserQuery: "q"}, model.Submission{Content: "x"})
		So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
	})
}
