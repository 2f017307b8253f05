package team

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSimulatedRuntime(t *testing.T) {
	ctx := context.Background()

	Convey("Given a simulated runtime without latency", t, func() {
		r := NewSimulatedRuntime(WithLatencyRange(0, 0), WithAgents("lead", "analyst"))

		Convey("When running a first round prompt", func() {
			sub, err := r.Run(ctx, "# Task\nexplain raft consensus\n\nThis is your first round.", nil)

			Convey("Then a markdown submission with one section per agent is produced", func() {
				So(err, ShouldBeNil)
				So(sub.Format, ShouldEqual, "md")
				So(sub.Content, ShouldStartWith, "# explain raft consensus")
				So(sub.Content, ShouldContainSubstring, "## Lead")
				So(sub.Content, ShouldContainSubstring, "## Analyst")
				So(sub.Messages, ShouldHaveLength, 3)
				So(sub.Messages[1].Agent, ShouldEqual, "lead")
				So(sub.Messages[1].Role, ShouldEqual, "leader")
			})
		})

		Convey("When the prompt carries prior rounds", func() {
			first, _ := r.Run(ctx, "# Task\nq", nil)
			later, _ := r.Run(ctx, "# Task\nq\n### Round 1 (score 10)\n### Round 2 (score 20)", map[string]string{"tone": "formal"})

			Convey("Then the draft grows", func() {
				So(len(later.Content), ShouldBeGreaterThan, len(first.Content))
				So(later.Content, ShouldContainSubstring, "point 3 about q")
				So(later.Content, ShouldContainSubstring, "tone formal")
			})
		})
	})

	Convey("Given a runtime slower than its deadline", t, func() {
		r := NewSimulatedRuntime(WithLatencyRange(time.Second, 2*time.Second))
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		_, err := r.Run(cctx, "# Task\nq", nil)
		So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
	})

	Convey("Given a runtime with an empty roster", t, func() {
		r := &SimulatedRuntime{}
		_, err := r.Run(ctx, "q", nil)
		So(errors.Is(err, ErrNoAgents), ShouldBeTrue)
	})
}
