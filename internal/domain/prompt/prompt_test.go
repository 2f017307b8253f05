package prompt

import (
	"errors"
	"strings"
	"testing"
	"text/template"

	"github.com/okian/mixseek/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTemplateBuilder(t *testing.T) {
	Convey("Given a template builder", t, func() {
		b := NewTemplateBuilder(WithExcerptLength(10))

		Convey("When building the first round", func() {
			p, err := b.Build("  summarize the report ", map[string]string{"tone": "formal", "audience": "cto"}, nil)

			Convey("Then the query and sorted metadata are present", func() {
				So(err, ShouldBeNil)
				So(p, ShouldStartWith, "# Task\nsummarize the report")
				So(strings.Index(p, "audience: cto"), ShouldBeLessThan, strings.Index(p, "tone: formal"))
				So(p, ShouldContainSubstring, "first round")
			})
		})

		Convey("When building from prior rounds", func() {
			history := []model.LeaderBoardEntry{
				{RoundNumber: 1, Score: 40, SubmissionContent: "short"},
				{RoundNumber: 2, Score: 55, SubmissionContent: "a much longer submission body", ScoreDetails: map[string]any{"comment": "add sources"}},
			}
			p, err := b.Build("q", nil, history)

			Convey("Then each round is summarized and the best is flagged", func() {
				So(err, ShouldBeNil)
				So(p, ShouldContainSubstring, "### Round 1 (score 40.0)")
				So(p, ShouldContainSubstring, "### Round 2 (score 55.0, best so far)")
				So(p, ShouldContainSubstring, "a much lon…")
				So(p, ShouldNotContainSubstring, "longer submission")
				So(p, ShouldContainSubstring, "Evaluator: add sources")
				So(p, ShouldNotContainSubstring, "first round")
			})
		})

		Convey("When the query is blank", func() {
			_, err := b.Build("   ", nil, nil)
			So(errors.Is(err, ErrEmptyQuery), ShouldBeTrue)
		})

		Convey("When a custom template fails to execute", func() {
			bad := NewTemplateBuilder(WithTemplate(template.Must(template.New("bad").Parse("{{ .Missing }}"))))
			_, err := bad.Build("q", nil, nil)
			So(err, ShouldNotBeNil)
		})
	})
}
