package model_test

import (
	"testing"

	"github.com/okian/mixseek/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func entries(scores ...float64) []model.LeaderBoardEntry {
	out := make([]model.LeaderBoardEntry, len(scores))
	for i, s := range scores {
		out[i] = model.LeaderBoardEntry{RoundNumber: i + 1, Score: s}
	}
	return out
}

func TestSelectBest(t *testing.T) {
	Convey("Given a team's round history", t, func() {
		Convey("When the history is empty", func() {
			So(model.SelectBest(nil), ShouldEqual, -1)
		})

		Convey("When the best round is not the last", func() {
			So(model.SelectBest(entries(40, 55, 50)), ShouldEqual, 1)
		})

		Convey("When scores tie", func() {
			Convey("Then the earliest round wins", func() {
				So(model.SelectBest(entries(70, 72, 72)), ShouldEqual, 1)
			})
		})

		Convey("When entries arrive out of round order", func() {
			es := []model.LeaderBoardEntry{
				{RoundNumber: 3, Score: 90},
				{RoundNumber: 1, Score: 90},
				{RoundNumber: 2, Score: 10},
			}
			So(es[model.SelectBest(es)].RoundNumber, ShouldEqual, 1)
		})
	})
}

func TestScores(t *testing.T) {
	Convey("Given entries", t, func() {
		So(model.Scores(entries(1, 2, 3)), ShouldResemble, []float64{1, 2, 3})
		So(model.Scores(nil), ShouldBeEmpty)
	})
}
