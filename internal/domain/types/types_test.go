package types_test

import (
	"testing"

	"github.com/okian/pitchelo/internal/domain/model"
	types "github.com/okian/pitchelo/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRanked(t *testing.T) {
	Convey("Given leaderboard rows in order", t, func() {
		rows := []model.CandidateRating{
			{CandidateID: "A", DisplayName: "Chris Sale", Rating: 1607.69, MatchCount: 3},
			{CandidateID: "B", Rating: 1500, MatchCount: 1},
			{CandidateID: "C", Rating: 1500, MatchCount: 1},
			{CandidateID: "D", Rating: 1392.5, MatchCount: 2},
		}

		Convey("When ranking them", func() {
			entries := types.Ranked(rows)

			Convey("Then ranks are sequential and ratings keep full precision", func() {
				So(entries, ShouldHaveLength, 4)
				So(entries[0].Rank, ShouldEqual, 1)
				So(entries[0].Rating, ShouldEqual, 1607.69)
				So(entries[0].DisplayRating, ShouldEqual, 1608)
				So(entries[0].DisplayName, ShouldEqual, "Chris Sale")
				So(entries[2].Rank, ShouldEqual, 3)
				So(entries[3].DisplayRating, ShouldEqual, 1393)
			})
		})

		Convey("When there are no rows", func() {
			So(types.Ranked(nil), ShouldBeEmpty)
		})
	})
}

func TestDisplayRating(t *testing.T) {
	Convey("Display ratings round half away from zero", t, func() {
		So(types.DisplayRating(1392.31), ShouldEqual, 1392)
		So(types.DisplayRating(1500.5), ShouldEqual, 1501)
		So(types.DisplayRating(1499.49), ShouldEqual, 1499)
	})
}
