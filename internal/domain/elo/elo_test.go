package elo_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	elo "github.com/okian/pitchelo/internal/domain/elo"
	"github.com/okian/pitchelo/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func rating(id string, r float64, n int64) model.CandidateRating {
	return model.CandidateRating{Category: model.ALCyYoung, CandidateID: id, DisplayName: id, Rating: r, MatchCount: n}
}

func TestEngineUpdate(t *testing.T) {
	Convey("Given a default engine", t, func() {
		engine := elo.New()
		So(engine.K(), ShouldEqual, 32.0)

		Convey("When a 1600 beats a 1400", func() {
			out, err := engine.Update(rating("w", 1600, 4), rating("l", 1400, 9))
			So(err, ShouldBeNil)

			Convey("Then the closed-form values come out", func() {
				So(out.Expected, ShouldAlmostEqual, 0.7597, 0.0001)
				So(out.Winner.Rating, ShouldAlmostEqual, 1607.69, 0.005)
				So(out.Loser.Rating, ShouldAlmostEqual, 1392.31, 0.005)
				So(out.Transfer, ShouldAlmostEqual, 7.688, 0.001)
			})

			Convey("And the transfer is exactly constant-sum", func() {
				So(out.Winner.Rating-out.WinnerBefore.Rating, ShouldEqual, -(out.Loser.Rating - out.LoserBefore.Rating))
			})

			Convey("And both match counts grow by exactly one", func() {
				So(out.Winner.MatchCount, ShouldEqual, 5)
				So(out.Loser.MatchCount, ShouldEqual, 10)
			})

			Convey("And the inputs are reported untouched", func() {
				So(out.WinnerBefore.Rating, ShouldEqual, 1600)
				So(out.LoserBefore.Rating, ShouldEqual, 1400)
			})
		})

		Convey("When two unseen candidates meet", func() {
			out, err := engine.Update(
				model.DefaultCandidateRating(model.ALCyYoung, "a", "A"),
				model.DefaultCandidateRating(model.ALCyYoung, "b", "B"),
			)
			So(err, ShouldBeNil)

			Convey("Then half of K moves", func() {
				So(out.Expected, ShouldEqual, 0.5)
				So(out.Winner.Rating, ShouldEqual, 1516)
				So(out.Loser.Rating, ShouldEqual, 1484)
			})
		})

		Convey("When an underdog wins", func() {
			out, err := engine.Update(rating("u", 1300, 0), rating("f", 1700, 0))
			So(err, ShouldBeNil)

			Convey("Then it gains more than half of K", func() {
				So(out.Transfer, ShouldBeGreaterThan, 16)
				So(out.Transfer, ShouldBeLessThan, 32)
			})
		})

		Convey("When winner and loser share an id", func() {
			_, err := engine.Update(rating("x", 1500, 0), rating("x", 1500, 0))

			Convey("Then the precondition violation is rejected", func() {
				So(errors.Is(err, elo.ErrSameCandidate), ShouldBeTrue)
			})
		})

		Convey("When the two rows come from different categories", func() {
			other := rating("y", 1500, 0)
			other.Category = model.NLCyYoung
			_, err := engine.Update(rating("x", 1500, 0), other)

			So(errors.Is(err, elo.ErrCategoryMismatch), ShouldBeTrue)
		})
	})

	Convey("Given random rating pairs", t, func() {
		engine := elo.New()
		rng := rand.New(rand.NewPCG(7, 11))

		Convey("Then every update keeps the pair sum and stays within K", func() {
			for i := 0; i < 1000; i++ {
				w := rating("w", 1000+rng.Float64()*1000, 0)
				l := rating("l", 1000+rng.Float64()*1000, 0)
				out, err := engine.Update(w, l)
				So(err, ShouldBeNil)
				So(out.Winner.Rating+out.Loser.Rating, ShouldAlmostEqual, w.Rating+l.Rating, 1e-9)
				So(out.Transfer, ShouldBeGreaterThan, 0)
				So(out.Transfer, ShouldBeLessThan, 32)
			}
		})
	})
}

func TestEngineOptions(t *testing.T) {
	Convey("Given engine options", t, func() {
		Convey("When a custom K is set", func() {
			engine := elo.New(elo.WithKFactor(16))
			out, err := engine.Update(rating("a", 1500, 0), rating("b", 1500, 0))
			So(err, ShouldBeNil)
			So(out.Transfer, ShouldEqual, 8)
		})

		Convey("When an invalid K is set", func() {
			So(elo.New(elo.WithKFactor(0)).K(), ShouldEqual, 32.0)
			So(elo.New(elo.WithKFactor(-4)).K(), ShouldEqual, 32.0)
			So(elo.New(elo.WithKFactor(math.Inf(1))).K(), ShouldEqual, 32.0)
		})
	})
}

func TestExpected(t *testing.T) {
	Convey("Expected scores of both sides sum to one", t, func() {
		So(elo.Expected(1600, 1400)+elo.Expected(1400, 1600), ShouldAlmostEqual, 1.0, 1e-12)
		So(elo.Expected(1500, 1500), ShouldEqual, 0.5)
	})
}
