package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/pitchelo/internal/adapters/pool"
	repository "github.com/okian/pitchelo/internal/adapters/repository"
	service "github.com/okian/pitchelo/internal/app"
	"github.com/okian/pitchelo/internal/domain/matchup"
	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/internal/domain/round"
	"github.com/okian/pitchelo/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func testPool() pool.Static {
	return pool.Static{
		model.ALCyYoung: {
			{ID: "669373", Name: "Tarik Skubal"},
			{ID: "607625", Name: "Seth Lugo"},
			{ID: "669302", Name: "Logan Gilbert"},
		},
		model.NLCyYoung: {
			{ID: "519242", Name: "Chris Sale"},
			{ID: "554430", Name: "Zack Wheeler"},
		},
		model.NLRookieOfTheYear: {
			{ID: "694973", Name: "Paul Skenes"},
		},
	}
}

// failingStore fails Apply while failing is set.
type failingStore struct {
	repository.Store
	failing atomic.Bool
	err     error
	applies atomic.Int32
}

func (f *failingStore) Apply(ctx context.Context, category model.Category, w, l model.Candidate, fn repository.ApplyFunc) (model.CandidateRating, model.CandidateRating, error) {
	f.applies.Add(1)
	if f.failing.Load() {
		return model.CandidateRating{}, model.CandidateRating{}, f.err
	}
	return f.Store.Apply(ctx, category, w, l, fn)
}

func startService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	svc := service.New(append([]service.Option{service.WithPool(testPool())}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("When getting stats before starting", func() {
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When starting and stopping", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.Health(context.Background()), ShouldBeNil)
			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(func() { svc.Stop() }, ShouldNotPanic)
		})

		Convey("Then every category is listed", func() {
			So(svc.Categories(), ShouldHaveLength, 6)
		})
	})
}

func TestService_Matchup(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService(t)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When a new session asks for a matchup", func() {
			res, err := svc.Matchup(ctx, "", model.ALCyYoung)
			So(err, ShouldBeNil)

			Convey("Then a session id is issued with two distinct candidates", func() {
				So(res.SessionID, ShouldNotBeEmpty)
				So(res.Matchup.A.ID, ShouldNotEqual, res.Matchup.B.ID)
				So(res.Matchup.Category, ShouldEqual, model.ALCyYoung)
			})

			Convey("And asking again returns the same matchup", func() {
				again, err := svc.Matchup(ctx, res.SessionID, model.ALCyYoung)
				So(err, ShouldBeNil)
				So(again.Matchup.ID, ShouldEqual, res.Matchup.ID)
			})

			Convey("And skipping replaces it", func() {
				skipped, err := svc.Skip(ctx, res.SessionID, model.ALCyYoung)
				So(err, ShouldBeNil)
				So(skipped.Matchup.ID, ShouldNotEqual, res.Matchup.ID)

				_, err = svc.Vote(ctx, res.SessionID, model.ALCyYoung, model.Vote{MatchupID: res.Matchup.ID, WinnerID: res.Matchup.A.ID})
				So(errors.Is(err, round.ErrInvalidVote), ShouldBeTrue)
			})
		})

		Convey("When the pool has one candidate", func() {
			_, err := svc.Matchup(ctx, "s-small", model.NLRookieOfTheYear)
			So(errors.Is(err, matchup.ErrPoolTooSmall), ShouldBeTrue)
		})

		Convey("When the pool is empty", func() {
			_, err := svc.Matchup(ctx, "s-empty", model.NLTrevorHoffman)
			So(errors.Is(err, matchup.ErrPoolTooSmall), ShouldBeTrue)
		})

		Convey("When the category is unknown", func() {
			_, err := svc.Matchup(ctx, "s-1", "mvp")
			So(errors.Is(err, model.ErrUnknownCategory), ShouldBeTrue)
		})
	})
}

func TestService_Vote(t *testing.T) {
	Convey("Given a session with a current matchup", t, func() {
		svc := startService(t)
		defer svc.Stop()
		ctx := context.Background()
		cur, err := svc.Matchup(ctx, "voter-1", model.NLCyYoung)
		So(err, ShouldBeNil)
		m := cur.Matchup

		Convey("When voting for a member", func() {
			res, err := svc.Vote(ctx, "voter-1", model.NLCyYoung, model.Vote{MatchupID: m.ID, WinnerID: m.B.ID})
			So(err, ShouldBeNil)

			Convey("Then ratings move by the same amount and a new matchup is issued", func() {
				So(res.Outcome.Winner.CandidateID, ShouldEqual, m.B.ID)
				So(res.Outcome.Winner.Rating, ShouldEqual, 1516)
				So(res.Outcome.Loser.Rating, ShouldEqual, 1484)
				So(res.Outcome.MatchupID, ShouldEqual, m.ID)
				So(res.Outcome.Winner.DisplayName, ShouldEqual, m.B.Name)
				So(res.NextErr, ShouldBeNil)
				So(res.Next, ShouldNotBeNil)
				So(res.Next.ID, ShouldNotEqual, m.ID)
			})

			Convey("And the leaderboard reflects it", func() {
				entries, err := svc.Leaderboard(ctx, model.NLCyYoung, 0)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].CandidateID, ShouldEqual, m.B.ID)
				So(entries[0].DisplayRating, ShouldEqual, 1516)
				So(entries[1].Rank, ShouldEqual, 2)
			})

			Convey("And replaying the vote is rejected", func() {
				_, err := svc.Vote(ctx, "voter-1", model.NLCyYoung, model.Vote{MatchupID: m.ID, WinnerID: m.B.ID})
				So(errors.Is(err, round.ErrInvalidVote), ShouldBeTrue)
				r, err := svc.Candidate(ctx, model.NLCyYoung, m.B.ID)
				So(err, ShouldBeNil)
				So(r.MatchCount, ShouldEqual, 1)
			})
		})

		Convey("When voting for a stranger", func() {
			_, err := svc.Vote(ctx, "voter-1", model.NLCyYoung, model.Vote{MatchupID: m.ID, WinnerID: "nobody"})
			So(errors.Is(err, round.ErrInvalidVote), ShouldBeTrue)

			Convey("Then nothing moved and the matchup is still current", func() {
				again, err := svc.Matchup(ctx, "voter-1", model.NLCyYoung)
				So(err, ShouldBeNil)
				So(again.Matchup.ID, ShouldEqual, m.ID)
				entries, err := svc.Leaderboard(ctx, model.NLCyYoung, 0)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When another session sends this session's matchup", func() {
			_, err := svc.Vote(ctx, "voter-2", model.NLCyYoung, model.Vote{MatchupID: m.ID, WinnerID: m.A.ID})
			So(errors.Is(err, round.ErrInvalidVote), ShouldBeTrue)
		})
	})
}

func TestService_ReusedMatchupID(t *testing.T) {
	Convey("Given a selector that mints the same id twice in a row", t, func() {
		var minted atomic.Int32
		sel := matchup.NewSelector(matchup.WithIDGenerator(func() (string, error) {
			n := minted.Add(1)
			if n <= 2 {
				return "m-1", nil
			}
			return fmt.Sprintf("m-%d", n-1), nil
		}))
		svc := startService(t, service.WithSelector(sel))
		defer svc.Stop()
		ctx := context.Background()

		cur, err := svc.Matchup(ctx, "voter-1", model.NLCyYoung)
		So(err, ShouldBeNil)
		m := cur.Matchup
		So(m.ID, ShouldEqual, "m-1")

		res, err := svc.Vote(ctx, "voter-1", model.NLCyYoung, model.Vote{MatchupID: m.ID, WinnerID: m.A.ID})
		So(err, ShouldBeNil)
		So(res.Next, ShouldNotBeNil)
		So(res.Next.ID, ShouldEqual, "m-1")

		Convey("When the reissued matchup is voted on", func() {
			_, err := svc.Vote(ctx, "voter-1", model.NLCyYoung, model.Vote{MatchupID: "m-1", WinnerID: res.Next.B.ID})

			Convey("Then the ledger rejects it and no rating moves", func() {
				So(errors.Is(err, round.ErrInvalidVote), ShouldBeTrue)
				for _, c := range []model.Candidate{m.A, m.B} {
					r, err := svc.Candidate(ctx, model.NLCyYoung, c.ID)
					So(err, ShouldBeNil)
					So(r.MatchCount, ShouldEqual, 1)
				}
				a, err := svc.Candidate(ctx, model.NLCyYoung, m.A.ID)
				So(err, ShouldBeNil)
				So(a.Rating, ShouldEqual, 1516)
			})

			Convey("And the session moves on to a fresh matchup", func() {
				again, err := svc.Matchup(ctx, "voter-1", model.NLCyYoung)
				So(err, ShouldBeNil)
				So(again.Matchup.ID, ShouldEqual, "m-2")
			})
		})
	})
}

func TestService_FailedWriteKeepsMatchup(t *testing.T) {
	Convey("Given a store that is down", t, func() {
		store := &failingStore{Store: repository.NewMemoryStore(), err: repository.ErrUnavailable}
		store.failing.Store(true)
		svc := startService(t, service.WithStore(store))
		defer svc.Stop()
		ctx := context.Background()

		cur, err := svc.Matchup(ctx, "voter", model.ALCyYoung)
		So(err, ShouldBeNil)
		vote := model.Vote{MatchupID: cur.Matchup.ID, WinnerID: cur.Matchup.A.ID}

		Convey("When a vote is sent", func() {
			_, err := svc.Vote(ctx, "voter", model.ALCyYoung, vote)

			Convey("Then it fails, is not retried and the matchup stays current", func() {
				So(errors.Is(err, repository.ErrUnavailable), ShouldBeTrue)
				So(store.applies.Load(), ShouldEqual, 1)
				again, err := svc.Matchup(ctx, "voter", model.ALCyYoung)
				So(err, ShouldBeNil)
				So(again.Matchup.ID, ShouldEqual, cur.Matchup.ID)
			})

			Convey("And resending after recovery records it once", func() {
				store.failing.Store(false)
				res, err := svc.Vote(ctx, "voter", model.ALCyYoung, vote)
				So(err, ShouldBeNil)
				So(res.Outcome.Winner.MatchCount, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a store that keeps conflicting", t, func() {
		store := &failingStore{Store: repository.NewMemoryStore(), err: repository.ErrConflict}
		store.failing.Store(true)
		svc := startService(t, service.WithStore(store), service.WithVoteRetry(3, time.Millisecond))
		defer svc.Stop()
		ctx := context.Background()

		cur, err := svc.Matchup(ctx, "voter", model.ALCyYoung)
		So(err, ShouldBeNil)
		_, err = svc.Vote(ctx, "voter", model.ALCyYoung, model.Vote{MatchupID: cur.Matchup.ID, WinnerID: cur.Matchup.B.ID})

		Convey("Then the pipeline is retried up to the budget and reports the conflict", func() {
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			So(store.applies.Load(), ShouldEqual, 3)
		})
	})
}

func TestService_NextSelectionFails(t *testing.T) {
	Convey("Given a pool that shrinks after the matchup is issued", t, func() {
		p := pool.Static{model.ALCyYoung: {{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}}
		svc := service.New(service.WithPool(p))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		ctx := context.Background()

		cur, err := svc.Matchup(ctx, "voter", model.ALCyYoung)
		So(err, ShouldBeNil)
		p[model.ALCyYoung] = p[model.ALCyYoung][:1]

		Convey("When the vote is sent", func() {
			res, err := svc.Vote(ctx, "voter", model.ALCyYoung, model.Vote{MatchupID: cur.Matchup.ID, WinnerID: "a"})

			Convey("Then the vote stands and the next matchup error is reported", func() {
				So(err, ShouldBeNil)
				So(res.Next, ShouldBeNil)
				So(errors.Is(res.NextErr, matchup.ErrPoolTooSmall), ShouldBeTrue)
				r, err := svc.Candidate(ctx, model.ALCyYoung, "a")
				So(err, ShouldBeNil)
				So(r.MatchCount, ShouldEqual, 1)
			})
		})
	})
}

func TestService_Candidate(t *testing.T) {
	Convey("Given a candidate nobody voted on", t, func() {
		svc := startService(t)
		defer svc.Stop()

		r, err := svc.Candidate(context.Background(), model.ALCyYoung, "669302")

		Convey("Then the default is returned with the pool name and nothing is stored", func() {
			So(err, ShouldBeNil)
			So(r.Rating, ShouldEqual, model.DefaultRating)
			So(r.DisplayName, ShouldEqual, "Logan Gilbert")
			entries, err := svc.Leaderboard(context.Background(), model.ALCyYoung, 0)
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)
		})
	})
}
