package service_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"

	"github.com/okian/pitchelo/internal/adapters/pool"
	repository "github.com/okian/pitchelo/internal/adapters/repository"
	service "github.com/okian/pitchelo/internal/app"
	"github.com/okian/pitchelo/internal/domain/model"
)

func integrationStores() map[string]func(t *testing.T) repository.Store {
	return map[string]func(t *testing.T) repository.Store{
		"memory": func(*testing.T) repository.Store { return repository.NewMemoryStore() },
		"sqlite": func(t *testing.T) repository.Store {
			db, err := repository.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			s, err := repository.NewSQLStore(context.Background(), db)
			if err != nil {
				t.Fatalf("sql store: %v", err)
			}
			return s
		},
		"redis": func(t *testing.T) repository.Store {
			mr := miniredis.RunT(t)
			return repository.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		},
	}
}

func bigPool() pool.Static {
	cands := make([]model.Candidate, 8)
	for i := range cands {
		cands[i] = model.Candidate{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Pitcher %d", i)}
	}
	return pool.Static{model.ALCyYoung: cands, model.NLCyYoung: cands}
}

func TestServiceIntegration_ConcurrentVotes(t *testing.T) {
	for name, open := range integrationStores() {
		for _, serialize := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s/serialized=%v", name, serialize), func(t *testing.T) {
				Convey("Given many sessions voting at once in two categories", t, func() {
					svc := service.New(
						service.WithStore(open(t)),
						service.WithPool(bigPool()),
						service.WithSerializedWrites(serialize, 1024),
						service.WithVoteRetry(50, time.Millisecond),
					)
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					So(svc.Start(ctx), ShouldBeNil)
					defer svc.Stop()

					const sessions, rounds = 12, 10
					var recorded atomic.Int64
					g, gctx := errgroup.WithContext(ctx)
					for i := 0; i < sessions; i++ {
						sid := fmt.Sprintf("session-%d", i)
						cat := []model.Category{model.ALCyYoung, model.NLCyYoung}[i%2]
						g.Go(func() error {
							for r := 0; r < rounds; r++ {
								cur, err := svc.Matchup(gctx, sid, cat)
								if err != nil {
									return err
								}
								winner := cur.Matchup.A.ID
								if rand.IntN(2) == 1 {
									winner = cur.Matchup.B.ID
								}
								if _, err := svc.Vote(gctx, sid, cat, model.Vote{MatchupID: cur.Matchup.ID, WinnerID: winner}); err != nil {
									return err
								}
								recorded.Add(1)
							}
							return nil
						})
					}
					So(g.Wait(), ShouldBeNil)

					Convey("Then every vote is counted twice and rating points are conserved", func() {
						var matches int64
						var rated int
						var sum float64
						for _, cat := range []model.Category{model.ALCyYoung, model.NLCyYoung} {
							entries, err := svc.Leaderboard(ctx, cat, 0)
							So(err, ShouldBeNil)
							for i, e := range entries {
								matches += e.MatchCount
								sum += e.Rating
								if i > 0 {
									prev := entries[i-1]
									So(prev.Rating > e.Rating || (prev.Rating == e.Rating && prev.CandidateID < e.CandidateID), ShouldBeTrue)
								}
							}
							rated += len(entries)
						}
						So(recorded.Load(), ShouldEqual, sessions*rounds)
						So(matches, ShouldEqual, 2*recorded.Load())
						So(sum, ShouldAlmostEqual, float64(rated)*model.DefaultRating, 1e-6)
					})
				})
			})
		}
	}
}
