package pool_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitchelo/internal/adapters/pool"
	"github.com/okian/pitchelo/internal/domain/model"
)

const poolYAML = `
categories:
  al_cy_young:
    - {id: "669373", name: Tarik Skubal, metric: 2.39}
    - {id: "663554", name: Seth Lugo, metric: 3.00}
    - {id: "669373", name: Duplicate Skubal, metric: 9.99}
    - {id: 605483, name: Blake Snell, metric: 3.12}
  nl_rookie:
    - {id: "694973", name: Paul Skenes, metric: 1.96}
`

func writePool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pools.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write pool: %v", err)
	}
	return path
}

func TestFileProvider(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pool file", t, func() {
		p, err := pool.NewFileProvider(writePool(t, poolYAML))
		So(err, ShouldBeNil)

		Convey("When listing a category", func() {
			cands, err := p.ListCandidates(ctx, model.ALCyYoung)
			So(err, ShouldBeNil)

			Convey("Then duplicates keep their first entry and metric orders the pool", func() {
				So(cands, ShouldHaveLength, 3)
				So(cands[0].ID, ShouldEqual, "605483")
				So(cands[1].ID, ShouldEqual, "663554")
				So(cands[2].Name, ShouldEqual, "Tarik Skubal")
			})
		})

		Convey("When a category has no entries", func() {
			cands, err := p.ListCandidates(ctx, model.NLTrevorHoffman)
			So(err, ShouldBeNil)
			So(cands, ShouldBeEmpty)
		})

		Convey("When the category is unknown", func() {
			_, err := p.ListCandidates(ctx, "mvp")
			So(errors.Is(err, model.ErrUnknownCategory), ShouldBeTrue)
		})
	})

	Convey("Given a pool size of two", t, func() {
		p, err := pool.NewFileProvider(writePool(t, poolYAML), pool.WithPoolSize(2))
		So(err, ShouldBeNil)
		cands, err := p.ListCandidates(ctx, model.ALCyYoung)
		So(err, ShouldBeNil)
		So(cands, ShouldHaveLength, 2)
	})

	Convey("Given broken pool files", t, func() {
		for _, body := range []string{
			"categories:\n  mvp:\n    - {id: a, name: A}\n",
			"categories:\n  al_cy_young:\n    - {id: a}\n",
			"categories:\n  al_cy_young:\n    - {id: '  ', name: Nobody}\n",
			"categories: [",
		} {
			_, err := pool.NewFileProvider(writePool(t, body))
			So(errors.Is(err, pool.ErrInvalidPool), ShouldBeTrue)
		}

		_, err := pool.NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
		So(errors.Is(err, pool.ErrInvalidPool), ShouldBeTrue)
	})
}

func TestStatic(t *testing.T) {
	Convey("Given a static pool", t, func() {
		s := pool.Static{model.ALCyYoung: {{ID: "a"}, {ID: "b"}}}

		Convey("Then callers get their own copy", func() {
			cands, err := s.ListCandidates(context.Background(), model.ALCyYoung)
			So(err, ShouldBeNil)
			cands[0].ID = "mutated"
			again, _ := s.ListCandidates(context.Background(), model.ALCyYoung)
			So(again[0].ID, ShouldEqual, "a")
		})
	})
}

// countingProvider counts upstream calls and can be made to fail.
type countingProvider struct {
	calls atomic.Int32
	fail  atomic.Bool
	delay time.Duration
}

func (c *countingProvider) ListCandidates(ctx context.Context, category model.Category) ([]model.Candidate, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.fail.Load() {
		return nil, errors.New("upstream down")
	}
	return []model.Candidate{{ID: "a"}, {ID: "b"}}, nil
}

func TestCached(t *testing.T) {
	ctx := context.Background()

	Convey("Given a cached provider with a fake clock", t, func() {
		now := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
		var mu sync.Mutex
		clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
		advance := func(d time.Duration) { mu.Lock(); now = now.Add(d); mu.Unlock() }

		up := &countingProvider{}
		c := pool.NewCached(up, pool.WithTTL(time.Hour), pool.WithClock(clock))

		Convey("When read twice within the TTL", func() {
			_, err := c.ListCandidates(ctx, model.ALCyYoung)
			So(err, ShouldBeNil)
			_, err = c.ListCandidates(ctx, model.ALCyYoung)
			So(err, ShouldBeNil)
			So(up.calls.Load(), ShouldEqual, 1)
		})

		Convey("When the TTL passes", func() {
			_, _ = c.ListCandidates(ctx, model.ALCyYoung)
			advance(2 * time.Hour)
			_, _ = c.ListCandidates(ctx, model.ALCyYoung)
			So(up.calls.Load(), ShouldEqual, 2)
		})

		Convey("When a refresh fails after a good fetch", func() {
			_, _ = c.ListCandidates(ctx, model.ALCyYoung)
			up.fail.Store(true)
			advance(2 * time.Hour)
			cands, err := c.ListCandidates(ctx, model.ALCyYoung)

			Convey("Then the previous pool is served", func() {
				So(err, ShouldBeNil)
				So(cands, ShouldHaveLength, 2)
			})
		})

		Convey("When the first fetch fails", func() {
			up.fail.Store(true)
			_, err := c.ListCandidates(ctx, model.NLCyYoung)
			So(err, ShouldNotBeNil)
		})

		Convey("When invalidated", func() {
			_, _ = c.ListCandidates(ctx, model.ALCyYoung)
			c.Invalidate()
			_, _ = c.ListCandidates(ctx, model.ALCyYoung)
			So(up.calls.Load(), ShouldEqual, 2)
		})
	})

	Convey("Given many concurrent cold reads", t, func() {
		up := &countingProvider{delay: 100 * time.Millisecond}
		c := pool.NewCached(up)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = c.ListCandidates(ctx, model.ALRookieOfTheYear)
			}()
		}
		wg.Wait()

		Convey("Then they share one upstream call", func() {
			So(up.calls.Load(), ShouldEqual, 1)
		})
	})
}

// slowProvider answers after delay unless its context ends first.
type slowProvider struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *slowProvider) ListCandidates(ctx context.Context, category model.Category) ([]model.Candidate, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
		return []model.Candidate{{ID: "a"}, {ID: "b"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCachedCallerCancellation(t *testing.T) {
	Convey("Given a caller whose context is already cancelled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := pool.NewCached(pool.Static{model.ALCyYoung: {{ID: "a"}, {ID: "b"}}})

		Convey("Then the refresh still loads the pool", func() {
			cands, err := c.ListCandidates(ctx, model.ALCyYoung)
			So(err, ShouldBeNil)
			So(cands, ShouldHaveLength, 2)
		})
	})

	Convey("Given a shared refresh whose first caller gives up", t, func() {
		up := &slowProvider{delay: 200 * time.Millisecond}
		c := pool.NewCached(up)

		first, cancel := context.WithCancel(context.Background())
		var firstErr error
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, firstErr = c.ListCandidates(first, model.NLCyYoung)
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()
		cands, err := c.ListCandidates(context.Background(), model.NLCyYoung)
		wg.Wait()

		Convey("Then the waiting caller gets the pool from the one upstream call", func() {
			So(err, ShouldBeNil)
			So(cands, ShouldHaveLength, 2)
			So(firstErr, ShouldBeNil)
			So(up.calls.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given an upstream slower than the refresh timeout", t, func() {
		c := pool.NewCached(&slowProvider{delay: time.Second}, pool.WithRefreshTimeout(20*time.Millisecond))

		Convey("Then the refresh fails with a deadline error", func() {
			_, err := c.ListCandidates(context.Background(), model.ALCyYoung)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}
