package matchup_test

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	matchup "github.com/okian/pitchelo/internal/domain/matchup"
	"github.com/okian/pitchelo/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// scripted replays fixed draws and counts calls.
type scripted struct {
	mu    sync.Mutex
	draws []int
	calls int
}

func (s *scripted) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.draws[s.calls%len(s.draws)] % n
	s.calls++
	return v
}

// lockedPCG is a seeded, goroutine-safe source for reproducible runs.
type lockedPCG struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedPCG) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func pool(ids ...string) []model.Candidate {
	out := make([]model.Candidate, len(ids))
	for i, id := range ids {
		out[i] = model.Candidate{ID: id, Name: "Pitcher " + id}
	}
	return out
}

func TestSelectorPoolSize(t *testing.T) {
	Convey("Given a selector", t, func() {
		sel := matchup.NewSelector()

		Convey("When the pool is empty", func() {
			_, err := sel.Select(model.ALCyYoung, nil)
			So(errors.Is(err, matchup.ErrPoolTooSmall), ShouldBeTrue)
		})

		Convey("When the pool has one candidate", func() {
			_, err := sel.Select(model.ALCyYoung, pool("a"))
			So(errors.Is(err, matchup.ErrPoolTooSmall), ShouldBeTrue)
		})

		Convey("When the pool repeats one id", func() {
			_, err := sel.Select(model.ALCyYoung, pool("a", "a", "a"))
			So(errors.Is(err, matchup.ErrPoolTooSmall), ShouldBeTrue)
		})

		Convey("When only one entry has an id", func() {
			_, err := sel.Select(model.ALCyYoung, pool("a", "", ""))
			So(errors.Is(err, matchup.ErrPoolTooSmall), ShouldBeTrue)
		})
	})
}

func TestSelectorRetries(t *testing.T) {
	Convey("Given a source that always collides", t, func() {
		src := &scripted{draws: []int{1}}
		sel := matchup.NewSelector(matchup.WithSource(src))

		Convey("When selecting", func() {
			m, err := sel.Select(model.NLCyYoung, pool("a", "b", "c"))

			Convey("Then it fails closed after ten attempts of two draws", func() {
				So(errors.Is(err, matchup.ErrSelectionFailed), ShouldBeTrue)
				So(m, ShouldResemble, model.Matchup{})
				So(src.calls, ShouldEqual, 20)
			})
		})

		Convey("When the attempt budget is lowered", func() {
			sel := matchup.NewSelector(matchup.WithSource(src), matchup.WithAttempts(3))
			_, err := sel.Select(model.NLCyYoung, pool("a", "b"))

			So(errors.Is(err, matchup.ErrSelectionFailed), ShouldBeTrue)
			So(src.calls, ShouldEqual, 6)
		})
	})

	Convey("Given a source that collides three times and then differs", t, func() {
		src := &scripted{draws: []int{0, 0, 2, 2, 1, 1, 0, 2}}
		fixed := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
		sel := matchup.NewSelector(
			matchup.WithSource(src),
			matchup.WithIDGenerator(func() (string, error) { return "m-1", nil }),
			matchup.WithClock(func() time.Time { return fixed }),
		)

		Convey("When selecting", func() {
			m, err := sel.Select(model.NLCyYoung, pool("a", "b", "c"))

			Convey("Then the fourth draw is used", func() {
				So(err, ShouldBeNil)
				So(src.calls, ShouldEqual, 8)
				So(m.A.ID, ShouldEqual, "a")
				So(m.B.ID, ShouldEqual, "c")
				So(m.ID, ShouldEqual, "m-1")
				So(m.Category, ShouldEqual, model.NLCyYoung)
				So(m.IssuedAt, ShouldEqual, fixed)
			})
		})
	})

	Convey("Given a failing id generator", t, func() {
		boom := errors.New("entropy exhausted")
		sel := matchup.NewSelector(
			matchup.WithSource(&scripted{draws: []int{0, 1}}),
			matchup.WithIDGenerator(func() (string, error) { return "", boom }),
		)

		_, err := sel.Select(model.ALRookieOfTheYear, pool("a", "b"))
		So(errors.Is(err, boom), ShouldBeTrue)
	})
}

func TestSelectorNoSelfMatchups(t *testing.T) {
	Convey("Given every category with a pool of two or more", t, func() {
		sel := matchup.NewSelector(matchup.WithSource(&lockedPCG{r: rand.New(rand.NewPCG(1, 2))}))
		sizes := []int{2, 3, 10, 50}

		Convey("Then 10,000 selections never pair a candidate with itself", func() {
			for _, cat := range model.Categories() {
				for _, size := range sizes {
					ids := make([]string, size)
					for i := range ids {
						ids[i] = string(rune('a'+i%26)) + string(rune('A'+i/26))
					}
					p := pool(ids...)
					var selfPairs, otherErrs int
					for i := 0; i < 10_000; i++ {
						m, err := sel.Select(cat, p)
						switch {
						case errors.Is(err, matchup.ErrSelectionFailed):
							So(m, ShouldResemble, model.Matchup{})
						case err != nil:
							otherErrs++
						case m.A.ID == m.B.ID:
							selfPairs++
						}
					}
					So(selfPairs, ShouldEqual, 0)
					So(otherErrs, ShouldEqual, 0)
				}
			}
		})
	})
}

func TestSelectorUniformity(t *testing.T) {
	Convey("Given the default source and a pool of five", t, func() {
		sel := matchup.NewSelector(matchup.WithAttempts(40))
		p := pool("a", "b", "c", "d", "e")
		counts := map[string]int{}

		const rounds = 20_000
		for i := 0; i < rounds; i++ {
			m, err := sel.Select(model.ALCyYoung, p)
			So(err, ShouldBeNil)
			counts[m.A.ID]++
			counts[m.B.ID]++
		}

		Convey("Then each candidate appears close to its fair share", func() {
			fair := float64(2*rounds) / 5
			for _, c := range p {
				So(float64(counts[c.ID]), ShouldAlmostEqual, fair, fair*0.05)
			}
		})
	})
}

func TestSelectorConcurrentUse(t *testing.T) {
	Convey("Given one selector shared by many goroutines", t, func() {
		sel := matchup.NewSelector(matchup.WithAttempts(40))
		p := pool("a", "b", "c")
		var wg sync.WaitGroup
		var mu sync.Mutex
		var bad int

		for g := 0; g < 16; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 500; i++ {
					m, err := sel.Select(model.ALCyYoung, p)
					if err != nil || m.A.ID == m.B.ID || m.ID == "" {
						mu.Lock()
						bad++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then every matchup is valid with a unique id", func() {
			So(bad, ShouldEqual, 0)
		})
	})
}
