// Package roster produces the player population a run works on: player ids,
// their home countries, and which days each player signed on.
package roster

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"github.com/OCAP2/telemetry-synth/pkg/core"
)

// DefaultCountries is used when no country list is configured.
var DefaultCountries = []string{"US", "BR", "MX", "FR", "ES", "DE"}

// Pattern is a player's sign-on habit.
type Pattern uint8

const (
	Daily Pattern = iota
	Weekday
	Cyclical
)

var patterns = []Pattern{Daily, Weekday, Cyclical}

func (p Pattern) String() string {
	switch p {
	case Daily:
		return "daily"
	case Weekday:
		return "weekday"
	case Cyclical:
		return "cyclical"
	default:
		return "unknown"
	}
}

// probability returns the chance of signing on for day index i of n.
func (p Pattern) probability(date time.Time, i, n int) float64 {
	switch p {
	case Daily:
		return 0.9
	case Weekday:
		switch date.Weekday() {
		case time.Saturday, time.Sunday:
			return 0.3
		default:
			return 0.8
		}
	case Cyclical:
		x := float64(i) / float64(n)
		return 0.5 + 0.4*math.Sin(2*math.Pi*x*4)
	default:
		return 0
	}
}

// GeneratePlayerIDs returns n distinct zero-padded ids in shuffled order.
func GeneratePlayerIDs(rng *rand.Rand, n int) []string {
	width := len(strconv.Itoa(n))
	if width < 4 {
		width = 4
	}
	ids := make([]string, n)
	for i, v := range rng.Perm(n) {
		ids[i] = fmt.Sprintf("%0*d", width, v)
	}
	return ids
}

// AssignCountries picks a country uniformly for every player.
func AssignCountries(rng *rand.Rand, players []string, countries []string) map[string]string {
	if len(countries) == 0 {
		countries = DefaultCountries
	}
	out := make(map[string]string, len(players))
	for _, pid := range players {
		out[pid] = countries[rng.IntN(len(countries))]
	}
	return out
}

// ModelSignOns draws a habit per player and then, for every day in
// [start, start+days), whether that player signed on.
func ModelSignOns(rng *rand.Rand, players []string, days int, start time.Time) []core.SignOn {
	start = truncateDay(start)
	habits := make([]Pattern, len(players))
	for i := range players {
		habits[i] = patterns[rng.IntN(len(patterns))]
	}

	var out []core.SignOn
	for i, pid := range players {
		for d := 0; d < days; d++ {
			date := start.AddDate(0, 0, d)
			if rng.Float64() < habits[i].probability(date, d, days) {
				out = append(out, core.SignOn{PlayerID: pid, Date: date})
			}
		}
	}
	return out
}

// Day is the set of players active on one date.
type Day struct {
	Index   int
	Date    time.Time
	Players []string
}

// GroupByDay buckets sign-ons by date, ordered by date. Player order within
// a day follows sign-on order. Index is the position in the returned slice.
func GroupByDay(signOns []core.SignOn) []Day {
	byDate := make(map[time.Time][]string)
	for _, s := range signOns {
		d := truncateDay(s.Date)
		byDate[d] = append(byDate[d], s.PlayerID)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]Day, len(dates))
	for i, d := range dates {
		out[i] = Day{Index: i, Date: d, Players: byDate[d]}
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
