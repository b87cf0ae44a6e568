package teams

import (
	"fmt"
	"sort"
	"strings"
)

// ID is a canonical franchise abbreviation, e.g. "BUF".
type ID string

type Team struct {
	ID   ID
	Name string
}

// All lists every franchise the extractor may reference, ordered by ID.
var All = []Team{
	{"ARI", "Arizona Cardinals"},
	{"ATL", "Atlanta Falcons"},
	{"BAL", "Baltimore Ravens"},
	{"BUF", "Buffalo Bills"},
	{"CAR", "Carolina Panthers"},
	{"CHI", "Chicago Bears"},
	{"CIN", "Cincinnati Bengals"},
	{"CLE", "Cleveland Browns"},
	{"DAL", "Dallas Cowboys"},
	{"DEN", "Denver Broncos"},
	{"DET", "Detroit Lions"},
	{"GB", "Green Bay Packers"},
	{"HOU", "Houston Texans"},
	{"IND", "Indianapolis Colts"},
	{"JAX", "Jacksonville Jaguars"},
	{"KC", "Kansas City Chiefs"},
	{"LAC", "Los Angeles Chargers"},
	{"LAR", "Los Angeles Rams"},
	{"LV", "Las Vegas Raiders"},
	{"MIA", "Miami Dolphins"},
	{"MIN", "Minnesota Vikings"},
	{"NE", "New England Patriots"},
	{"NO", "New Orleans Saints"},
	{"NYG", "New York Giants"},
	{"NYJ", "New York Jets"},
	{"PHI", "Philadelphia Eagles"},
	{"PIT", "Pittsburgh Steelers"},
	{"SEA", "Seattle Seahawks"},
	{"SF", "San Francisco 49ers"},
	{"TB", "Tampa Bay Buccaneers"},
	{"TEN", "Tennessee Titans"},
	{"WAS", "Washington Commanders"},
}

var byID = func() map[ID]Team {
	m := make(map[ID]Team, len(All))
	for _, t := range All {
		m[t.ID] = t
	}
	return m
}()

func Valid(id ID) bool {
	_, ok := byID[id]
	return ok
}

func Lookup(id ID) (Team, bool) {
	t, ok := byID[id]
	return t, ok
}

// Prompt renders the team list one "ID: Name" pair per line.
func Prompt() string {
	var b strings.Builder
	for _, t := range All {
		fmt.Fprintf(&b, "%s: %s\n", t.ID, t.Name)
	}
	return b.String()
}

// Set returns the distinct IDs in ascending order.
func Set(ids ...ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings converts ids for use as query arguments.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
