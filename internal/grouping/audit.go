package grouping

import (
	"regexp"
	"slices"
	"strings"
)

var (
	groupHeader = regexp.MustCompile(`(?i)^\s*#{1,6}\s*group\s+(\d+)\s*[:.-]?\s*(.*)$`)
	tripLine    = regexp.MustCompile(`(?i)^\s*[-*]\s*trip:\s*(.+)$`)
)

// Trip is one "- Trip:" line read back from a state.
type Trip struct {
	Hotel    string
	CheckIn  string
	CheckOut string
	Location string
	Features string
}

// Key identifies a stay by hotel and dates.
func (t Trip) Key() string {
	return strings.ToLower(strings.Join(strings.Fields(t.Hotel), " ")) + "|" + t.CheckIn + "|" + t.CheckOut
}

// Group is one "## Group" section read back from a state.
type Group struct {
	Number string
	Title  string
	Trips  []Trip
}

// Duplicate is a stay listed in more than one group.
type Duplicate struct {
	Key    string
	Groups []string
}

// ParseGroups reads the group layout the fold prompt asks for. Text outside
// a group section is ignored.
func ParseGroups(state string) []Group {
	var (
		groups  []Group
		current *Group
	)
	for _, line := range strings.Split(state, "\n") {
		if m := groupHeader.FindStringSubmatch(line); m != nil {
			groups = append(groups, Group{Number: m[1], Title: strings.TrimSpace(m[2])})
			current = &groups[len(groups)-1]
			continue
		}
		if current == nil {
			continue
		}
		if m := tripLine.FindStringSubmatch(line); m != nil {
			current.Trips = append(current.Trips, parseTrip(m[1]))
		}
	}
	return groups
}

func parseTrip(s string) Trip {
	fields := strings.Split(s, "|")
	get := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}
	return Trip{
		Hotel:    get(0),
		CheckIn:  get(1),
		CheckOut: get(2),
		Location: get(3),
		Features: strings.TrimSpace(strings.Join(fields[min(4, len(fields)):], "|")),
	}
}

// AuditDuplicates reports stays that appear in more than one group, in the
// order they first appear.
func AuditDuplicates(state string) []Duplicate {
	seen := make(map[string][]string)
	var order []string
	for _, g := range ParseGroups(state) {
		for _, t := range g.Trips {
			key := t.Key()
			if _, ok := seen[key]; !ok {
				order = append(order, key)
			}
			if !slices.Contains(seen[key], g.Number) {
				seen[key] = append(seen[key], g.Number)
			}
		}
	}

	var dups []Duplicate
	for _, key := range order {
		if groups := seen[key]; len(groups) > 1 {
			dups = append(dups, Duplicate{Key: key, Groups: groups})
		}
	}
	return dups
}
