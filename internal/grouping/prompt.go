package grouping

import (
	"fmt"
	"strings"

	"viammo.app/tripscan/internal/model"
)

const instructions = `Based on the following hotel reservation emails and the existing trip groups, analyze the user's travel patterns and produce a list of trip groups. A trip group is a set of past stays that share a theme, season or destination.

Rules:
1. Produce at most %[1]d trip groups.
2. Each group should contain at least 3 trips. If there are not enough trips for that, start by creating groups from individual trips.
3. For every new email, decide whether it belongs in an existing group, whether existing groups should be merged or reshuffled, or whether it starts a new group. Use recency, how close the dates are, and thematic signals: events, time of year (ski week, spring break, summer, end of year holidays, Thanksgiving, Memorial Day, Labor Day), how well the location fits the activities, room and guest configuration, amenities and price tier.
4. Never drop an existing group or a trip that is already listed. Every trip appears in exactly one group.
5. Rank groups by how important their features are to the user and by the total number of days and trips in the group, highest first.
6. Re-emit the entire list of groups every time. Your output replaces the existing trip groups, so it must be self-contained and never just an addition to them.

For each group include:
- destination
- time of year
- typical length of the trip and the total number of days across its trips
- number and type of guests (adults, children, infants)
- number of trips
- likely purpose
- total budget as "$", "$$", "$$$" or "$$$$" with "$$$$" the highest
- preferred hotels and hotel chains, with specific names
- preferred hotel characteristics, room types and amenities, with specifics
- preferred activities and dining
- preferred payment method
- any other information that would help a travel planner

Use exactly this layout so groups and trips can be read back:

## Group <n>: <short title>
<group details as bullet points>
- Trip: <hotel> | <check-in YYYY-MM-DD> | <check-out YYYY-MM-DD> | <location> | <top 3 features>

Write one "- Trip:" line per trip, keeping every trip's dates, hotel, location and top 3 features so the groups can be reorganised later.

Return only the list of groups.`

const reshuffleInstructions = `Here is a list of trip groups built from a user's past hotel stays. Reorganise them without adding or removing any trip: merge groups that share a theme, split groups that mix unrelated trips, and re-rank them by the importance of their features and the total number of days and trips. Keep at most %[1]d groups and keep the exact layout, including every "- Trip:" line.

Return only the list of groups.`

// BuildPrompt renders one fold step: the whole prior state followed by the batch.
func BuildPrompt(prior string, batch []*model.EmailRecord, maxGroups int) string {
	var b strings.Builder
	fmt.Fprintf(&b, instructions, maxGroups)
	b.WriteString("\n\nHere are the existing trip groups you have already generated:\n")
	if strings.TrimSpace(prior) == "" {
		b.WriteString("(none yet)\n")
	} else {
		b.WriteString(prior)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nHere are the %d new hotel reservation emails to analyze:\n", len(batch))
	for i, rec := range batch {
		fmt.Fprintf(&b, "\n### Email %d\n", i+1)
		b.WriteString(renderRecord(rec))
	}
	return b.String()
}

func BuildReshufflePrompt(state string, maxGroups int) string {
	return fmt.Sprintf(reshuffleInstructions, maxGroups) + "\n\nTrip groups:\n" + state
}

func renderRecord(rec *model.EmailRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\n", rec.ID)
	fmt.Fprintf(&b, "subject: %s\n", rec.Subject)
	fmt.Fprintf(&b, "sender: %s\n", rec.Sender)
	fmt.Fprintf(&b, "date: %s\n", rec.Date)
	fmt.Fprintf(&b, "stay_length: %d\n", rec.StayLength)
	fmt.Fprintf(&b, "stay_year: %d\n", rec.StayYear)
	fmt.Fprintf(&b, "key_insights:\n%s\n", rec.KeyInsights)
	return b.String()
}
