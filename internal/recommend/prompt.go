package recommend

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/internal/model"
)

const instructions = `Based on the following trip insights, analyze the typical patterns of the user's travel preferences and generate a list of great future possible trips as a JSON list of up to %[1]d trip objects like the example below.

Return only valid JSON and nothing else: no explanations or text before or after the JSON, and no code fences. Only use the fields present in the example trip object and the schema; put any extra information in the notes field. Make sure the dates are in the future and match the preferred destinations. Only propose trip types, destinations, guest counts and themes that the trip insights support.

Make sure to find and account for:
- preferred destinations
- preferred travel dates for those destinations
- number and type of guests for those destinations and dates; use the age of guests to tell adults from children
- purpose of the trip, e.g. "Family vacation", "Business trip", "Solo travel", "Couple's getaway"; use past room types to infer it, e.g. 1 room with 2 queen beds probably isn't a couple's getaway
- total budget as "$", "$$", "$$$" or "$$$$" with "$$$$" the highest
- in notes: preferred hotel characteristics, hotel chains, room types, amenities, hotel features, activities, dining and children activities
- in reasons: the past trips and patterns that support this trip
- any other information that would help a travel planner

Example list with 1 trip object (return up to %[1]d):
[
    {
        "name": "Tahoe Family",
        "startDate": "2026-02-18T07:00:00.000Z",
        "endDate": "2026-02-21T07:00:00.000Z",
        "destination": {
            "city": "Palisades Tahoe",
            "state": "CA",
            "country": "USA"
        },
        "numberOfGuests": 4,
        "notes": "Ski-in-ski-out, family friendly, 1 room with 2 adults with one king bed, 1 room with 2 kids and 2 queen beds",
        "totalBudget": "$$$$",
        "purpose": "Family vacation",
        "reasons": "Three February ski weeks at Palisades Tahoe with two adults and two children"
    }
]

JSON schema of one trip object:
%[2]s`

var tripSchema = sync.OnceValue(func() string {
	b, err := json.MarshalIndent(llm.GenerateSchema[model.TripRecommendation](), "", "  ")
	if err != nil {
		panic(fmt.Sprintf("reflecting trip schema: %v", err))
	}
	return string(b)
})

// BuildPrompt renders the recommendation request for a final trip group state.
func BuildPrompt(state string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, instructions, n, tripSchema())
	b.WriteString("\n\nHere are the trip insights you have already generated:\n")
	b.WriteString(state)
	return b.String()
}
