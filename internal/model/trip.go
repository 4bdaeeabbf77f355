package model

// Budget tiers accepted in TripRecommendation.TotalBudget.
const (
	BudgetLow    = "$"
	BudgetMedium = "$$"
	BudgetHigh   = "$$$"
	BudgetLuxury = "$$$$"
)

type Destination struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// TripRecommendation is a proposed future trip. Field names are consumed by
// the trip planner front end and must not change.
type TripRecommendation struct {
	Name           string      `json:"name" jsonschema:"description=Short trip name"`
	StartDate      string      `json:"startDate" jsonschema:"description=ISO 8601 start date in the future"`
	EndDate        string      `json:"endDate" jsonschema:"description=ISO 8601 end date"`
	Destination    Destination `json:"destination"`
	NumberOfGuests int         `json:"numberOfGuests"`
	Notes          string      `json:"notes" jsonschema:"description=Preferred hotel characteristics and chains and room types and activities"`
	TotalBudget    string      `json:"totalBudget" jsonschema:"enum=$,enum=$$,enum=$$$,enum=$$$$"`
	Purpose        string      `json:"purpose"`
	Reasons        string      `json:"reasons,omitempty"`
}
