package pipeline

import (
	"slices"

	"viammo.app/tripscan/internal/model"
)

// Eligible returns the records worth grouping: a known stay year no older
// than maxYearsBack, longest stays first, at most limit records. Ties keep
// their input order. maxYearsBack or limit <= 0 disables that bound.
func Eligible(records []*model.EmailRecord, currentYear, maxYearsBack, limit int) []*model.EmailRecord {
	out := make([]*model.EmailRecord, 0, len(records))
	for _, rec := range records {
		if rec.StayYear == 0 {
			continue
		}
		if maxYearsBack > 0 && rec.StayYear < currentYear-maxYearsBack {
			continue
		}
		out = append(out, rec)
	}

	slices.SortStableFunc(out, func(a, b *model.EmailRecord) int {
		return b.StayLength - a.StayLength
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
