package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/pipeline"
)

func stay(id string, year, nights int) *model.EmailRecord {
	return &model.EmailRecord{ID: id, StayYear: year, StayLength: nights}
}

func ids(records []*model.EmailRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

var _ = Describe("Eligible", func() {
	It("keeps known years within the window", func() {
		records := []*model.EmailRecord{
			stay("old", 2010, 3),
			stay("recent", 2020, 2),
			stay("last-year", 2024, 5),
			stay("unknown", 0, 9),
		}

		Expect(ids(pipeline.Eligible(records, 2025, 10, 200))).To(Equal([]string{"last-year", "recent"}))
	})

	It("includes the boundary year", func() {
		Expect(pipeline.Eligible([]*model.EmailRecord{stay("edge", 2015, 1)}, 2025, 10, 0)).To(HaveLen(1))
	})

	It("sorts by stay length and keeps input order for ties", func() {
		records := []*model.EmailRecord{
			stay("a", 2024, 2),
			stay("b", 2024, 7),
			stay("c", 2024, 2),
			stay("d", 2024, 0),
			stay("e", 2024, 7),
		}

		first := ids(pipeline.Eligible(records, 2025, 10, 0))
		Expect(first).To(Equal([]string{"b", "e", "a", "c", "d"}))
		Expect(ids(pipeline.Eligible(records, 2025, 10, 0))).To(Equal(first))
	})

	It("caps the result", func() {
		records := []*model.EmailRecord{stay("a", 2024, 1), stay("b", 2024, 3), stay("c", 2024, 2)}

		Expect(ids(pipeline.Eligible(records, 2025, 10, 2))).To(Equal([]string{"b", "c"}))
	})

	It("does not reorder its input", func() {
		records := []*model.EmailRecord{stay("a", 2024, 1), stay("b", 2024, 3)}

		pipeline.Eligible(records, 2025, 10, 0)

		Expect(ids(records)).To(Equal([]string{"a", "b"}))
	})
})
