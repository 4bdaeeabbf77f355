package mailbox_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"viammo.app/tripscan/internal/mailbox"
)

var _ = Describe("Search queries", func() {
	It("quotes keywords and joins them with OR", func() {
		q := mailbox.BuildSearchQuery([]string{"hotel reservation", " ", `your "stay"`})
		Expect(q).To(Equal(`"hotel reservation" OR "your stay"`))
	})

	It("recovers the phrases from a built query", func() {
		q := mailbox.BuildSearchQuery([]string{"booking confirmation", "check-in"})
		Expect(mailbox.ParseQuery(q)).To(Equal([]string{"booking confirmation", "check-in"}))
		Expect(mailbox.ParseQuery("")).To(BeEmpty())
	})

	Context("keyword files", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("loads one JSON string per line", func() {
			path := filepath.Join(dir, "keywords.jsonl")
			Expect(os.WriteFile(path, []byte("\"hotel reservation\"\n\n\"your stay at\"\n"), 0o600)).To(Succeed())

			keywords, err := mailbox.LoadKeywords(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(keywords).To(Equal([]string{"hotel reservation", "your stay at"}))
		})

		It("reports the failing line", func() {
			path := filepath.Join(dir, "bad.jsonl")
			Expect(os.WriteFile(path, []byte("\"ok\"\nnot json\n"), 0o600)).To(Succeed())

			_, err := mailbox.LoadKeywords(path)
			Expect(err).To(MatchError(ContainSubstring("line 2")))
		})

		It("falls back to the defaults when the file is missing", func() {
			keywords, err := mailbox.KeywordsOrDefault(filepath.Join(dir, "missing.jsonl"))
			Expect(err).NotTo(HaveOccurred())
			Expect(keywords).To(Equal(mailbox.DefaultKeywords))
		})
	})
})
