package mailbox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"viammo.app/tripscan/internal/mailbox"
	"viammo.app/tripscan/internal/model"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

const hotelEML = `From: Hyatt <reservations@hyatt.com>
To: traveler@example.com
Subject: Reservation confirmation
Date: Mon, 3 Jun 2024 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

Your stay: 3 nights at Hyatt Regency Maui.
--b1
Content-Type: text/html; charset=utf-8

<p>Your stay: <b>3 nights</b> at Hyatt Regency&nbsp;Maui.</p>
--b1--
`

const replyEML = `From: traveler@example.com
To: friend@example.com
Subject: Re: dinner
In-Reply-To: <abc@example.com>
Content-Type: text/plain

Sounds good.
`

const encodedSubjectEML = `From: hotel@example.com
Subject: =?UTF-8?Q?Confirmaci=C3=B3n_de_reserva?=
Content-Type: text/plain

Hotel reservation for two.
`

var _ = Describe("EMLGateway", func() {
	var (
		dir     string
		gateway *mailbox.EMLGateway
		ctx     = context.Background()
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "01-hotel.eml"), crlf(hotelEML), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "02-reply.eml"), crlf(replyEML), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "03-encoded.eml"), crlf(encodedSubjectEML), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600)).To(Succeed())

		var err error
		gateway, err = mailbox.NewEMLGateway(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a missing directory", func() {
		_, err := mailbox.NewEMLGateway(filepath.Join(dir, "nope"))
		Expect(err).To(HaveOccurred())
	})

	It("lists every message for an empty query", func() {
		refs, err := gateway.Search(ctx, "", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(refs).To(Equal([]model.MessageRef{"01-hotel.eml", "02-reply.eml", "03-encoded.eml"}))
	})

	It("matches any OR-ed phrase", func() {
		refs, err := gateway.Search(ctx, mailbox.BuildSearchQuery([]string{"hotel reservation", "your stay"}), 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(refs).To(Equal([]model.MessageRef{"01-hotel.eml", "03-encoded.eml"}))
	})

	It("honours maxResults", func() {
		refs, err := gateway.Search(ctx, "", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(refs).To(HaveLen(1))
	})

	It("reads headers without the body for metadata", func() {
		rec, err := gateway.FetchMetadata(ctx, "02-reply.eml")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.InReplyTo).To(Equal("<abc@example.com>"))
		Expect(rec.IsReply()).To(BeTrue())
		Expect(rec.Body).To(BeEmpty())
		Expect(rec.CC).To(Equal(model.UnknownCC))
	})

	It("flattens multipart bodies", func() {
		rec, err := gateway.FetchFull(ctx, "01-hotel.eml")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Subject).To(Equal("Reservation confirmation"))
		Expect(rec.Body).To(ContainSubstring("3 nights at Hyatt Regency Maui."))
		Expect(rec.Body).To(ContainSubstring("Your stay: 3 nights at Hyatt Regency Maui."))
	})

	It("decodes encoded-word headers", func() {
		rec, err := gateway.FetchMetadata(ctx, "03-encoded.eml")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Subject).To(Equal("Confirmación de reserva"))
	})

	It("returns ErrMessageNotFound for unknown or escaping ids", func() {
		_, err := gateway.FetchFull(ctx, "missing.eml")
		Expect(errors.Is(err, mailbox.ErrMessageNotFound)).To(BeTrue())

		_, err = gateway.FetchFull(ctx, "../etc/passwd")
		Expect(errors.Is(err, mailbox.ErrMessageNotFound)).To(BeTrue())
	})
})
