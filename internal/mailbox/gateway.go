// Package mailbox lists, fetches and flattens mail for a scan.
package mailbox

import (
	"context"
	"errors"

	"viammo.app/tripscan/internal/model"
)

// ErrMessageNotFound is returned by FetchMetadata and FetchFull for unknown ids.
var ErrMessageNotFound = errors.New("message not found")

// Gateway is the mail capability a scan runs against. Implementations carry
// their own credentials and are safe for concurrent use.
type Gateway interface {
	// Search pages through results until the provider runs out or maxResults
	// ids have been collected.
	Search(ctx context.Context, query string, maxResults int) ([]model.MessageRef, error)

	// FetchMetadata returns headers only.
	FetchMetadata(ctx context.Context, id model.MessageRef) (*model.EmailRecord, error)

	// FetchFull returns headers plus the flattened plain-text body.
	FetchFull(ctx context.Context, id model.MessageRef) (*model.EmailRecord, error)
}

// metadataHeaders are the headers copied onto every EmailRecord.
var metadataHeaders = []string{"Subject", "From", "To", "Date", "Reply-To", "CC", "BCC", "In-Reply-To"}

// recordFromHeaders builds a record using lookup for each header, falling back
// to the "Unknown ..." placeholders for missing ones.
func recordFromHeaders(id string, lookup func(name string) string) *model.EmailRecord {
	get := func(name, fallback string) string {
		if v := lookup(name); v != "" {
			return v
		}
		return fallback
	}
	return &model.EmailRecord{
		ID:        id,
		Subject:   get("Subject", model.NoSubject),
		Sender:    get("From", model.UnknownSender),
		Recipient: get("To", model.UnknownRecipient),
		Date:      get("Date", model.UnknownDate),
		ReplyTo:   get("Reply-To", model.UnknownReplyTo),
		CC:        get("CC", model.UnknownCC),
		BCC:       get("BCC", model.UnknownBCC),
		InReplyTo: get("In-Reply-To", model.UnknownInReplyTo),
	}
}
