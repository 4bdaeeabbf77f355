package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"viammo.app/tripscan/internal/model"
)

const (
	gmailUser     = "me"
	gmailPageSize = 100
)

// GmailGateway reads one user's mailbox through the Gmail API.
type GmailGateway struct {
	svc *gmailv1.Service
}

// NewGmailGateway builds a gateway authorised by ts. Extra options are
// appended after the token source, so tests can point it at a fake endpoint.
func NewGmailGateway(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*GmailGateway, error) {
	if ts == nil {
		return nil, errors.New("gmail gateway requires a token source")
	}
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gmailv1.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &GmailGateway{svc: svc}, nil
}

func (g *GmailGateway) Search(ctx context.Context, query string, maxResults int) ([]model.MessageRef, error) {
	var (
		refs      []model.MessageRef
		pageToken string
	)

	for len(refs) < maxResults {
		call := g.svc.Users.Messages.List(gmailUser).
			Q(query).
			MaxResults(int64(min(maxResults-len(refs), gmailPageSize))).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return refs, fmt.Errorf("list messages: %w", err)
		}
		if len(resp.Messages) == 0 {
			break
		}

		for _, m := range resp.Messages {
			refs = append(refs, model.MessageRef(m.Id))
		}

		slog.DebugContext(ctx, "gmail search page",
			"retrieved", len(refs),
			"max_results", maxResults)

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if len(refs) > maxResults {
		refs = refs[:maxResults]
	}
	return refs, nil
}

func (g *GmailGateway) FetchMetadata(ctx context.Context, id model.MessageRef) (*model.EmailRecord, error) {
	msg, err := g.svc.Users.Messages.Get(gmailUser, string(id)).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapGmailErr(id, err)
	}
	return recordFromHeaders(string(id), gmailHeaderLookup(msg.Payload)), nil
}

func (g *GmailGateway) FetchFull(ctx context.Context, id model.MessageRef) (*model.EmailRecord, error) {
	msg, err := g.svc.Users.Messages.Get(gmailUser, string(id)).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapGmailErr(id, err)
	}

	rec := recordFromHeaders(string(id), gmailHeaderLookup(msg.Payload))
	rec.Body = bodyText(gmailPart(msg.Payload))
	return rec, nil
}

func gmailHeaderLookup(payload *gmailv1.MessagePart) func(string) string {
	return func(name string) string {
		if payload == nil {
			return ""
		}
		for _, h := range payload.Headers {
			if strings.EqualFold(h.Name, name) {
				return h.Value
			}
		}
		return ""
	}
}

// gmailPart converts the API payload into a Part tree, decoding inline bodies.
// Bodies stored as separate attachments are skipped.
func gmailPart(p *gmailv1.MessagePart) *Part {
	if p == nil {
		return nil
	}
	part := &Part{MimeType: strings.ToLower(p.MimeType)}
	if p.Body != nil && p.Body.Data != "" {
		part.Data = decodeBase64URL(p.Body.Data)
	}
	for _, sub := range p.Parts {
		part.Children = append(part.Children, gmailPart(sub))
	}
	return part
}

func decodeBase64URL(data string) []byte {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail usually sends unpadded base64url.
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return nil
		}
	}
	return b
}

func wrapGmailErr(id model.MessageRef, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("get message %s: %w", id, ErrMessageNotFound)
	}
	return fmt.Errorf("get message %s: %w", id, err)
}
