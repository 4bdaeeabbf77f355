package model

import (
	"fmt"
	"strings"
)

// MessageRef is the provider-assigned id returned by a mailbox search.
type MessageRef string

// EmailRecord is one message as it moves through the scan. Body is only
// populated between the full fetch and key-insight extraction.
type EmailRecord struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Date      string `json:"date"`
	ReplyTo   string `json:"reply_to"`
	CC        string `json:"cc"`
	BCC       string `json:"bcc"`
	InReplyTo string `json:"in_reply_to"`
	Body      string `json:"body,omitempty"`

	KeyInsights string `json:"key_insights,omitempty"`
	StayLength  int    `json:"stay_length"`
	StayYear    int    `json:"stay_year"`
}

// Header fallbacks used when a message lacks the header entirely.
const (
	NoSubject        = "No Subject"
	UnknownDate      = "Unknown Date"
	UnknownSender    = "Unknown Sender"
	UnknownRecipient = "Unknown Recipient"
	UnknownReplyTo   = "Unknown Reply-To"
	UnknownCC        = "Unknown CC"
	UnknownBCC       = "Unknown BCC"
	UnknownInReplyTo = "Unknown In-Reply-To"
	UnknownBody      = "Unknown body"
)

// IsReply reports whether the message answers another message in its thread.
func (e *EmailRecord) IsReply() bool {
	return e.InReplyTo != "" && e.InReplyTo != UnknownInReplyTo
}

// Insights is the per-email extraction result.
type Insights struct {
	KeyInsights string `json:"key_insights"`
	StayLength  int    `json:"stay_length"`
	StayYear    int    `json:"stay_year"`
}

// Attach copies insights onto the record and drops the body.
func (e *EmailRecord) Attach(in Insights) {
	e.KeyInsights = in.KeyInsights
	e.StayLength = in.StayLength
	e.StayYear = in.StayYear
	e.Body = ""
}

// Describe renders the record as labelled lines for use inside prompts.
// Empty fields are omitted.
func (e *EmailRecord) Describe() string {
	var b strings.Builder
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	field("id", e.ID)
	field("subject", e.Subject)
	field("date", e.Date)
	field("sender", e.Sender)
	field("recipient", e.Recipient)
	field("reply_to", e.ReplyTo)
	field("cc", e.CC)
	field("bcc", e.BCC)
	field("in_reply_to", e.InReplyTo)
	field("body", e.Body)
	return strings.TrimSuffix(b.String(), "\n")
}
