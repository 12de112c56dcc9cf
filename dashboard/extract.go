package dashboard

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

const (
	unknownReference = "unknown"
	invalidDate      = "Invalid Date"
	displayLayout    = "02/01/2006 15:04:05"
)

var digitRun = regexp.MustCompile(`\d+`)

// Layouts tried after RFC 5322 parsing fails, for senders that emit
// slightly broken Date headers.
var fallbackDateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// NormalizedMessage is one matching message as shown on the dashboard.
// Values are never mutated after extraction.
type NormalizedMessage struct {
	ID                 string    `json:"id"`
	ReferenceNumber    string    `json:"referenceNumber"`
	Sender             string    `json:"sender"`
	Recipient          string    `json:"recipient"`
	Timestamp          time.Time `json:"timestamp"`
	FormattedTimestamp string    `json:"formattedTimestamp"`
	Subject            string    `json:"subject"`
	MatchedFilter      string    `json:"matchedFilter"`
}

// HasTimestamp reports whether the Date header could be parsed.
func (m *NormalizedMessage) HasTimestamp() bool {
	return !m.Timestamp.IsZero()
}

// extract maps a raw provider message to a NormalizedMessage.  It never
// fails: missing headers become "" and an unparseable date becomes the zero
// time, which sorts as oldest.
func extract(raw *RawMessage, filter string, loc *time.Location) NormalizedMessage {
	if loc == nil {
		loc = time.UTC
	}

	var h mail.Header
	if raw != nil {
		for _, kv := range raw.Headers {
			h.Add(kv.Name, kv.Value)
		}
	}

	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}

	ts := parseDate(&h)
	formatted := invalidDate
	if !ts.IsZero() {
		formatted = ts.In(loc).Format(displayLayout)
	}

	m := NormalizedMessage{
		ReferenceNumber:    referenceNumber(subject),
		Sender:             h.Get("From"),
		Recipient:          h.Get("To"),
		Timestamp:          ts,
		FormattedTimestamp: formatted,
		Subject:            subject,
		MatchedFilter:      filter,
	}
	if raw != nil {
		m.ID = raw.ID
	}
	return m
}

// referenceNumber returns the first run of digits in subject.
func referenceNumber(subject string) string {
	if ref := digitRun.FindString(subject); ref != "" {
		return ref
	}
	return unknownReference
}

func parseDate(h *mail.Header) time.Time {
	value := strings.TrimSpace(h.Get("Date"))
	if value == "" {
		return time.Time{}
	}
	if t, err := h.Date(); err == nil {
		return t
	}

	candidates := []string{value}
	// strip a trailing "(MST)" style comment
	if open := strings.LastIndex(value, " ("); open != -1 {
		if end := strings.LastIndex(value, ")"); end > open {
			candidates = append(candidates, strings.TrimSpace(value[:open]+value[end+1:]))
		}
	}
	for _, c := range candidates {
		for _, layout := range fallbackDateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// sortByTimestamp orders records newest first, keeping provider order for
// equal timestamps.
func sortByTimestamp(records []NormalizedMessage) {
	slices.SortStableFunc(records, func(a, b NormalizedMessage) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
