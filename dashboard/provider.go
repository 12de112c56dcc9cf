package dashboard

import "context"

// Header is a single raw message header as returned by the provider.
type Header struct {
	Name  string
	Value string
}

// RawMessage is a provider message reduced to what the extractor reads.
type RawMessage struct {
	ID      string
	Headers []Header
}

// MailProvider lists and fetches messages from the remote mailbox.
type MailProvider interface {
	// ListMessageIDs returns ids of the most recent messages matching
	// query, newest first, at most max of them.
	ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error)
	// GetMessage fetches the headers of one message.
	GetMessage(ctx context.Context, id string) (*RawMessage, error)
}

// ProviderFactory builds a MailProvider bound to an authorized session.
type ProviderFactory func(ctx context.Context, session *Session) (MailProvider, error)
