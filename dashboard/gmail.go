package dashboard

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUser = "me"

var metadataHeaders = []string{"Subject", "From", "To", "Date"}

// gmailProvider implements MailProvider on the Gmail REST API.
type gmailProvider struct {
	svc *gmail.Service
}

// newGmailProvider is the ProviderFactory used outside tests.
func newGmailProvider(ctx context.Context, session *Session) (MailProvider, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(session.HTTPClient(ctx)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Gmail service")
	}
	return &gmailProvider{svc: svc}, nil
}

func (p *gmailProvider) ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error) {
	res, err := p.svc.Users.Messages.List(gmailUser).
		Q(query).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list messages for %q", query)
	}

	ids := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (p *gmailProvider) GetMessage(ctx context.Context, id string) (*RawMessage, error) {
	msg, err := p.svc.Users.Messages.Get(gmailUser, id).
		Format("metadata").
		MetadataHeaders(metadataHeaders...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get message %s", id)
	}

	raw := &RawMessage{ID: msg.Id}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			raw.Headers = append(raw.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}
	return raw, nil
}
