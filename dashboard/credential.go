package dashboard

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// Session is an authorized credential borrowed for one refresh cycle.
type Session struct {
	oauth *oauth2.Config
	token *oauth2.Token
	// called when the token source hands out a token different from token
	onRefresh func(*oauth2.Token)
	// where an exchanged token was persisted; "" when it is held in memory only
	storedIn string
}

// HTTPClient returns a client that authorizes requests with the session
// token, refreshing it when it expires.
func (s *Session) HTTPClient(ctx context.Context) *http.Client {
	src := s.oauth.TokenSource(ctx, s.token)
	return oauth2.NewClient(ctx, &notifyingTokenSource{
		base:      src,
		last:      s.token.AccessToken,
		onRefresh: s.onRefresh,
	})
}

// Token returns the session token.
func (s *Session) Token() *oauth2.Token {
	return s.token
}

// StoredIn names where the session token was persisted by ExchangeCode, or
// returns "" when persisting failed and the token lives in memory only.
func (s *Session) StoredIn() string {
	return s.storedIn
}

type notifyingTokenSource struct {
	mu        sync.Mutex
	base      oauth2.TokenSource
	last      string
	onRefresh func(*oauth2.Token)
}

func (n *notifyingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := n.base.Token()
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	changed := tok.AccessToken != n.last
	n.last = tok.AccessToken
	n.mu.Unlock()
	if changed && n.onRefresh != nil {
		n.onRefresh(tok)
	}
	return tok, nil
}

// CredentialProvider resolves OAuth client credentials and the session
// token, and owns token persistence.
type CredentialProvider struct {
	config *Config
	store  tokenStore
	logger *zap.SugaredLogger

	mu     sync.Mutex
	latest *oauth2.Token // obtained in this process by exchange or refresh
}

// NewCredentialProvider creates a provider persisting tokens in store.
func NewCredentialProvider(config *Config, store tokenStore, logger *zap.SugaredLogger) *CredentialProvider {
	return &CredentialProvider{config: config, store: store, logger: logger}
}

// loadConfiguredCredentialSource returns the OAuth client credentials JSON,
// preferring the environment over the credentials file.
func (p *CredentialProvider) loadConfiguredCredentialSource() ([]byte, error) {
	if strings.TrimSpace(p.config.CredentialsJSON) != "" {
		return []byte(p.config.CredentialsJSON), nil
	}
	if p.config.CredentialsFile == "" {
		return nil, ErrConfigurationMissing
	}
	data, err := os.ReadFile(p.config.CredentialsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrConfigurationMissing, "no %s and no %s", EnvCredentials, p.config.CredentialsFile)
		}
		return nil, errors.Mark(errors.WithStack(err), ErrConfigurationMissing)
	}
	return data, nil
}

func (p *CredentialProvider) oauthConfig() (*oauth2.Config, error) {
	raw, err := p.loadConfiguredCredentialSource()
	if err != nil {
		return nil, err
	}
	oc, err := google.ConfigFromJSON(raw, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "unable to parse client credentials"), ErrConfigurationMissing)
	}
	return oc, nil
}

// currentToken looks up the session token: the one obtained in this process
// first, then the environment blob, then the token store.
func (p *CredentialProvider) currentToken() (*oauth2.Token, error) {
	p.mu.Lock()
	latest := p.latest
	p.mu.Unlock()
	if latest != nil {
		return latest, nil
	}

	if strings.TrimSpace(p.config.TokenJSON) != "" {
		tok, err := decodeToken([]byte(p.config.TokenJSON))
		if err != nil {
			return nil, errors.Wrapf(err, "in %s", EnvToken)
		}
		if tok != nil {
			return tok, nil
		}
	}

	if p.store == nil {
		return nil, nil
	}
	return p.store.load()
}

// ResolveSession returns the authorized session, ErrUnauthorized when no
// token exists yet, or ErrConfigurationMissing.
func (p *CredentialProvider) ResolveSession(ctx context.Context) (*Session, error) {
	oc, err := p.oauthConfig()
	if err != nil {
		return nil, err
	}

	tok, err := p.currentToken()
	if err != nil {
		p.logger.Warnf("ignoring unreadable session token: %+v", err)
		return nil, ErrUnauthorized
	}
	if tok == nil {
		return nil, ErrUnauthorized
	}

	return &Session{oauth: oc, token: tok, onRefresh: p.remember}, nil
}

// AuthorizationURL returns the consent URL for read-only mailbox access.
func (p *CredentialProvider) AuthorizationURL() (string, error) {
	oc, err := p.oauthConfig()
	if err != nil {
		return "", err
	}
	return oc.AuthCodeURL("state-token", oauth2.AccessTypeOffline), nil
}

// ExchangeCode trades a one-time authorization code for a session token and
// persists it, overwriting any previous token.  The code cannot be reused,
// so a failure to persist still returns the session; StoredIn reports it.
func (p *CredentialProvider) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.Mark(errors.New("empty authorization code"), ErrAuthorizationFailed)
	}

	oc, err := p.oauthConfig()
	if err != nil {
		return nil, err
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "unable to retrieve token"), ErrAuthorizationFailed)
	}

	p.mu.Lock()
	p.latest = tok
	p.mu.Unlock()

	session := &Session{oauth: oc, token: tok, onRefresh: p.remember}
	if err := p.persist(tok); err != nil {
		p.logger.Warnf("authorization succeeded, token kept in memory only: %+v", err)
		return session, nil
	}
	session.storedIn = p.StoreDescription()
	p.logger.Infow("authorization succeeded",
		"store", session.storedIn)

	return session, nil
}

// StoreDescription names where session tokens are persisted.
func (p *CredentialProvider) StoreDescription() string {
	if p.store == nil {
		return "memory"
	}
	return p.store.describe()
}

func (p *CredentialProvider) persist(tok *oauth2.Token) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.save(tok); err != nil {
		return errors.Wrap(err, "failed to persist session token")
	}
	return nil
}

// remember keeps a token refreshed by the oauth2 library and writes it back.
func (p *CredentialProvider) remember(tok *oauth2.Token) {
	p.mu.Lock()
	p.latest = tok
	p.mu.Unlock()
	if err := p.persist(tok); err != nil {
		p.logger.Warnf("failed to persist refreshed token: %+v", err)
		return
	}
	p.logger.Debugw("persisted refreshed token", "store", p.StoreDescription())
}
