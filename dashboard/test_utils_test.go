package dashboard

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TestConfig test config
type TestConfig struct {
	credentialsJSON string
	tokenJSON       string
}

// TestApp test app
type TestApp struct {
	testConfig *TestConfig
	app        *App
	provider   *fakeProvider
	dir        string
}

// Fini finish event
func (a *TestApp) Fini() {
	_ = a.app.logger.Sync()
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	logger, err := zap.NewDevelopment()
	require.Nil(t, err)
	return logger.Sugar()
}

// testCredentialsJSON returns client credentials whose token endpoint is
// tokenURL.
func testCredentialsJSON(tokenURL string) string {
	return fmt.Sprintf(`{"installed":{`+
		`"client_id":"test-client.apps.example.com",`+
		`"client_secret":"test-secret",`+
		`"redirect_uris":["urn:ietf:wg:oauth:2.0:oob"],`+
		`"auth_uri":"https://accounts.example.com/o/oauth2/auth",`+
		`"token_uri":%q}}`, tokenURL)
}

const testTokenJSON = `{"access_token":"env-access","token_type":"Bearer","refresh_token":"env-refresh"}`

// clearEnv keeps the developer's environment out of ParseConfig.
func clearEnv(t *testing.T) {
	t.Setenv(EnvPort, "")
	t.Setenv(EnvTokenStore, "")
	t.Setenv(EnvCredentials, "")
	t.Setenv(EnvToken, "")
}

func initTestBase(t *testing.T, tconf *TestConfig) *TestApp {
	if tconf == nil {
		tconf = &TestConfig{}
	}
	clearEnv(t)

	dir := t.TempDir()
	config, err := ParseConfig(fmt.Sprintf(`{"host":"localhost",`+
		`"credentials-file":%q,`+
		`"token-file":%q,`+
		`"timezone":"UTC"}`,
		filepath.Join(dir, "credentials.json"),
		filepath.Join(dir, "token.json")))
	require.Nil(t, err)
	config.CredentialsJSON = tconf.credentialsJSON
	config.TokenJSON = tconf.tokenJSON

	provider := newFakeProvider()
	tokens := &fileTokenStore{path: config.TokenFile}
	app := assembleApp(config, testLogger(t), tokens,
		func(ctx context.Context, session *Session) (MailProvider, error) {
			return provider, nil
		})

	return &TestApp{
		testConfig: tconf,
		app:        app,
		provider:   provider,
		dir:        dir,
	}
}

// fakeProvider is an in-memory MailProvider.
type fakeProvider struct {
	mu       sync.Mutex
	order    []string
	messages map[string]*RawMessage
	getErr   map[string]error
	listErr  error
	queries  []string

	// when set, ListMessageIDs signals listing and waits for release
	listing chan struct{}
	release chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		messages: map[string]*RawMessage{},
		getErr:   map[string]error{},
	}
}

// add appends a message; messages are listed in insertion order.
func (p *fakeProvider) add(id, subject, date string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = append(p.order, id)
	p.messages[id] = &RawMessage{
		ID: id,
		Headers: []Header{
			{Name: "Subject", Value: subject},
			{Name: "From", Value: "Despacho <despacho@example.com>"},
			{Name: "To", Value: "empleado@example.com"},
			{Name: "Date", Value: date},
		},
	}
}

func (p *fakeProvider) failGet(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getErr[id] = errors.Newf("simulated fetch error for %s", id)
}

func (p *fakeProvider) lastQuery() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queries) == 0 {
		return ""
	}
	return p.queries[len(p.queries)-1]
}

func (p *fakeProvider) ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	listing, release := p.listing, p.release
	p.mu.Unlock()

	if listing != nil {
		listing <- struct{}{}
		<-release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	ids := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if int64(len(ids)) == max {
			break
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *fakeProvider) GetMessage(ctx context.Context, id string) (*RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.getErr[id]; err != nil {
		return nil, err
	}
	m, ok := p.messages[id]
	if !ok {
		return nil, errors.Newf("no message %s", id)
	}
	return m, nil
}

// fakeResolver hands out an empty session or a fixed error.
type fakeResolver struct {
	err error
}

func (r *fakeResolver) ResolveSession(ctx context.Context) (*Session, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &Session{token: &oauth2.Token{AccessToken: "fake"}}, nil
}

func newTestSynchronizer(t *testing.T, store *SnapshotStore, resolver SessionResolver, provider *fakeProvider) *Synchronizer {
	return NewSynchronizer(store, resolver,
		func(ctx context.Context, session *Session) (MailProvider, error) {
			return provider, nil
		},
		testLogger(t), 50, nil)
}

// memoryTokenStore is a tokenStore kept in memory.
type memoryTokenStore struct {
	mu    sync.Mutex
	tok   *oauth2.Token
	saves int
}

func (s *memoryTokenStore) load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok, nil
}

func (s *memoryTokenStore) save(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
	s.saves++
	return nil
}

func (s *memoryTokenStore) describe() string {
	return "memory"
}
