package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newTokenServer fakes the OAuth token endpoint.
func newTokenServer(t *testing.T, status int, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testCredentialProvider(t *testing.T, credentialsJSON string, store tokenStore) *CredentialProvider {
	config := DefaultConfig()
	config.CredentialsFile = filepath.Join(t.TempDir(), "credentials.json")
	config.CredentialsJSON = credentialsJSON
	return NewCredentialProvider(config, store, testLogger(t))
}

func TestLoadCredentialSourcePrefersEnvironment(t *testing.T) {
	p := testCredentialProvider(t, `{"env":true}`, nil)
	require.Nil(t, os.WriteFile(p.config.CredentialsFile, []byte(`{"file":true}`), 0600))

	raw, err := p.loadConfiguredCredentialSource()
	require.Nil(t, err)
	require.Equal(t, `{"env":true}`, string(raw))

	p.config.CredentialsJSON = ""
	raw, err = p.loadConfiguredCredentialSource()
	require.Nil(t, err)
	require.Equal(t, `{"file":true}`, string(raw))
}

func TestLoadCredentialSourceMissing(t *testing.T) {
	p := testCredentialProvider(t, "", nil)

	_, err := p.loadConfiguredCredentialSource()
	require.True(t, errors.Is(err, ErrConfigurationMissing))

	_, err = p.ResolveSession(context.Background())
	require.True(t, errors.Is(err, ErrConfigurationMissing))

	_, err = p.AuthorizationURL()
	require.True(t, errors.Is(err, ErrConfigurationMissing))
}

func TestLoadCredentialSourceMalformed(t *testing.T) {
	p := testCredentialProvider(t, `{"neither":{}}`, nil)

	_, err := p.ResolveSession(context.Background())
	require.True(t, errors.Is(err, ErrConfigurationMissing))
}

func TestResolveSession(t *testing.T) {
	store := &memoryTokenStore{}
	p := testCredentialProvider(t, testCredentialsJSON("https://oauth.example.com/token"), store)

	_, err := p.ResolveSession(context.Background())
	require.True(t, errors.Is(err, ErrUnauthorized))

	store.tok = &oauth2.Token{AccessToken: "stored-access", RefreshToken: "stored-refresh"}
	session, err := p.ResolveSession(context.Background())
	require.Nil(t, err)
	require.Equal(t, "stored-access", session.Token().AccessToken)

	p.config.TokenJSON = testTokenJSON
	session, err = p.ResolveSession(context.Background())
	require.Nil(t, err)
	require.Equal(t, "env-access", session.Token().AccessToken)
}

func TestResolveSessionMalformedToken(t *testing.T) {
	p := testCredentialProvider(t, testCredentialsJSON("https://oauth.example.com/token"), &memoryTokenStore{})
	p.config.TokenJSON = `{not json`

	_, err := p.ResolveSession(context.Background())
	require.True(t, errors.Is(err, ErrUnauthorized))
}

func TestAuthorizationURL(t *testing.T) {
	p := testCredentialProvider(t, testCredentialsJSON("https://oauth.example.com/token"), nil)

	raw, err := p.AuthorizationURL()
	require.Nil(t, err)

	u, err := url.Parse(raw)
	require.Nil(t, err)
	require.Equal(t, "accounts.example.com", u.Host)
	q := u.Query()
	require.Equal(t, "test-client.apps.example.com", q.Get("client_id"))
	require.Equal(t, "https://www.googleapis.com/auth/gmail.readonly", q.Get("scope"))
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "code", q.Get("response_type"))
}

func TestExchangeCode(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK,
		`{"access_token":"new-access","token_type":"Bearer","refresh_token":"new-refresh","expires_in":3600}`)
	store := &memoryTokenStore{tok: &oauth2.Token{AccessToken: "old-access"}}
	p := testCredentialProvider(t, testCredentialsJSON(srv.URL), store)
	// an exchanged token wins over the environment blob
	p.config.TokenJSON = testTokenJSON

	session, err := p.ExchangeCode(context.Background(), " 4/abc ")
	require.Nil(t, err)
	require.Equal(t, "new-access", session.Token().AccessToken)
	require.Equal(t, "memory", session.StoredIn())

	require.Equal(t, 1, store.saves)
	require.Equal(t, "new-access", store.tok.AccessToken)
	require.Equal(t, "new-refresh", store.tok.RefreshToken)

	session, err = p.ResolveSession(context.Background())
	require.Nil(t, err)
	require.Equal(t, "new-access", session.Token().AccessToken)
}

// failingTokenStore loads nothing and refuses every save.
type failingTokenStore struct{}

func (failingTokenStore) load() (*oauth2.Token, error) { return nil, nil }
func (failingTokenStore) save(*oauth2.Token) error     { return errors.New("disk full") }
func (failingTokenStore) describe() string             { return "broken store" }

func TestExchangeCodePersistFailure(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK,
		`{"access_token":"mem-access","token_type":"Bearer","refresh_token":"mem-refresh","expires_in":3600}`)
	p := testCredentialProvider(t, testCredentialsJSON(srv.URL), failingTokenStore{})

	session, err := p.ExchangeCode(context.Background(), "4/abc")
	require.Nil(t, err)
	require.Equal(t, "mem-access", session.Token().AccessToken)
	require.Equal(t, "", session.StoredIn())

	// the process stays authorized for as long as it runs
	session, err = p.ResolveSession(context.Background())
	require.Nil(t, err)
	require.Equal(t, "mem-access", session.Token().AccessToken)
}

func TestExchangeCodeRejected(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	store := &memoryTokenStore{}
	p := testCredentialProvider(t, testCredentialsJSON(srv.URL), store)

	_, err := p.ExchangeCode(context.Background(), "bad-code")
	require.True(t, errors.Is(err, ErrAuthorizationFailed))
	require.Equal(t, 0, store.saves)

	_, err = p.ExchangeCode(context.Background(), "   ")
	require.True(t, errors.Is(err, ErrAuthorizationFailed))

	_, err = p.ResolveSession(context.Background())
	require.True(t, errors.Is(err, ErrUnauthorized))
}

func TestRememberRefreshedToken(t *testing.T) {
	store := &memoryTokenStore{}
	p := testCredentialProvider(t, testCredentialsJSON("https://oauth.example.com/token"), store)

	p.remember(&oauth2.Token{AccessToken: "refreshed", RefreshToken: "r"})
	require.Equal(t, 1, store.saves)

	session, err := p.ResolveSession(context.Background())
	require.Nil(t, err)
	require.Equal(t, "refreshed", session.Token().AccessToken)
}

func TestNotifyingTokenSource(t *testing.T) {
	var seen []string
	tok := &oauth2.Token{AccessToken: "a"}
	src := &notifyingTokenSource{
		base: oauth2.StaticTokenSource(tok),
		last: "a",
		onRefresh: func(refreshed *oauth2.Token) {
			seen = append(seen, refreshed.AccessToken)
		},
	}

	_, err := src.Token()
	require.Nil(t, err)
	require.Empty(t, seen)

	src.base = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "b"})
	_, err = src.Token()
	require.Nil(t, err)
	require.Equal(t, []string{"b"}, seen)
}
