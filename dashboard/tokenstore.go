package dashboard

import (
	"encoding/json"
	"os"

	"github.com/99designs/keyring"
	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
)

const (
	keyringService = "load-dashboard"
	keyringKey     = "gmail-token"
)

// tokenStore persists the session token.  save is always a full overwrite.
// load returns (nil, nil) when nothing has been stored yet.
type tokenStore interface {
	load() (*oauth2.Token, error)
	save(tok *oauth2.Token) error
	describe() string
}

func newTokenStore(config *Config) (tokenStore, error) {
	switch config.TokenStore {
	case tokenStoreKeyring:
		ring, err := keyring.Open(keyring.Config{
			ServiceName: keyringService,
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,
				keyring.SecretServiceBackend,
				keyring.WinCredBackend,
				keyring.PassBackend,
				keyring.FileBackend,
			},
			FileDir:                  config.KeyringDir,
			FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
			KeychainTrustApplication: true,
		})
		if err != nil {
			return nil, errors.Wrap(err, "opening keyring")
		}
		return &keyringTokenStore{ring: ring}, nil
	default:
		return &fileTokenStore{path: config.TokenFile}, nil
	}
}

type fileTokenStore struct {
	path string
}

func (s *fileTokenStore) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return decodeToken(data)
}

func (s *fileTokenStore) save(tok *oauth2.Token) (rerr error) {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrap(err, "unable to save oauth token")
	}
	defer func() {
		rerr = appendError(rerr, errors.WithStack(f.Close()))
	}()
	return errors.WithStack(json.NewEncoder(f).Encode(tok))
}

func (s *fileTokenStore) describe() string {
	return "file " + s.path
}

type keyringTokenStore struct {
	ring keyring.Keyring
}

func (s *keyringTokenStore) load() (*oauth2.Token, error) {
	item, err := s.ring.Get(keyringKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "getting credential %q", keyringKey)
	}
	return decodeToken(item.Data)
}

func (s *keyringTokenStore) save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return errors.WithStack(err)
	}
	err = s.ring.Set(keyring.Item{
		Key:   keyringKey,
		Label: "Load dashboard Gmail session",
		Data:  data,
	})
	if err != nil {
		return errors.Wrapf(err, "setting credential %q", keyringKey)
	}
	return nil
}

func (s *keyringTokenStore) describe() string {
	return "system keyring (" + keyringService + "/" + keyringKey + ")"
}

// decodeToken parses a JSON-encoded oauth2.Token.  A token without access
// and refresh parts is treated as absent.
func decodeToken(data []byte) (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, errors.Wrap(err, "malformed session token")
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, nil
	}
	return tok, nil
}
