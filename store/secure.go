package store

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/scy"
	"golang.org/x/oauth2"
)

// DefaultEncryptionKey is the kms key used when none is supplied. The
// blowfish kms has to be registered by the importing binary:
//
//	import _ "github.com/viant/scy/kms/blowfish"
const DefaultEncryptionKey = "blowfish://default"

// SecureStoreOption customises the secure store.
type SecureStoreOption func(*secureStore)

// WithEncryptionKey overrides the kms key used to encrypt snapshots.
func WithEncryptionKey(key string) SecureStoreOption {
	return func(s *secureStore) {
		s.key = key
	}
}

// secureStore persists snapshots encrypted at rest with scy.
type secureStore struct {
	secrets *scy.Service
	fs      afs.Service
	baseURL string
	key     string
}

func (s *secureStore) LoadSession(ctx context.Context) (*SessionSnapshot, error) {
	snapshot := &SessionSnapshot{}
	ok, err := s.load(ctx, sessionRecord, snapshot)
	if err != nil || !ok {
		return nil, err
	}
	return snapshot, nil
}

func (s *secureStore) SaveSession(ctx context.Context, snapshot *SessionSnapshot) error {
	return s.save(ctx, sessionRecord, snapshot)
}

func (s *secureStore) LoadPermissions(ctx context.Context) (*PermissionSnapshot, error) {
	snapshot := &PermissionSnapshot{}
	ok, err := s.load(ctx, permissionRecord, snapshot)
	if err != nil || !ok {
		return nil, err
	}
	return snapshot, nil
}

func (s *secureStore) SavePermissions(ctx context.Context, snapshot *PermissionSnapshot) error {
	return s.save(ctx, permissionRecord, snapshot)
}

func (s *secureStore) Token(ctx context.Context) (*oauth2.Token, bool) {
	snapshot, err := s.LoadSession(ctx)
	if err != nil || snapshot == nil {
		return nil, false
	}
	token := snapshot.Token
	return &token, true
}

func (s *secureStore) SetAccessToken(ctx context.Context, access string, expiry time.Time) error {
	snapshot, err := s.LoadSession(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}
	snapshot.Token.AccessToken = access
	snapshot.Token.Expiry = expiry
	return s.SaveSession(ctx, snapshot)
}

func (s *secureStore) Clear(ctx context.Context) error {
	for _, name := range []string{sessionRecord, permissionRecord} {
		URL := url.Join(s.baseURL, name)
		ok, err := s.fs.Exists(ctx, URL)
		if err != nil {
			return fmt.Errorf("failed to check %v: %w", URL, err)
		}
		if !ok {
			continue
		}
		if err := s.fs.Delete(ctx, URL); err != nil {
			return fmt.Errorf("failed to delete %v: %w", URL, err)
		}
	}
	return nil
}

func (s *secureStore) load(ctx context.Context, name string, target interface{}) (bool, error) {
	URL := url.Join(s.baseURL, name)
	ok, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return false, fmt.Errorf("failed to check %v: %w", URL, err)
	}
	if !ok {
		return false, nil
	}
	resource := scy.NewResource(target, URL, s.key)
	secret, err := s.secrets.Load(ctx, resource)
	if err != nil {
		return false, fmt.Errorf("failed to load secret %v: %w", URL, err)
	}
	switch actual := secret.Target.(type) {
	case *SessionSnapshot:
		*(target.(*SessionSnapshot)) = *actual
	case *PermissionSnapshot:
		*(target.(*PermissionSnapshot)) = *actual
	default:
		return false, fmt.Errorf("unexpected secret type %T for %v", secret.Target, URL)
	}
	return true, nil
}

func (s *secureStore) save(ctx context.Context, name string, source interface{}) error {
	URL := url.Join(s.baseURL, name)
	resource := scy.NewResource(source, URL, s.key)
	secret := scy.NewSecret(source, resource)
	if err := s.secrets.Store(ctx, secret); err != nil {
		return fmt.Errorf("failed to store secret %v: %w", URL, err)
	}
	return nil
}

// NewSecureStore creates a store persisting snapshots encrypted with scy under
// baseURL.
func NewSecureStore(baseURL string, options ...SecureStoreOption) Store {
	ret := &secureStore{
		secrets: scy.New(),
		fs:      afs.New(),
		baseURL: baseURL,
		key:     DefaultEncryptionKey,
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
