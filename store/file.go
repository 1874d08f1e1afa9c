package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"golang.org/x/oauth2"
)

const (
	sessionRecord    = "session.json"
	permissionRecord = "permissions.json"
)

type fileStore struct {
	fs      afs.Service
	baseURL string
}

func (f *fileStore) LoadSession(ctx context.Context) (*SessionSnapshot, error) {
	snapshot := &SessionSnapshot{}
	ok, err := f.load(ctx, sessionRecord, snapshot)
	if err != nil || !ok {
		return nil, err
	}
	return snapshot, nil
}

func (f *fileStore) SaveSession(ctx context.Context, snapshot *SessionSnapshot) error {
	return f.save(ctx, sessionRecord, snapshot)
}

func (f *fileStore) LoadPermissions(ctx context.Context) (*PermissionSnapshot, error) {
	snapshot := &PermissionSnapshot{}
	ok, err := f.load(ctx, permissionRecord, snapshot)
	if err != nil || !ok {
		return nil, err
	}
	return snapshot, nil
}

func (f *fileStore) SavePermissions(ctx context.Context, snapshot *PermissionSnapshot) error {
	return f.save(ctx, permissionRecord, snapshot)
}

func (f *fileStore) Token(ctx context.Context) (*oauth2.Token, bool) {
	snapshot, err := f.LoadSession(ctx)
	if err != nil || snapshot == nil {
		return nil, false
	}
	token := snapshot.Token
	return &token, true
}

func (f *fileStore) SetAccessToken(ctx context.Context, access string, expiry time.Time) error {
	snapshot, err := f.LoadSession(ctx)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}
	snapshot.Token.AccessToken = access
	snapshot.Token.Expiry = expiry
	return f.SaveSession(ctx, snapshot)
}

func (f *fileStore) Clear(ctx context.Context) error {
	for _, name := range []string{sessionRecord, permissionRecord} {
		URL := url.Join(f.baseURL, name)
		ok, err := f.fs.Exists(ctx, URL)
		if err != nil {
			return fmt.Errorf("failed to check %v: %w", URL, err)
		}
		if !ok {
			continue
		}
		if err := f.fs.Delete(ctx, URL); err != nil {
			return fmt.Errorf("failed to delete %v: %w", URL, err)
		}
	}
	return nil
}

func (f *fileStore) load(ctx context.Context, name string, target interface{}) (bool, error) {
	URL := url.Join(f.baseURL, name)
	ok, err := f.fs.Exists(ctx, URL)
	if err != nil {
		return false, fmt.Errorf("failed to check %v: %w", URL, err)
	}
	if !ok {
		return false, nil
	}
	data, err := f.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return false, fmt.Errorf("failed to download %v: %w", URL, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to decode %v: %w", URL, err)
	}
	return true, nil
}

func (f *fileStore) save(ctx context.Context, name string, source interface{}) error {
	URL := url.Join(f.baseURL, name)
	data, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("failed to encode %v: %w", URL, err)
	}
	if err := f.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload %v: %w", URL, err)
	}
	return nil
}

// NewFileStore creates a store persisting snapshots as JSON documents under
// baseURL, which accepts any scheme supported by afs (file://, mem://, s3://).
func NewFileStore(baseURL string) Store {
	return &fileStore{fs: afs.New(), baseURL: baseURL}
}
