// Package redis implements the CredentialStore port on a Redis key.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/qrsignin/internal/adapter/driven/secretbox"
	"github.com/ericfisherdev/qrsignin/internal/domain/model"
	"github.com/ericfisherdev/qrsignin/internal/domain/port/driven"
)

// DefaultKey is the Redis key holding the sealed session credential.
const DefaultKey = "qrsignin:credential"

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore keeps the sealed credential under a single Redis key with no
// expiry. Absence of the key means no credential.
type CredentialStore struct {
	client goredis.Cmdable
	box    *secretbox.Box
	key    string
}

// New creates a CredentialStore on an existing client. An empty key selects DefaultKey.
func New(client goredis.Cmdable, box *secretbox.Box, key string) *CredentialStore {
	if key == "" {
		key = DefaultKey
	}
	return &CredentialStore{client: client, box: box, key: key}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, rawURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Get retrieves the stored credential. Returns ("", nil) if the key is absent.
func (s *CredentialStore) Get(ctx context.Context) (model.Credential, error) {
	sealed, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}

	plaintext, err := s.box.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return model.Credential(plaintext), nil
}

// Set stores or replaces the credential without expiry.
func (s *CredentialStore) Set(ctx context.Context, cred model.Credential) error {
	if cred.IsZero() {
		return model.ErrEmptyCredential
	}

	sealed, err := s.box.Seal(string(cred))
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key, sealed, 0).Err(); err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return nil
}

// Clear deletes the credential key.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
