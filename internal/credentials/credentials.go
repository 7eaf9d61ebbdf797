package credentials

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

const keyTokens = "listingd:tokens"

// ErrNoToken is returned when no marketplace token is registered
var ErrNoToken = errors.New("no marketplace token registered")

// Provider looks up marketplace tokens
type Provider interface {
	Token(ctx context.Context, steamid string) (string, error)
	RandomToken(ctx context.Context) (string, error)
}

// Store keeps one marketplace token per account in a Redis hash
type Store struct {
	client *redis.Client
}

// NewStore creates a token store
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Token returns the token of an account
func (s *Store) Token(ctx context.Context, steamid string) (string, error) {
	token, err := s.client.HGet(ctx, keyTokens, steamid).Result()
	if errors.Is(err, redis.Nil) || (err == nil && token == "") {
		return "", fmt.Errorf("%w for %s", ErrNoToken, steamid)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// RandomToken returns the token of any account
func (s *Store) RandomToken(ctx context.Context) (string, error) {
	ids, err := s.client.HKeys(ctx, keyTokens).Result()
	if err != nil {
		return "", fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(ids) == 0 {
		return "", ErrNoToken
	}
	return s.Token(ctx, ids[rand.IntN(len(ids))])
}

// Set registers the token of an account
func (s *Store) Set(ctx context.Context, steamid, token string) error {
	if steamid == "" || token == "" {
		return errors.New("steamid and token are required")
	}
	if err := s.client.HSet(ctx, keyTokens, steamid, token).Err(); err != nil {
		return fmt.Errorf("failed to set token: %w", err)
	}
	return nil
}

// Delete forgets the token of an account
func (s *Store) Delete(ctx context.Context, steamid string) error {
	return s.client.HDel(ctx, keyTokens, steamid).Err()
}

type tokenFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// LoadFile seeds the store from a YAML file of the form
//
//	tokens:
//	  "76561198000000001": "token"
//
// and returns how many tokens were registered.
func (s *Store) LoadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read token file: %w", err)
	}

	var f tokenFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse token file: %w", err)
	}

	n := 0
	for steamid, token := range f.Tokens {
		if err := s.Set(ctx, steamid, token); err != nil {
			return n, fmt.Errorf("token for %s: %w", steamid, err)
		}
		n++
	}
	return n, nil
}
