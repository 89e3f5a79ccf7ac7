// Package store keeps bearer tokens between login tasks so a still valid token skips the login.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"ogameapi/config"
)

var ErrNotFound = errors.New("token not found")

type TokenStore interface {
	Load(ctx context.Context, account string) (string, error)
	Save(ctx context.Context, account, token string) error
	Delete(ctx context.Context, account string) error
}

// New picks the backend named by cfg.Backend: file, redis or none.
func New(cfg config.StoreConfig) (TokenStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "file":
		return NewFileStore(cfg.File), nil
	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisTTL), nil
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Backend)
	}
}

// Key is the account key shared by all backends.
func Key(preset, identity string) string {
	return strings.ToLower(preset + ":" + identity)
}

type Nop struct{}

func (Nop) Load(context.Context, string) (string, error) { return "", ErrNotFound }
func (Nop) Save(context.Context, string, string) error   { return nil }
func (Nop) Delete(context.Context, string) error         { return nil }

type fileEntry struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// FileStore keeps every token in one JSON file.
type FileStore struct {
	Path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) read() (map[string]fileEntry, error) {
	entries := make(map[string]fileEntry)

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file - %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse token file - %w", err)
	}
	return entries, nil
}

func (s *FileStore) write(entries map[string]fileEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file - %w", err)
	}
	return os.Rename(tmp, s.Path)
}

func (s *FileStore) Load(_ context.Context, account string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return "", err
	}
	entry, ok := entries[account]
	if !ok || entry.Token == "" {
		return "", ErrNotFound
	}
	return entry.Token, nil
}

func (s *FileStore) Save(_ context.Context, account, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[account] = fileEntry{Token: token, SavedAt: time.Now().UTC()}
	return s.write(entries)
}

func (s *FileStore) Delete(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := entries[account]; !ok {
		return nil
	}
	delete(entries, account)
	return s.write(entries)
}

// RedisStore expires tokens after TTL, zero keeps them forever.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		TTL:    ttl,
		Prefix: "ogameapi:token:",
	}
}

func (s *RedisStore) Load(ctx context.Context, account string) (string, error) {
	token, err := s.Client.Get(ctx, s.Prefix+account).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get - %w", err)
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, account, token string) error {
	if err := s.Client.Set(ctx, s.Prefix+account, token, s.TTL).Err(); err != nil {
		return fmt.Errorf("redis set - %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, account string) error {
	if err := s.Client.Del(ctx, s.Prefix+account).Err(); err != nil {
		return fmt.Errorf("redis del - %w", err)
	}
	return nil
}
