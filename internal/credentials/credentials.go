// Package credentials resolves the secrets the agent needs for remote
// services: the transcription job service key and the generation key.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tubelearn/tubelearn-agent/internal/catalog"
)

const (
	JobServiceKey = "job_service_key"
	GenerationKey = "generation_key"
)

// Env variable names consulted by EnvSource.
const (
	EnvJobServiceKey = "TUBELEARN_JOB_SERVICE_KEY"
	EnvGenerationKey = "TUBELEARN_GENERATION_KEY"
)

var ErrNotFound = errors.New("credential not configured")

// Known reports whether name is a credential the agent uses.
func Known(name string) bool {
	return name == JobServiceKey || name == GenerationKey
}

// Source looks up a credential by key. Absent credentials return ErrNotFound.
type Source interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvSource reads credentials from environment variables.
type EnvSource struct {
	lookup func(string) (string, bool)
}

func NewEnvSource() *EnvSource {
	return &EnvSource{lookup: os.LookupEnv}
}

func (s *EnvSource) Get(_ context.Context, key string) (string, error) {
	var name string
	switch key {
	case JobServiceKey:
		name = EnvJobServiceKey
	case GenerationKey:
		name = EnvGenerationKey
	default:
		return "", fmt.Errorf("%w: unknown key %q", ErrNotFound, key)
	}
	v, ok := s.lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", ErrNotFound
	}
	return strings.TrimSpace(v), nil
}

// StoreSource keeps credentials in the catalog config table so the overlay
// can set them at runtime.
type StoreSource struct {
	repo catalog.Repository
}

func NewStoreSource(repo catalog.Repository) *StoreSource {
	return &StoreSource{repo: repo}
}

func (s *StoreSource) Get(ctx context.Context, key string) (string, error) {
	v, err := s.repo.GetConfig(ctx, catalog.ConfigCredentialPrefix+key)
	if err != nil {
		return "", fmt.Errorf("read credential %s: %w", key, err)
	}
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key. An empty value removes the credential.
func (s *StoreSource) Set(ctx context.Context, key, value string) error {
	if !Known(key) {
		return fmt.Errorf("unknown credential %q", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return s.repo.DeleteConfig(ctx, catalog.ConfigCredentialPrefix+key)
	}
	return s.repo.SetConfig(ctx, catalog.ConfigCredentialPrefix+key, value)
}

// Configured lists the stored credential keys.
func (s *StoreSource) Configured(ctx context.Context) ([]string, error) {
	keys, err := s.repo.ListConfigKeys(ctx, catalog.ConfigCredentialPrefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, catalog.ConfigCredentialPrefix)
	}
	return keys, nil
}

// Chain returns the first credential found across sources.
type Chain []Source

func (c Chain) Get(ctx context.Context, key string) (string, error) {
	for _, s := range c {
		v, err := s.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", ErrNotFound
}

// Lookup resolves key and maps ErrNotFound to an empty string, which
// downstream clients treat as an unconfigured credential.
func Lookup(ctx context.Context, src Source, key string) (string, error) {
	if src == nil {
		return "", nil
	}
	v, err := src.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
