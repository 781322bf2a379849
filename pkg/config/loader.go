package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type cache struct {
	mu     sync.RWMutex
	values map[string]any
	onces  map[string]*sync.Once
}

var (
	globalCache = &cache{
		values: make(map[string]any),
		onces:  make(map[string]*sync.Once),
	}

	defaultEnvOnce sync.Once
)

// LoadEnv loads the given .env files into the process environment before any
// config struct is parsed. Missing files are reported as errors; call it only
// for files that must exist.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		// Default .env is optional.
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// MustLoadEnv is LoadEnv that panics on failure.
func MustLoadEnv(paths ...string) {
	if err := LoadEnv(paths...); err != nil {
		panic(err)
	}
}

// Load parses environment variables into v based on its env tags. The default
// .env file is loaded once per process if present. Each config type is parsed
// at most once; later calls for the same type return the cached copy.
func Load[T any](v *T) error {
	defaultEnvOnce.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	typeName := typeNameOf[T]()

	globalCache.mu.RLock()
	if cached, ok := globalCache.values[typeName]; ok {
		*v = cached.(T)
		globalCache.mu.RUnlock()
		return nil
	}
	globalCache.mu.RUnlock()

	globalCache.mu.Lock()
	once, exists := globalCache.onces[typeName]
	if !exists {
		once = new(sync.Once)
		globalCache.onces[typeName] = once
	}
	globalCache.mu.Unlock()

	var err error
	once.Do(func() {
		if parseErr := env.Parse(v); parseErr != nil {
			err = errors.Join(ErrParsingConfig, parseErr)
			return
		}
		globalCache.mu.Lock()
		globalCache.values[typeName] = *v
		globalCache.mu.Unlock()
	})
	if err != nil {
		return err
	}

	globalCache.mu.RLock()
	defer globalCache.mu.RUnlock()
	if cached, ok := globalCache.values[typeName]; ok {
		*v = cached.(T)
		return nil
	}
	// The first Load of this type failed inside once.Do; nothing was cached.
	return ErrConfigNotLoaded
}

// MustLoad is Load that panics on failure. Use it for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// ResetCache forgets every cached config type. Intended for tests that mutate
// the process environment between loads.
func ResetCache() {
	globalCache.mu.Lock()
	defer globalCache.mu.Unlock()
	globalCache.values = make(map[string]any)
	globalCache.onces = make(map[string]*sync.Once)
}

func typeNameOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
