// Package timeouts holds the deadlines applied to backend calls made while
// a request is being authenticated.
package timeouts

import (
	"os"
	"sync"
	"time"
)

// Default values, used until Configure or ConfigureFromEnv changes them.
const (
	DefaultPing     = 2 * time.Second
	DefaultLookup   = 5 * time.Second
	DefaultOutbound = 10 * time.Second
)

var (
	mu       sync.RWMutex
	ping     = DefaultPing
	lookup   = DefaultLookup
	outbound = DefaultOutbound
)

// Ping bounds health and readiness checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Lookup bounds one user directory query.
func Lookup() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return lookup
}

// Outbound bounds one HTTP call to an identity provider (token exchange,
// userinfo).
func Outbound() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return outbound
}

// Config holds timeout values. Zero fields keep the current value.
type Config struct {
	Ping     time.Duration
	Lookup   time.Duration
	Outbound time.Duration
}

// Configure sets custom timeout values.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Lookup > 0 {
		lookup = cfg.Lookup
	}
	if cfg.Outbound > 0 {
		outbound = cfg.Outbound
	}
}

// Reset restores all timeouts to defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	lookup = DefaultLookup
	outbound = DefaultOutbound
}

// ConfigureFromEnv reads STRATAAUTH_TIMEOUT_PING, STRATAAUTH_TIMEOUT_LOOKUP
// and STRATAAUTH_TIMEOUT_OUTBOUND. Unparseable or non-positive values are
// ignored. It returns how many values were applied.
func ConfigureFromEnv() int {
	var cfg Config
	applied := 0
	for name, dst := range map[string]*time.Duration{
		"STRATAAUTH_TIMEOUT_PING":     &cfg.Ping,
		"STRATAAUTH_TIMEOUT_LOOKUP":   &cfg.Lookup,
		"STRATAAUTH_TIMEOUT_OUTBOUND": &cfg.Outbound,
	} {
		if d, err := time.ParseDuration(os.Getenv(name)); err == nil && d > 0 {
			*dst = d
			applied++
		}
	}
	Configure(cfg)
	return applied
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Lookup: lookup, Outbound: outbound}
}
