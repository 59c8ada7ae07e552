// Package config is the process-level composition root: it reads
// environment variables into one Config and builds each package's own
// options struct from it, following the teacher's pattern of reading
// deployment knobs from os.Getenv in main (cmd/zmux-server/main.go's
// os.Getenv("ENV") dev/prod switch) rather than a config file or flag
// parser.
package config

import (
	"os"
	"strconv"

	"github.com/edirooss/crdtstore/pkg/eventpub"
	"github.com/edirooss/crdtstore/pkg/store"
)

// Config holds every environment-derived setting a crdtstore binary needs.
type Config struct {
	// ListenAddr is the admin HTTP server's bind address.
	ListenAddr string
	// Dev enables the admin surface's permissive CORS policy, mirroring the
	// teacher's os.Getenv("ENV") == "dev" switch.
	Dev bool

	// RedisAddr and RedisDB configure the event publisher's Redis client.
	RedisAddr string
	RedisDB   int
	// EventPubChannel is the Redis Pub/Sub channel committed events publish
	// on. Empty means eventpub.Options' own default.
	EventPubChannel string

	// FidLockCount sizes the merge engine's striped lock pool.
	FidLockCount int
}

func (c *Config) setDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8080"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "127.0.0.1:6379"
	}
	if c.FidLockCount <= 0 {
		c.FidLockCount = 4
	}
}

// Load reads Config from the process environment, filling in defaults for
// anything unset.
func Load() *Config {
	c := &Config{
		ListenAddr:      os.Getenv("CRDTSTORE_LISTEN_ADDR"),
		Dev:             os.Getenv("ENV") == "dev",
		RedisAddr:       os.Getenv("CRDTSTORE_REDIS_ADDR"),
		RedisDB:         atoiOr(os.Getenv("CRDTSTORE_REDIS_DB"), 0),
		EventPubChannel: os.Getenv("CRDTSTORE_EVENT_CHANNEL"),
		FidLockCount:    atoiOr(os.Getenv("CRDTSTORE_FID_LOCK_COUNT"), 0),
	}
	c.setDefaults()
	return c
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// StoreOptions builds the Merge Engine's options from Config.
func (c *Config) StoreOptions() store.Options {
	return store.Options{FidLockCount: c.FidLockCount}
}

// EventPubOptions builds the Redis publisher's options from Config.
func (c *Config) EventPubOptions() eventpub.Options {
	return eventpub.Options{Addr: c.RedisAddr, DB: c.RedisDB, Channel: c.EventPubChannel}
}
