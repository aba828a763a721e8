// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memcached

import (
	"context"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"

	"github.com/webappgo/session"
)

var _ session.Store = (*memcachedStore)(nil)

// memcachedStore is a Memcached implementation of the session store.
type memcachedStore struct {
	client    *memcache.Client // The client connection
	keyPrefix string           // The prefix to use for keys
	lifetime  time.Duration    // The duration to have no access to a session before being recycled
	encoder   session.Encoder
	decoder   session.Decoder
}

// newMemcachedStore returns a new Memcached session store based on given
// configuration.
func newMemcachedStore(cfg Config) *memcachedStore {
	return &memcachedStore{
		client:    cfg.Client,
		keyPrefix: cfg.KeyPrefix,
		lifetime:  time.Duration(cfg.Lifetime),
		encoder:   cfg.Encoder,
		decoder:   cfg.Decoder,
	}
}

// expiration returns the session lifetime in whole seconds, the unit the
// memcached protocol expects.
func (s *memcachedStore) expiration() int32 {
	return int32(s.lifetime.Seconds())
}

func (s *memcachedStore) Exist(_ context.Context, key string) bool {
	_, err := s.client.Get(s.keyPrefix + key)
	return err == nil
}

func (s *memcachedStore) Read(_ context.Context, key string) (session.Session, error) {
	item, err := s.client.Get(s.keyPrefix + key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return session.NewBaseSession(key, s.encoder), nil
		}
		return nil, errors.Wrap(err, "get")
	}

	data, err := s.decoder(item.Value)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	sess := session.NewBaseSession(key, s.encoder)
	sess.SetData(data)
	return sess, nil
}

func (s *memcachedStore) Destroy(_ context.Context, key string) error {
	err := s.client.Delete(s.keyPrefix + key)
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return errors.Wrap(err, "delete")
	}
	return nil
}

func (s *memcachedStore) Touch(_ context.Context, key string) error {
	err := s.client.Touch(s.keyPrefix+key, s.expiration())
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return errors.Wrap(err, "touch")
	}
	return nil
}

func (s *memcachedStore) Save(_ context.Context, sess session.Session) error {
	binary, err := sess.Encode()
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	err = s.client.Set(&memcache.Item{
		Key:        s.keyPrefix + sess.ID(),
		Value:      binary,
		Expiration: s.expiration(),
	})
	if err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// GC is a no-op, Memcached recycles items through its own TTL mechanism.
func (s *memcachedStore) GC(_ context.Context) error {
	return nil
}

// Config contains options for the Memcached session store.
type Config struct {
	// Client is the Memcached client connection. If not set, a new client will
	// be created based on Servers.
	Client *memcache.Client `yaml:"-"`
	// Servers is the list of Memcached server addresses.
	Servers []string `yaml:"servers"`
	// KeyPrefix is the prefix to use for keys in Memcached. Default is "session:".
	KeyPrefix string `yaml:"key_prefix"`
	// Lifetime is the duration to have no access to a session before being
	// recycled. Default is 3600 seconds.
	Lifetime session.Duration `yaml:"lifetime"`
	// Encoder is the encoder to encode session data. Default is session.GobEncoder.
	Encoder session.Encoder `yaml:"-"`
	// Decoder is the decoder to decode session data. Default is session.GobDecoder.
	Decoder session.Decoder `yaml:"-"`
}

// Initer returns the session.Initer for the Memcached session store.
func Initer() session.Initer {
	return func(_ context.Context, args ...interface{}) (session.Store, error) {
		var cfg *Config
		for i := range args {
			switch v := args[i].(type) {
			case Config:
				cfg = &v
			}
		}

		if cfg == nil {
			return nil, fmt.Errorf("config object with the type '%T' not found", Config{})
		}

		if cfg.Client == nil {
			if len(cfg.Servers) == 0 {
				return nil, errors.New("empty Servers")
			}
			cfg.Client = memcache.New(cfg.Servers...)
		}
		if cfg.KeyPrefix == "" {
			cfg.KeyPrefix = "session:"
		}
		if time.Duration(cfg.Lifetime).Seconds() < 1 {
			cfg.Lifetime = session.Duration(3600 * time.Second)
		}
		if cfg.Encoder == nil {
			cfg.Encoder = session.GobEncoder
		}
		if cfg.Decoder == nil {
			cfg.Decoder = session.GobDecoder
		}

		return newMemcachedStore(*cfg), nil
	}
}

func init() {
	session.Register(session.TypeMemcached, session.Backend{
		Initer: Initer(),
		ParseConfig: func(decode func(interface{}) error) (interface{}, error) {
			var cfg Config
			if err := decode(&cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		},
	})
}
