// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/webappgo/session"
)

var _ session.Store = (*redisStore)(nil)

// redisStore is a Redis implementation of the session store.
type redisStore struct {
	client    *redis.Client // The client connection
	keyPrefix string        // The prefix to use for keys
	lifetime  time.Duration // The duration to have no access to a session before being recycled
	encoder   session.Encoder
	decoder   session.Decoder
}

// newRedisStore returns a new Redis session store based on given configuration.
func newRedisStore(cfg Config) *redisStore {
	return &redisStore{
		client:    cfg.Client,
		keyPrefix: cfg.KeyPrefix,
		lifetime:  time.Duration(cfg.Lifetime),
		encoder:   cfg.Encoder,
		decoder:   cfg.Decoder,
	}
}

func (s *redisStore) Exist(ctx context.Context, key string) bool {
	result, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	return err == nil && result == 1
}

func (s *redisStore) Read(ctx context.Context, key string) (session.Session, error) {
	binary, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.NewBaseSession(key, s.encoder), nil
		}
		return nil, errors.Wrap(err, "get")
	}

	data, err := s.decoder([]byte(binary))
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	sess := session.NewBaseSession(key, s.encoder)
	sess.SetData(data)
	return sess, nil
}

func (s *redisStore) Destroy(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}

func (s *redisStore) Touch(ctx context.Context, key string) error {
	err := s.client.Expire(ctx, s.keyPrefix+key, s.lifetime).Err()
	if err != nil {
		return errors.Wrap(err, "expire")
	}
	return nil
}

func (s *redisStore) Save(ctx context.Context, sess session.Session) error {
	binary, err := sess.Encode()
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	err = s.client.SetEx(ctx, s.keyPrefix+sess.ID(), binary, s.lifetime).Err()
	if err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// GC is a no-op, Redis recycles keys through its own TTL mechanism.
func (s *redisStore) GC(_ context.Context) error {
	return nil
}

// Options keeps the settings to set up Redis client connection.
type Options = redis.Options

// Config contains options for the Redis session store.
type Config struct {
	// Client is the Redis Client connection. If not set, a new client will be
	// created based on Options.
	Client *redis.Client `yaml:"-"`
	// Options is the settings to set up Redis client connection.
	Options *Options `yaml:"-"`
	// Addr is the address of the Redis server, used when neither Client nor
	// Options is set.
	Addr string `yaml:"addr"`
	// DB is the Redis database to select, used when neither Client nor Options
	// is set.
	DB int `yaml:"db"`
	// Password is the password of the Redis server, used when neither Client nor
	// Options is set.
	Password string `yaml:"password"`
	// KeyPrefix is the prefix to use for keys in Redis. Default is "session:".
	KeyPrefix string `yaml:"key_prefix"`
	// Lifetime is the duration to have no access to a session before being
	// recycled. Default is 3600 seconds.
	Lifetime session.Duration `yaml:"lifetime"`
	// Encoder is the encoder to encode session data. Default is session.GobEncoder.
	Encoder session.Encoder `yaml:"-"`
	// Decoder is the decoder to decode session data. Default is session.GobDecoder.
	Decoder session.Decoder `yaml:"-"`
}

// Initer returns the session.Initer for the Redis session store.
func Initer() session.Initer {
	return func(ctx context.Context, args ...interface{}) (session.Store, error) {
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
		if cfg.Options == nil && cfg.Client == nil {
			if cfg.Addr == "" {
				return nil, errors.New("empty Options")
			}
			cfg.Options = &Options{
				Addr:     cfg.Addr,
				DB:       cfg.DB,
				Password: cfg.Password,
			}
		}

		if cfg.Client == nil {
			cfg.Client = redis.NewClient(cfg.Options)
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

		return newRedisStore(*cfg), nil
	}
}

func init() {
	session.Register(session.TypeRedis, session.Backend{
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
