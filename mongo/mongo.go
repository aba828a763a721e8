// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/webappgo/session"
)

var _ session.Store = (*mongoStore)(nil)

// mongoStore is a MongoDB implementation of the session store.
type mongoStore struct {
	nowFunc    func() time.Time // The function to return the current time
	lifetime   time.Duration    // The duration to have no access to a session before being recycled
	db         *mongo.Database  // The database connection
	collection string           // The database collection for storing session data
	encoder    session.Encoder  // The encoder to encode the session data before saving
	decoder    session.Decoder  // The decoder to decode binary to session data after reading
}

// newMongoStore returns a new MongoDB session store based on given configuration.
func newMongoStore(cfg Config) *mongoStore {
	return &mongoStore{
		nowFunc:    cfg.nowFunc,
		lifetime:   time.Duration(cfg.Lifetime),
		db:         cfg.DB,
		collection: cfg.Collection,
		encoder:    cfg.Encoder,
		decoder:    cfg.Decoder,
	}
}

func (s *mongoStore) Exist(ctx context.Context, key string) bool {
	err := s.db.Collection(s.collection).FindOne(ctx, bson.M{
		"key":        key,
		"expired_at": bson.M{"$gt": s.nowFunc().UTC()},
	}).Err()
	return err == nil
}

func (s *mongoStore) Read(ctx context.Context, key string) (session.Session, error) {
	var result bson.M
	err := s.db.Collection(s.collection).FindOne(ctx, bson.M{"key": key}).Decode(&result)
	if err == nil {
		binary, ok := result["data"].(primitive.Binary)
		if !ok {
			return nil, errors.New("assert `data` key")
		}

		expiredAt, ok := result["expired_at"].(primitive.DateTime)
		if !ok {
			return nil, errors.New("assert `expired_at` key")
		}

		// Discard existing data if it's expired
		if !s.nowFunc().Before(expiredAt.Time()) {
			return session.NewBaseSession(key, s.encoder), nil
		}

		data, err := s.decoder(binary.Data)
		if err != nil {
			return nil, errors.Wrap(err, "decode")
		}

		sess := session.NewBaseSession(key, s.encoder)
		sess.SetData(data)
		return sess, nil
	} else if err != mongo.ErrNoDocuments {
		return nil, errors.Wrap(err, "select")
	}

	return session.NewBaseSession(key, s.encoder), nil
}

func (s *mongoStore) Destroy(ctx context.Context, key string) error {
	_, err := s.db.Collection(s.collection).DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return errors.Wrap(err, "delete")
	}
	return nil
}

func (s *mongoStore) Touch(ctx context.Context, key string) error {
	_, err := s.db.Collection(s.collection).
		UpdateOne(ctx, bson.M{"key": key}, bson.M{"$set": bson.M{
			"expired_at": s.nowFunc().Add(s.lifetime).UTC(),
		}})
	if err != nil {
		return errors.Wrap(err, "update")
	}
	return nil
}

func (s *mongoStore) Save(ctx context.Context, sess session.Session) error {
	binary, err := sess.Encode()
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	upsert := true
	_, err = s.db.Collection(s.collection).
		UpdateOne(ctx, bson.M{"key": sess.ID()}, bson.M{"$set": bson.M{
			"key":        sess.ID(),
			"data":       binary,
			"expired_at": s.nowFunc().Add(s.lifetime).UTC(),
		}}, &options.UpdateOptions{
			Upsert: &upsert,
		})
	if err != nil {
		return errors.Wrap(err, "upsert")
	}
	return nil
}

func (s *mongoStore) GC(ctx context.Context) error {
	_, err := s.db.Collection(s.collection).DeleteMany(ctx, bson.M{"expired_at": bson.M{"$lte": s.nowFunc().UTC()}})
	if err != nil {
		return errors.Wrap(err, "GC")
	}
	return nil
}

// Options keeps the settings to set up MongoDB client connection.
type Options = options.ClientOptions

// Config contains options for the MongoDB session store.
type Config struct {
	nowFunc func() time.Time // For tests only

	// DB is a pre-opened database handle to use instead of connecting one from
	// DSN or Options. The caller remains responsible for disconnecting its
	// client.
	DB *mongo.Database `yaml:"-"`
	// Options is the settings to set up MongoDB client connection.
	Options *Options `yaml:"-"`
	// DSN is the database source name to the MongoDB.
	DSN string `yaml:"dsn"`
	// Database is the database name for storing session data. Default is
	// "sessions".
	Database string `yaml:"database"`
	// Collection is the collection name for storing session data. Default is
	// "sessions".
	Collection string `yaml:"collection"`
	// Lifetime is the duration to have no access to a session before being
	// recycled. Default is 3600 seconds.
	Lifetime session.Duration `yaml:"lifetime"`
	// Encoder is the encoder to encode session data. Default is session.GobEncoder.
	Encoder session.Encoder `yaml:"-"`
	// Decoder is the decoder to decode session data. Default is session.GobDecoder.
	Decoder session.Decoder `yaml:"-"`
}

// Initer returns the session.Initer for the MongoDB session store.
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
		} else if cfg.DSN == "" && cfg.Options == nil && cfg.DB == nil {
			return nil, errors.New("empty DSN")
		}

		if cfg.Database == "" {
			cfg.Database = "sessions"
		}

		if cfg.DB == nil {
			if cfg.Options == nil {
				cfg.Options = options.Client().ApplyURI(cfg.DSN)
			}
			client, err := mongo.Connect(ctx, cfg.Options)
			if err != nil {
				return nil, errors.Wrap(err, "open database")
			}
			cfg.DB = client.Database(cfg.Database)
		}

		if cfg.nowFunc == nil {
			cfg.nowFunc = time.Now
		}
		if time.Duration(cfg.Lifetime).Seconds() < 1 {
			cfg.Lifetime = session.Duration(3600 * time.Second)
		}
		if cfg.Collection == "" {
			cfg.Collection = "sessions"
		}
		if cfg.Encoder == nil {
			cfg.Encoder = session.GobEncoder
		}
		if cfg.Decoder == nil {
			cfg.Decoder = session.GobDecoder
		}

		return newMongoStore(*cfg), nil
	}
}

func init() {
	session.Register(session.TypeMongo, session.Backend{
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
