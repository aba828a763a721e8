// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/webappgo/session"
)

var _ session.Store = (*mysqlStore)(nil)

// mysqlStore is a MySQL implementation of the session store.
type mysqlStore struct {
	nowFunc  func() time.Time // The function to return the current time
	lifetime time.Duration    // The duration to have no access to a session before being recycled
	db       *sql.DB          // The database connection
	table    string           // The database table for storing session data
	encoder  session.Encoder  // The encoder to encode the session data before saving
	decoder  session.Decoder  // The decoder to decode binary to session data after reading
}

// newMySQLStore returns a new MySQL session store based on given configuration.
func newMySQLStore(cfg Config) *mysqlStore {
	return &mysqlStore{
		nowFunc:  cfg.nowFunc,
		lifetime: time.Duration(cfg.Lifetime),
		db:       cfg.DB,
		table:    cfg.Table,
		encoder:  cfg.Encoder,
		decoder:  cfg.Decoder,
	}
}

func quoteWithBackticks(s string) string {
	return "`" + s + "`"
}

func (s *mysqlStore) Exist(ctx context.Context, key string) bool {
	var exists bool
	q := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ? AND expired_at > ?)`,
		quoteWithBackticks(s.table),
		quoteWithBackticks("key"),
	)
	err := s.db.QueryRowContext(ctx, q, key, s.nowFunc().UTC()).Scan(&exists)
	return err == nil && exists
}

func (s *mysqlStore) Read(ctx context.Context, key string) (session.Session, error) {
	var binary []byte
	var expiredAt time.Time
	q := fmt.Sprintf(
		`SELECT data, expired_at FROM %s WHERE %s = ?`,
		quoteWithBackticks(s.table),
		quoteWithBackticks("key"),
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&binary, &expiredAt)
	if err == nil {
		// Discard existing data if it's expired
		if !s.nowFunc().Before(expiredAt) {
			return session.NewBaseSession(key, s.encoder), nil
		}

		data, err := s.decoder(binary)
		if err != nil {
			return nil, errors.Wrap(err, "decode")
		}

		sess := session.NewBaseSession(key, s.encoder)
		sess.SetData(data)
		return sess, nil
	} else if err != sql.ErrNoRows {
		return nil, errors.Wrap(err, "select")
	}

	return session.NewBaseSession(key, s.encoder), nil
}

func (s *mysqlStore) Destroy(ctx context.Context, key string) error {
	q := fmt.Sprintf(
		`DELETE FROM %s WHERE %s = ?`,
		quoteWithBackticks(s.table),
		quoteWithBackticks("key"),
	)
	_, err := s.db.ExecContext(ctx, q, key)
	return err
}

func (s *mysqlStore) Touch(ctx context.Context, key string) error {
	q := fmt.Sprintf(
		`UPDATE %s SET expired_at = ? WHERE %s = ?`,
		quoteWithBackticks(s.table),
		quoteWithBackticks("key"),
	)
	_, err := s.db.ExecContext(ctx, q, s.nowFunc().Add(s.lifetime).UTC(), key)
	if err != nil {
		return errors.Wrap(err, "update")
	}
	return nil
}

func (s *mysqlStore) Save(ctx context.Context, sess session.Session) error {
	binary, err := sess.Encode()
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	q := fmt.Sprintf(`
INSERT INTO %s (%s, data, expired_at)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
	data       = VALUES(data),
	expired_at = VALUES(expired_at)
`,
		quoteWithBackticks(s.table),
		quoteWithBackticks("key"),
	)
	_, err = s.db.ExecContext(ctx, q, sess.ID(), binary, s.nowFunc().Add(s.lifetime).UTC())
	if err != nil {
		return errors.Wrap(err, "upsert")
	}
	return nil
}

func (s *mysqlStore) GC(ctx context.Context) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE expired_at <= ?`, quoteWithBackticks(s.table))
	_, err := s.db.ExecContext(ctx, q, s.nowFunc().UTC())
	return err
}

// Config contains options for the MySQL session store.
type Config struct {
	nowFunc func() time.Time // For tests only

	// DB is a pre-opened database handle to use instead of opening one from DSN.
	// The caller remains responsible for closing it.
	DB *sql.DB `yaml:"-"`
	// Lifetime is the duration to have no access to a session before being
	// recycled. Default is 3600 seconds.
	Lifetime session.Duration `yaml:"lifetime"`
	// DSN is the database source name to the MySQL.
	DSN string `yaml:"dsn"`
	// Table is the table name for storing session data. Default is "sessions".
	Table string `yaml:"table"`
	// Encoder is the encoder to encode session data. Default is session.GobEncoder.
	Encoder session.Encoder `yaml:"-"`
	// Decoder is the decoder to decode session data. Default is session.GobDecoder.
	Decoder session.Decoder `yaml:"-"`
	// InitTable indicates whether to create a default session table when not exists automatically.
	InitTable bool `yaml:"init_table"`
}

// Initer returns the session.Initer for the MySQL session store.
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
		} else if cfg.DSN == "" && cfg.DB == nil {
			return nil, errors.New("empty DSN")
		}

		if cfg.DB == nil {
			db, err := sql.Open("mysql", cfg.DSN)
			if err != nil {
				return nil, errors.Wrap(err, "open database")
			}
			cfg.DB = db
		}

		if cfg.Table == "" {
			cfg.Table = "sessions"
		}

		if cfg.InitTable {
			q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	%[2]s      VARCHAR(255) NOT NULL,
	data       BLOB NOT NULL,
	expired_at DATETIME NOT NULL,
	PRIMARY KEY (%[2]s)
) DEFAULT CHARSET=utf8`,
				quoteWithBackticks(cfg.Table),
				quoteWithBackticks("key"),
			)

			_, err := cfg.DB.ExecContext(ctx, q)
			if err != nil {
				return nil, errors.Wrap(err, "create table")
			}
		}

		if cfg.nowFunc == nil {
			cfg.nowFunc = time.Now
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

		return newMySQLStore(*cfg), nil
	}
}

func init() {
	session.Register(session.TypeMySQL, session.Backend{
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
