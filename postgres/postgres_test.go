// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webappgo/session"
)

func newTestDB(t *testing.T, ctx context.Context) (testDB *sql.DB, cleanup func() error) {
	if os.Getenv("PGHOST") == "" {
		t.Skip("Skipping testing against Postgres, set PGHOST to enable")
	}

	dsn := os.ExpandEnv("postgres://$PGUSER:$PGPASSWORD@$PGHOST:$PGPORT/?sslmode=$PGSSLMODE")
	db, err := openDB(dsn)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	dbname := "webappgo-test-sessions"
	_, err = db.ExecContext(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, dbname))
	if err != nil {
		t.Fatalf("Failed to drop test database: %v", err)
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE %q`, dbname))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	testDSN := os.ExpandEnv(fmt.Sprintf("postgres://$PGUSER:$PGPASSWORD@$PGHOST:$PGPORT/%s?sslmode=$PGSSLMODE", dbname))
	testDB, err = openDB(testDSN)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		defer func() { _ = db.Close() }()

		if t.Failed() {
			t.Logf("DATABASE %s left intact for inspection", dbname)
			return
		}

		err := testDB.Close()
		if err != nil {
			t.Fatalf("Failed to close test connection: %v", err)
		}

		_, err = db.ExecContext(ctx, fmt.Sprintf(`DROP DATABASE %q`, dbname))
		if err != nil {
			t.Fatalf("Failed to drop test database: %v", err)
		}
	})
	return testDB, func() error {
		if t.Failed() {
			return nil
		}

		_, err = testDB.ExecContext(ctx, `TRUNCATE TABLE sessions`)
		if err != nil {
			return err
		}
		return nil
	}
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	db, cleanup := newTestDB(t, ctx)
	t.Cleanup(func() {
		assert.Nil(t, cleanup())
	})

	now := time.Now()
	store, err := Initer()(ctx, Config{
		nowFunc:   func() time.Time { return now },
		DB:        db,
		Lifetime:  session.Duration(time.Hour),
		InitTable: true,
	})
	require.Nil(t, err)

	sess, err := store.Read(ctx, "login:abc")
	require.Nil(t, err)
	sess.Set("username", "foo")
	require.Nil(t, store.Save(ctx, sess))

	assert.True(t, store.Exist(ctx, "login:abc"))
	assert.False(t, store.Exist(ctx, "login:def"))

	sess, err = store.Read(ctx, "login:abc")
	require.Nil(t, err)
	assert.Equal(t, "foo", sess.Get("username"))

	// Read on an expired session wipes its data
	now = now.Add(2 * time.Hour)
	sess, err = store.Read(ctx, "login:abc")
	require.Nil(t, err)
	assert.Nil(t, sess.Get("username"))
	assert.False(t, store.Exist(ctx, "login:abc"))

	require.Nil(t, store.GC(ctx))
	assert.False(t, store.Exist(ctx, "login:abc"))
}

func TestPostgresStore_Touch(t *testing.T) {
	ctx := context.Background()
	db, cleanup := newTestDB(t, ctx)
	t.Cleanup(func() {
		assert.Nil(t, cleanup())
	})

	now := time.Now()
	store, err := Initer()(ctx, Config{
		nowFunc:   func() time.Time { return now },
		DB:        db,
		Lifetime:  session.Duration(time.Hour),
		InitTable: true,
	})
	require.Nil(t, err)

	sess, err := store.Read(ctx, "login:abc")
	require.Nil(t, err)
	require.Nil(t, store.Save(ctx, sess))

	now = now.Add(2 * time.Hour)
	require.Nil(t, store.Touch(ctx, "login:abc"))

	require.Nil(t, store.GC(ctx))
	assert.True(t, store.Exist(ctx, "login:abc"))

	require.Nil(t, store.Destroy(ctx, "login:abc"))
	assert.False(t, store.Exist(ctx, "login:abc"))
}
