// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memcached

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webappgo/session"
)

func newTestClient(t *testing.T) *memcache.Client {
	if os.Getenv("MEMCACHED_HOST") == "" {
		t.Skip("Skipping testing against Memcached, set MEMCACHED_HOST to enable")
	}

	client := memcache.New(os.ExpandEnv("$MEMCACHED_HOST:$MEMCACHED_PORT"))

	err := client.DeleteAll()
	if err != nil {
		t.Fatalf("Failed to flush test server: %v", err)
	}

	t.Cleanup(func() {
		if t.Failed() {
			t.Log("Items left intact for inspection")
			return
		}

		err := client.DeleteAll()
		if err != nil {
			t.Fatalf("Failed to flush test server: %v", err)
		}
	})
	return client
}

func TestMemcachedStore(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	store, err := Initer()(ctx, Config{
		Client:   client,
		Lifetime: session.Duration(time.Hour),
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

	require.Nil(t, store.Touch(ctx, "login:abc"))
	require.Nil(t, store.GC(ctx))

	require.Nil(t, store.Destroy(ctx, "login:abc"))
	assert.False(t, store.Exist(ctx, "login:abc"))

	// Destroying an absent session is not an error
	require.Nil(t, store.Destroy(ctx, "login:abc"))
}

func TestMemcachedStore_facade(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	f := session.NewFacade(session.FacadeOptions{
		StorageType: session.TypeMemcached,
		BackendConfigs: map[string]interface{}{
			session.TypeMemcached: Config{Client: client},
		},
	})

	id, err := f.Create(ctx, "login", session.Data{"username": "foo"})
	require.Nil(t, err)

	data, err := f.Get(ctx, "login", id)
	require.Nil(t, err)
	assert.Equal(t, session.Data{"username": "foo"}, data)

	require.Nil(t, f.Update(ctx, "login", id, session.Data{"username": "bar"}))
	data, err = f.Get(ctx, "login", id)
	require.Nil(t, err)
	assert.Equal(t, session.Data{"username": "bar"}, data)

	require.Nil(t, f.Delete(ctx, "login", id))
	_, err = f.Get(ctx, "login", id)
	assert.Equal(t, session.ErrSessionNotFound, err)
}
