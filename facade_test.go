// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Store = (*stubStore)(nil)

// stubStore records the keys and sessions it is handed so tests can verify
// the facade forwards arguments unmodified.
type stubStore struct {
	sessions  map[string]Session
	readKeys  []string
	existKeys []string
}

func newStubStore() *stubStore {
	return &stubStore{sessions: make(map[string]Session)}
}

func (s *stubStore) Exist(_ context.Context, key string) bool {
	s.existKeys = append(s.existKeys, key)
	_, ok := s.sessions[key]
	return ok
}

func (s *stubStore) Read(_ context.Context, key string) (Session, error) {
	s.readKeys = append(s.readKeys, key)
	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}
	return NewBaseSession(key, GobEncoder), nil
}

func (s *stubStore) Destroy(_ context.Context, key string) error {
	delete(s.sessions, key)
	return nil
}

func (s *stubStore) Touch(context.Context, string) error { return nil }

func (s *stubStore) Save(_ context.Context, sess Session) error {
	s.sessions[sess.ID()] = sess
	return nil
}

func (s *stubStore) GC(context.Context) error { return nil }

var (
	stubCurrent *stubStore
	stubInits   int
)

func init() {
	Register("stub", Backend{
		Initer: func(context.Context, ...interface{}) (Store, error) {
			stubInits++
			return stubCurrent, nil
		},
	})
	Register("failing", Backend{
		Initer: func(context.Context, ...interface{}) (Store, error) {
			return nil, errors.New("no backing service")
		},
	})
}

func stubFacade() *Facade {
	stubCurrent = newStubStore()
	stubInits = 0
	return NewFacade(FacadeOptions{StorageType: "stub"})
}

func TestFacade_Create(t *testing.T) {
	ctx := context.Background()
	f := stubFacade()

	id, err := f.Create(ctx, "login", Data{"username": "foo"})
	require.Nil(t, err)
	assert.Len(t, id, 16)

	sess, ok := stubCurrent.sessions["login:"+id]
	require.True(t, ok)
	assert.Equal(t, "foo", sess.Get("username"))
	assert.Equal(t, []string{"login:" + id}, stubCurrent.readKeys)
}

func TestFacade_Get(t *testing.T) {
	ctx := context.Background()
	f := stubFacade()

	id, err := f.Create(ctx, "login", Data{"username": "foo", "visits": 3})
	require.Nil(t, err)

	data, err := f.Get(ctx, "login", id)
	require.Nil(t, err)
	assert.Equal(t, Data{"username": "foo", "visits": 3}, data)

	_, err = f.Get(ctx, "login", "0000000000000000")
	assert.Equal(t, ErrSessionNotFound, err)

	// Same ID under a different name addresses a different session
	_, err = f.Get(ctx, "checkout", id)
	assert.Equal(t, ErrSessionNotFound, err)
}

func TestFacade_Update(t *testing.T) {
	ctx := context.Background()
	f := stubFacade()

	id, err := f.Create(ctx, "login", Data{"username": "foo"})
	require.Nil(t, err)

	err = f.Update(ctx, "login", id, Data{"visits": 4})
	require.Nil(t, err)

	data, err := f.Get(ctx, "login", id)
	require.Nil(t, err)
	assert.Equal(t, Data{"username": "foo", "visits": 4}, data)

	err = f.Update(ctx, "login", "0000000000000000", Data{"visits": 5})
	assert.Equal(t, ErrSessionNotFound, err)
}

func TestFacade_Delete(t *testing.T) {
	ctx := context.Background()
	f := stubFacade()

	id, err := f.Create(ctx, "login", Data{"username": "foo"})
	require.Nil(t, err)

	err = f.Delete(ctx, "login", id)
	require.Nil(t, err)

	_, err = f.Get(ctx, "login", id)
	assert.Equal(t, ErrSessionNotFound, err)

	err = f.Delete(ctx, "login", id)
	assert.Equal(t, ErrSessionNotFound, err)
}

func TestFacade_reusesStore(t *testing.T) {
	ctx := context.Background()
	f := stubFacade()

	id, err := f.Create(ctx, "login", Data{})
	require.Nil(t, err)
	_, err = f.Get(ctx, "login", id)
	require.Nil(t, err)
	err = f.Delete(ctx, "login", id)
	require.Nil(t, err)

	// The backend is constructed once and shared by all operations, stores
	// holding connections must not open a new one per call.
	assert.Equal(t, 1, stubInits)
}

func TestFacade_expiredSession(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	f := NewFacade(FacadeOptions{
		StorageType: TypeFile,
		BackendConfigs: map[string]interface{}{
			TypeFile: FileConfig{
				nowFunc: func() time.Time { return now },
				RootDir: filepath.Join(t.TempDir(), "sessions"),
			},
		},
	})

	id, err := f.Create(ctx, "login", Data{"username": "foo"})
	require.Nil(t, err)

	data, err := f.Get(ctx, "login", id)
	require.Nil(t, err)
	assert.Equal(t, Data{"username": "foo"}, data)

	// Past the lifetime the session is gone even before the GC reclaims it.
	now = now.Add(2 * time.Hour)
	_, err = f.Get(ctx, "login", id)
	assert.Equal(t, ErrSessionNotFound, err)

	err = f.Update(ctx, "login", id, Data{"visits": 1})
	assert.Equal(t, ErrSessionNotFound, err)
}

func TestFacade_storageTypeErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing storage type", func(t *testing.T) {
		f := NewFacade(FacadeOptions{})
		_, err := f.Create(ctx, "login", Data{"username": "foo"})

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, storageTypeSetting, cfgErr.Setting)
		assert.Contains(t, err.Error(), storageTypeSetting)
	})

	t.Run("unrecognized storage type", func(t *testing.T) {
		f := NewFacade(FacadeOptions{StorageType: "bogus"})
		_, err := f.Get(ctx, "login", "0000000000000000")

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "bogus", cfgErr.Value)
		assert.Contains(t, err.Error(), `"bogus"`)
	})

	t.Run("recognized but not registered", func(t *testing.T) {
		// The MySQL backend lives in its own package and is not linked into this
		// test binary.
		f := NewFacade(FacadeOptions{StorageType: TypeMySQL})
		err := f.Delete(ctx, "login", "0000000000000000")

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, TypeMySQL, loadErr.Backend)
	})

	t.Run("initer failure", func(t *testing.T) {
		f := NewFacade(FacadeOptions{StorageType: "failing"})
		_, err := f.Create(ctx, "login", Data{"username": "foo"})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, "failing", loadErr.Backend)
		assert.ErrorContains(t, err, "no backing service")
	})
}

func TestFacade_fileBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFacade(FacadeOptions{
		StorageType: TypeFile,
		BackendConfigs: map[string]interface{}{
			TypeFile: FileConfig{RootDir: filepath.Join(t.TempDir(), "sessions")},
		},
	})

	id, err := f.Create(ctx, "login", Data{"username": "foo"})
	require.Nil(t, err)

	data, err := f.Get(ctx, "login", id)
	require.Nil(t, err)
	assert.Equal(t, Data{"username": "foo"}, data)

	err = f.Update(ctx, "login", id, Data{"username": "bar"})
	require.Nil(t, err)

	data, err = f.Get(ctx, "login", id)
	require.Nil(t, err)
	assert.Equal(t, Data{"username": "bar"}, data)

	err = f.Delete(ctx, "login", id)
	require.Nil(t, err)
	_, err = f.Get(ctx, "login", id)
	assert.Equal(t, ErrSessionNotFound, err)
}
