// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"sync"
)

// Store is a session store with capabilities of checking, reading, destroying
// and GC sessions.
type Store interface {
	// Exist returns true if the session with given key exists.
	Exist(ctx context.Context, key string) bool
	// Read returns the session with given key. If a session with the key does not
	// exist, a new session with the same key is created and returned.
	Read(ctx context.Context, key string) (Session, error)
	// Destroy deletes session with given key from the session store completely.
	Destroy(ctx context.Context, key string) error
	// Touch updates the expiry time of the session with given key. It does nothing
	// if there is no session associated with the key.
	Touch(ctx context.Context, key string) error
	// Save persists session data to the session store.
	Save(ctx context.Context, session Session) error
	// GC performs a GC operation on the session store.
	GC(ctx context.Context) error
}

// Initer takes arbitrary number of arguments needed for initialization and
// returns an initialized session store.
type Initer func(ctx context.Context, args ...interface{}) (Store, error)

// Recognized storage type identifiers. Each one names a backend that may be
// registered into the registry; a recognized identifier whose backend is not
// linked into the build fails with a LoadError instead of a ConfigError.
const (
	TypeFile      = "file"
	TypeMemory    = "memory"
	TypeMemcached = "memcached"
	TypeMySQL     = "mysql"
	TypePostgres  = "postgres"
	TypeRedis     = "redis"
	TypeMongo     = "mongo"
	TypeSQLite    = "sqlite"
)

// isRecognizedType returns true if given storage type names a backend this
// module knows how to provide.
func isRecognizedType(storageType string) bool {
	switch storageType {
	case TypeFile, TypeMemory, TypeMemcached, TypeMySQL, TypePostgres, TypeRedis, TypeMongo, TypeSQLite:
		return true
	}
	return false
}

// Backend is a registered session store backend: a constructor plus an
// optional decoder for the backend's section of a configuration file.
type Backend struct {
	// Initer constructs the store.
	Initer Initer
	// ParseConfig decodes the backend's configuration section into the typed
	// config object understood by the Initer. The decode argument unmarshals
	// into the given destination. May be nil if the backend takes no file-based
	// configuration.
	ParseConfig func(decode func(interface{}) error) (interface{}, error)
}

var registry = struct {
	sync.RWMutex
	backends map[string]Backend
}{
	backends: make(map[string]Backend),
}

// Register makes a session store backend available under the given storage
// type identifier. It is expected to be called from init functions, once per
// backend; registering twice or with a nil Initer panics.
func Register(storageType string, backend Backend) {
	if backend.Initer == nil {
		panic("session: Register backend with nil Initer")
	}

	registry.Lock()
	defer registry.Unlock()

	if _, dup := registry.backends[storageType]; dup {
		panic("session: Register called twice for backend " + storageType)
	}
	registry.backends[storageType] = backend
}

// lookupBackend returns the backend registered under the given storage type.
func lookupBackend(storageType string) (Backend, bool) {
	registry.RLock()
	defer registry.RUnlock()

	backend, ok := registry.backends[storageType]
	return backend, ok
}

func init() {
	Register(TypeFile, Backend{
		Initer: FileIniter(),
		ParseConfig: func(decode func(interface{}) error) (interface{}, error) {
			var cfg FileConfig
			if err := decode(&cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		},
	})
	Register(TypeMemory, Backend{
		Initer: MemoryIniter(),
		ParseConfig: func(decode func(interface{}) error) (interface{}, error) {
			var cfg MemoryConfig
			if err := decode(&cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		},
	})
}
