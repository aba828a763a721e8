// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// storageTypeSetting is the configuration setting naming the backend.
const storageTypeSetting = "session.storage_type"

// FacadeOptions contains options for constructing a Facade.
type FacadeOptions struct {
	// StorageType is the identifier of the backend to store sessions in.
	// Defaults to the storage type of Config when unset.
	StorageType string
	// IDLength is the length of generated session IDs. Default is 16.
	IDLength int
	// BackendConfigs maps storage types to the typed config objects passed to
	// the backend's Initer. Entries here take precedence over the backend
	// subsections of Config.
	BackendConfigs map[string]interface{}
	// Config is a configuration document loaded with LoadConfig. Optional.
	Config *Config
}

// Facade forwards session lifecycle operations to the backend store named by
// the configured storage type. The backend is constructed on the first
// operation and reused by all subsequent ones, so stores holding database
// connections do not open a new handle per call.
type Facade struct {
	storageType string
	idLength    int
	configs     map[string]interface{}
	config      *Config

	lock  sync.Mutex // The mutex to guard accesses to the store
	store Store      // The constructed backend store, nil until first use
}

// NewFacade returns a new Facade with given options. An invalid storage type
// is not rejected here; each operation reports it as a ConfigError.
func NewFacade(opts FacadeOptions) *Facade {
	if opts.Config != nil {
		if opts.StorageType == "" {
			opts.StorageType = opts.Config.StorageType
		}
		if opts.IDLength <= 0 {
			opts.IDLength = opts.Config.IDLength
		}
	}
	if opts.IDLength < minimumKeyLength {
		opts.IDLength = 16
	}
	if opts.BackendConfigs == nil {
		opts.BackendConfigs = make(map[string]interface{})
	}
	return &Facade{
		storageType: opts.StorageType,
		idLength:    opts.IDLength,
		configs:     opts.BackendConfigs,
		config:      opts.Config,
	}
}

// resolve maps the configured storage type to a constructed backend store.
// The store is constructed once and reused by later operations; failures are
// not cached and resolution is retried on the next call.
func (f *Facade) resolve(ctx context.Context) (Store, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.store != nil {
		return f.store, nil
	}

	if f.storageType == "" {
		return nil, &ConfigError{Setting: storageTypeSetting}
	}

	backend, ok := lookupBackend(f.storageType)
	if !ok {
		if isRecognizedType(f.storageType) {
			return nil, &LoadError{Backend: f.storageType}
		}
		return nil, &ConfigError{Setting: storageTypeSetting, Value: f.storageType}
	}

	var args []interface{}
	if cfg, ok := f.configs[f.storageType]; ok {
		args = append(args, cfg)
	} else if f.config != nil {
		cfg, err := f.config.backendConfig(f.storageType, backend)
		if err != nil {
			return nil, &LoadError{Backend: f.storageType, Err: errors.Wrap(err, "decode config")}
		}
		if cfg != nil {
			args = append(args, cfg)
		}
	}

	store, err := backend.Initer(ctx, args...)
	if err != nil {
		return nil, &LoadError{Backend: f.storageType, Err: err}
	}
	f.store = store
	return store, nil
}

// sessionKey composes the storage key of a session from its name and ID.
func sessionKey(name, id string) string {
	if name == "" {
		return id
	}
	return name + ":" + id
}

// Create stores a new session under given name with the given fields and
// returns its generated ID.
func (f *Facade) Create(ctx context.Context, name string, data Data) (string, error) {
	store, err := f.resolve(ctx)
	if err != nil {
		return "", err
	}

	id, err := randomChars(f.idLength)
	if err != nil {
		return "", errors.Wrap(err, "new ID")
	}

	sess, err := store.Read(ctx, sessionKey(name, id))
	if err != nil {
		return "", errors.Wrap(err, "read")
	}
	for field, val := range data {
		sess.Set(field, val)
	}

	err = store.Save(ctx, sess)
	if err != nil {
		return "", errors.Wrap(err, "save")
	}
	return id, nil
}

// Get returns all fields of the session with given name and ID. It returns
// ErrSessionNotFound if no such session exists.
func (f *Facade) Get(ctx context.Context, name, id string) (Data, error) {
	store, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}

	key := sessionKey(name, id)
	if !store.Exist(ctx, key) {
		return nil, ErrSessionNotFound
	}

	sess, err := store.Read(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return sess.Data(), nil
}

// Update merges the given fields into the session with given name and ID.
// Fields absent from data are left untouched. It returns ErrSessionNotFound
// if no such session exists.
func (f *Facade) Update(ctx context.Context, name, id string, data Data) error {
	store, err := f.resolve(ctx)
	if err != nil {
		return err
	}

	key := sessionKey(name, id)
	if !store.Exist(ctx, key) {
		return ErrSessionNotFound
	}

	sess, err := store.Read(ctx, key)
	if err != nil {
		return errors.Wrap(err, "read")
	}
	for field, val := range data {
		sess.Set(field, val)
	}

	err = store.Save(ctx, sess)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	return nil
}

// Delete removes the session with given name and ID from the backend store.
// It returns ErrSessionNotFound if no such session exists.
func (f *Facade) Delete(ctx context.Context, name, id string) error {
	store, err := f.resolve(ctx)
	if err != nil {
		return err
	}

	key := sessionKey(name, id)
	if !store.Exist(ctx, key) {
		return ErrSessionNotFound
	}
	return store.Destroy(ctx, key)
}
