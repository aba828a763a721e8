// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned by the facade when the addressed session
// does not exist in the backend store.
var ErrSessionNotFound = errors.New("session: not found")

// ConfigError indicates the session storage configuration is missing or names
// an unrecognized storage type. It is surfaced immediately and never retried.
type ConfigError struct {
	// Setting is the name of the offending setting.
	Setting string
	// Value is the rejected value, empty when the setting is absent.
	Value string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("session: setting %q is not set", e.Setting)
	}
	return fmt.Sprintf("session: setting %q has unrecognized value %q", e.Setting, e.Value)
}

// LoadError indicates the configured backend could not be constructed, either
// because it is not linked into the build or because its Initer failed. It is
// surfaced immediately and never retried.
type LoadError struct {
	// Backend is the storage type identifier of the backend.
	Backend string
	// Err is the construction failure, nil when the backend is not registered.
	Err error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session: backend %q is not registered in this build", e.Backend)
	}
	return fmt.Sprintf("session: initialize backend %q: %v", e.Backend, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
