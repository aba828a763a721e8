// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

var _ Store = (*fileStore)(nil)

// fileStore is a file implementation of the session store.
type fileStore struct {
	nowFunc  func() time.Time // The function to return the current time
	lifetime time.Duration    // The duration to have no access to a session before being recycled
	rootDir  string           // The root directory of file session items stored on the local file system
	encoder  Encoder          // The encoder to encode the session data before saving
	decoder  Decoder          // The decoder to decode binary to session data after reading
}

// newFileStore returns a new file session store based on given configuration.
func newFileStore(cfg FileConfig) *fileStore {
	return &fileStore{
		nowFunc:  cfg.nowFunc,
		lifetime: time.Duration(cfg.Lifetime),
		rootDir:  cfg.RootDir,
		encoder:  cfg.Encoder,
		decoder:  cfg.Decoder,
	}
}

// filename returns the computed file name with given key.
func (s *fileStore) filename(key string) string {
	return filepath.Join(s.rootDir, string(key[0]), string(key[1]), key)
}

// isFile returns true if given path exists as a file (i.e. not a directory).
func isFile(path string) bool {
	f, e := os.Stat(path)
	if e != nil {
		return false
	}
	return !f.IsDir()
}

func (s *fileStore) Exist(_ context.Context, key string) bool {
	if len(key) < minimumKeyLength {
		return false
	}

	fi, err := os.Stat(s.filename(key))
	if err != nil || fi.IsDir() {
		return false
	}
	// A session past its lifetime no longer exists even if the GC has not
	// caught up with the file.
	return fi.ModTime().Add(s.lifetime).After(s.nowFunc())
}

func (s *fileStore) Read(_ context.Context, key string) (Session, error) {
	if len(key) < minimumKeyLength {
		return nil, ErrMinimumKeyLength
	}

	filename := s.filename(key)
	if !isFile(filename) {
		err := os.MkdirAll(filepath.Dir(filename), 0700)
		if err != nil {
			return nil, errors.Wrap(err, "create parent directory")
		}

		return NewBaseSession(key, s.encoder), nil
	}

	// Discard existing data if it's expired
	fi, err := os.Stat(filename)
	if err != nil {
		return nil, errors.Wrap(err, "stat file")
	}
	if !fi.ModTime().Add(s.lifetime).After(s.nowFunc()) {
		return NewBaseSession(key, s.encoder), nil
	}

	binary, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	data, err := s.decoder(binary)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	sess := NewBaseSession(key, s.encoder)
	sess.SetData(data)
	return sess, nil
}

func (s *fileStore) Destroy(_ context.Context, key string) error {
	if len(key) < minimumKeyLength {
		return nil
	}
	return os.Remove(s.filename(key))
}

func (s *fileStore) Touch(_ context.Context, key string) error {
	filename := s.filename(key)
	if !isFile(filename) {
		return nil
	}

	err := os.Chtimes(filename, s.nowFunc(), s.nowFunc())
	if err != nil {
		return errors.Wrap(err, "change times")
	}
	return nil
}

func (s *fileStore) Save(_ context.Context, sess Session) error {
	if len(sess.ID()) < minimumKeyLength {
		return ErrMinimumKeyLength
	}

	binary, err := sess.Encode()
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	filename := s.filename(sess.ID())
	err = os.WriteFile(filename, binary, 0600)
	if err != nil {
		return errors.Wrap(err, "write file")
	}

	err = os.Chtimes(filename, s.nowFunc(), s.nowFunc())
	if err != nil {
		return errors.Wrap(err, "change times")
	}
	return nil
}

func (s *fileStore) GC(ctx context.Context) error {
	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.ModTime().Add(s.lifetime).After(s.nowFunc()) {
			return nil
		}
		return os.Remove(path)
	})
	if err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}

// FileConfig contains options for the file session store.
type FileConfig struct {
	// For tests only
	nowFunc func() time.Time

	// Lifetime is the duration to have no access to a session before being
	// recycled. Default is 3600 seconds.
	Lifetime Duration `yaml:"lifetime"`
	// RootDir is the root directory of file session items stored on the local file
	// system. Default is "sessions".
	RootDir string `yaml:"root_dir"`
	// Encoder is the encoder to encode session data. Default is GobEncoder.
	Encoder Encoder `yaml:"-"`
	// Decoder is the decoder to decode session data. Default is GobDecoder.
	Decoder Decoder `yaml:"-"`
}

// FileIniter returns the Initer for the file session store.
func FileIniter() Initer {
	return func(ctx context.Context, args ...interface{}) (Store, error) {
		var cfg *FileConfig
		for i := range args {
			switch v := args[i].(type) {
			case FileConfig:
				cfg = &v
			}
		}

		if cfg == nil {
			cfg = &FileConfig{}
		}
		if cfg.nowFunc == nil {
			cfg.nowFunc = time.Now
		}
		if time.Duration(cfg.Lifetime).Seconds() < 1 {
			cfg.Lifetime = Duration(3600 * time.Second)
		}
		if cfg.RootDir == "" {
			cfg.RootDir = "sessions"
		}
		if cfg.Encoder == nil {
			cfg.Encoder = GobEncoder
		}
		if cfg.Decoder == nil {
			cfg.Decoder = GobDecoder
		}

		return newFileStore(*cfg), nil
	}
}
