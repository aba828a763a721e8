// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML either as a duration
// string ("30m", "1h") or as a bare number of seconds.
type Duration time.Duration

var _ yaml.Unmarshaler = (*Duration)(nil)

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return errors.Wrap(err, "decode duration")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrap(err, "parse duration")
	}
	*d = Duration(v)
	return nil
}

// Config is the session configuration loaded from a YAML document. The
// document carries a single "session" section with the storage type setting
// and one subsection per backend, e.g.:
//
//	session:
//	  storage_type: mysql
//	  id_length: 16
//	  mysql:
//	    dsn: user:pass@tcp(127.0.0.1:3306)/app
//	    table: sessions
//	    init_table: true
//
// Backend subsections are kept as raw nodes and decoded by the selected
// backend itself when the store is constructed.
type Config struct {
	// StorageType is the identifier of the backend to store sessions in.
	StorageType string
	// IDLength is the length of generated session IDs. Default is 16.
	IDLength int

	backends map[string]*yaml.Node
}

// LoadConfig parses the session configuration from given YAML document.
func LoadConfig(data []byte) (*Config, error) {
	var doc struct {
		Session struct {
			StorageType string               `yaml:"storage_type"`
			IDLength    int                  `yaml:"id_length"`
			Backends    map[string]yaml.Node `yaml:",inline"`
		} `yaml:"session"`
	}
	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal")
	}

	backends := make(map[string]*yaml.Node, len(doc.Session.Backends))
	for name := range doc.Session.Backends {
		node := doc.Session.Backends[name]
		backends[name] = &node
	}
	return &Config{
		StorageType: doc.Session.StorageType,
		IDLength:    doc.Session.IDLength,
		backends:    backends,
	}, nil
}

// LoadConfigFile parses the session configuration from the YAML file at given
// path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	return LoadConfig(data)
}

// backendConfig decodes the subsection of the given backend into its typed
// config object. It returns nil when the document has no subsection for the
// backend or the backend does not take file-based configuration.
func (c *Config) backendConfig(storageType string, backend Backend) (interface{}, error) {
	node, ok := c.backends[storageType]
	if !ok || backend.ParseConfig == nil {
		return nil, nil
	}
	return backend.ParseConfig(node.Decode)
}
