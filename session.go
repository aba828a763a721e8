// Copyright 2024 WebApp Go. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"bytes"
	"encoding/gob"
	"sync"
)

// Data is the collection of fields stored in a session, keyed by field name.
type Data map[string]interface{}

// Encoder is an encoder to encode session data to binary.
type Encoder func(Data) ([]byte, error)

// Decoder is a decoder to decode binary to session data.
type Decoder func([]byte) (Data, error)

// Session is a named collection of key/value data with an identifier and an
// explicit lifecycle owned by a backend store.
type Session interface {
	// ID returns the session ID.
	ID() string
	// Get returns the value of given field in the session. It returns nil if no
	// such field exists.
	Get(field string) interface{}
	// Set sets the value of given field in the session.
	Set(field string, val interface{})
	// SetFlash sets the flash to be the given value in the session.
	SetFlash(val interface{})
	// Delete deletes a field from the session.
	Delete(field string)
	// Flush wipes out all existing data in the session.
	Flush()
	// Data returns a copy of all fields in the session.
	Data() Data
	// Encode encodes session data to binary.
	Encode() ([]byte, error)
}

var _ Session = (*BaseSession)(nil)

// BaseSession implements basic operations for the session data.
type BaseSession struct {
	id      string       // The session ID
	lock    sync.RWMutex // The mutex to guard accesses to the data
	data    Data         // The map of the session data
	changed bool         // Whether the session has changed
	encoder Encoder      // The encoder to encode the session data to binary
}

// NewBaseSession returns a new BaseSession with given session ID.
func NewBaseSession(id string, encoder Encoder) *BaseSession {
	return &BaseSession{
		id:      id,
		data:    make(Data),
		encoder: encoder,
	}
}

func (s *BaseSession) ID() string {
	return s.id
}

func (s *BaseSession) Get(field string) interface{} {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data[field]
}

func (s *BaseSession) Set(field string, val interface{}) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.changed = true
	s.data[field] = val
}

func (s *BaseSession) SetFlash(val interface{}) {
	s.Set(flashField, val)
}

func (s *BaseSession) Delete(field string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.changed = true
	delete(s.data, field)
}

func (s *BaseSession) Flush() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.changed = true
	s.data = make(Data)
}

func (s *BaseSession) Data() Data {
	s.lock.RLock()
	defer s.lock.RUnlock()

	data := make(Data, len(s.data))
	for field, val := range s.data {
		data[field] = val
	}
	return data
}

// SetData replaces all fields of the session with given data. It is meant for
// stores to populate a session after decoding, not for general use.
func (s *BaseSession) SetData(data Data) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if data == nil {
		data = make(Data)
	}
	s.data = data
}

func (s *BaseSession) Encode() ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.encoder(s.data)
}

// HasChanged returns true if the session data has been mutated since it was
// loaded.
func (s *BaseSession) HasChanged() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.changed
}

// GobEncoder is a session data encoder using Gob.
func GobEncoder(data Data) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(data)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecoder is a session data decoder using Gob.
func GobDecoder(binary []byte) (Data, error) {
	buf := bytes.NewBuffer(binary)
	var data Data
	return data, gob.NewDecoder(buf).Decode(&data)
}

// Flash is anything that gets retrieved and deleted as soon as the next request
// happens.
type Flash interface{}

const flashField = "webappgo::session::flash"
