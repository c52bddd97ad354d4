// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package samplelog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/crucible/pkg/scheduler"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("samplelog: cbor encoder mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("samplelog: cbor decoder mode: %v", err))
	}
}

// CBORRecorder appends samples to a CBOR sequence file. It is safe for
// concurrent use.
type CBORRecorder struct {
	mu     sync.Mutex
	closer io.Closer
	enc    *cbor.Encoder
	closed bool
}

// CreateCBOR creates or truncates path
func CreateCBOR(path string) (*CBORRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &CBORRecorder{closer: f, enc: encMode.NewEncoder(f)}, nil
}

// NewCBORRecorder writes to w
func NewCBORRecorder(w io.Writer) *CBORRecorder {
	return &CBORRecorder{enc: encMode.NewEncoder(w)}
}

// Record appends s
func (r *CBORRecorder) Record(s scheduler.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return os.ErrClosed
	}
	return r.enc.Encode(s)
}

// Close closes the file. Later samples are rejected.
func (r *CBORRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Reader replays samples from a CBOR sequence
type Reader struct {
	closer io.Closer
	dec    *cbor.Decoder
	runID  string
}

// Open opens a file written by CBORRecorder
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{closer: f, dec: decMode.NewDecoder(f)}, nil
}

// NewReader reads from r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: decMode.NewDecoder(r)}
}

// FilterRun skips samples from every other run
func (r *Reader) FilterRun(id string) {
	r.runID = id
}

// Next returns the next sample, or io.EOF at the end of the stream
func (r *Reader) Next() (scheduler.Sample, error) {
	for {
		var s scheduler.Sample
		if err := r.dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return scheduler.Sample{}, io.EOF
			}
			return scheduler.Sample{}, err
		}
		if r.runID == "" || s.RunID == r.runID {
			return s, nil
		}
	}
}

// ReadAll returns every remaining sample
func (r *Reader) ReadAll() ([]scheduler.Sample, error) {
	var out []scheduler.Sample
	for {
		s, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

// Close closes the file, if the reader opened one
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

var _ scheduler.Sink = (*CBORRecorder)(nil)
