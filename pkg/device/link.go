// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"sync"

	"github.com/Thermoquad/crucible/pkg/logger"
	"github.com/Thermoquad/crucible/pkg/transport"
)

// Options configure a Link
type Options struct {
	Policy RetryPolicy
	Logger logger.Logger
	Stats  *Statistics
}

// Option configures a Link
type Option func(*Options)

// WithRetryPolicy overrides the default retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Options) {
		o.Policy = p
	}
}

// WithLogger sets the logger used for attempt logging
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithStatistics shares a statistics tracker between links
func WithStatistics(s *Statistics) Option {
	return func(o *Options) {
		o.Stats = s
	}
}

// Link is one logical device on a shared bus. Each attempt of an exchange
// holds the bus for its full write and read.
type Link struct {
	mu   sync.RWMutex
	name string
	bus  *transport.Bus
	opts Options
}

// NewLink creates a link named name on bus
func NewLink(name string, bus *transport.Bus, opts ...Option) *Link {
	o := Options{Policy: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logger.GetLogger()
	}
	if o.Stats == nil {
		o.Stats = NewStatistics()
	}
	return &Link{name: name, bus: bus, opts: o}
}

// Name returns the device name used in logs and errors
func (l *Link) Name() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.name
}

// Rename changes the device name, after an address change for example
func (l *Link) Rename(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.name = name
}

// Statistics returns the link's exchange counters
func (l *Link) Statistics() *Statistics {
	return l.opts.Stats
}

// Exchange runs fn under the retry policy
func (l *Link) Exchange(ctx context.Context, fn func(p transport.Port) error) error {
	name := l.Name()
	err := Retry(ctx, name, l.opts.Policy, l.opts.Logger, func(int) error {
		err := l.bus.Transact(fn)
		l.opts.Stats.Record(err)
		return err
	})
	if err != nil {
		if _, ok := err.(*UnreachableError); ok {
			l.opts.Stats.RecordUnreachable()
		}
	}
	return err
}

// Logger returns the link's logger
func (l *Link) Logger() logger.Logger {
	return l.opts.Logger
}
