// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package multiplexer

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("multiplexer has been closed")

// A many to one multiplexer
// Yes, channels technically already are that, but there are a bunch of problems with using raw channels as multiplexer:
// If any of the senders tries to send to a closed channel, it explodes
// Thus, wrap it inside a struct that handles that case of a closed channel
// The outbound channel itself is never closed, receivers watch Done instead
type ManyToOne[T any] struct {
	outbound chan T
	done     chan struct{}
	once     sync.Once
}

// NewManyToOne creates a new ManyToOne multiplexer
// buffer is the capacity of the channel all messages are sent to
func NewManyToOne[T any](buffer int) *ManyToOne[T] {
	return &ManyToOne[T]{
		outbound: make(chan T, buffer),
		done:     make(chan struct{}),
	}
}

// Receiver is where all sent messages arrive
func (m *ManyToOne[T]) Receiver() <-chan T {
	return m.outbound
}

// Done is closed once the plexer is closed
func (m *ManyToOne[T]) Done() <-chan struct{} {
	return m.done
}

// Send a message to this many to one plexer
// Blocks until the message is taken, the plexer is closed or ctx is done
func (m *ManyToOne[T]) Send(ctx context.Context, msg T) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.outbound <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Marks the plexer as closed. Safe to call more than once
func (m *ManyToOne[T]) Close() {
	m.once.Do(func() { close(m.done) })
}
