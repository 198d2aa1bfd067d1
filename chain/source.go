// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"io"
)

var _ Source = (*ChannelSource)(nil)

// Source is an ordered stream of chain notifications.
//
// Next blocks until the next notification is available. It returns io.EOF
// once the stream is exhausted; any other error is a stream failure.
// Consumers only call Next again after the previous notification has been
// fully handled.
type Source interface {
	Next(ctx context.Context) (*Notification, error)
}

// ChannelSource adapts a channel of notifications to a Source. Closing the
// channel ends the stream.
type ChannelSource struct {
	ch <-chan *Notification
}

func NewChannelSource(ch <-chan *Notification) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) Next(ctx context.Context) (*Notification, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case n, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return n, nil
	}
}

// SliceSource replays a fixed list of notifications.
type SliceSource struct {
	notifications []*Notification
}

func NewSliceSource(notifications ...*Notification) *SliceSource {
	return &SliceSource{notifications: notifications}
}

func (s *SliceSource) Next(ctx context.Context) (*Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.notifications) == 0 {
		return nil, io.EOF
	}
	n := s.notifications[0]
	s.notifications = s.notifications[1:]
	return n, nil
}
