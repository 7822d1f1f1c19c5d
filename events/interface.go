// Package events publishes controller state changes for outside observers.
package events

import (
	"context"
	"time"
)

type Type string

const (
	TypeWake      Type = "wake"
	TypeCommand   Type = "command"
	TypeDirective Type = "directive"
	TypeRelay     Type = "relay"
	TypeExpired   Type = "expired"
)

type Event struct {
	Type      Type      `json:"type"`
	State     string    `json:"state,omitempty"`
	Command   string    `json:"command,omitempty"`
	Directive string    `json:"directive,omitempty"`
	Relay     string    `json:"relay,omitempty"`
	Energized *bool     `json:"energized,omitempty"`
	Score     *float64  `json:"score,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher must not block the caller on the network.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close()
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

func (Nop) Close() {}
