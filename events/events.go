package events

import (
	"context"
	"slices"
	"sync"

	"github.com/Talej/lnurl-cypherapp/logger"
)

type Event struct {
	Event      string      `json:"event"`
	Properties interface{} `json:"properties,omitempty"`
}

type EventSubscriber interface {
	ConsumeEvent(ctx context.Context, event *Event)
}

type EventPublisher interface {
	RegisterSubscriber(subscriber EventSubscriber)
	RemoveSubscriber(subscriber EventSubscriber)
	Publish(event *Event)
}

type eventPublisher struct {
	listeners []EventSubscriber
	mutex     sync.RWMutex
}

func NewEventPublisher() *eventPublisher {
	return &eventPublisher{
		listeners: []EventSubscriber{},
	}
}

func (ep *eventPublisher) RegisterSubscriber(subscriber EventSubscriber) {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()
	ep.listeners = append(ep.listeners, subscriber)
}

func (ep *eventPublisher) RemoveSubscriber(subscriber EventSubscriber) {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()
	for i, listener := range ep.listeners {
		if listener == subscriber {
			ep.listeners = slices.Delete(ep.listeners, i, i+1)
			break
		}
	}
}

func (ep *eventPublisher) Publish(event *Event) {
	ep.mutex.RLock()
	listeners := slices.Clone(ep.listeners)
	ep.mutex.RUnlock()

	logger.Logger.Debug().Str("event", event.Event).Msg("Publishing event")

	for _, listener := range listeners {
		go listener.ConsumeEvent(context.Background(), event)
	}
}
