package events

import (
	"context"
	"log"
)

type Publisher interface {
	PublishPermissionChanged(ctx context.Context, event *PermissionChangedEvent) error

	// Close closes the publisher and releases resources
	Close() error
}

type EventPublisher struct {
	rabbitMQ *RabbitMQClient
	enabled  bool
}

func NewEventPublisher(rabbitURI string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{
			rabbitMQ: nil,
			enabled:  false,
		}, nil
	}

	client, err := NewRabbitMQClient(rabbitURI)
	if err != nil {
		return nil, err
	}

	err = client.setupExchangesAndQueues()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &EventPublisher{
		rabbitMQ: client,
		enabled:  true,
	}, nil
}

// PublishPermissionChanged delivers a merged permission-change event to
// the permission-events exchange. Fire-and-forget: a failure here never
// rolls back the mutation that produced the event.
func (p *EventPublisher) PublishPermissionChanged(ctx context.Context, event *PermissionChangedEvent) error {
	if !p.enabled {
		log.Println("Event publishing is disabled, skipping PermissionChangedEvent")
		return nil
	}

	eventData, err := event.ToJSON()
	if err != nil {
		return err
	}

	err = p.rabbitMQ.PublishEvent("permission-events", string(event.Type), eventData)
	if err != nil {
		return err
	}

	log.Printf("Published %s event for resource %s (affected: %d)", event.Type, event.ResourceID, len(event.Affected))
	return nil
}

func (p *EventPublisher) Close() error {
	if p.rabbitMQ != nil {
		return p.rabbitMQ.Close()
	}
	return nil
}
