package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"permission-service/internal/models"
)

// Consumer defines the interface for event consumption
type Consumer interface {
	Start() error
	Close() error
}

// CacheInvalidator drops resolved-permission entries for mutated
// resources. Invalidation happens inline when a message is handled,
// never deferred behind the coalescing window.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, resourceID string) error
	InvalidateMany(ctx context.Context, resourceIDs []string) error
}

// ChangeSubmitter accepts raw change events for coalesced delivery.
type ChangeSubmitter interface {
	Submit(event *PermissionChangedEvent)
}

// ResourceIndex expands a container mutation into the document ids it
// affects.
type ResourceIndex interface {
	FindDocumentIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error)
	FindDocumentIDsBySubspace(ctx context.Context, subspaceID string) ([]string, error)
}

// EventConsumer ingests permission-relevant mutations performed by
// other services from the resource-events exchange.
type EventConsumer struct {
	conn      *amqp091.Connection
	channel   *amqp091.Channel
	queueName string
	cache     CacheInvalidator
	coalescer ChangeSubmitter
	resources ResourceIndex
	shutdown  chan struct{}
	wg        sync.WaitGroup
	enabled   bool
}

func NewEventConsumer(rabbitURI string, cache CacheInvalidator, coalescer ChangeSubmitter, resources ResourceIndex) (*EventConsumer, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event consumption is disabled")
		return &EventConsumer{
			cache:     cache,
			coalescer: coalescer,
			resources: resources,
			shutdown:  make(chan struct{}),
			enabled:   false,
		}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &EventConsumer{
		conn:      conn,
		channel:   channel,
		queueName: "permission-service-events",
		cache:     cache,
		coalescer: coalescer,
		resources: resources,
		shutdown:  make(chan struct{}),
		enabled:   true,
	}, nil
}

func (c *EventConsumer) Start() error {
	if !c.enabled {
		log.Println("Event consumption is disabled, not starting consumer")
		return nil
	}

	err := c.channel.ExchangeDeclare(
		"resource-events", // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare resource-events exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	routingKeys := []string{
		"workspace.member.#",
		"subspace.member.#",
		"group.member.#",
		"document.grant.#",
	}
	for _, key := range routingKeys {
		err = c.channel.QueueBind(
			c.queueName,
			key,
			"resource-events",
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue for %s: %w", key, err)
		}
	}

	deliveries, err := c.channel.Consume(
		c.queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.wg.Add(1)
	go c.consumeLoop(deliveries)

	log.Printf("Event consumer started on queue %s", c.queueName)
	return nil
}

func (c *EventConsumer) consumeLoop(deliveries <-chan amqp091.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-c.shutdown:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				log.Println("Delivery channel closed, consumer stopping")
				return
			}
			if err := c.handleDelivery(delivery); err != nil {
				log.Printf("Error handling %s message: %v", delivery.RoutingKey, err)
				delivery.Nack(false, false)
				continue
			}
			delivery.Ack(false)
		}
	}
}

// resourceMutationMessage is the shape other services publish on
// resource-events. Affected is optional; container mutations are
// expanded to their documents here.
type resourceMutationMessage struct {
	ActorID      string             `json:"actor_id"`
	ResourceID   string             `json:"resource_id"`
	ResourceType string             `json:"resource_type"`
	WorkspaceID  string             `json:"workspace_id,omitempty"`
	SubjectType  string             `json:"subject_type,omitempty"`
	SubjectID    string             `json:"subject_id,omitempty"`
	Level        string             `json:"level,omitempty"`
	Affected     []AffectedResource `json:"affected,omitempty"`
}

func (c *EventConsumer) handleDelivery(delivery amqp091.Delivery) error {
	var msg resourceMutationMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.ResourceID == "" || msg.ResourceType == "" {
		return fmt.Errorf("message missing resource identity")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	affectedIDs, err := c.affectedResourceIDs(ctx, &msg)
	if err != nil {
		return err
	}

	// Invalidation is synchronous with message handling; only the
	// outbound notification is coalesced.
	if err := c.cache.InvalidateMany(ctx, affectedIDs); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	event := NewPermissionChangedEvent(PermissionGranted, msg.ActorID, msg.ResourceID, msg.ResourceType)
	event.WorkspaceID = msg.WorkspaceID
	event.SubjectType = msg.SubjectType
	event.SubjectID = msg.SubjectID
	event.Level = msg.Level
	event.Affected = msg.Affected
	c.coalescer.Submit(event)

	return nil
}

func (c *EventConsumer) affectedResourceIDs(ctx context.Context, msg *resourceMutationMessage) ([]string, error) {
	ids := []string{msg.ResourceID}

	switch msg.ResourceType {
	case models.ResourceWorkspace:
		docIDs, err := c.resources.FindDocumentIDsByWorkspace(ctx, msg.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to expand workspace mutation: %w", err)
		}
		ids = append(ids, docIDs...)
	case models.ResourceSubspace:
		docIDs, err := c.resources.FindDocumentIDsBySubspace(ctx, msg.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to expand subspace mutation: %w", err)
		}
		ids = append(ids, docIDs...)
	}

	for _, affected := range msg.Affected {
		ids = append(ids, affected.ID)
	}
	return ids, nil
}

func (c *EventConsumer) Close() error {
	close(c.shutdown)
	c.wg.Wait()

	var err error
	if c.channel != nil {
		err = c.channel.Close()
	}
	if c.conn != nil {
		err = c.conn.Close()
	}
	return err
}
