package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/clock"
	"github.com/deskops/helpdesk-sla/internal/config"
	"github.com/deskops/helpdesk-sla/internal/domain"
	"github.com/deskops/helpdesk-sla/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	breaker    *gobreaker.CircuitBreaker
}

// NewNotificationService creates the service. Webhook delivery goes through
// a circuit breaker so a failing endpoint does not slow down event handling.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "escalation-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.logger.Warn("webhook circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketStageChanged, n.handleTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketEvent)
	n.dispatcher.Subscribe(events.EventSLABreached, n.handleSLABreached)
}

func (n *NotificationService) handleTicketEvent(_ context.Context, event events.Event) error {
	n.logger.Info("ticket event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleSLABreached(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.SLABreachedPayload)
	n.logger.Warn("sla breached",
		zap.String("ticket_id", event.TicketID),
		zap.String("notification_id", payload.NotificationID),
		zap.String("recipient_id", payload.RecipientID),
		zap.Time("deadline", payload.Deadline))
	return n.sendWebhook(ctx, event)
}

// sendWebhook posts the event as JSON. Any non-2xx response counts as a
// failure for the breaker.
func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) error {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("deliver webhook for %s: %w", event.Type, err)
	}
	_, err := n.breaker.Execute(func() (interface{}, error) {
		code, _, errs := fiber.Post(url).
			Timeout(n.cfg.WebhookTimeout()).
			JSON(event).
			Bytes()
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
			return nil, fmt.Errorf("webhook responded %d", code)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("deliver webhook for %s: %w", event.Type, err)
	}
	return nil
}

// BreachPublisher turns freshly created escalation notifications into
// sla_breached events.
type BreachPublisher struct {
	dispatcher events.Dispatcher
	clock      clock.Clock
}

// NewBreachPublisher constructs the publisher.
func NewBreachPublisher(dispatcher events.Dispatcher, clk clock.Clock) *BreachPublisher {
	if clk == nil {
		clk = clock.Real()
	}
	return &BreachPublisher{dispatcher: dispatcher, clock: clk}
}

// NotifyBreach publishes the notification.
func (p *BreachPublisher) NotifyBreach(ctx context.Context, n domain.EscalationNotification) {
	publish(ctx, p.dispatcher, p.clock, events.Event{
		Type:     events.EventSLABreached,
		TicketID: n.TicketID,
		Actor:    systemActor(),
		Payload: events.SLABreachedPayload{
			NotificationID: n.ID,
			StatusID:       n.StatusID,
			PolicyID:       n.PolicyID,
			RecipientID:    n.RecipientID,
			Summary:        n.Summary,
			Deadline:       n.Deadline,
		},
	})
}
