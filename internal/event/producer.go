package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/luxuryfashion/storefront/internal/domain"
	pkgkafka "github.com/luxuryfashion/storefront/pkg/kafka"
)

// Kafka topic constants for account domain events.
var (
	TopicAccountRegistered  = pkgkafka.Topic("account", "registered")
	TopicAccountProvisioned = pkgkafka.Topic("account", "provisioned")
)

// AggregateTypeAccount is the aggregate type for account events.
const AggregateTypeAccount = "account"

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// AccountRegisteredData is the payload for account.registered. The
// notification service sends the welcome email from it.
type AccountRegisteredData struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// AccountProvisionedData is the payload for account.provisioned, emitted the
// first time an OAuth identity is seen.
type AccountProvisionedData struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
}

// Publisher is the part of pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes account domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new account event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishAccountRegistered publishes an account.registered event.
func (p *Producer) PublishAccountRegistered(ctx context.Context, account *domain.Account) error {
	data := AccountRegisteredData{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Role:        account.Role,
	}
	return p.publish(ctx, TopicAccountRegistered, account.ID, data)
}

// PublishAccountProvisioned publishes an account.provisioned event.
func (p *Producer) PublishAccountProvisioned(ctx context.Context, account *domain.Account, provider string) error {
	data := AccountProvisionedData{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Provider:    provider,
	}
	return p.publish(ctx, TopicAccountProvisioned, account.ID, data)
}

func (p *Producer) publish(ctx context.Context, topic, accountID string, data any) error {
	agg := pkgkafka.Aggregate{Type: AggregateTypeAccount, ID: accountID}
	event, err := pkgkafka.NewEvent(ctx, topic, agg, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published account event",
		slog.String("topic", topic),
		slog.String("account_id", accountID),
	)
	return nil
}
