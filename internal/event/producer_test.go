package event

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxuryfashion/storefront/internal/domain"
	pkgkafka "github.com/luxuryfashion/storefront/pkg/kafka"
	"github.com/luxuryfashion/storefront/pkg/logger"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func newTestProducer(w *fakeWriter) *Producer {
	l := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewProducer(pkgkafka.NewProducerWithWriter(w, nil, l), l)
}

func sampleAccount() *domain.Account {
	return &domain.Account{ID: "acc-1", Email: "alice@example.com", DisplayName: "Alice", Role: domain.RoleUser}
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "ecommerce.account.registered", TopicAccountRegistered)
	assert.Equal(t, "ecommerce.account.provisioned", TopicAccountProvisioned)
}

func TestPublishAccountRegistered(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)
	ctx := logger.WithCorrelationID(context.Background(), "corr-123")

	require.NoError(t, p.PublishAccountRegistered(ctx, sampleAccount()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, TopicAccountRegistered, msg.Topic)
	assert.Equal(t, "acc-1", string(msg.Key))

	ev, err := pkgkafka.UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, TopicAccountRegistered, ev.EventType)
	assert.Equal(t, AggregateTypeAccount, ev.AggregateType)
	assert.Equal(t, SourceStorefront, ev.Source)
	assert.Equal(t, "corr-123", ev.CorrelationID)

	var data AccountRegisteredData
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, AccountRegisteredData{ID: "acc-1", Email: "alice@example.com", DisplayName: "Alice", Role: "USER"}, data)
}

func TestPublishAccountProvisioned(t *testing.T) {
	w := &fakeWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.PublishAccountProvisioned(context.Background(), sampleAccount(), "google"))
	require.Len(t, w.msgs, 1)

	ev, err := pkgkafka.UnmarshalEvent(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Empty(t, ev.CorrelationID)

	var data AccountProvisionedData
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, "google", data.Provider)
	assert.Equal(t, "alice@example.com", data.Email)
}

func TestPublish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := newTestProducer(w)

	err := p.PublishAccountRegistered(context.Background(), sampleAccount())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish ecommerce.account.registered event")
}
