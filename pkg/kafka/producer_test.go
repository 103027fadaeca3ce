package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/trust-trace-api/pkg/logger"
)

func TestPublishSetsKeyAndHeaders(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "ord-1" {
			return errors.New("unexpected key " + string(key))
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != "event_type" {
			return errors.New("missing event_type header")
		}
		return nil
	})

	p := NewProducerFrom(mock, logger.NewNop())
	require.NoError(t, p.Publish(context.Background(), "orders", "ord-1", []byte(`{}`),
		map[string]string{"event_type": "order_created"}))
	require.NoError(t, p.Close())
}

func TestPublishReportsBrokerFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFrom(mock, logger.NewNop())
	err := p.Publish(context.Background(), "orders", "ord-1", []byte(`{}`), nil)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	p := NewProducerFrom(mocks.NewSyncProducer(t, nil), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, "orders", "k", nil, nil), context.Canceled)
	require.NoError(t, p.Close())
}
