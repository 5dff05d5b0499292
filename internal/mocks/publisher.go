package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nufaill/fluffyCare-sub004/internal/rabbitmq"
	"github.com/nufaill/fluffyCare-sub004/internal/telemetry"
)

var _ rabbitmq.Publisher = (*PublisherMock)(nil)

// PublisherMock stands in for the broker publisher in audit and event tests.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// AuditEnvelopes returns every audit envelope handed to Publish, in call order.
func (m *PublisherMock) AuditEnvelopes() []telemetry.AuditEnvelope {
	var out []telemetry.AuditEnvelope
	for _, call := range m.Calls {
		if call.Method != "Publish" || len(call.Arguments) < 3 {
			continue
		}
		if env, ok := call.Arguments.Get(2).(telemetry.AuditEnvelope); ok {
			out = append(out, env)
		}
	}
	return out
}
