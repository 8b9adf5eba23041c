// Package mocks provides testify mock implementations of the engine's
// collaborator interfaces.
package mocks

import (
	"context"

	"github.com/leadline/leadline/pkg/transport"
	"github.com/stretchr/testify/mock"
)

// MockMailer is a mock implementation of the transport.Mailer interface.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, email transport.Email) (transport.DeliveryInfo, error) {
	args := m.Called(ctx, email)

	info, _ := args.Get(0).(transport.DeliveryInfo)

	return info, args.Error(1)
}

// MockSMSSender is a mock implementation of the transport.SMSSender interface.
type MockSMSSender struct {
	mock.Mock
}

func (m *MockSMSSender) Send(ctx context.Context, sms transport.SMS) (transport.SMSResult, error) {
	args := m.Called(ctx, sms)

	result, _ := args.Get(0).(transport.SMSResult)

	return result, args.Error(1)
}
