package sync

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) MailingLists(ctx context.Context, siteID int) ([]MailingList, error) {
	args := m.Called(ctx, siteID)
	lists, _ := args.Get(0).([]MailingList)
	return lists, args.Error(1)
}

func (m *mockStore) Member(ctx context.Context, memberID int) (Member, error) {
	args := m.Called(ctx, memberID)
	member, _ := args.Get(0).(Member)
	return member, args.Error(1)
}

type mockConnector struct {
	mock.Mock
}

func (m *mockConnector) AddSubscriber(ctx context.Context, listID string, subscriber Subscriber, requireConfirmation bool) error {
	args := m.Called(ctx, listID, subscriber, requireConfirmation)
	return args.Error(0)
}

func (m *mockConnector) RemoveSubscriber(ctx context.Context, listID string, email string) error {
	args := m.Called(ctx, listID, email)
	return args.Error(0)
}

func (m *mockConnector) IsSubscribed(ctx context.Context, listID string, email string) (bool, error) {
	args := m.Called(ctx, listID, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockConnector) Clients(ctx context.Context) ([]Client, error) {
	args := m.Called(ctx)
	clients, _ := args.Get(0).([]Client)
	return clients, args.Error(1)
}

func (m *mockConnector) MailingLists(ctx context.Context, clientID string) ([]APIMailingList, error) {
	args := m.Called(ctx, clientID)
	lists, _ := args.Get(0).([]APIMailingList)
	return lists, args.Error(1)
}

func (m *mockConnector) CustomFields(ctx context.Context, listID string) ([]APICustomField, error) {
	args := m.Called(ctx, listID)
	fields, _ := args.Get(0).([]APICustomField)
	return fields, args.Error(1)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) LogError(ctx context.Context, errContext string, detail ErrorDetail) {
	m.Called(ctx, errContext, detail)
}

func newMockReporter() *mockReporter {
	r := &mockReporter{}
	r.On("LogError", mock.Anything, mock.Anything, mock.Anything).Return()
	return r
}

// reportedDetail returns the detail of the n-th reported error.
func (m *mockReporter) reportedDetail(n int) (string, ErrorDetail) {
	call := m.Calls[n]
	return call.Arguments.String(1), call.Arguments.Get(2).(ErrorDetail)
}
