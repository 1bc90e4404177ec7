package fcm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-unifiedpush-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allSuccess(n int) *messaging.BatchResponse {
	br := &messaging.BatchResponse{SuccessCount: n}
	for i := 0; i < n; i++ {
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true, MessageID: fmt.Sprintf("msg-%d", i)})
	}
	return br
}

func TestFCMDispatch_Lifecycle(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()
	msg := &push.PushMessage{Message: push.Message{Alert: "Test", Badge: 3, Data: map[string]string{"id": "1"}}}

	t.Run("Happy Path - All Success", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := []string{"token-1", "token-2"}

		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return len(m.Tokens) == 2 && m.Notification.Body == "Test" && m.Data["id"] == "1" && m.Data["badge"] == "3"
		})).Return(allSuccess(2), nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, tokens, msg)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "success:2")
		mockClient.AssertExpectations(t)
	})

	t.Run("No tokens skips the call", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		receipt, _, err := dispatcher.Dispatch(ctx, nil, msg)

		require.NoError(t, err)
		assert.Contains(t, receipt, "skipped")
		mockClient.AssertNotCalled(t, "SendEachForMulticast", mock.Anything, mock.Anything)
	})

	t.Run("Large token lists are batched", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := make([]string, 501)
		for i := range tokens {
			tokens[i] = fmt.Sprintf("token-%d", i)
		}

		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return len(m.Tokens) == 500
		})).Return(allSuccess(500), nil).Once()
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return len(m.Tokens) == 1
		})).Return(allSuccess(1), nil).Once()

		receipt, _, err := dispatcher.Dispatch(ctx, tokens, msg)

		require.NoError(t, err)
		assert.Contains(t, receipt, "success:501")
		mockClient.AssertExpectations(t)
	})

	t.Run("Transport Failure (Retryable)", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(nil, errors.New("network down"))

		_, _, err := dispatcher.Dispatch(ctx, []string{"token-1"}, msg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
	})

	t.Run("Per-token failure is retryable", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		br := &messaging.BatchResponse{
			SuccessCount: 1,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true},
				{Success: false, Error: errors.New("unavailable")},
			},
		}
		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(br, nil)

		_, _, err := dispatcher.Dispatch(ctx, []string{"token-1", "token-2"}, msg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 retryable")
	})
}
