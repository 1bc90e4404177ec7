package sender_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/sender"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type mockVariantFinder struct {
	mock.Mock
}

func (m *mockVariantFinder) FindByVariantID(ctx context.Context, variantID string) (*push.Variant, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.Variant), args.Error(1)
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) StoreNewRequest(ctx context.Context, appID, payload, ip, client string) (*push.PushMessageInformation, error) {
	args := m.Called(ctx, appID, payload, ip, client)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.PushMessageInformation), args.Error(1)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*push.MessageWithVariants
	failOn push.VariantType
}

func (e *recordingEmitter) Emit(_ context.Context, msg *push.MessageWithVariants) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if msg.Type == e.failOn {
		return errors.New("queue full")
	}
	e.events = append(e.events, msg)
	return nil
}

func (e *recordingEmitter) byType() map[push.VariantType][]push.Variant {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[push.VariantType][]push.Variant{}
	for _, ev := range e.events {
		out[ev.Type] = ev.Variants
	}
	return out
}

// --- Fixtures ---

var (
	v1 = push.Variant{VariantID: "v1", ApplicationID: "P1", Type: push.VariantAndroid}
	v2 = push.Variant{VariantID: "v2", ApplicationID: "P1", Type: push.VariantAndroid}
	v3 = push.Variant{VariantID: "v3", ApplicationID: "P1", Type: push.VariantIOS}
)

func testApp() *push.PushApplication {
	return &push.PushApplication{ApplicationID: "P1", Variants: []push.Variant{v1, v2, v3}}
}

func testInfo() *push.PushMessageInformation {
	return &push.PushMessageInformation{ID: "info-1", ApplicationID: "P1"}
}

// --- Tests ---

func TestSend_AllVariants(t *testing.T) {
	ctx := context.Background()
	finder := new(mockVariantFinder)
	metrics := new(mockMetrics)
	emitter := &recordingEmitter{}

	msg := &push.PushMessage{Message: push.Message{Alert: "hello"}, IPAddress: "10.0.0.1", ClientIdentifier: "curl"}
	metrics.On("StoreNewRequest", mock.Anything, "P1", msg.StrippedJSON(), "10.0.0.1", "curl").Return(testInfo(), nil).Once()

	svc := sender.NewService(finder, metrics, emitter, newTestLogger())
	info, err := svc.Send(ctx, testApp(), msg)

	require.NoError(t, err)
	assert.Equal(t, "info-1", info.ID)

	byType := emitter.byType()
	require.Len(t, byType, 2)
	assert.Equal(t, []push.Variant{v1, v2}, byType[push.VariantAndroid])
	assert.Equal(t, []push.Variant{v3}, byType[push.VariantIOS])

	for _, ev := range emitter.events {
		assert.Same(t, info, ev.Info, "every event carries the correlation record")
		assert.Same(t, msg, ev.Message)
	}
	metrics.AssertExpectations(t)
	finder.AssertNotCalled(t, "FindByVariantID", mock.Anything, mock.Anything)
}

func TestSend_ExplicitVariantsSkipsUnknown(t *testing.T) {
	ctx := context.Background()
	finder := new(mockVariantFinder)
	metrics := new(mockMetrics)
	emitter := &recordingEmitter{}

	metrics.On("StoreNewRequest", mock.Anything, "P1", mock.Anything, mock.Anything, mock.Anything).Return(testInfo(), nil)
	finder.On("FindByVariantID", mock.Anything, "v3").Return(&v3, nil)
	finder.On("FindByVariantID", mock.Anything, "ghost").Return(nil, nil)
	finder.On("FindByVariantID", mock.Anything, "v1").Return(&v1, nil)

	msg := &push.PushMessage{Criteria: push.Criteria{Variants: []string{"v3", "ghost", "v1", "v3"}}}

	svc := sender.NewService(finder, metrics, emitter, newTestLogger())
	_, err := svc.Send(ctx, testApp(), msg)

	require.NoError(t, err)
	byType := emitter.byType()
	require.Len(t, byType, 2)
	assert.Equal(t, []push.Variant{v1}, byType[push.VariantAndroid])
	assert.Equal(t, []push.Variant{v3}, byType[push.VariantIOS])
	finder.AssertNumberOfCalls(t, "FindByVariantID", 3)
}

func TestSend_ForeignVariantIsSkipped(t *testing.T) {
	ctx := context.Background()
	finder := new(mockVariantFinder)
	metrics := new(mockMetrics)
	emitter := &recordingEmitter{}

	foreign := push.Variant{VariantID: "x1", ApplicationID: "P2", Type: push.VariantIOS}
	metrics.On("StoreNewRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(testInfo(), nil)
	finder.On("FindByVariantID", mock.Anything, "x1").Return(&foreign, nil)

	svc := sender.NewService(finder, metrics, emitter, newTestLogger())
	_, err := svc.Send(ctx, testApp(), &push.PushMessage{Criteria: push.Criteria{Variants: []string{"x1"}}})

	require.NoError(t, err)
	assert.Empty(t, emitter.events)
}

func TestSend_NoTargetsEmitsNothing(t *testing.T) {
	ctx := context.Background()
	finder := new(mockVariantFinder)
	metrics := new(mockMetrics)
	emitter := &recordingEmitter{}

	metrics.On("StoreNewRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(testInfo(), nil)
	finder.On("FindByVariantID", mock.Anything, mock.Anything).Return(nil, nil)

	svc := sender.NewService(finder, metrics, emitter, newTestLogger())

	_, err := svc.Send(ctx, testApp(), &push.PushMessage{Criteria: push.Criteria{Variants: []string{"a", "b"}}})
	require.NoError(t, err)

	_, err = svc.Send(ctx, testApp(), &push.PushMessage{Criteria: push.Criteria{Variants: []string{}}})
	require.NoError(t, err)

	assert.Empty(t, emitter.events)
	metrics.AssertNumberOfCalls(t, "StoreNewRequest", 2)
}

func TestSend_MetricsFailureEmitsNothing(t *testing.T) {
	ctx := context.Background()
	finder := new(mockVariantFinder)
	metrics := new(mockMetrics)
	emitter := &recordingEmitter{}

	metrics.On("StoreNewRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("metrics store unreachable"))

	svc := sender.NewService(finder, metrics, emitter, newTestLogger())
	_, err := svc.Send(ctx, testApp(), &push.PushMessage{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "P1")
	assert.Empty(t, emitter.events)
}

func TestSend_LookupFailureEmitsNothing(t *testing.T) {
	ctx := context.Background()
	finder := new(mockVariantFinder)
	metrics := new(mockMetrics)
	emitter := &recordingEmitter{}

	metrics.On("StoreNewRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(testInfo(), nil)
	finder.On("FindByVariantID", mock.Anything, "v1").Return(&v1, nil)
	finder.On("FindByVariantID", mock.Anything, "v3").Return(nil, errors.New("index unavailable"))

	svc := sender.NewService(finder, metrics, emitter, newTestLogger())
	_, err := svc.Send(ctx, testApp(), &push.PushMessage{Criteria: push.Criteria{Variants: []string{"v1", "v3"}}})

	require.Error(t, err)
	assert.Empty(t, emitter.events, "no partial fan-out after an upstream failure")
}

func TestSend_EmitFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	finder := new(mockVariantFinder)
	metrics := new(mockMetrics)
	emitter := &recordingEmitter{failOn: push.VariantAndroid}

	metrics.On("StoreNewRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(testInfo(), nil)

	svc := sender.NewService(finder, metrics, emitter, newTestLogger())
	_, err := svc.Send(ctx, testApp(), &push.PushMessage{})

	require.NoError(t, err)
	byType := emitter.byType()
	require.Len(t, byType, 1)
	assert.Equal(t, []push.Variant{v3}, byType[push.VariantIOS])
}

func TestSend_SkipLogsCarryRequestContext(t *testing.T) {
	ctx := context.Background()
	finder := new(mockVariantFinder)
	metrics := new(mockMetrics)
	emitter := &recordingEmitter{}

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	metrics.On("StoreNewRequest", mock.Anything, "P1", mock.Anything, mock.Anything, mock.Anything).Return(testInfo(), nil)
	finder.On("FindByVariantID", mock.Anything, "ghost").Return(nil, nil)

	svc := sender.NewService(finder, metrics, emitter, logger)
	_, err := svc.Send(ctx, testApp(), &push.PushMessage{Criteria: push.Criteria{Variants: []string{"ghost"}}})
	require.NoError(t, err)

	var skipLine map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "Skipping unknown variant" {
			skipLine = entry
		}
	}
	require.NotNil(t, skipLine, "skip was not logged")
	assert.Equal(t, "ghost", skipLine["variant_id"])
	assert.Equal(t, "P1", skipLine["application_id"])
	assert.Equal(t, "info-1", skipLine["push_message_id"])
}
