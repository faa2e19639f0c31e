package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEnvelopeHandler is a mock implementation of shared.EnvelopeHandler
type MockEnvelopeHandler struct {
	mock.Mock
}

func (m *MockEnvelopeHandler) Handle(ctx context.Context, env *shared.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

func (m *MockEnvelopeHandler) Name() string {
	return "mock"
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, envelopeID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, envelopeID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, envelopeID string) (bool, error) {
	args := m.Called(ctx, envelopeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func enabledConfig() shared.IdempotencyConfig {
	cfg := shared.DefaultIdempotencyConfig()
	cfg.Enabled = true
	return cfg
}

func newTestEnvelope() *shared.Envelope {
	return shared.NewEnvelope(topic.NewPerson, shared.Payload{"email": "ada@acme.io"}, shared.ScopePublic)
}

func TestIdempotentHandler_Handle_NewEnvelope(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEnvelopeHandler)
	env := newTestEnvelope()
	mockHandler.On("Handle", mock.Anything, env).Return(nil)

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop(), WithIdempotencyConfig(enabledConfig()))

	require.NoError(t, handler.Handle(context.Background(), env))

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(1), handler.metrics.Processed.Load())
	assert.Equal(t, int64(0), handler.metrics.Duplicate.Load())
}

func TestIdempotentHandler_Handle_Redelivery(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEnvelopeHandler)
	env := newTestEnvelope()
	// Handler should only be called once
	mockHandler.On("Handle", mock.Anything, env).Return(nil).Once()

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop(), WithIdempotencyConfig(enabledConfig()))

	for i := 0; i < 3; i++ {
		require.NoError(t, handler.Handle(context.Background(), env))
	}

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(1), handler.metrics.Processed.Load())
	assert.Equal(t, int64(2), handler.metrics.Duplicate.Load())
}

func TestIdempotentHandler_Handle_HandlerError(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEnvelopeHandler)
	env := newTestEnvelope()
	expectedErr := errors.New("handler error")
	mockHandler.On("Handle", mock.Anything, env).Return(expectedErr)

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop(), WithIdempotencyConfig(enabledConfig()))

	err := handler.Handle(context.Background(), env)
	require.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Equal(t, int64(0), handler.metrics.Processed.Load())
	assert.Equal(t, int64(1), handler.metrics.Failed.Load())
}

func TestIdempotentHandler_Handle_StoreError(t *testing.T) {
	mockStore := new(MockIdempotencyStore)
	mockHandler := new(MockEnvelopeHandler)
	env := newTestEnvelope()

	mockStore.On("MarkProcessed", mock.Anything, env.ID.String()+":mock", mock.Anything).
		Return(false, errors.New("store error"))
	// Handler should still be called even if store fails
	mockHandler.On("Handle", mock.Anything, env).Return(nil)

	handler := NewIdempotentHandler(mockHandler, mockStore, zap.NewNop(), WithIdempotencyConfig(enabledConfig()))

	require.NoError(t, handler.Handle(context.Background(), env))
	mockStore.AssertExpectations(t)
	mockHandler.AssertExpectations(t)
}

func TestIdempotentHandler_Handle_Disabled(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEnvelopeHandler)
	env := newTestEnvelope()
	mockHandler.On("Handle", mock.Anything, env).Return(nil).Times(3)

	// disabled by default
	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop())

	for i := 0; i < 3; i++ {
		require.NoError(t, handler.Handle(context.Background(), env))
	}

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(0), handler.metrics.Processed.Load())
	assert.Equal(t, "mock", handler.Name())
}

func TestWrapDispatchTable(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	var calls int
	h := shared.EnvelopeHandlerFunc{HandlerName: "counter", Fn: func(context.Context, *shared.Envelope) error {
		calls++
		return nil
	}}
	table := NewDispatchTable()
	require.NoError(t, table.Register(h, topic.NewPerson, topic.NewCompany))

	wrapped := WrapDispatchTable(table, store, zap.NewNop(), WithIdempotencyConfig(enabledConfig()))
	require.Len(t, wrapped.Handlers(topic.NewPerson), 1)

	env := newTestEnvelope()
	for i := 0; i < 2; i++ {
		require.NoError(t, wrapped.Handlers(topic.NewPerson)[0].Handle(context.Background(), env))
	}
	assert.Equal(t, 1, calls)
	assert.Empty(t, table.Handlers(topic.NewMeeting))
}
