package worker

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/repository/postgres"
	"github.com/jwalitptl/ehr-chainview/pkg/logger"
	"github.com/jwalitptl/ehr-chainview/pkg/messaging"
	"github.com/jwalitptl/ehr-chainview/pkg/messaging/redis"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(ctx, channel, message).Error(0)
}

func (m *mockBroker) Close() error {
	return nil
}

var outboxCols = []string{
	"id", "event_type", "payload", "status", "error_message", "created_at",
	"processed_at", "updated_at", "retry_count", "retry_at",
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Minute,
	}
}

func newMockRepo(t *testing.T) (sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	raw, sm, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sm, sqlx.NewDb(raw, "postgres")
}

func expectClaim(sm sqlmock.Sqlmock, id uuid.UUID, retryCount int) {
	now := time.Now()
	sm.ExpectBegin()
	sm.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(outboxCols).
			AddRow(id.String(), model.EventTxConfirmed, []byte(`{"view":"hospitals"}`), "pending", nil, now, nil, now, retryCount, nil))
}

func TestProcessBatchPublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	broker := redis.NewRedisBrokerFromClient(client, nil)
	defer broker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := client.Subscribe(ctx, messaging.ChannelTransactions)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	msgs := sub.Channel()

	sm, db := newMockRepo(t)
	id := uuid.New()
	expectClaim(sm, id, 0)
	sm.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events")).
		WithArgs("processed", nil, id, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sm.ExpectCommit()

	p := NewOutboxProcessor(postgres.NewOutboxRepository(db), broker, testConfig(), logger.Nop(), metrics.NewNop())
	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, sm.ExpectationsWereMet())

	select {
	case msg := <-msgs:
		var got struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, model.EventTxConfirmed, got.Type)
		assert.JSONEq(t, `{"view":"hospitals"}`, string(got.Payload))
	case <-ctx.Done():
		t.Fatal("no message published")
	}
}

func TestProcessBatchSchedulesRetry(t *testing.T) {
	sm, db := newMockRepo(t)
	id := uuid.New()
	expectClaim(sm, id, 0)
	sm.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events")).
		WithArgs("retry", "redis: connection refused", id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sm.ExpectCommit()

	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, messaging.ChannelTransactions, mock.Anything).
		Return(errors.New("redis: connection refused")).Once()

	p := NewOutboxProcessor(postgres.NewOutboxRepository(db), broker, testConfig(), logger.Nop(), metrics.NewNop())
	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, sm.ExpectationsWereMet())
	broker.AssertExpectations(t)
}

func TestProcessBatchGivesUpAfterRetries(t *testing.T) {
	sm, db := newMockRepo(t)
	id := uuid.New()
	expectClaim(sm, id, 2)
	sm.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events")).
		WithArgs("failed", "timeout", id, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sm.ExpectCommit()

	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout"))

	p := NewOutboxProcessor(postgres.NewOutboxRepository(db), broker, testConfig(), logger.Nop(), metrics.NewNop())
	_, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.NoError(t, sm.ExpectationsWereMet())
}

func TestProcessBatchRollsBackOnQueryError(t *testing.T) {
	sm, db := newMockRepo(t)
	sm.ExpectBegin()
	sm.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).WillReturnError(errors.New("deadlock"))
	sm.ExpectRollback()

	p := NewOutboxProcessor(postgres.NewOutboxRepository(db), &mockBroker{}, testConfig(), logger.Nop(), metrics.NewNop())
	_, err := p.ProcessBatch(context.Background())
	assert.ErrorContains(t, err, "deadlock")
	assert.NoError(t, sm.ExpectationsWereMet())
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewOutboxProcessor(nil, nil, OutboxProcessorConfig{}, logger.Nop(), metrics.NewNop())
	})
}
