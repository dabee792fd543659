package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []config.LedgerEventMessage
}

func (p *fakePublisher) Publish(_ context.Context, msg config.LedgerEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, msg)
	return "msg-" + msg.EventType, nil
}

func (e *testEnv) postOne(t *testing.T) {
	t.Helper()
	_, err := e.post(models.NewTransaction{Lines: []models.NewTransactionLine{
		{AccountId: e.id(models.AccountCodeCash), Debit: dec("1")},
		{AccountId: e.id(models.AccountCodeSalesRevenue), Credit: dec("1")},
	}})
	require.NoError(t, err)
}

func (e *testEnv) outbox(t *testing.T) []models.LedgerEventRecord {
	t.Helper()
	var rows []models.LedgerEventRecord
	require.NoError(t, e.db.Where("business_id = ?", e.biz).Order("id ASC").Find(&rows).Error)
	return rows
}

func TestOutboxDispatcher_PublishesPending(t *testing.T) {
	env := newTestEnv(t)
	env.postOne(t)

	pub := &fakePublisher{}
	d := NewOutboxDispatcher(env.db, config.GetLogger(), pub)
	require.Equal(t, 1, d.DispatchOnce(context.Background()))
	require.Len(t, pub.sent, 1)
	require.Equal(t, models.EventTransactionPosted, pub.sent[0].EventType)
	require.Equal(t, env.biz, pub.sent[0].BusinessId)

	rows := env.outbox(t)
	require.Len(t, rows, 1)
	require.Equal(t, models.OutboxPublishStatusSent, rows[0].PublishStatus)
	require.Equal(t, "msg-"+models.EventTransactionPosted, *rows[0].PublishedId)
	require.Equal(t, 1, rows[0].PublishAttempts)
	require.Nil(t, rows[0].LockedBy)

	// nothing left to claim
	require.Equal(t, 0, d.DispatchOnce(context.Background()))
	require.Len(t, pub.sent, 1)
}

func TestOutboxDispatcher_FailureBacksOff(t *testing.T) {
	env := newTestEnv(t)
	env.postOne(t)

	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewOutboxDispatcher(env.db, config.GetLogger(), pub)
	d.InitialBackoff = time.Minute
	require.Equal(t, 0, d.DispatchOnce(context.Background()))

	row := env.outbox(t)[0]
	require.Equal(t, models.OutboxPublishStatusFailed, row.PublishStatus)
	require.Equal(t, "broker down", *row.LastPublishError)
	require.NotNil(t, row.NextAttemptAt)
	require.True(t, row.NextAttemptAt.After(time.Now().UTC().Add(30*time.Second)))

	// not eligible again until the backoff passes
	pub.err = nil
	require.Equal(t, 0, d.DispatchOnce(context.Background()))
	require.NoError(t, env.db.Model(&models.LedgerEventRecord{}).Where("id = ?", row.ID).
		Update("next_attempt_at", time.Now().UTC().Add(-time.Second)).Error)
	require.Equal(t, 1, d.DispatchOnce(context.Background()))
	require.Equal(t, 2, env.outbox(t)[0].PublishAttempts)
}

func TestOutboxDispatcher_DeadAfterMaxAttemptsAndRequeue(t *testing.T) {
	env := newTestEnv(t)
	env.postOne(t)

	pub := &fakePublisher{err: errors.New("rejected")}
	d := NewOutboxDispatcher(env.db, config.GetLogger(), pub)
	d.MaxAttempts = 1
	d.DispatchOnce(context.Background())
	require.Equal(t, models.OutboxPublishStatusDead, env.outbox(t)[0].PublishStatus)

	pub.err = nil
	require.Equal(t, 0, d.DispatchOnce(context.Background()))

	env.run(t, func(tx *gorm.DB) error {
		n, err := RequeueDeadEvents(tx, env.biz)
		require.EqualValues(t, 1, n)
		return err
	})
	row := env.outbox(t)[0]
	require.Equal(t, models.OutboxPublishStatusPending, row.PublishStatus)
	require.Equal(t, 0, row.PublishAttempts)

	require.Equal(t, 1, d.DispatchOnce(context.Background()))
	require.Equal(t, models.OutboxPublishStatusSent, env.outbox(t)[0].PublishStatus)
}

func TestOutboxDispatcher_ReclaimsStaleProcessing(t *testing.T) {
	env := newTestEnv(t)
	env.postOne(t)
	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, env.db.Model(&models.LedgerEventRecord{}).Where("business_id = ?", env.biz).
		Updates(map[string]interface{}{"publish_status": models.OutboxPublishStatusProcessing, "locked_at": &stale}).Error)

	d := NewOutboxDispatcher(env.db, config.GetLogger(), &fakePublisher{})
	require.Equal(t, 1, d.DispatchOnce(context.Background()))
}

func TestPublishBackoff(t *testing.T) {
	cases := []struct {
		initial time.Duration
		attempt int
		want    time.Duration
	}{
		{5 * time.Second, 1, 5 * time.Second},
		{5 * time.Second, 2, 10 * time.Second},
		{5 * time.Second, 4, 40 * time.Second},
		{5 * time.Minute, 3, 10 * time.Minute},
		{5 * time.Second, 30, 10 * time.Minute},
	}
	for _, c := range cases {
		require.Equal(t, c.want, publishBackoff(c.initial, c.attempt), "attempt %d", c.attempt)
	}
}

func TestNewEventPublisherFromEnv(t *testing.T) {
	t.Setenv("EVENT_PUBLISHER", "")
	require.IsType(t, LogPublisher{}, NewEventPublisherFromEnv())
	t.Setenv("EVENT_PUBLISHER", "Kafka")
	require.IsType(t, KafkaPublisher{}, NewEventPublisherFromEnv())
	t.Setenv("EVENT_PUBLISHER", "pubsub")
	require.IsType(t, PubSubPublisher{}, NewEventPublisherFromEnv())
	t.Setenv("EVENT_PUBLISHER", "redis")
	t.Setenv("REDIS_EVENT_STREAM", "")
	redisPub, ok := NewEventPublisherFromEnv().(RedisStreamPublisher)
	require.True(t, ok)
	require.Equal(t, "ledger-events", redisPub.Stream)

	_, err := RedisStreamPublisher{}.Publish(context.Background(), config.LedgerEventMessage{})
	require.Error(t, err)
	id, err := LogPublisher{}.Publish(context.Background(), config.LedgerEventMessage{ID: 7})
	require.NoError(t, err)
	require.Equal(t, "log-7", id)
}
