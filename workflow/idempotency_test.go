package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/erp_core/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func (e *testEnv) begin(t *testing.T, messageId string) (bool, string, error) {
	t.Helper()
	var (
		skip bool
		ref  string
	)
	err := e.tx(func(tx *gorm.DB) (err error) {
		skip, ref, err = BeginIdempotency(tx, e.biz, "ConfirmDocument", messageId)
		return err
	})
	return skip, ref, err
}

func TestIdempotency_SucceededReplays(t *testing.T) {
	env := newTestEnv(t)

	skip, _, err := env.begin(t, "key-1")
	require.NoError(t, err)
	require.False(t, skip)

	_, _, err = env.begin(t, "key-1")
	require.ErrorIs(t, err, models.ErrIdempotencyInProgress)
	require.Equal(t, models.ErrorKindConflict, models.ClassifyError(err))

	env.run(t, func(tx *gorm.DB) error {
		return MarkIdempotencySucceeded(tx, env.biz, "ConfirmDocument", "key-1", "document:12")
	})
	skip, ref, err := env.begin(t, "key-1")
	require.NoError(t, err)
	require.True(t, skip)
	require.Equal(t, "document:12", ref)

	// keys are scoped per handler
	env.run(t, func(tx *gorm.DB) error {
		skip, _, err := BeginIdempotency(tx, env.biz, "CancelDocument", "key-1")
		require.False(t, skip)
		return err
	})
}

func TestIdempotency_FailedAndStaleRetry(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.begin(t, "key-2")
	require.NoError(t, err)
	env.run(t, func(tx *gorm.DB) error {
		return MarkIdempotencyFailed(tx, env.biz, "ConfirmDocument", "key-2", errors.New("boom"))
	})

	skip, _, err := env.begin(t, "key-2")
	require.NoError(t, err)
	require.False(t, skip)

	var key models.IdempotencyKey
	require.NoError(t, env.db.Where("business_id = ? AND message_id = ?", env.biz, "key-2").First(&key).Error)
	require.Equal(t, models.IdempotencyStatusStarted, key.Status)
	require.Nil(t, key.LastError)

	// a STARTED key left behind by a crashed request is taken over
	require.NoError(t, env.db.Model(&models.IdempotencyKey{}).Where("id = ?", key.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-time.Hour)).Error)
	skip, _, err = env.begin(t, "key-2")
	require.NoError(t, err)
	require.False(t, skip)
}

func TestIdempotency_OnlyOneRetryTakesOverAFailedKey(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.begin(t, "key-3")
	require.NoError(t, err)
	env.run(t, func(tx *gorm.DB) error {
		return MarkIdempotencyFailed(tx, env.biz, "ConfirmDocument", "key-3", errors.New("boom"))
	})

	// both retries read the FAILED row before either writes
	var first, second models.IdempotencyKey
	require.NoError(t, env.db.Where("business_id = ? AND message_id = ?", env.biz, "key-3").First(&first).Error)
	second = first

	require.NoError(t, env.tx(func(tx *gorm.DB) error { return takeOverIdempotency(tx, &first) }))
	err = env.tx(func(tx *gorm.DB) error { return takeOverIdempotency(tx, &second) })
	require.ErrorIs(t, err, models.ErrIdempotencyInProgress)

	// and a later caller sees the winner's run in progress
	_, _, err = env.begin(t, "key-3")
	require.ErrorIs(t, err, models.ErrIdempotencyInProgress)
}

func TestIdempotency_StaleTakeoverLosesToFresherRun(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.begin(t, "key-4")
	require.NoError(t, err)

	var key models.IdempotencyKey
	require.NoError(t, env.db.Where("business_id = ? AND message_id = ?", env.biz, "key-4").First(&key).Error)
	stale := key
	stale.UpdatedAt = time.Now().UTC().Add(-time.Hour)

	// the row itself is fresh, so a takeover based on an old read must not match
	err = env.tx(func(tx *gorm.DB) error { return takeOverIdempotency(tx, &stale) })
	require.ErrorIs(t, err, models.ErrIdempotencyInProgress)
}
