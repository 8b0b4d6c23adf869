package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "postpilot/pkg/logx"
)

var errLocked = errors.New("database is locked (5) (SQLITE_BUSY)")

type sleepRecorder struct{ waits []time.Duration }

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func TestRetryPolicyLinearBackoff(t *testing.T) {
	rec := &sleepRecorder{}
	p := RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return errLocked
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.waits)
}

func TestRetryPolicyExhaustion(t *testing.T) {
	rec := &sleepRecorder{}
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, Sleep: rec.sleep}

	calls := 0
	err := p.Do(context.Background(), "insert", func() error {
		calls++
		return errLocked
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageBusy)
	assert.ErrorIs(t, err, errLocked)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.waits, 2)
}

func TestRetryPolicyDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("no such table: posts")
	p := RetryPolicy{Sleep: (&sleepRecorder{}).sleep}

	calls := 0
	err := p.Do(context.Background(), "op", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrStorageBusy)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}

	err := p.Do(ctx, "op", func() error { return errLocked })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(errors.New("database table is locked")))
	assert.True(t, IsBusy(errLocked))
	assert.False(t, IsBusy(errors.New("constraint failed")))
	assert.False(t, IsBusy(nil))
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := NewSQLStore(db, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, Sleep: (&sleepRecorder{}).sleep}, logx.Nop())
	return st, mock
}

func TestMarkPostedRetriesLockedDatabase(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE posts").WithArgs("https://r.example/1", "forum_0").WillReturnError(errLocked)
	mock.ExpectExec("UPDATE posts").WithArgs("https://r.example/1", "forum_0").WillReturnError(errLocked)
	mock.ExpectExec("UPDATE posts").WithArgs("https://r.example/1", "forum_0").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.MarkPosted(context.Background(), "forum_0", "https://r.example/1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSurfacesStorageBusy(t *testing.T) {
	st, mock := newMockStore(t)

	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO posts").WillReturnError(errLocked)
	}

	_, err := st.InsertIfAbsent(context.Background(), Post{ID: "x", Platform: "forum", Text: "t", ScheduledAt: t0})
	assert.ErrorIs(t, err, ErrStorageBusy)
	require.NoError(t, mock.ExpectationsWereMet())
}
