//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/platform/logger"
	"github.com/phrazzld/filepipe/internal/store"
)

// testDatabaseURLEnv names the database used by integration tests.
const testDatabaseURLEnv = "FILEPIPE_TEST_DATABASE_URL"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseURLEnv)
	}

	ctx := context.Background()
	db, err := Open(ctx, url, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, "up", logger.Discard()))
	return db
}

// withTx runs fn inside a transaction that is always rolled back.
func withTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			t.Logf("rollback failed: %v", err)
		}
	}()

	fn(t, tx)
}

func TestPostgresJobStore_Integration(t *testing.T) {
	db := openTestDB(t)

	withTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := NewPostgresJobStore(db).WithTx(tx)

		id := uuid.New()
		require.NoError(t, s.SaveJob(ctx, &domain.JobRecord{
			ID:        id,
			Type:      domain.JobTypeUploadSingle,
			Provider:  domain.ProviderLocal,
			Status:    domain.JobStatusPending,
			CreatedAt: time.Now().UTC(),
		}))

		result := json.RawMessage(`{"url":"/uploads/a.txt"}`)
		require.NoError(t, s.UpdateJobStatus(ctx, id, domain.JobStatusCompleted, result, ""))

		rec, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, rec.Status)
		assert.JSONEq(t, string(result), string(rec.Result))

		_, err = s.GetJob(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}
