package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/store"
)

func TestJobStore_Lifecycle(t *testing.T) {
	srv, client := newTestClient(t)
	s := NewJobStore(client, "fileQueue", time.Hour)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, s.SaveJob(ctx, &domain.JobRecord{
		ID:       id,
		Type:     domain.JobTypeUploadSingle,
		Provider: domain.ProviderLocal,
		Status:   domain.JobStatusPending,
	}))
	assert.True(t, srv.Exists("fileQueue:job:"+id.String()))
	assert.Equal(t, time.Hour, srv.TTL("fileQueue:job:"+id.String()))

	rec, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())

	result := json.RawMessage(`{"url":"http://files.test/a.txt"}`)
	require.NoError(t, s.UpdateJobStatus(ctx, id, domain.JobStatusCompleted, result, ""))

	rec, err = s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, rec.Status)
	assert.JSONEq(t, string(result), string(rec.Result))
	assert.Equal(t, domain.JobTypeUploadSingle, rec.Type)
}

func TestJobStore_Errors(t *testing.T) {
	srv, client := newTestClient(t)
	s := NewJobStore(client, "fileQueue", time.Minute)
	ctx := context.Background()

	_, err := s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrJobNotFound)

	// updating an unknown job is a no-op
	assert.NoError(t, s.UpdateJobStatus(ctx, uuid.New(), domain.JobStatusFailed, nil, "boom"))

	rec := &domain.JobRecord{ID: uuid.New(), Status: domain.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, rec))
	assert.ErrorIs(t, s.SaveJob(ctx, rec), store.ErrJobExists)

	srv.FastForward(2 * time.Minute)
	_, err = s.GetJob(ctx, rec.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound, "records expire after the result TTL")
}
