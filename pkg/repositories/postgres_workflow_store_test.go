//go:build integration

package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock_testing "k8s.io/utils/clock/testing"

	"github.com/ekaya-inc/ekaya-etl/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-etl/pkg/models"
	"github.com/ekaya-inc/ekaya-etl/pkg/testhelpers"
)

func TestPostgresWorkflowStore_Lifecycle(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	store := NewPostgresWorkflowStore(testDB.DB, clock_testing.NewFakePassiveClock(baseTime))
	ctx := context.Background()

	id := fmt.Sprintf("etl_pg_%d", time.Now().UnixNano())
	rec := newRecord(id, baseTime)
	require.NoError(t, store.Put(ctx, rec))

	running := rec.Clone()
	running.Status = models.WorkflowStatusExecuting
	require.NoError(t, store.Put(ctx, running))

	done := finish(running, models.WorkflowStatusCompletedWithErrors)
	done.IngestionError = "table ETL_X missing"
	require.NoError(t, store.Put(ctx, done))

	assert.ErrorIs(t, store.Put(ctx, done), apperrors.ErrRecordFinalized)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompletedWithErrors, got.Status)
	assert.Equal(t, "table ETL_X missing", got.IngestionError)

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	listed, err := store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = store.Get(ctx, "etl_pg_missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
