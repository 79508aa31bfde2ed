package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/testutil"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestSQLTxManager_WithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CommitsAndExposesTx", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE tokens").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		err := NewTxManager(db).WithTx(ctx, func(ctx context.Context) error {
			querier := GetTx(ctx, db)
			assert.IsType(t, &sql.Tx{}, querier)
			_, err := querier.ExecContext(ctx, "UPDATE tokens SET revoked_at = now()")
			return err
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_RollsBackOnFailure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := NewTxManager(db).WithTx(ctx, func(ctx context.Context) error {
			return assert.AnError
		})

		assert.Equal(t, assert.AnError, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_RollbackFailureJoined", func(t *testing.T) {
		db, mock := newMockDB(t)
		rollbackErr := errors.New("connection reset")
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(rollbackErr)

		err := NewTxManager(db).WithTx(ctx, func(ctx context.Context) error {
			return assert.AnError
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.ErrorIs(t, err, rollbackErr)
	})

	t.Run("Error_Begin", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin().WillReturnError(assert.AnError)

		called := false
		err := NewTxManager(db).WithTx(ctx, func(ctx context.Context) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.False(t, called)
	})

	t.Run("Error_Commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(assert.AnError)

		err := NewTxManager(db).WithTx(ctx, func(ctx context.Context) error {
			return nil
		})

		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestGetTx_WithoutTransaction(t *testing.T) {
	db, _ := newMockDB(t)
	assert.Equal(t, db, GetTx(context.Background(), db))
}

func TestNopTxManager_WithTx(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey{}, "marker")

	err := NewNopTxManager().WithTx(ctx, func(inner context.Context) error {
		assert.Equal(t, ctx, inner)
		return assert.AnError
	})

	assert.Equal(t, assert.AnError, err)
}

func TestSQLTxManager_Postgres(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	ctx := context.Background()
	txManager := NewTxManager(db)

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		_, err := GetTx(ctx, db).ExecContext(ctx,
			`INSERT INTO token_groups (id, name, created_at) VALUES ($1, $2, now())`,
			"0190a6f0-0000-7000-8000-000000000001", "rolled-back")
		if err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM token_groups`).Scan(&count))
	assert.Equal(t, 0, count)
}
