package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/apikeys/internal/outbox/domain"
)

var outboxColumns = []string{
	"id", "event_type", "payload", "status", "retries", "last_error", "processed_at", "created_at", "updated_at",
}

func TestPostgreSQLOutboxEventRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewPostgreSQLOutboxEventRepository(db)
	event := &domain.OutboxEvent{
		ID:        uuid.Must(uuid.NewV7()),
		EventType: "apikey.audit.created",
		Payload:   `{"kind":"created"}`,
		Status:    domain.OutboxEventStatusPending,
	}

	t.Run("Success_InsertsPendingEvent", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO outbox_events").
			WithArgs(event.ID, event.EventType, event.Payload, event.Status, 0, nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_WrapsDatabaseError", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO outbox_events").WillReturnError(errors.New("connection reset"))

		err := repo.Create(context.Background(), event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create outbox event")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLOutboxEventRepository_GetPendingEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewPostgreSQLOutboxEventRepository(db)
	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV7())

	t.Run("Success_ScansRows", func(t *testing.T) {
		rows := sqlmock.NewRows(outboxColumns).
			AddRow(id.String(), "apikey.audit.revoked", `{}`, "pending", 1, "boom", nil, now, now)
		mock.ExpectQuery("SELECT (.+) FROM outbox_events").
			WithArgs(domain.OutboxEventStatusPending, 10).
			WillReturnRows(rows)

		events, err := repo.GetPendingEvents(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, id, events[0].ID)
		assert.Equal(t, domain.OutboxEventStatusPending, events[0].Status)
		assert.Equal(t, 1, events[0].Retries)
		require.NotNil(t, events[0].LastError)
		assert.Equal(t, "boom", *events[0].LastError)
		assert.Nil(t, events[0].ProcessedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_EmptyResult", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM outbox_events").WillReturnRows(sqlmock.NewRows(outboxColumns))

		events, err := repo.GetPendingEvents(context.Background(), 10)
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLOutboxEventRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewPostgreSQLOutboxEventRepository(db)
	event := &domain.OutboxEvent{ID: uuid.Must(uuid.NewV7()), Status: domain.OutboxEventStatusPending}
	event.MarkProcessed(time.Now())

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(domain.OutboxEventStatusProcessed, 0, nil, sqlmock.AnyArg(), event.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLOutboxEventRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewMySQLOutboxEventRepository(db)
	id := uuid.Must(uuid.NewV7())
	idBytes, err := id.MarshalBinary()
	require.NoError(t, err)

	t.Run("Success_CreateEncodesBinaryID", func(t *testing.T) {
		event := &domain.OutboxEvent{
			ID:        id,
			EventType: "apikey.audit.created",
			Payload:   `{}`,
			Status:    domain.OutboxEventStatusPending,
		}
		mock.ExpectExec("INSERT INTO outbox_events").
			WithArgs(idBytes, event.EventType, event.Payload, event.Status, 0, nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_GetPendingEventsDecodesBinaryID", func(t *testing.T) {
		now := time.Now().UTC()
		rows := sqlmock.NewRows(outboxColumns).
			AddRow(idBytes, "apikey.audit.created", `{}`, "pending", 0, nil, nil, now, now)
		mock.ExpectQuery("SELECT (.+) FROM outbox_events").WillReturnRows(rows)

		events, err := repo.GetPendingEvents(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, id, events[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_GetPendingEventsInvalidID", func(t *testing.T) {
		now := time.Now().UTC()
		rows := sqlmock.NewRows(outboxColumns).
			AddRow([]byte{1, 2, 3}, "apikey.audit.created", `{}`, "pending", 0, nil, nil, now, now)
		mock.ExpectQuery("SELECT (.+) FROM outbox_events").WillReturnRows(rows)

		_, err := repo.GetPendingEvents(context.Background(), 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal outbox event id")
	})

	t.Run("Success_UpdateEncodesBinaryID", func(t *testing.T) {
		event := &domain.OutboxEvent{ID: id, Status: domain.OutboxEventStatusPending}
		event.MarkAttemptFailed(errors.New("sink down"), 3)
		mock.ExpectExec("UPDATE outbox_events").
			WithArgs(domain.OutboxEventStatusPending, 1, "sink down", nil, idBytes).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(context.Background(), event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
