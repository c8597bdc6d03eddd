package blobstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return &Store{db: sqlx.NewDb(db, "sqlmock"), logger: logger, volume: "vol1"}, mock
}

func TestStoreGetFound(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"value"}).AddRow([]byte("payload"))
	mock.ExpectQuery(`SELECT value FROM blobs WHERE volume = \? AND key = \?`).
		WithArgs("vol1", "k1").
		WillReturnRows(rows)

	value, ok, err := store.Get(context.Background(), "k1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT value FROM blobs WHERE volume = \? AND key = \?`).
		WithArgs("vol1", "missing").
		WillReturnError(sql.ErrNoRows)

	value, ok, err := store.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestStoreSet(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO blobs`).
		WithArgs("vol1", "k1", []byte("payload")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Set(context.Background(), "k1", []byte("payload"))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM blobs WHERE volume = \? AND key = \?`).
		WithArgs("vol1", "k1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Delete(context.Background(), "k1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreContains(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM blobs WHERE volume = \? AND key = \?`).
		WithArgs("vol1", "k1").
		WillReturnRows(rows)

	ok, err := store.Contains(context.Background(), "k1")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreCommitIsNoop(t *testing.T) {
	store, _ := newMockStore(t)
	assert.NoError(t, store.Commit(context.Background()))
}
