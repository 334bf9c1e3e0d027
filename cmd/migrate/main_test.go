package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("002_index.sql", "CREATE INDEX b ON contacts (email);")
	write("001_column.sql", "ALTER TABLE contacts ADD COLUMN phone TEXT;")
	write("003_empty.sql", "  \n")
	write("notes.txt", "ignored")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE contacts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX b").WillReturnError(errors.New("relation exists"))
	mock.ExpectRollback()

	ok, failed, err := applyDir(context.Background(), db, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDir_MissingDir(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, _, err = applyDir(context.Background(), db, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
