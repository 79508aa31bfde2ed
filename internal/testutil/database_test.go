package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestDSN(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		get    func() string
		def    string
		custom string
	}{
		{
			name:   "Postgres",
			envVar: "TEST_POSTGRES_DSN",
			get:    GetPostgresTestDSN,
			def:    defaultPostgresTestDSN,
			custom: "postgres://ci:ci@db:5432/apikeys?sslmode=disable",
		},
		{
			name:   "MySQL",
			envVar: "TEST_MYSQL_DSN",
			get:    GetMySQLTestDSN,
			def:    defaultMySQLTestDSN,
			custom: "ci:ci@tcp(db:3306)/apikeys?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run("Success_"+tt.name+"Default", func(t *testing.T) {
			t.Setenv(tt.envVar, "")
			assert.Equal(t, tt.def, tt.get())
		})

		t.Run("Success_"+tt.name+"FromEnv", func(t *testing.T) {
			t.Setenv(tt.envVar, tt.custom)
			assert.Equal(t, tt.custom, tt.get())
		})
	}
}

func TestGetMigrationsPath(t *testing.T) {
	for _, dbType := range []string{"postgresql", "mysql"} {
		t.Run("Success_"+dbType, func(t *testing.T) {
			path, err := getMigrationsPath(dbType)
			require.NoError(t, err)
			assert.Equal(t, dbType, filepath.Base(path))

			entries, err := os.ReadDir(path)
			require.NoError(t, err)
			assert.NotEmpty(t, entries)
		})
	}

	t.Run("Error_UnknownType", func(t *testing.T) {
		path, err := getMigrationsPath("sqlite")
		assert.Error(t, err)
		assert.Empty(t, path)
	})

	t.Run("Success_FromNestedDirectory", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		expected, err := getMigrationsPath("postgresql")
		require.NoError(t, err)

		inside := filepath.Join(wd, "testdata", "nested")
		require.NoError(t, os.MkdirAll(inside, 0o750))
		t.Cleanup(func() { _ = os.RemoveAll(filepath.Join(wd, "testdata")) })
		t.Chdir(inside)

		path, err := getMigrationsPath("postgresql")
		require.NoError(t, err)
		assert.Equal(t, expected, path)
	})
}

func TestUUIDToDriverValue(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	t.Run("Success_PostgresKeepsUUID", func(t *testing.T) {
		value, err := uuidToDriverValue(id, "postgres")
		require.NoError(t, err)
		assert.Equal(t, id, value)
	})

	t.Run("Success_MySQLUsesBinary", func(t *testing.T) {
		value, err := uuidToDriverValue(id, "mysql")
		require.NoError(t, err)
		raw, ok := value.([]byte)
		require.True(t, ok)
		assert.Equal(t, id[:], raw)
	})
}

func TestSetupPostgresDB(t *testing.T) {
	db := SetupPostgresDB(t)
	defer TeardownDB(t, db)

	// Verify database connection is working
	err := db.Ping()
	assert.NoError(t, err)

	// Verify database is clean (no tokens should exist)
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM tokens").Scan(&count)
	assert.NoError(t, err)
	assert.Equal(t, 0, count, "database should be clean after setup")
}

func TestSetupMySQLDB(t *testing.T) {
	db := SetupMySQLDB(t)
	defer TeardownDB(t, db)

	// Verify database connection is working
	err := db.Ping()
	assert.NoError(t, err)

	// Verify database is clean (no tokens should exist)
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM tokens").Scan(&count)
	assert.NoError(t, err)
	assert.Equal(t, 0, count, "database should be clean after setup")
}

func TestTeardownDB(t *testing.T) {
	db := SetupPostgresDB(t)
	require.NotNil(t, db)

	// Teardown should close the connection
	TeardownDB(t, db)

	// Attempting to ping after teardown should fail
	err := db.Ping()
	assert.Error(t, err, "database should be closed after teardown")
}

func TestTeardownDBWithNilDB(t *testing.T) {
	// Should not panic with nil database
	assert.NotPanics(t, func() {
		TeardownDB(t, nil)
	})
}

func TestCleanupDB(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		setup   func(t *testing.T) *sql.DB
		cleanup func(t *testing.T, db *sql.DB)
	}{
		{name: "cleanup postgres", driver: "postgres", setup: SetupPostgresDB, cleanup: CleanupPostgresDB},
		{name: "cleanup mysql", driver: "mysql", setup: SetupMySQLDB, cleanup: CleanupMySQLDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := tt.setup(t)
			defer TeardownDB(t, db)

			parentID := CreateTestToken(t, db, tt.driver, "cleanup-parent", nil)
			CreateTestToken(t, db, tt.driver, "cleanup-child", &parentID)
			CreateTestGroup(t, db, tt.driver, "cleanup-group")

			var count int
			require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tokens").Scan(&count))
			assert.Equal(t, 2, count)

			tt.cleanup(t, db)

			require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tokens").Scan(&count))
			assert.Equal(t, 0, count, "cleanup should remove all tokens")
			require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM token_groups").Scan(&count))
			assert.Equal(t, 0, count, "cleanup should remove all groups")
		})
	}
}

func TestCreateTestToken(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		setup  func(t *testing.T) *sql.DB
	}{
		{name: "create token in postgres", driver: "postgres", setup: SetupPostgresDB},
		{name: "create token in mysql", driver: "mysql", setup: SetupMySQLDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := tt.setup(t)
			defer TeardownDB(t, db)

			parentID := CreateTestToken(t, db, tt.driver, "fixture-parent", nil)
			childID := CreateTestToken(t, db, tt.driver, "fixture-child", &parentID)
			assert.NotEqual(t, uuid.Nil, parentID)
			assert.NotEqual(t, parentID, childID)

			var depth int
			err := db.QueryRow("SELECT depth FROM tokens WHERE token_hash = 'fixture-child'").Scan(&depth)
			require.NoError(t, err)
			assert.Equal(t, 1, depth)
		})
	}
}
