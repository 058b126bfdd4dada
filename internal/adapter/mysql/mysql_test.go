package mysql_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	drv "github.com/go-sql-driver/mysql"
	"github.com/guillermoBallester/querygate/internal/adapter/mysql"
	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

var testStatements = []string{
	`CREATE TABLE student (
		id   INT PRIMARY KEY,
		name VARCHAR(100) NOT NULL
	) COMMENT = 'Enrolled students'`,
	`CREATE TABLE course (
		id    INT PRIMARY KEY,
		title VARCHAR(200) NOT NULL
	)`,
	`CREATE TABLE score (
		id         INT PRIMARY KEY,
		student_id INT NOT NULL,
		points     INT NOT NULL
	)`,
	`INSERT INTO student (id, name) VALUES (1, 'Ada'), (2, 'Grace'), (3, 'Linus'), (4, 'Ken'), (5, 'Rob')`,
	`INSERT INTO score (id, student_id, points) VALUES (10, 1, 95), (11, 2, 88)`,
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcmysql.Run(ctx,
		"mysql:8.0.36",
		tcmysql.WithDatabase("school"),
		tcmysql.WithUsername("test"),
		tcmysql.WithPassword("test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)
	cfg, err := drv.ParseDSN(dsn)
	require.NoError(t, err)

	db, err := mysql.Open(ctx, cfg, mysql.PoolOptions{MaxConns: 5, MinConns: 1, MaxConnLifetime: 30 * time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range testStatements {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestMySQL(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	provider := mysql.NewSchemaProvider(db, "school")

	t.Run("snapshot", func(t *testing.T) {
		snap, err := provider.Snapshot(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"course", "score", "student"}, snap.Tables())
		require.Len(t, snap["student"], 2)
		assert.Equal(t, domain.Column{Name: "id", Type: "int"}, snap["student"][0])
		assert.Equal(t, "name", snap["student"][1].Name)
	})

	t.Run("list databases", func(t *testing.T) {
		dbs, err := provider.ListDatabases(ctx)
		require.NoError(t, err)
		assert.Contains(t, dbs, "school")
		assert.NotContains(t, dbs, "information_schema")
	})

	t.Run("table comments", func(t *testing.T) {
		comments, err := provider.TableComments(ctx, "school")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"student": "Enrolled students"}, comments)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, provider.Ping(ctx))
	})

	t.Run("execute with row limit", func(t *testing.T) {
		exec := mysql.NewExecutor(db, "school", 3, 10*time.Second)
		res, err := exec.Execute(ctx, "", "SELECT id, name FROM student ORDER BY id;")
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, res.Columns)
		require.Len(t, res.Rows, 3)
		assert.Equal(t, "Ada", res.Rows[0]["name"])
		assert.Equal(t, 3, res.RowCount)
		assert.Equal(t, "result truncated to 3 rows", res.Message)
	})

	gk := domain.NewGatekeeper(domain.DefaultSensitiveFieldSet())
	snap, err := provider.Snapshot(ctx, "school")
	require.NoError(t, err)

	t.Run("join selecting duplicate column names", func(t *testing.T) {
		query := "SELECT * FROM student JOIN score ON student.id = score.student_id ORDER BY score.id"
		require.True(t, gk.Evaluate(query, snap).Accepted)

		exec := mysql.NewExecutor(db, "school", 100, 10*time.Second)
		res, err := exec.Execute(ctx, "", query)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name", "id_2", "student_id", "points"}, res.Columns)
		require.Len(t, res.Rows, 2)
		assert.Equal(t, int64(1), res.Rows[0]["id"])
		assert.Equal(t, int64(10), res.Rows[0]["id_2"])
		assert.Equal(t, "Ada", res.Rows[0]["name"])
		assert.Empty(t, res.Message)
	})

	t.Run("show columns runs unwrapped", func(t *testing.T) {
		query := "SHOW COLUMNS FROM student"
		require.True(t, gk.Evaluate(query, snap).Accepted)

		exec := mysql.NewExecutor(db, "school", 100, 10*time.Second)
		res, err := exec.Execute(ctx, "", query)
		require.NoError(t, err)
		assert.Contains(t, res.Columns, "Field")
		require.Len(t, res.Rows, 2)
		assert.Equal(t, "id", res.Rows[0]["Field"])
		assert.Equal(t, 2, res.RowCount)
	})

	t.Run("describe runs unwrapped", func(t *testing.T) {
		exec := mysql.NewExecutor(db, "school", 100, 10*time.Second)
		res, err := exec.Execute(ctx, "", "DESCRIBE score")
		require.NoError(t, err)
		assert.Len(t, res.Rows, 3)
	})

	t.Run("statement without result set reports a message", func(t *testing.T) {
		exec := mysql.NewExecutor(db, "school", 100, 10*time.Second)
		res, err := exec.Execute(ctx, "", "DO SLEEP(0)")
		require.NoError(t, err)
		assert.Empty(t, res.Columns)
		assert.Zero(t, res.RowCount)
		assert.Equal(t, "statement executed, no result set", res.Message)
	})

	t.Run("locking read is refused", func(t *testing.T) {
		exec := mysql.NewExecutor(db, "school", 100, 10*time.Second)
		_, err := exec.Execute(ctx, "school", "SELECT * FROM student WHERE id = 1 FOR UPDATE")
		require.Error(t, err)
	})

	t.Run("unknown column surfaces database error", func(t *testing.T) {
		exec := mysql.NewExecutor(db, "school", 100, 10*time.Second)
		_, err := exec.Execute(ctx, "", "SELECT nme FROM student")
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "nme"), err.Error())
	})
}
