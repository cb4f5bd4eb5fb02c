// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgQuery_Execute(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT id, name FROM customers").
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("alice")).
			AddRow(int64(2), []byte("bob")))

	tool := NewPostgresQueryTool(db)
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"query":  "SELECT id, name FROM customers WHERE status = $1",
		"params": []interface{}{"active"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out["row_count"])
	rows := out["rows"].([]interface{})
	require.Len(t, rows, 2)
	first := rows[0].(map[string]interface{})
	assert.Equal(t, int64(1), first["id"])
	assert.Equal(t, "alice", first["name"], "byte columns become strings")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgQuery_LimitCapsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"n"})
	for i := 0; i < 10; i++ {
		rows.AddRow(int64(i))
	}
	mock.ExpectQuery("SELECT n FROM series").WillReturnRows(rows)

	tool := NewPostgresQueryTool(db)
	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"query": "SELECT n FROM series",
		"limit": float64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out["row_count"])
}

func TestPgQuery_RejectsWrites(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	tool := NewPostgresQueryTool(db)

	cases := []string{
		"DELETE FROM customers",
		"INSERT INTO customers (name) VALUES ('x')",
		"UPDATE customers SET name = 'x'",
		"DROP TABLE customers",
		"SELECT 1; DROP TABLE customers",
		"WITH x AS (DELETE FROM customers RETURNING id) SELECT * FROM x",
		"   ",
	}
	for _, q := range cases {
		_, err := tool.Execute(context.Background(), map[string]interface{}{"query": q})
		assert.Error(t, err, "query should be rejected: %s", q)
	}
}

func TestPgQuery_AllowsTrailingSemicolon(t *testing.T) {
	require.NoError(t, validateReadOnly("SELECT 1;"))
	require.NoError(t, validateReadOnly("WITH t AS (SELECT 1 AS n) SELECT n FROM t"))
}

func TestPgQuery_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT bogus").WillReturnError(assert.AnError)

	tool := NewPostgresQueryTool(db)
	_, err = tool.Execute(context.Background(), map[string]interface{}{
		"query": "SELECT bogus FROM nowhere",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query execution failed")
}

func TestPgQuery_ContractRedaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))

	tool := NewPostgresQueryTool(db)
	c, err := tool.Contract()
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "SELECT 1"})
	require.NoError(t, err)
	require.NoError(t, c.ValidateOutput(out))

	redacted, err := c.RedactOutput(out)
	require.NoError(t, err)
	_, hasTiming := redacted["duration_ms"]
	assert.False(t, hasTiming, "timing stays internal")
	assert.Equal(t, 1, redacted["row_count"])
}
