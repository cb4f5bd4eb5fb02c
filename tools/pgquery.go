// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"toolgate/platform/governor"
	"toolgate/platform/shared/logger"
)

const (
	// DefaultQueryTimeout bounds one statement
	DefaultQueryTimeout = 10 * time.Second
	// MaxQueryRows caps the rows a single call may return
	MaxQueryRows = 500
)

const pgQueryInputSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1, "maxLength": 8192},
		"params": {
			"type": "array",
			"items": {"type": ["string", "number", "boolean", "null"]},
			"maxItems": 32
		},
		"limit": {"type": "integer", "minimum": 1, "maximum": 500}
	},
	"required": ["query"],
	"additionalProperties": false
}`

const pgQueryOutputSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"rows": {"type": "array", "items": {"type": "object"}},
		"row_count": {"type": "integer", "minimum": 0}
	},
	"required": ["rows", "row_count"]
}`

// PostgresQueryTool runs read-only SQL against a configured database. Writes
// are rejected before the statement reaches the driver, parameters are always
// passed positionally, and results are capped at MaxQueryRows.
type PostgresQueryTool struct {
	db      *sql.DB
	timeout time.Duration
	log     *logger.Logger
}

// NewPostgresQueryTool creates the pg_query tool over an established pool
func NewPostgresQueryTool(db *sql.DB) *PostgresQueryTool {
	return &PostgresQueryTool{
		db:      db,
		timeout: DefaultQueryTimeout,
		log:     logger.New("tool-pg-query"),
	}
}

// Contract builds the pg_query tool contract. Rows and row_count are the
// only allowlisted fields; query text and timing never leave the gateway.
func (t *PostgresQueryTool) Contract() (*governor.ToolContract, error) {
	return governor.NewContract("pg_query", pgQueryInputSchema, pgQueryOutputSchema,
		[]string{"rows", "row_count"})
}

// Execute runs the query
func (t *PostgresQueryTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	query, _ := args["query"].(string)
	if err := validateReadOnly(query); err != nil {
		return nil, err
	}

	limit := MaxQueryRows
	if l, ok := args["limit"].(float64); ok && int(l) < limit {
		limit = int(l)
	}

	var params []interface{}
	if raw, ok := args["params"].([]interface{}); ok {
		params = raw
	}

	queryCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	rows, err := t.db.QueryContext(queryCtx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := make([]interface{}, 0)
	for rows.Next() {
		if len(results) >= limit {
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			val := values[i]
			// Text and varchar columns arrive as []byte
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	t.log.Debug("", "", "query completed", map[string]interface{}{
		"rows":        len(results),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return map[string]interface{}{
		"rows":      results,
		"row_count": len(results),
		// Internal diagnostics, stripped by redaction
		"duration_ms": time.Since(start).Milliseconds(),
	}, nil
}

// validateReadOnly rejects anything that is not a single SELECT or WITH
// statement. The check is deliberately conservative: multi-statement
// payloads and CTEs that smuggle writes are refused.
func validateReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("query must not be empty")
	}
	if strings.Contains(strings.TrimSuffix(trimmed, ";"), ";") {
		return fmt.Errorf("multi-statement queries are not allowed")
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("only SELECT queries are allowed")
	}

	for _, kw := range []string{"INSERT ", "UPDATE ", "DELETE ", "DROP ", "ALTER ", "TRUNCATE ", "CREATE ", "GRANT ", "REVOKE "} {
		if strings.Contains(upper, kw) {
			return fmt.Errorf("write operations are not allowed: found %s", strings.TrimSpace(kw))
		}
	}
	return nil
}
