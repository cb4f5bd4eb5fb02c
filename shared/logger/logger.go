// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging scoped to one ToolGate component
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry represents a structured log entry. AccountID and RunID exist so
// every billing-relevant line can be correlated back to the charge it
// produced; RequestID carries the ingress request id when one is known.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	AccountID  string                 `json:"account_id"`
	RunID      string                 `json:"run_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	// Instance ID is set during deployment
	instanceID := os.Getenv("TOOLGATE_INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log creates a structured log entry and writes it to stdout
func (l *Logger) Log(level LogLevel, accountID, runID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		AccountID:  accountID,
		RunID:      runID,
		Message:    message,
		Fields:     fields,
	}
	if fields != nil {
		if rid, ok := fields["request_id"].(string); ok {
			entry.RequestID = rid
		}
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	// JSON goes to stdout, which the container runtime captures
	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(accountID, runID, message string, fields map[string]interface{}) {
	l.Log(INFO, accountID, runID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(accountID, runID, message string, fields map[string]interface{}) {
	l.Log(ERROR, accountID, runID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(accountID, runID, message string, fields map[string]interface{}) {
	l.Log(WARN, accountID, runID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(accountID, runID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, accountID, runID, message, fields)
}

// WarnWithOutcome logs a warning with an outcome classification field.
// Billing code uses outcome classes (skipped, deferred, invariant_violation,
// db_error, unknown) so charge anomalies can be queried from logs.
func (l *Logger) WarnWithOutcome(accountID, runID, message, outcome string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["outcome"] = outcome
	l.Warn(accountID, runID, message, fields)
}

// ErrorWithOutcome logs an error with an outcome classification and the
// underlying error, when present.
func (l *Logger) ErrorWithOutcome(accountID, runID, message, outcome string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["outcome"] = outcome
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(accountID, runID, message, fields)
}
