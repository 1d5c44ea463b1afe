// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the library.
const (
	// Database attributes
	DBSystemKey    = "db.system"
	DBNameKey      = "db.name"
	DBStatementKey = "db.statement"
	DBOperationKey = "db.operation"
	DBRowsKey      = "db.rows_affected"

	// Pool attributes
	PoolNameKey   = "pool.name"
	PoolLeasedKey = "pool.leased"
	PoolMaxKey    = "pool.max_size"

	// Config attributes
	ConfigSchemaKey     = "config.schema"
	ConfigGenerationKey = "config.generation"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// maxStatementLen bounds db.statement values.
const maxStatementLen = 512

// DBAttributes creates statement span attributes. Long statements are truncated.
func DBAttributes(system, database, operation, statement string) []attribute.KeyValue {
	if len(statement) > maxStatementLen {
		statement = statement[:maxStatementLen] + "..."
	}
	attrs := make([]attribute.KeyValue, 0, 4)
	attrs = append(attrs, attribute.String(DBSystemKey, system))
	if database != "" {
		attrs = append(attrs, attribute.String(DBNameKey, database))
	}
	if operation != "" {
		attrs = append(attrs, attribute.String(DBOperationKey, operation))
	}
	if statement != "" {
		attrs = append(attrs, attribute.String(DBStatementKey, statement))
	}
	return attrs
}

// PoolAttributes creates pool span attributes.
func PoolAttributes(name string, leased, maxSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PoolNameKey, name),
		attribute.Int(PoolLeasedKey, leased),
		attribute.Int(PoolMaxKey, maxSize),
	}
}

// ConfigAttributes creates config span attributes.
func ConfigAttributes(schema string, generation uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ConfigSchemaKey, schema),
		attribute.Int64(ConfigGenerationKey, int64(generation)),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
