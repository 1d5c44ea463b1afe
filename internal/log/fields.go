// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldEvent     = "event"

	// Correlation
	FieldOperationID = "operation_id"

	// Configuration
	FieldSchema     = "schema"
	FieldVersion    = "version"
	FieldBackend    = "backend"
	FieldPath       = "path"
	FieldGeneration = "generation"

	// Persistent state
	FieldKey       = "key"
	FieldContainer = "container"

	// Data store
	FieldDriver   = "driver"
	FieldConnID   = "conn_id"
	FieldLeased   = "leased"
	FieldIdle     = "idle"
	FieldMaxSize  = "max_size"
	FieldWaitMS   = "wait_ms"
	FieldQueue    = "queue"
	FieldTaskID   = "task_id"
	FieldDuration = "duration_ms"
)
