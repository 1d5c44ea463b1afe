// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestContextWithOperationID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
		want string
	}{
		{name: "nil context", ctx: nil, id: "op-123", want: "op-123"},
		{name: "background context", ctx: context.Background(), id: "op-456", want: "op-456"},
		{name: "empty id", ctx: context.Background(), id: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithOperationID(tt.ctx, tt.id)
			if got := OperationIDFromContext(ctx); got != tt.want {
				t.Errorf("OperationIDFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperationIDFromContext_Missing(t *testing.T) {
	if got := OperationIDFromContext(context.Background()); got != "" {
		t.Errorf("OperationIDFromContext() = %q, want empty", got)
	}
	if got := OperationIDFromContext(nil); got != "" { //nolint:staticcheck
		t.Errorf("OperationIDFromContext(nil) = %q, want empty", got)
	}
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithOperationID(context.Background(), "op-1")

	l := WithContext(ctx, logger)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "op-1", entry["operation_id"])
}

func TestWithContext_NoFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	l := WithContext(context.Background(), logger)
	l.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, ok := entry["operation_id"]
	require.False(t, ok)
}

func TestFromContext_PrefersAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	attached := zerolog.New(&buf).With().Str("attached", "yes").Logger()
	ctx := attached.WithContext(context.Background())

	FromContext(ctx).Info().Msg("x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "yes", entry["attached"])
}

func TestNew_ServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf, Service: "plugin-a"})

	l.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	l.Warn().Msg("kept")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "plugin-a", entry[FieldService])
	require.Equal(t, "kept", entry["message"])
}

func TestNew_FileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "skylib.log")
	l := New(Config{Output: &buf, File: &FileConfig{Path: path, MaxSizeMB: 1}})

	l.Info().Str(FieldEvent, "test.file").Msg("both")
	require.Contains(t, buf.String(), "test.file")
	require.FileExists(t, path)
}
