package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantDebug bool
		wantJSON  bool
	}{
		{name: "json debug", level: "debug", format: "json", wantDebug: true, wantJSON: true},
		{name: "json info drops debug", level: "info", format: "json", wantJSON: true},
		{name: "unknown format falls back to json", level: "warning", format: "xml", wantJSON: true},
		{name: "console", level: "debug", format: "console", wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger, err := New(&Config{Level: tt.level, Format: tt.format, writer: output})
			require.NoError(t, err)

			logger.Debug("Claiming job")
			logger.Warn("Job failed", slog.String("job_id", "poetry:text:1"))

			assert.Equal(t, tt.wantDebug, bytes.Contains(output.Bytes(), []byte("Claiming job")))
			last := bytes.TrimSpace(output.Bytes())
			if i := bytes.LastIndexByte(last, '\n'); i >= 0 {
				last = last[i+1:]
			}

			var entry map[string]any
			err = json.Unmarshal(last, &entry)
			if !tt.wantJSON {
				assert.Error(t, err)
				assert.Contains(t, string(last), "poetry:text:1")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "WARN", entry["level"])
			assert.Equal(t, "poetry:text:1", entry["job_id"])
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	} {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{Level: "info", Format: "console", Output: path})
	require.NoError(t, err)

	logger.Info("Job completed", slog.String("job_id", "poetry:text:1"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Job completed")
	assert.NotContains(t, string(data), "\x1b[", "file output must not contain color codes")
}

func TestNew_FileOutputError(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestFromContext(t *testing.T) {
	output := &bytes.Buffer{}
	base, err := New(&Config{Format: "json", writer: output})
	require.NoError(t, err)

	fallback := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := base.Logger.With(slog.String("request_id", "r-1"))
	ctx := WithContext(context.Background(), scoped)
	FromContext(ctx, fallback).Info("scoped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
	assert.Equal(t, "r-1", entry["request_id"])
}
