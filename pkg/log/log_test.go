package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	l1 := Ctx(ctx)
	require.NotNil(t, l1)
	assert.Equal(t, defaultLogger, l1)

	customLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	require.NotEqual(t, defaultLogger, customLogger)

	l2 := Ctx(With(ctx, customLogger))
	require.NotNil(t, l2)
	assert.Equal(t, customLogger, l2)
}

func TestWithCycle(t *testing.T) {
	var buf bytes.Buffer
	ctx := With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx, id := WithCycle(ctx, "refresh")
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	Ctx(ctx).InfoContext(ctx, "hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, id, line["cycleID"])
	assert.Equal(t, "refresh", line["job"])
	assert.Equal(t, "hello", line["msg"])

	_, other := WithCycle(context.Background(), "refresh")
	assert.NotEqual(t, id, other)
}
