package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), base)
	ctx, logger := With(ctx, "monitor_id", "m-1")
	_, nested := With(ctx, "job_id", "j-1")

	nested.Info("probe done")
	assert.Contains(t, buf.String(), "monitor_id=m-1")
	assert.Contains(t, buf.String(), "job_id=j-1")
	assert.Equal(t, logger, FromContext(ctx))
}
