package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromReturnsPackageDefaultWithoutAttachedLogger(t *testing.T) {
	l := From(context.Background())
	assert.NotNil(t, l)
}

func TestWithAttachesLoggerRetrievableByFrom(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	ctx := With(context.Background(), logger)
	From(ctx).Info("hello")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Message)
}

func TestSugarWrapsAttachedLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	ctx := With(context.Background(), logger)

	Sugar(ctx).Infow("sugared", "k", "v")
	require := logs.All()
	assert.Len(t, require, 1)
}
