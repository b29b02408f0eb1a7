package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm/logger"
)

func TestZapGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapGormLogger(zap.New(core), logger.Warn, false)

	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now(), sql, nil)
	require.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	require.Equal(t, 1, logs.FilterMessage("gorm.query").Len())

	l.Trace(context.Background(), time.Now(), sql, logger.ErrRecordNotFound)
	require.Equal(t, 1, logs.Len())

	l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 1, logs.FilterMessage("gorm.slow_query").Len())

	silent := l.LogMode(logger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	require.Equal(t, 2, logs.Len())
}
