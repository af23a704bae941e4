package log

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		File: FileLogConfig{
			RootPath: dir,
			Filename: "chat.log",
		},
	}
	logger, props, err := InitLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, props)
	defer newStdLogger()

	logger.Debug("hidden")
	logger.Info("visible", zap.String("username", "alice1234"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(dir, "chat.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"visible"`)
	assert.Contains(t, string(data), `"username":"alice1234"`)
	assert.NotContains(t, string(data), "hidden")
	assert.Equal(t, defaultLogMaxSize, cfg.File.MaxSize)
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	_, _, err := InitLogger(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestInitLoggerRejectsDirectoryAsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	_, _, err := InitLogger(&Config{Level: "info", File: FileLogConfig{RootPath: dir, Filename: "sub"}})
	assert.Error(t, err)
}

func TestTraceLevelIsDebug(t *testing.T) {
	level, err := parseLevel("TRACE")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)
}

func TestCtxLogger(t *testing.T) {
	logger, props, err := InitTestLogger(t, &Config{Level: "debug"})
	require.NoError(t, err)
	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(logger, props)
	defer ReplaceGlobals(oldL, oldP)

	assert.NotNil(t, Ctx(nil))
	assert.NotNil(t, Ctx(context.Background()))

	ctx := WithModule(context.Background(), "chat")
	ctx = WithTraceID(ctx, "trace-1")
	l := Ctx(ctx)
	require.NotNil(t, l)
	l.Info("ctx logger works")

	ctx, span := NewIntentContext(ctx, "chat", "session")
	defer span.End()
	assert.NotSame(t, l, Ctx(ctx))
}

func TestRatedLogging(t *testing.T) {
	l := With(FieldComponent("test")).WithRateGroup("test.rated", 1, 1)
	assert.True(t, l.RatedInfo(1, "first"))
	assert.False(t, l.RatedInfo(1, "second"))
	assert.True(t, RatedWarn(1, "global limiter never drops by default"))
}

func TestPlainErrorFields(t *testing.T) {
	err := errors.Wrap(errors.New("boom"), "read")
	fields := []zapcore.Field{zap.String("k", "v"), zap.Error(err)}
	out := plainErrorFields(fields)

	assert.Equal(t, zapcore.ErrorType, fields[1].Type)
	assert.Equal(t, zapcore.StringType, out[1].Type)
	assert.Equal(t, "read: boom", out[1].String)
	assert.Empty(t, plainErrorFields(nil))
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	b.BindComponent("acceptor", FieldTransport("tcp"))
	first := b.Logger()
	assert.Same(t, first, b.Logger())
}

func TestCtxLoggerReportsCaller(t *testing.T) {
	dir := t.TempDir()
	logger, props, err := InitLogger(&Config{
		Level:  "info",
		Format: FormatJSON,
		File:   FileLogConfig{RootPath: dir, Filename: "caller.log"},
	})
	require.NoError(t, err)
	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(logger, props)
	defer func() {
		newStdLogger()
		ReplaceGlobals(oldL, oldP)
	}()

	Ctx(context.Background()).Info("from ctx")
	Ctx(WithModule(context.Background(), "chat")).Warn("from fields")
	With(FieldComponent("test")).Info("from with")
	Info("from global")
	Ctx(context.Background()).Debug("filtered")
	require.NoError(t, Sync())

	data, err := os.ReadFile(filepath.Join(dir, "caller.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.Contains(t, line, `"caller":"log/log_test.go:`, line)
	}
	assert.NotContains(t, string(data), "filtered")
	assert.NotContains(t, string(data), "invalid increase level")
}
