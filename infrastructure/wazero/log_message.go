package wazero

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dentdelion-dev/dentdelion/wireformat"
)

// LogMessageName is the import name of the guest logging function.
const LogMessageName = "log_message"

// LogMessageHandler re-emits guest log records on the host logger with the
// plugin name attached. Payloads that are not a log record are logged raw.
func LogMessageHandler(logger *zap.Logger) CustomHandler {
	return CustomHandler{
		Name:       LogMessageName,
		ParamTypes: []api.ValueType{api.ValueTypeI64},
		Handler: api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			ptr, length := UnpackPtrLen(stack[0])
			plugin := zap.String("plugin", GetPluginName(ctx, mod))

			data, ok := mod.Memory().Read(ptr, length)
			if !ok {
				logger.Warn("guest log out of memory bounds", plugin, zap.Uint32("ptr", ptr), zap.Uint32("len", length))
				return
			}

			var rec wireformat.LogRecord
			if err := wireformat.Unmarshal(data, &rec); err != nil || rec.Message == "" {
				logger.Info("guest log (raw)", plugin, zap.Binary("payload", append([]byte(nil), data...)))
				return
			}

			ce := logger.Check(guestLevel(rec.Level), rec.Message)
			if ce == nil {
				return
			}
			fields := []zap.Field{plugin}
			keys := make([]string, 0, len(rec.Fields))
			for k := range rec.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fields = append(fields, zap.Any(k, rec.Fields[k]))
			}
			ce.Write(fields...)
		}),
	}
}

func guestLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	// Guests may not panic or exit the host through logging.
	if lvl > zapcore.ErrorLevel {
		return zapcore.ErrorLevel
	}
	return lvl
}
