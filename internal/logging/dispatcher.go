package logging

import "github.com/rs/zerolog"

// badKey labels values that have no string key, the same way slog does.
const badKey = "!BADKEY"

// DispatcherLogger writes command routing logs to zerolog under
// component=dispatcher.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	emit(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	emit(l.logger.Error(), msg, keysAndValues)
}

// emit pairs string keys with the value that follows them. A non-string or
// trailing argument is logged under badKey.
func emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(kv); {
		key, ok := kv[i].(string)
		if !ok || i+1 == len(kv) {
			ev = ev.Interface(badKey, kv[i])
			i++
			continue
		}
		ev = ev.Interface(key, kv[i+1])
		i += 2
	}
	ev.Msg(msg)
}
