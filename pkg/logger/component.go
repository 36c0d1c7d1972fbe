package logger

// Logger is a component-scoped structured logger. Messages are followed by
// alternating key/value pairs. It resolves the default core on every call, so
// component loggers created before Init still end up in the log file.
type Logger struct {
	component string
	fields    []any
}

// WithComponent returns a logger tagged with the component name
func WithComponent(component string) *Logger {
	return &Logger{component: component}
}

// With returns a child logger that always carries the given key/value pairs
func (l *Logger) With(keysAndValues ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{component: l.component, fields: fields}
}

func (l *Logger) kv(keysAndValues []any) []any {
	out := make([]any, 0, 2+len(l.fields)+len(keysAndValues))
	out = append(out, "component", l.component)
	out = append(out, l.fields...)
	return append(out, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	base().Sugar().Debugw(msg, l.kv(keysAndValues)...)
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	base().Sugar().Infow(msg, l.kv(keysAndValues)...)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	base().Sugar().Warnw(msg, l.kv(keysAndValues)...)
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	base().Sugar().Errorw(msg, l.kv(keysAndValues)...)
}
