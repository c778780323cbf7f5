package logger

import "sync"

// LoggerInstance is a logging backend. Every call fans out to all
// registered backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type fanout struct {
	instances []LoggerInstance
}

var (
	mu        sync.RWMutex
	singleton *fanout
)

func instances() []LoggerInstance {
	mu.RLock()
	defer mu.RUnlock()
	if singleton == nil {
		return nil
	}
	return singleton.instances
}

// Init installs the global backends. Logging before Init is a no-op,
// which keeps library packages quiet in tests.
func Init(backends ...LoggerInstance) {
	mu.Lock()
	defer mu.Unlock()
	singleton = &fanout{instances: backends}
}

// Log writes a message at the default level.
func Log(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Log(message, keyvals...)
	}
}

func Info(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Info(message, keyvals...)
	}
}

func Warn(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Warn(message, keyvals...)
	}
}

func Error(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Error(message, keyvals...)
	}
}

func Debug(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Debug(message, keyvals...)
	}
}

// Fatal logs and terminates the process. Backends are responsible for the
// exit; only configuration failures at startup should reach this.
func Fatal(message string, keyvals ...any) {
	for _, instance := range instances() {
		instance.Fatal(message, keyvals...)
	}
}
