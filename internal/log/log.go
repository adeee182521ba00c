// Package log is the process-wide structured logger.
//
// Call sites pass a message followed by alternating key/value pairs:
//
//	log.Info("Impact created", "id", impact.ID, "ip_address", impact.IPAddressID)
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	std = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Configure sets the level (trace, debug, info, warn, error) and the
// format (console, json). Unknown values fall back to info/console.
func Configure(level, format string) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	std.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		std.SetFormatter(&logrus.JSONFormatter{})
	default:
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

func Trace(msg string, kv ...any) { entry(kv).Trace(msg) }
func Debug(msg string, kv ...any) { entry(kv).Debug(msg) }
func Info(msg string, kv ...any)  { entry(kv).Info(msg) }
func Warn(msg string, kv ...any)  { entry(kv).Warn(msg) }
func Error(msg string, kv ...any) { entry(kv).Error(msg) }

func entry(kv []any) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return std.WithFields(fields(kv))
}

// fields turns alternating key/value pairs into logrus fields. A trailing
// key without a value is kept under "!BADKEY".
func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			f["!BADKEY"] = kv[i]
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if err, ok := kv[i+1].(error); ok {
			f[key] = err.Error()
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}
