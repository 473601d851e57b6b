// Package logger is the process wide zap logger. Warnings and errors are also
// forwarded to the installed error tracker.
package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/bitechdev/autoquery/pkg/errortracking"
)

var Logger *zap.SugaredLogger
var errorTracker errortracking.Provider

// Init builds the development or production zap configuration.
func Init(dev bool) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	UpdateLogger(&cfg)
}

// UpdateLoggerPath is Init with every record written to path.
func UpdateLoggerPath(path string, dev bool) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	UpdateLogger(&cfg)
}

// UpdateLogger replaces the logger. A nil config logs to autoquery.log.
func UpdateLogger(config *zap.Config) {
	if config == nil {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"autoquery.log"}
		config = &cfg
	}
	built, err := config.Build()
	if err != nil {
		log.Print(err)
		return
	}
	Logger = built.Sugar()
	Info("logger initialized")
}

func InitErrorTracking(provider errortracking.Provider) {
	errorTracker = provider
	if provider != nil {
		Info("error tracking initialized")
	}
}

// CloseErrorTracking flushes pending events for up to five seconds.
func CloseErrorTracking() error {
	if errorTracker == nil {
		return nil
	}
	errorTracker.Flush(5)
	return errorTracker.Close()
}

func emit(level errortracking.Severity, message string, kv ...interface{}) {
	if Logger == nil {
		if len(kv) == 0 {
			log.Print(message)
		} else {
			log.Printf("%s %v", message, kv)
		}
		return
	}
	kv = append(kv, "process_id", os.Getpid())
	switch level {
	case errortracking.SeverityError:
		Logger.Errorw(message, kv...)
	case errortracking.SeverityWarning:
		Logger.Warnw(message, kv...)
	case errortracking.SeverityDebug:
		Logger.Debugw(message, kv...)
	default:
		Logger.Infow(message, kv...)
	}
}

func track(level errortracking.Severity, message string) {
	if errorTracker != nil {
		errorTracker.CaptureMessage(context.Background(), message, level, map[string]interface{}{
			"process_id": os.Getpid(),
		})
	}
}

func Debug(template string, args ...interface{}) {
	emit(errortracking.SeverityDebug, fmt.Sprintf(template, args...))
}

func Info(template string, args ...interface{}) {
	emit(errortracking.SeverityInfo, fmt.Sprintf(template, args...))
}

func Warn(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	emit(errortracking.SeverityWarning, message)
	track(errortracking.SeverityWarning, message)
}

func Error(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	emit(errortracking.SeverityError, message)
	track(errortracking.SeverityError, message)
}

// CaptureError logs err with fields attached and reports it to the tracker.
func CaptureError(ctx context.Context, err error, fields map[string]interface{}) {
	if err == nil {
		return
	}
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	emit(errortracking.SeverityError, err.Error(), kv...)
	if errorTracker != nil {
		errorTracker.CaptureError(ctx, err, errortracking.SeverityError, fields)
	}
}

// HandlePanic converts a recovered value into an error after logging it with
// its stack. Call it from a deferred recover.
func HandlePanic(methodName string, r any) error {
	stack := debug.Stack()
	emit(errortracking.SeverityError, fmt.Sprintf("panic in %s: %v", methodName, r), "stack", string(stack))
	if errorTracker != nil {
		errorTracker.CapturePanic(context.Background(), r, stack, map[string]interface{}{
			"method":     methodName,
			"process_id": os.Getpid(),
		})
	}
	return fmt.Errorf("panic in %s: %v", methodName, r)
}
