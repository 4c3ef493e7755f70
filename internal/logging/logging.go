// Package logging provides the structured logger shared by every subsystem
// of kftray-core: forward engine, network supervisor, helper protocol and
// expose deployer all log through here so operators get one consistent shape.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

var (
	// AppLogger is the main application logger.
	AppLogger *slog.Logger
	// OperationLogger is used for per-operation spans created via StartOperation.
	OperationLogger *slog.Logger
)

func init() {
	InitDefaultLogger()
}

// Level represents the logging level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents the logging format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ContextKey represents context keys used to propagate logging identifiers.
type ContextKey string

const (
	OperationIDKey ContextKey = "operation_id"
	ComponentKey   ContextKey = "component"
)

// Config holds configuration for the logger.
type Config struct {
	Level     Level
	Format    Format
	Output    io.Writer
	AddSource bool
}

// OperationContext holds operation-specific logging context.
type OperationContext struct {
	ID        string
	Component string
	StartTime time.Time
	Logger    *slog.Logger
}

// StartOperation creates a new operation context for tracking a unit of work
// (e.g. "resolve a target", "bind a listener", "send a helper request").
func StartOperation(ctx context.Context, component, operation string) (*OperationContext, context.Context) {
	operationID := generateOperationID()

	logger := AppLogger.With(
		"operation_id", operationID,
		"component", component,
		"operation", operation,
	)

	opCtx := &OperationContext{
		ID:        operationID,
		Component: component,
		StartTime: time.Now(),
		Logger:    logger,
	}

	newCtx := context.WithValue(ctx, OperationIDKey, operationID)
	newCtx = context.WithValue(newCtx, ComponentKey, component)

	logger.Debug("operation started", "operation", operation)

	return opCtx, newCtx
}

// Complete marks an operation as completed and logs its duration.
func (oc *OperationContext) Complete(result string, err error) {
	duration := time.Since(oc.StartTime)

	attrs := []any{"result", result, "duration_ms", duration.Milliseconds()}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		oc.Logger.Debug("operation completed with error", attrs...)
		return
	}
	oc.Logger.Debug("operation completed successfully", attrs...)
}

func (oc *OperationContext) Debug(msg string, args ...any) { oc.Logger.Debug(msg, args...) }
func (oc *OperationContext) Info(msg string, args ...any)  { oc.Logger.Info(msg, args...) }
func (oc *OperationContext) Warn(msg string, args ...any)  { oc.Logger.Warn(msg, args...) }

func (oc *OperationContext) Error(msg string, err error, args ...any) {
	allArgs := make([]any, 0, len(args)+2)
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs, "error", err.Error())
	oc.Logger.Error(msg, allArgs...)
}

func generateOperationID() string {
	return fmt.Sprintf("op_%d_%d", time.Now().UnixNano(), runtime.NumGoroutine())
}

// InitLogger initializes the application logger with the given configuration.
func InitLogger(cfg Config) {
	var level slog.Level
	switch cfg.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	AppLogger = slog.New(handler)
	OperationLogger = slog.New(handler).With("logger_type", "operation")
	slog.SetDefault(AppLogger)
}

// InitDefaultLogger initializes the logger with sensible defaults.
func InitDefaultLogger() {
	InitLogger(Config{Level: LevelInfo, Format: FormatText, Output: os.Stderr})
}

// InitDevelopmentLogger initializes the logger with development-friendly settings.
func InitDevelopmentLogger() {
	InitLogger(Config{Level: LevelDebug, Format: FormatText, Output: os.Stderr, AddSource: true})
}

// InitProductionLogger initializes the logger with production settings.
func InitProductionLogger() {
	InitLogger(Config{Level: LevelInfo, Format: FormatJSON, Output: os.Stderr})
}

// LogKubernetesOperation logs a generic Kubernetes API call.
func LogKubernetesOperation(operation, context string, err error) {
	attrs := []any{"operation", operation, "kube_context", context, "component", "kubernetes"}
	logResult(attrs, err, "Kubernetes operation")
}

// LogPodOperation logs a pod-specific Kubernetes operation.
func LogPodOperation(operation, podName, namespace, context string, err error) {
	attrs := []any{
		"operation", operation, "pod", podName, "namespace", namespace,
		"kube_context", context, "component", "kubernetes", "resource_type", "pod",
	}
	logResult(attrs, err, "Kubernetes pod operation")
}

// LogForwardOperation logs a forward session lifecycle event.
func LogForwardOperation(operation string, configID int64, localAddr string, localPort int, err error) {
	attrs := []any{
		"operation", operation, "config_id", configID, "local_address", localAddr,
		"local_port", localPort, "component", "forward",
	}
	logResult(attrs, err, "Forward operation")
}

// LogHelperOperation logs a helper-protocol request/response.
func LogHelperOperation(command string, requestID string, err error) {
	attrs := []any{"operation", command, "request_id", requestID, "component", "helper"}
	logResult(attrs, err, "Helper operation")
}

// LogNetworkEvent logs a network supervisor state transition.
func LogNetworkEvent(event string, details map[string]any) {
	attrs := []any{"event", event, "component", "netmonitor", "timestamp", time.Now().Format(time.RFC3339)}
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	AppLogger.Debug("network event", attrs...)
}

// LogExposeOperation logs an expose-deployer reconciliation step.
func LogExposeOperation(operation, resourceName, namespace string, err error) {
	attrs := []any{
		"operation", operation, "resource", resourceName, "namespace", namespace, "component", "expose",
	}
	logResult(attrs, err, "Expose operation")
}

func logResult(baseAttrs []any, err error, msg string) {
	if err != nil {
		attrs := append(baseAttrs, "error", err.Error(), "result", "failed")
		AppLogger.Debug(msg+" failed", attrs...)
		return
	}
	attrs := append(baseAttrs, "result", "success")
	AppLogger.Debug(msg+" successful", attrs...)
}

// Debug logs at debug level with caller information.
func Debug(msg string, args ...any) {
	if AppLogger.Enabled(context.Background(), slog.LevelDebug) {
		AppLogger.Debug(msg, addCallerInfo(args)...)
		return
	}
	AppLogger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) { AppLogger.Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { AppLogger.Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { AppLogger.Error(msg, args...) }

// Fatal logs at error level then exits the process.
func Fatal(msg string, args ...any) {
	AppLogger.Error(msg, args...)
	os.Exit(1)
}

func addCallerInfo(args []any) []any {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return args
	}
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		if idx2 := strings.LastIndex(file[:idx], "/"); idx2 >= 0 {
			file = file[idx2+1:]
		}
	}
	enhanced := make([]any, 0, len(args)+2)
	enhanced = append(enhanced, args...)
	enhanced = append(enhanced, "caller", fmt.Sprintf("%s:%d", file, line))
	return enhanced
}
