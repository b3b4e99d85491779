// internal/logger/styled.go
package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/arcbridge/toolgate/theme"
)

// CircuitState mirrors breaker.State without importing the breaker package,
// keeping logger free of a dependency on the domain it formats for callers.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// StyledLogger wraps slog.Logger with theme-aware formatting methods.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, t *theme.Theme) *StyledLogger {
	return &StyledLogger{logger: logger, theme: t}
}

func (sl *StyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *StyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *StyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *StyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithServer(msg string, serverName string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Server}.Sprint(serverName))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithServer(msg string, serverName string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Server}.Sprint(serverName))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithServer(msg string, serverName string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Server}.Sprint(serverName))
	sl.logger.Error(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithTool(msg string, qualifiedName string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.Tool}.Sprint(qualifiedName))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnCircuitState(msg string, serverName string, state CircuitState, args ...any) {
	var style *pterm.Style
	switch state {
	case CircuitOpen:
		style = sl.theme.CircuitOpen
	case CircuitHalfOpen:
		style = sl.theme.CircuitHalf
	default:
		style = sl.theme.CircuitClosed
	}
	styledMsg := fmt.Sprintf("%s %s is now %s", msg, pterm.Style{sl.theme.Server}.Sprint(serverName), pterm.Style{style}.Sprint(state))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) InfoCacheHit(msg string, key string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.CacheHit}.Sprint(key))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoCacheMiss(msg string, key string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.CacheMiss}.Sprint(key))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnRateLimited(msg string, callerID string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.theme.RateLimited}.Sprint(callerID))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	formatted := make([]string, 0, len(numbers))
	for _, num := range numbers {
		formatted = append(formatted, pterm.Style{sl.theme.Numbers}.Sprint(num))
	}
	styledMsg := fmt.Sprintf(msg, toInterfaceSlice(formatted)...)
	sl.logger.Info(styledMsg)
}

// GetUnderlying returns the underlying slog.Logger for direct access.
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

// NewWithTheme creates both a plain logger and a styled logger sharing the same handlers.
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
