package security

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// SecureLogger writes structured auth and crypto events with sensitive
// values redacted. It is silent unless verbose.
type SecureLogger struct {
	logger  *slog.Logger
	verbose bool
}

type silentHandler struct{}

func (h *silentHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return false
}

func (h *silentHandler) Handle(_ context.Context, _ slog.Record) error {
	return nil
}

func (h *silentHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *silentHandler) WithGroup(_ string) slog.Handler {
	return h
}

var sensitivePatterns = []*regexp.Regexp{
	// Bearer values first so the header name pattern cannot swallow the scheme
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`(?i)(access_token|refresh_token|authorization)["':\s]*["']?([A-Za-z0-9\-._~+/]+=*)`),

	// Client credentials and codes
	regexp.MustCompile(`(?i)(client_secret|client_id|device_code|code)["':\s=]*["']?([A-Za-z0-9\-._~+/]{16,})`),

	// Email addresses: calendar ids and attendees
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
}

var urlSecretPattern = regexp.MustCompile(`([?&](?:token|key|secret|code|state)=)[^&]*`)

func NewSecureLogger(verbose bool) *SecureLogger {
	return NewSecureLoggerWithWriter(verbose, os.Stderr)
}

func NewSecureLoggerWithWriter(verbose bool, w io.Writer) *SecureLogger {
	var handler slog.Handler

	if verbose {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindString {
					a.Value = slog.StringValue(redactSensitiveData(a.Value.String()))
				}
				return a
			},
		})
	} else {
		handler = &silentHandler{}
	}

	return &SecureLogger{
		logger:  slog.New(handler),
		verbose: verbose,
	}
}

func (sl *SecureLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *SecureLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *SecureLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

// LogSecurityEvent logs a security-related event with standard fields
func (sl *SecureLogger) LogSecurityEvent(event string, severity ErrorSeverity, details map[string]any) {
	attrs := []any{
		slog.String("event_type", "security"),
		slog.String("event", event),
		slog.String("severity", severity.String()),
	}
	for k, v := range details {
		attrs = append(attrs, slog.Any(k, v))
	}

	switch severity {
	case SeverityCritical:
		sl.logger.Error("Security event", attrs...)
	case SeverityWarning:
		sl.logger.Warn("Security event", attrs...)
	default:
		sl.logger.Info("Security event", attrs...)
	}
}

// LogAuthEvent logs authentication-related events
func (sl *SecureLogger) LogAuthEvent(operation string, success bool, details map[string]any) {
	attrs := []any{
		slog.String("event_type", "authentication"),
		slog.String("operation", operation),
		slog.Bool("success", success),
	}
	for k, v := range details {
		attrs = append(attrs, slog.Any(k, v))
	}

	if success {
		sl.logger.Info("Authentication event", attrs...)
	} else {
		sl.logger.Warn("Authentication event", attrs...)
	}
}

func (sl *SecureLogger) LogNetworkEvent(method, url string, statusCode int, duration string) {
	sl.logger.Info("Network event",
		slog.String("event_type", "network"),
		slog.String("method", method),
		slog.String("url", redactURLSecrets(url)),
		slog.Int("status_code", statusCode),
		slog.String("duration", duration),
	)
}

func (sl *SecureLogger) LogCryptoEvent(operation string, success bool, errMsg string) {
	attrs := []any{
		slog.String("event_type", "crypto"),
		slog.String("operation", operation),
		slog.Bool("success", success),
	}
	if errMsg != "" {
		attrs = append(attrs, slog.String("error", errMsg))
	}

	if success {
		sl.logger.Info("Crypto event", attrs...)
	} else {
		sl.logger.Error("Crypto event", attrs...)
	}
}

func redactSensitiveData(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			// keep the key name, drop the value
			submatches := pattern.FindStringSubmatch(match)
			if len(submatches) >= 3 {
				return submatches[1] + "[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}

func redactURLSecrets(url string) string {
	base, query, found := strings.Cut(url, "?")
	if !found {
		return url
	}
	return base + "?" + urlSecretPattern.ReplaceAllString("?"+query, "${1}[REDACTED]")[1:]
}

// RedactString redacts tokens, secrets and email addresses from input.
func RedactString(input string) string {
	return redactSensitiveData(input)
}
