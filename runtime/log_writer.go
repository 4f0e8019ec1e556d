package runtime

import "log/slog"

// engineLogWriter is a custom io.Writer that redirects a bridged engine's
// stderr to the main application's slog.Logger. Each entry is tagged with
// the engine id for traceability in a multi-engine environment.
type engineLogWriter struct {
	logger *slog.Logger
	prefix string
}

// Write implements the io.Writer interface. It captures the bytes from the
// subprocess and logs them while maintaining the engine's context.
func (w *engineLogWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.logger.Info(string(p), "engine", w.prefix)
	return len(p), nil
}
