// Package observability provides structured logging and Prometheus
// metrics shared across every component (spec §9.1 "ambient stack").
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the fields every entanglementd log line
// carries: service, version, host.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger builds the root logger. A nil output defaults to stdout.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", hostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithUser scopes a logger to a user id, for request-scoped logging.
func (l *Logger) WithUser(userID string) *Logger {
	return &Logger{logger: l.logger.With().Str("user_id", userID).Logger()}
}

// WithFile scopes a logger to a file path.
func (l *Logger) WithFile(path string) *Logger {
	return &Logger{logger: l.logger.With().Str("path", path).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }

func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }
func (l *Logger) Fatal(err error, msg string) { l.logger.Fatal().Err(err).Msg(msg) }

// UploadStarted logs the start of a sync engine upload (spec §4.7).
func (l *Logger) UploadStarted(path string, sizeBytes uint64, tierID int) {
	l.logger.Info().
		Str("path", path).
		Uint64("size_bytes", sizeBytes).
		Int("tier_id", tierID).
		Msg("upload started")
}

// UploadCompleted logs a completed upload with dedup statistics.
func (l *Logger) UploadCompleted(path string, chunkCount, chunksUploaded int, duration time.Duration) {
	l.logger.Info().
		Str("path", path).
		Int("chunk_count", chunkCount).
		Int("chunks_uploaded", chunksUploaded).
		Float64("duration_seconds", duration.Seconds()).
		Msg("upload completed")
}

// ConflictDetected logs a newly recorded conflict (spec §4.9).
func (l *Logger) ConflictDetected(fileID, kind string) {
	l.logger.Warn().
		Str("file_id", fileID).
		Str("kind", kind).
		Msg("sync conflict detected")
}

// GCResult logs the outcome of a garbage collection pass (spec §4.12).
func (l *Logger) GCResult(chunksReclaimed, containersCompacted int, duration time.Duration) {
	l.logger.Info().
		Int("chunks_reclaimed", chunksReclaimed).
		Int("containers_compacted", containersCompacted).
		Float64("duration_seconds", duration.Seconds()).
		Msg("garbage collection pass completed")
}

// ChunkCorrupted logs a detected chunk integrity failure.
func (l *Logger) ChunkCorrupted(hash, location string) {
	l.logger.Error().
		Str("chunk_hash", hash).
		Str("location", location).
		Msg("chunk integrity check failed")
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
