package telemetry

import (
	"github.com/sdrlab/txwave/internal/logging"
)

// StdoutReporter prints status transitions through the structured logger.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

func (r StdoutReporter) ReportStatus(status Status, detail string) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "status", Value: status},
	}
	if detail != "" {
		fields = append(fields, logging.Field{Key: "detail", Value: detail})
	}
	r.logger.Info("status transition", fields...)
}
