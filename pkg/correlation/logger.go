package correlation

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LoggerFromContext returns a logrus.Entry carrying the correlation
// fields stored in the context
func LoggerFromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithFields(ContextFields(ctx))
}

// ContextFields extracts all correlation fields from a context as a logrus.Fields map
func ContextFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}

	if id := FromContext(ctx); !id.IsEmpty() {
		fields["correlation_id"] = id.String()
	}

	if ip := ClientIPFromContext(ctx); ip != "" {
		fields["client_ip"] = ip
	}

	return fields
}
