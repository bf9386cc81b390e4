package cart

import "go.uber.org/zap"

// Notifier is the side channel for user-visible outcomes of cart
// operations. Expected business conditions (out of stock, duplicate
// wishlist entry) are reported here in addition to the sentinel error
// returned to the caller.
type Notifier interface {
	Success(message string)
	Error(message string)
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a Notifier that writes notifications to the log.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Success(message string) {
	n.logger.Info("notification", zap.String("level", "success"), zap.String("message", message))
}

func (n *logNotifier) Error(message string) {
	n.logger.Info("notification", zap.String("level", "error"), zap.String("message", message))
}
