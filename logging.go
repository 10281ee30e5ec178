package apns

import "github.com/sirupsen/logrus"

// defaultLogger backs every component that isn't given its own logger.
// It's a fallback, not something call sites reach for directly.
var defaultLogger = logrus.New()

func loggerOrDefault(l *logrus.Entry) *logrus.Entry {
	if l != nil {
		return l
	}
	return logrus.NewEntry(defaultLogger)
}
