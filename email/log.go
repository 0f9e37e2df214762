package email

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/recoverykit/core"
)

// LogSender writes messages to the log instead of delivering them. Bodies
// carry live tokens and codes, so use it in development only.
type LogSender struct {
	log logrus.FieldLogger
}

var _ core.EmailSender = (*LogSender)(nil)

func NewLogSender(l logrus.FieldLogger) *LogSender {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogSender{log: l}
}

func (s *LogSender) Send(_ context.Context, msg core.Message) error {
	s.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("[recoverykit/dev-email] " + msg.HTML)
	return nil
}
