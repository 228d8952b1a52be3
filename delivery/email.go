package delivery

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/core"
)

// LogEmailSender records email notifications to the log instead of sending
// them. It stands in until a mail transport is wired.
type LogEmailSender struct {
	logger core.Logger
}

func NewLogEmailSender(logger core.Logger) *LogEmailSender {
	return &LogEmailSender{logger: glog.Ensure(logger)}
}

func (s *LogEmailSender) SendNotification(_ context.Context, sender, reply string) error {
	if s == nil {
		return fmt.Errorf("delivery: email sender is nil")
	}
	s.logger.Info("email notification requested",
		"sender", sender,
		"reply", reply,
	)
	return nil
}

var _ EmailSender = (*LogEmailSender)(nil)
