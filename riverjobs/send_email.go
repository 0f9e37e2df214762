package riverjobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/open-rails/recoverykit/core"
)

type SendEmailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (SendEmailArgs) Kind() string { return "recoverykit_send_email" }

func (SendEmailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 5,
	}
}

// SendEmailWorker delivers queued messages through a synchronous sender
// (typically email.SMTPSender). Failures are retried by River.
type SendEmailWorker struct {
	river.WorkerDefaults[SendEmailArgs]
	sender core.EmailSender
}

func NewSendEmailWorker(sender core.EmailSender) *SendEmailWorker {
	return &SendEmailWorker{sender: sender}
}

func (w *SendEmailWorker) Timeout(*river.Job[SendEmailArgs]) time.Duration {
	return 30 * time.Second
}

func (w *SendEmailWorker) Work(ctx context.Context, job *river.Job[SendEmailArgs]) error {
	if w == nil || w.sender == nil {
		return errors.New("recoverykit send email: sender not configured")
	}
	a := job.Args
	if a.To == "" {
		return river.JobCancel(errors.New("recipient missing"))
	}
	return w.sender.Send(ctx, core.Message{To: a.To, Subject: a.Subject, HTML: a.HTML})
}

// Inserter is satisfied by *river.Client.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// QueueSender implements core.EmailSender by enqueueing a send job. A nil
// error means the message is durably queued, not delivered.
type QueueSender struct {
	client Inserter
}

var _ core.EmailSender = (*QueueSender)(nil)

func NewQueueSender(client Inserter) *QueueSender {
	return &QueueSender{client: client}
}

func (q *QueueSender) Send(ctx context.Context, msg core.Message) error {
	args := SendEmailArgs{To: msg.To, Subject: msg.Subject, HTML: msg.HTML}
	opts := args.InsertOpts()
	if _, err := q.client.Insert(ctx, args, &opts); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}
