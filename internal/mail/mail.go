package mail

import (
	"context"

	"github.com/Skotchmaster/elibrary/internal/mykafka"
)

const Topic = "email_tasks"

// Message is the task payload a mail worker consumes: which template to
// render, for whom, and the variables to fill in. Actual SMTP delivery
// happens outside this process.
type Message struct {
	Recipients []string          `json:"recipients"`
	Subject    string            `json:"subject"`
	Template   string            `json:"template"`
	Vars       map[string]string `json:"vars,omitempty"`
	From       string            `json:"from,omitempty"`
}

// Mailer dispatches email tasks to the queue, fire-and-forget. Callers log
// a failed dispatch and move on; a broker outage never fails the request.
type Mailer struct {
	Producer *mykafka.Producer
	From     string
}

func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = m.From
	}
	key := ""
	if len(msg.Recipients) > 0 {
		key = msg.Recipients[0]
	}
	return m.Producer.PublishEvent(ctx, Topic, key, msg)
}
