package panel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/failure"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

type MessagingView struct {
	PatientID api.ID
	Messages  []api.Message
	OpenID    api.ID
	Err       string
}

// Open returns the open message, if it is in the loaded thread.
func (v MessagingView) Open() *api.Message {
	for i := range v.Messages {
		if v.Messages[i].ID == v.OpenID {
			m := v.Messages[i]
			return &m
		}
	}
	return nil
}

// Messaging shows the selected patient's message thread.
type Messaging struct {
	syncer[MessagingView]
	client   Backend
	sel      MessageSelector
	doctorID api.ID

	pending sync.WaitGroup
}

func NewMessaging(d Deps, doctorID api.ID) *Messaging {
	d = d.withDefaults()
	return &Messaging{
		syncer:   newSyncer(view.PanelMessages, d, renderMessages),
		client:   d.Backend,
		sel:      d.Selection,
		doctorID: doctorID,
	}
}

// Refresh loads the thread of the selected patient in backend order.
func (m *Messaging) Refresh(ctx context.Context) error {
	seq := m.begin()
	ctx, span := m.startSpan(ctx, seq)
	defer span.End()

	snap := m.sel.Snapshot()
	pid := snap.PatientID()
	if pid == "" {
		m.commit(ctx, seq, MessagingView{}, outcomeOK)
		return nil
	}

	list, err := m.client.ListMessages(ctx, pid)
	if err != nil {
		span.SetStatus(codes.Error, "list messages failed")
		m.logFailure(seq, err)
		m.commit(ctx, seq, MessagingView{PatientID: pid, Err: "Failed to load messages"}, outcomeError)
		return err
	}
	if m.sel.Snapshot().PatientID() != pid {
		m.discard(ctx, seq)
		return nil
	}
	v := MessagingView{PatientID: pid, Messages: list}
	if snap.Message != nil {
		v.OpenID = snap.Message.ID
	}
	m.commit(ctx, seq, v, outcomeOK)
	return nil
}

// OpenMessage selects message id and shows it read. Marking it read on the
// backend happens in the background and its failure is only logged.
func (m *Messaging) OpenMessage(ctx context.Context, id api.ID) (*api.Message, error) {
	msg, err := m.sel.SelectMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	wasRead := msg.IsRead
	msg.IsRead = true
	m.update(func(v *MessagingView) {
		msgs := append([]api.Message(nil), v.Messages...)
		for i := range msgs {
			if msgs[i].ID == id {
				msgs[i].IsRead = true
			}
		}
		v.Messages = msgs
		v.OpenID = id
	})

	if !wasRead {
		m.pending.Add(1)
		go func() {
			defer m.pending.Done()
			if err := m.client.MarkMessageRead(context.WithoutCancel(ctx), id); err != nil {
				m.logger.Warn("mark message read failed", zap.String("message_id", string(id)), zap.Error(err))
			}
		}()
	}
	return msg, nil
}

// Send posts text from the selected patient to the doctor and reloads the
// thread. Blank text is rejected before any network call.
func (m *Messaging) Send(ctx context.Context, text string) (*api.Created, error) {
	p := m.sel.Snapshot().Patient
	if p == nil {
		return nil, failure.NoPatient("send message")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, failure.Invalid("message", "please enter a message")
	}
	created, err := m.client.SendMessage(ctx, api.OutgoingMessage{
		SenderID:   p.ID,
		ReceiverID: m.doctorID,
		Content:    text,
	})
	if err != nil {
		m.logger.Error("send message failed", zap.String("patient_id", string(p.ID)), zap.Error(err))
		return nil, err
	}
	_ = m.Refresh(ctx)
	return created, nil
}

// DoctorID is the receiver of every message sent from the dashboard.
func (m *Messaging) DoctorID() api.ID { return m.doctorID }

// Wait blocks until background mark-read calls have finished.
func (m *Messaging) Wait() {
	m.pending.Wait()
}

func renderMessages(v MessagingView) string {
	if v.PatientID == "" {
		return view.Muted("Select a patient to view messages")
	}
	if v.Err != "" {
		return view.ErrorText(v.Err)
	}
	if len(v.Messages) == 0 {
		return view.Muted("No messages")
	}
	lines := make([]string, 0, len(v.Messages)+2)
	for _, msg := range v.Messages {
		who := "Doctor"
		if msg.SenderID == v.PatientID {
			who = "You"
		}
		line := fmt.Sprintf("%s  %s  %s", view.Label(who), msg.Content, view.Muted(formatTime(msg.CreatedAt)))
		if !msg.IsRead {
			line = "● " + line
		} else {
			line = "  " + line
		}
		if msg.ID == v.OpenID {
			line = view.Highlight(line)
		}
		lines = append(lines, line)
	}
	if open := v.Open(); open != nil {
		lines = append(lines, "", view.Label("Message:"), open.Content)
	}
	return strings.Join(lines, "\n")
}
