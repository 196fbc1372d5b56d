package panel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/api"
	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/view"
)

type NotificationsView struct {
	Items  []api.Notification
	Err    string
	Loaded bool
}

// Unread counts unread notifications.
func (v NotificationsView) Unread() int {
	n := 0
	for _, it := range v.Items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

type Notifications struct {
	syncer[NotificationsView]
	client Backend
}

func NewNotifications(d Deps) *Notifications {
	d = d.withDefaults()
	return &Notifications{
		syncer: newSyncer(view.PanelNotifications, d, renderNotifications),
		client: d.Backend,
	}
}

func (n *Notifications) Refresh(ctx context.Context) error {
	seq := n.begin()
	ctx, span := n.startSpan(ctx, seq)
	defer span.End()

	items, err := n.client.ListNotifications(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "list notifications failed")
		n.logFailure(seq, err)
		n.commit(ctx, seq, NotificationsView{Err: "Failed to load notifications", Loaded: true}, outcomeError)
		return err
	}
	n.commit(ctx, seq, NotificationsView{Items: items, Loaded: true}, outcomeOK)
	return nil
}

// MarkRead marks notification id read and reloads the list.
func (n *Notifications) MarkRead(ctx context.Context, id api.ID) error {
	if err := n.client.MarkNotificationRead(ctx, id); err != nil {
		n.logger.Error("mark notification read failed", zap.String("notification_id", string(id)), zap.Error(err))
		return err
	}
	return n.Refresh(ctx)
}

func renderNotifications(v NotificationsView) string {
	if v.Err != "" {
		return view.ErrorText(v.Err)
	}
	if !v.Loaded {
		return view.Muted("Loading...")
	}
	if len(v.Items) == 0 {
		return view.Muted("No new notifications")
	}
	lines := []string{view.Muted(fmt.Sprintf("%d unread", v.Unread()))}
	for _, it := range v.Items {
		mark := "  "
		if !it.IsRead {
			mark = "● "
		}
		lines = append(lines,
			fmt.Sprintf("%s%s  %s", mark, view.Label(it.Title), view.Muted(formatTime(it.CreatedAt))),
			"    "+it.Message,
		)
	}
	return strings.Join(lines, "\n")
}
