package push

import (
	"errors"
	"log/slog"

	"github.com/formsmith/formsmith/internal/store"
)

// Notifier fans a payload out to every subscription of a set of users,
// pruning subscriptions the push service reports as gone.
type Notifier struct {
	service *Service
	subs    *store.PushSubscriptionStore
	logger  *slog.Logger
}

func NewNotifier(service *Service, subs *store.PushSubscriptionStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		service: service,
		subs:    subs,
		logger:  logger.With("component", "push"),
	}
}

// Configured reports whether push delivery is enabled.
func (n *Notifier) Configured() bool {
	return n.service.Configured()
}

// Notify sends the payload to all subscriptions of the given users. Delivery
// failures are logged and dropped.
func (n *Notifier) Notify(userIDs []int64, payload Payload) {
	for _, userID := range userIDs {
		subs, err := n.subs.ListByUser(userID)
		if err != nil {
			n.logger.Error("list push subscriptions", "user_id", userID, "error", err)
			continue
		}
		for i := range subs {
			err := n.service.Send(&subs[i], payload)
			if errors.Is(err, ErrExpired) {
				n.subs.DeleteByEndpoint(subs[i].Endpoint)
				continue
			}
			if err != nil {
				n.logger.Error("send push", "user_id", userID, "error", err)
			}
		}
	}
}
