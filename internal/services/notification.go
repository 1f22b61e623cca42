package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optin-backend/internal/matching"
	"optin-backend/internal/metrics"
	"optin-backend/internal/models"
	"optin-backend/internal/notify"
	"optin-backend/internal/store"

	"github.com/rs/zerolog/log"
)

// DefaultReminderLeadTimes are the offsets before a match starts at which participants are reminded
var DefaultReminderLeadTimes = []time.Duration{60 * time.Minute, 10 * time.Minute}

const notificationIcon = "/icon-192.png"

// NotificationScheduler decides which notifications a new match gets and when
type NotificationScheduler struct {
	store    store.Repos
	channels notify.Multi
	jobs     notify.Scheduler
	leads    []time.Duration
	metrics  *metrics.Metrics
	now      Clock
}

// NewNotificationScheduler creates a new notification scheduler
func NewNotificationScheduler(
	st store.Repos,
	channels notify.Multi,
	jobs notify.Scheduler,
	leads []time.Duration,
	m *metrics.Metrics,
	now Clock,
) *NotificationScheduler {
	if leads == nil {
		leads = DefaultReminderLeadTimes
	}
	return &NotificationScheduler{
		store:    st,
		channels: channels,
		jobs:     jobs,
		leads:    leads,
		metrics:  m,
		now:      orNow(now),
	}
}

// MatchCreated schedules the notifications of a newly inserted match: one
// immediate notification to every participant but triggeredBy, and one
// reminder per lead time that is still ahead of the match start. Time-driven
// matches (empty triggeredBy) only get reminders.
func (n *NotificationScheduler) MatchCreated(m *models.Match, triggeredBy string) {
	matchID, matchKey := m.ID, m.MatchKey

	if triggeredBy != "" {
		n.jobs.After(0, "matched:"+matchID, func(ctx context.Context) {
			n.sendMatched(ctx, matchID, matchKey, triggeredBy)
		})
	}

	now := n.now()
	for _, lead := range n.leads {
		delay := m.OverlapStart.Sub(now) - lead
		if delay <= 0 {
			continue
		}
		n.jobs.After(delay, fmt.Sprintf("reminder:%s:%s", matchID, lead), func(ctx context.Context) {
			n.sendReminder(ctx, matchID, matchKey, lead)
		})
	}
}

func (n *NotificationScheduler) sendMatched(ctx context.Context, matchID, matchKey, triggeredBy string) {
	m, ok := n.current(ctx, matchID, matchKey)
	if !ok {
		return
	}

	recipients := make([]string, 0, len(m.UserIDs))
	for _, userID := range m.UserIDs {
		if userID != triggeredBy {
			recipients = append(recipients, userID)
		}
	}
	if len(recipients) == 0 {
		return
	}

	n.deliver(ctx, metrics.KindMatched, m, recipients, MatchedPayload(n.groupName(ctx, m.GroupID)))
}

func (n *NotificationScheduler) sendReminder(ctx context.Context, matchID, matchKey string, lead time.Duration) {
	m, ok := n.current(ctx, matchID, matchKey)
	if !ok {
		return
	}
	n.deliver(ctx, metrics.KindReminder, m, m.UserIDs, ReminderPayload(m.ID, n.groupName(ctx, m.GroupID), lead))
}

// current re-reads a match at fire time. A job is stale when the match is gone,
// its key no longer matches the one it was scheduled for, or its window elapsed.
func (n *NotificationScheduler) current(ctx context.Context, matchID, matchKey string) (*models.Match, bool) {
	m, err := n.store.Matches().GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug().Str("match_id", matchID).Msg("Match gone, skipping notification")
		} else {
			log.Error().Err(err).Str("match_id", matchID).Msg("Failed to load match for notification")
		}
		return nil, false
	}
	if m.MatchKey != matchKey || matching.Elapsed(m, n.now()) {
		log.Debug().Str("match_id", matchID).Msg("Match changed or ended, skipping notification")
		return nil, false
	}
	return m, true
}

func (n *NotificationScheduler) deliver(ctx context.Context, kind string, m *models.Match, userIDs []string, p notify.Payload) {
	for channel, err := range n.channels.SendEach(ctx, userIDs, p) {
		if err != nil {
			n.metrics.NotificationsLost.WithLabelValues(kind, channel).Inc()
			log.Error().
				Err(err).
				Str("match_id", m.ID).
				Str("kind", kind).
				Str("channel", channel).
				Msg("Failed to deliver notification")
			continue
		}
		n.metrics.NotificationsSent.WithLabelValues(kind, channel).Inc()
		log.Info().
			Str("match_id", m.ID).
			Str("kind", kind).
			Str("channel", channel).
			Strs("user_ids", userIDs).
			Msg("Notification delivered")
	}
}

func (n *NotificationScheduler) groupName(ctx context.Context, groupID string) string {
	name, err := n.store.Groups().Name(ctx, groupID)
	if err != nil || name == "" {
		return "a group"
	}
	return name
}

// MatchedPayload is sent right after a match appears
func MatchedPayload(groupName string) notify.Payload {
	return notify.Payload{
		Title: "You have a match!",
		Body:  fmt.Sprintf("Someone in %s is available to hang out!", groupName),
		URL:   "/",
		Icon:  notificationIcon,
	}
}

// ReminderPayload is sent lead before a match starts
func ReminderPayload(matchID, groupName string, lead time.Duration) notify.Payload {
	return notify.Payload{
		Title: fmt.Sprintf("Your match starts in %d minutes", int(lead/time.Minute)),
		Body:  fmt.Sprintf("Your hangout in %s is coming up.", groupName),
		URL:   "/chat/" + matchID,
		Icon:  notificationIcon,
	}
}
