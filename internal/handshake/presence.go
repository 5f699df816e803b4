package handshake

import (
	"context"
	"log/slog"
	"time"

	"github.com/alpinai/skilder/internal/cache"
	"github.com/alpinai/skilder/internal/logging"
	"github.com/alpinai/skilder/internal/models"
)

// Presence is left in the heartbeat bucket by every successful handshake,
// keyed by "<nature>:<id>". It lapses with the bucket TTL unless the
// peer handshakes or heartbeats again.
type Presence struct {
	Nature      models.Nature `json:"nature"`
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	WorkspaceID string        `json:"workspaceId,omitempty"`
	PID         *int          `json:"pid,omitempty"`
	HostIP      string        `json:"hostIP"`
	Hostname    string        `json:"hostname,omitempty"`
	SeenAt      time.Time     `json:"seenAt"`
}

// PresenceKey is the heartbeat bucket key of an identity.
func PresenceKey(nature models.Nature, id string) string {
	return string(nature) + ":" + id
}

// RecordPresence returns a callback that writes a Presence entry for
// each handshake. Write failures are logged and do not affect the
// handshake.
func RecordPresence(bucket *cache.Bucket[Presence], logger *slog.Logger, now func() time.Time) Callback {
	logger = logging.Component(logger, "presence")

	if now == nil {
		now = time.Now
	}

	return func(ctx context.Context, ev Event) {
		p := Presence{
			Nature:   ev.Nature,
			PID:      ev.PID,
			HostIP:   ev.HostIP,
			Hostname: ev.Hostname,
			SeenAt:   now(),
		}

		switch {
		case ev.Runtime != nil:
			p.ID, p.Name, p.WorkspaceID = ev.Runtime.ID, ev.Runtime.Name, ev.Runtime.WorkspaceID
		case ev.Skill != nil:
			p.ID, p.Name, p.WorkspaceID = ev.Skill.ID, ev.Skill.Name, ev.Skill.WorkspaceID
		default:
			return
		}

		if _, err := bucket.Put(ctx, PresenceKey(p.Nature, p.ID), p); err != nil {
			logger.Warn("recording presence failed",
				slog.String("key", PresenceKey(p.Nature, p.ID)),
				slog.String("error", err.Error()),
			)
		}
	}
}
