package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/mailscout/bulkq"
	"github.com/mailscout/bulkq/id"
	"github.com/mailscout/bulkq/stream"
)

// streamConnSeq numbers WebSocket connections for subscriber ids.
var streamConnSeq atomic.Int64

// clientMessage is what a dashboard session may send upstream: credit
// replenishment for flow control, and optional extra job subscriptions.
type clientMessage struct {
	Credits  int64  `json:"credits,omitempty"`
	WatchJob string `json:"watch_job,omitempty"`
}

// handleStream upgrades to WebSocket and forwards the owner's lifecycle
// events. The session starts on the owner topic; a "job" query parameter
// or a watch_job message narrows in on a single job the caller owns.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())

	topics := []string{stream.OwnerTopic(owner)}
	if watch := r.URL.Query().Get("job"); watch != "" {
		jobID, err := a.watchableJob(r, watch)
		if err != nil {
			respondError(w, err)
			return
		}
		topics = append(topics, stream.JobTopic(jobID.String()))
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	connID := fmt.Sprintf("ws-%s-%d", owner, streamConnSeq.Add(1))
	sub := a.orc.Stream().Subscribe(connID, topics...)
	defer func() {
		a.orc.Stream().RemoveSubscriber(connID)
		conn.Close() //nolint:errcheck // connection teardown
	}()

	a.logger.Info("stream session opened",
		slog.String("conn_id", connID),
		slog.String("owner", owner),
	)

	// Writer: broker events out to the socket.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub.C() {
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return
			}
		}
	}()

	// Reader: credits and extra subscriptions in from the socket.
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			break
		}
		var msg clientMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Credits > 0 {
			sub.AddCredits(msg.Credits)
		}
		if msg.WatchJob != "" {
			if jobID, err := a.watchableJob(r, msg.WatchJob); err == nil {
				a.orc.Stream().SubscribeTo(connID, stream.JobTopic(jobID.String()))
			}
		}
	}

	a.orc.Stream().RemoveSubscriber(connID)
	<-done
	a.logger.Info("stream session closed",
		slog.String("conn_id", connID),
		slog.Int64("dropped_events", sub.Dropped()),
	)
}

// watchableJob validates a job id the session wants to watch and checks it
// belongs to the calling account.
func (a *API) watchableJob(r *http.Request, raw string) (id.JobID, error) {
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return id.Nil, bulkq.NewValidationError("job", "invalid job id")
	}
	if _, err := a.orc.Reporter().GetJob(r.Context(), ownerFrom(r.Context()), jobID); err != nil {
		return id.Nil, err
	}
	return jobID, nil
}
