package dashboard

import (
	"encoding/json"
	"log"
	gosync "sync"
	"time"

	"github.com/vbgl/encryptic/internal/record"
	"github.com/vbgl/encryptic/internal/sync"
)

// PassStartedData contains pass start information
type PassStartedData struct {
	ProfileID string    `json:"profile_id"`
	StartedAt time.Time `json:"started_at"`
}

// PassStoppedData contains the outcome of a pass
type PassStoppedData struct {
	ProfileID     string                  `json:"profile_id"`
	Status        sync.Status             `json:"status"`
	Error         string                  `json:"error,omitempty"`
	Duration      time.Duration           `json:"duration"`
	RemoteChanges int                     `json:"remote_changes"`
	LocalChanges  int                     `json:"local_changes"`
	Collections   []sync.CollectionResult `json:"collections,omitempty"`
	NextInterval  time.Duration           `json:"next_interval"`
}

// RemoteAppliedData identifies a remote record written locally
type RemoteAppliedData struct {
	Collection record.Collection `json:"collection"`
	RecordID   string            `json:"record_id"`
	Updated    int64             `json:"updated"`
}

// StatsData contains running totals since the server started
type StatsData struct {
	Passes        int                       `json:"passes"`
	Failures      int                       `json:"failures"`
	Running       bool                      `json:"running"`
	RemoteApplied map[record.Collection]int `json:"remote_applied"`
	LastStatus    sync.Status               `json:"last_status,omitempty"`
	LastError     string                    `json:"last_error,omitempty"`
	LastPassAt    time.Time                 `json:"last_pass_at,omitempty"`
	NextInterval  time.Duration             `json:"next_interval"`
}

// Handler turns lifecycle events into dashboard messages and keeps the
// totals. It implements sync.Emitter and is safe for concurrent use.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    gosync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
		stats: StatsData{
			RemoteApplied: make(map[record.Collection]int),
		},
	}
}

// Emit implements sync.Emitter.
func (h *Handler) Emit(event sync.Event) {
	switch e := event.(type) {
	case sync.PassStarted:
		h.onPassStarted(e)
	case sync.PassStopped:
		h.onPassStopped(e)
	case sync.RemoteApplied:
		h.onRemoteApplied(e)
	}
}

func (h *Handler) onPassStarted(e sync.PassStarted) {
	h.mu.Lock()
	h.stats.Running = true
	h.mu.Unlock()

	h.send(MessageTypePassStarted, e.At, PassStartedData{ProfileID: e.ProfileID, StartedAt: e.At})
}

func (h *Handler) onPassStopped(e sync.PassStopped) {
	data := PassStoppedData{
		ProfileID:     e.ProfileID,
		Status:        e.Status,
		Duration:      e.Duration,
		RemoteChanges: e.RemoteChanges(),
		LocalChanges:  e.LocalChanges(),
		Collections:   e.Collections,
		NextInterval:  e.NextInterval,
	}
	if e.Err != nil {
		data.Error = e.Err.Error()
	}

	h.mu.Lock()
	h.stats.Running = false
	h.stats.Passes++
	if e.Status == sync.StatusError {
		h.stats.Failures++
	}
	h.stats.LastStatus = e.Status
	h.stats.LastError = data.Error
	h.stats.LastPassAt = e.StartedAt.Add(e.Duration)
	h.stats.NextInterval = e.NextInterval
	h.mu.Unlock()

	h.send(MessageTypePassStopped, time.Now(), data)
	h.broadcastStats()
}

func (h *Handler) onRemoteApplied(e sync.RemoteApplied) {
	h.mu.Lock()
	h.stats.RemoteApplied[e.Collection]++
	h.mu.Unlock()

	h.send(MessageTypeRemoteApplied, time.Now(), RemoteAppliedData{
		Collection: e.Collection,
		RecordID:   e.Record.ID,
		Updated:    e.Record.Updated,
	})
}

// Stats returns a copy of the running totals.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.stats
	out.RemoteApplied = make(map[record.Collection]int, len(h.stats.RemoteApplied))
	for c, n := range h.stats.RemoteApplied {
		out.RemoteApplied[c] = n
	}
	return out
}

func (h *Handler) statsMessage() (Message, error) {
	dataJSON, err := json.Marshal(h.Stats())
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: dataJSON}, nil
}

func (h *Handler) broadcastStats() {
	msg, err := h.statsMessage()
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}
	h.server.Broadcast(msg)
}

func (h *Handler) send(typ MessageType, at time.Time, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: dataJSON})
}
