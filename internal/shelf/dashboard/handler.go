package dashboard

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
	shelfsync "github.com/mschirtzinger/inkshelf/internal/shelf/sync"
)

// PassStartedData announces a pass.
type PassStartedData struct {
	Direction shelfsync.Direction `json:"direction"`
}

// EntitySyncedData reports one record.
type EntitySyncedData struct {
	Kind   schema.Kind `json:"kind"`
	ID     string      `json:"id"`
	PageID string      `json:"page_id,omitempty"`
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
}

// PassCompleteData summarizes a finished pass.
type PassCompleteData struct {
	Direction shelfsync.Direction              `json:"direction"`
	DryRun    bool                             `json:"dry_run,omitempty"`
	Duration  string                           `json:"duration"`
	Total     shelfsync.Counts                 `json:"total"`
	ByKind    map[schema.Kind]shelfsync.Counts `json:"by_kind"`
	Errors    []string                         `json:"errors,omitempty"`
}

// StatusData is the running tally sent to new clients.
type StatusData struct {
	Running       bool                `json:"running"`
	Direction     shelfsync.Direction `json:"direction,omitempty"`
	Passes        int                 `json:"passes"`
	Synced        int                 `json:"synced"`
	Failed        int                 `json:"failed"`
	LastCompleted *time.Time          `json:"last_completed,omitempty"`
}

// Handler turns sync progress into dashboard messages. It implements
// sync.Observer and is safe for concurrent use.
type Handler struct {
	server *Server
	logger *log.Logger

	mu     sync.Mutex
	status StatusData
}

// NewHandler creates a handler that broadcasts through server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{server: server, logger: logger}
	server.SetStatus(h.statusJSON)
	return h
}

// PassStarted handles the start of a pass.
func (h *Handler) PassStarted(dir shelfsync.Direction) {
	h.mu.Lock()
	h.status.Running = true
	h.status.Direction = dir
	h.mu.Unlock()

	h.send(MessageTypePassStarted, PassStartedData{Direction: dir})
}

// EntitySynced handles one record's result.
func (h *Handler) EntitySynced(kind schema.Kind, id, pageID string, err error) {
	data := EntitySyncedData{Kind: kind, ID: id, PageID: pageID, OK: err == nil}

	h.mu.Lock()
	if err != nil {
		data.Error = err.Error()
		h.status.Failed++
	} else {
		h.status.Synced++
	}
	h.mu.Unlock()

	h.send(MessageTypeEntitySynced, data)
}

// PassComplete handles the end of a pass.
func (h *Handler) PassComplete(r *shelfsync.Report) {
	h.logger.Printf("Pass complete: %s", r)

	data := PassCompleteData{
		Direction: r.Direction,
		DryRun:    r.DryRun,
		Duration:  r.Duration().Round(time.Millisecond).String(),
		Total:     r.Total(),
		ByKind:    make(map[schema.Kind]shelfsync.Counts),
	}
	for _, kind := range schema.Kinds {
		if c := r.Counts(kind); c != (shelfsync.Counts{}) {
			data.ByKind[kind] = c
		}
	}
	for _, err := range r.Errors() {
		data.Errors = append(data.Errors, err.Error())
	}
	sort.Strings(data.Errors)

	h.mu.Lock()
	finished := r.Finished
	h.status.Running = false
	h.status.Passes++
	h.status.LastCompleted = &finished
	h.mu.Unlock()

	h.send(MessageTypePassComplete, data)
}

// Status returns the current tally.
func (h *Handler) Status() StatusData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handler) statusJSON() json.RawMessage {
	data, err := json.Marshal(h.Status())
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return nil
	}
	return data
}

func (h *Handler) send(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}
