package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/mailbox-move-workbench/internal/ingest"
	"github.com/rflorenc/mailbox-move-workbench/internal/migration"
	"github.com/rflorenc/mailbox-move-workbench/internal/models"
	"github.com/rflorenc/mailbox-move-workbench/internal/store"
)

const maxUploadBytes = 10 << 20

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  s.StoreBackend,
		"mover":  s.MoverBackend,
	})
}

// UploadRecords parses a CSV sent as the multipart field "file".
func (s *Server) UploadRecords(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required: "+err.Error())
		return
	}
	defer file.Close()

	res, err := ingest.ParseCSV(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid CSV: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type recordsRequest struct {
	SessionID string                 `json:"session_id"`
	Records   []models.MailboxRecord `json:"records"`
	Config    models.SessionConfig   `json:"config"`
}

// decodeRecords reads a recordsRequest and drops incomplete records. It
// writes the error response itself and returns false on failure.
func decodeRecords(w http.ResponseWriter, r *http.Request) (recordsRequest, bool) {
	var req recordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}
	req.Records = ingest.Filter(req.Records).Records
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "at least one complete record is required")
		return req, false
	}
	return req, true
}

// ValidateRecords validates synchronously and returns one outcome per
// record in input order.
func (s *Server) ValidateRecords(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRecords(w, r)
	if !ok {
		return
	}
	results := s.Orchestrator.Validator().ValidateAll(r.Context(), req.Records)
	writeJSON(w, http.StatusOK, results)
}

// StartMigration creates a session and returns before any mailbox moves.
func (s *Server) StartMigration(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRecords(w, r)
	if !ok {
		return
	}

	sess, err := s.Orchestrator.Start(r.Context(), req.SessionID, req.Records, req.Config)
	switch {
	case errors.Is(err, store.ErrExists):
		writeError(w, http.StatusConflict, "session already exists")
		return
	case errors.Is(err, migration.ErrNoRecords):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger().Error("starting migration", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger().Info("migration accepted", "session", sess.ID, "mailboxes", len(sess.Records),
		"batch_size", sess.Config.BatchSize)
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sess.ID})
}

func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]models.Summary, len(sessions))
	for i, sess := range sessions {
		out[i] = sess.Summarize()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// lookupSession loads the session named in the URL, answering 404 itself
// when it does not exist.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*models.MigrationSession, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.Sessions.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return sess, true
}
