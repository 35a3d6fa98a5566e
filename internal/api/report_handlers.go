package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rflorenc/mailbox-move-workbench/internal/report"
)

// DownloadReport renders the session in the format named by ?format=
// (delimited by default).
func (s *Server) DownloadReport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(report.Delimited)
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	now := time.Now()
	body, err := report.Render(sess, format, now)
	if err != nil {
		s.logger().Error("rendering report", "session", sess.ID, "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", report.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(format, now)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
