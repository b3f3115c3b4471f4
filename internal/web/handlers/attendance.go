package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/facegate/facegate/internal/ledger"
)

const dateLayout = "2006-01-02"

// AttendanceHandler exposes the day's attendance records and CSV export.
type AttendanceHandler struct {
	ledger *ledger.Ledger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(lg *ledger.Ledger) *AttendanceHandler {
	return &AttendanceHandler{ledger: lg}
}

// requestedDate resolves the optional date query parameter, defaulting to
// today. Prior days stay queryable.
func requestedDate(r *http.Request) (string, error) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return time.Now().Format(dateLayout), nil
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return date, nil
}

// Get returns a date's attendance records ordered by check-in time.
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	date, err := requestedDate(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.ledger.Records(date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read attendance records")
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"date":    date,
		"records": records,
	})
}

// Export returns a date's attendance as CSV with the name,time header.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	date, err := requestedDate(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.ledger.Export(date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to export attendance records")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=attendance_%s.csv", date))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
