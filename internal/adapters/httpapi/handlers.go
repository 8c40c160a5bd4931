package httpapi

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/Reddy-45/siem/internal/domain"
)

type handlers struct {
	svc            Service
	trustForwarded bool
	maxBodyBytes   int64
	archive        ReportArchive
}

type errorResponse struct {
	Error string `json:"error"`
}

type blockedResponse struct {
	Detail        string     `json:"detail"`
	SourceAddress netip.Addr `json:"source_address"`
}

type storedResponse struct {
	Message string        `json:"message"`
	Event   *domain.Event `json:"event"`
}

type unblockResponse struct {
	Unblocked bool   `json:"unblocked"`
	Detail    string `json:"detail,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// eventPayload is the ingestion body. identity and outcome are accepted as
// aliases of username and status.
type eventPayload struct {
	EventType string `json:"event_type"`
	Username  string `json:"username"`
	Identity  string `json:"identity"`
	Status    string `json:"status"`
	Outcome   string `json:"outcome"`
}

func (p eventPayload) identity() string {
	if p.Username != "" {
		return p.Username
	}
	return p.Identity
}

func (p eventPayload) outcome() string {
	if p.Status != "" {
		return p.Status
	}
	return p.Outcome
}

// ingest handles POST /api/log. The block check runs before the body is
// read, so a blocked source costs no parsing or enrichment.
func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	addr, err := ResolveSourceAddress(r.Header.Get("X-Forwarded-For"), r.RemoteAddr, h.trustForwarded)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if h.svc.IsBlocked(addr) {
		writeJSON(w, http.StatusForbidden, blockedResponse{Detail: domain.ReasonBlocked, SourceAddress: addr})
		return
	}

	payload, err := h.decodePayload(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	req, err := domain.NewIngestRequest(payload.EventType, payload.identity(), payload.outcome(), addr.String())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	decision := h.svc.Ingest(r.Context(), req)
	if !decision.IsAccepted() {
		writeJSON(w, http.StatusForbidden, blockedResponse{Detail: decision.Reason, SourceAddress: addr})
		return
	}

	writeJSON(w, http.StatusOK, storedResponse{Message: "Log stored successfully", Event: decision.Event})
}

var errMalformedBody = errors.New("malformed request body")

func (h *handlers) decodePayload(w http.ResponseWriter, r *http.Request) (eventPayload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return eventPayload{}, errMalformedBody
		}
		var p eventPayload
		if len(bytes.TrimSpace(data)) == 0 {
			return p, nil
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return eventPayload{}, errMalformedBody
		}
		return p, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxBodyBytes); err != nil {
			return eventPayload{}, errMalformedBody
		}
	default:
		if err := r.ParseForm(); err != nil {
			return eventPayload{}, errMalformedBody
		}
	}

	return eventPayload{
		EventType: r.FormValue("event_type"),
		Username:  r.FormValue("username"),
		Identity:  r.FormValue("identity"),
		Status:    r.FormValue("status"),
		Outcome:   r.FormValue("outcome"),
	}, nil
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	events := h.svc.Events()
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handlers) listBlocked(w http.ResponseWriter, r *http.Request) {
	blocked := h.svc.Blocked()
	if blocked == nil {
		blocked = []domain.BlockEntry{}
	}
	writeJSON(w, http.StatusOK, blocked)
}

func (h *handlers) listReports(w http.ResponseWriter, r *http.Request) {
	reports := h.svc.Reports()
	if reports == nil {
		reports = []*domain.IncidentReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *handlers) listArchived(w http.ResponseWriter, r *http.Request) {
	var (
		reports []*domain.IncidentReport
		err     error
	)
	if raw := r.URL.Query().Get("address"); raw != "" {
		addr, perr := domain.ParseSourceAddress(raw)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: perr.Error()})
			return
		}
		reports, err = h.archive.ListByAddress(addr)
	} else {
		reports, err = h.archive.List()
	}
	if err != nil {
		log.Error().Err(err).Msg("Report archive read failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "archive unavailable"})
		return
	}
	if reports == nil {
		reports = []*domain.IncidentReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *handlers) getArchived(w http.ResponseWriter, r *http.Request) {
	report, ok := h.archive.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "report not found"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) unblock(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseSourceAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if !h.svc.Unblock(addr) {
		writeJSON(w, http.StatusNotFound, unblockResponse{Unblocked: false, Detail: "not blocked"})
		return
	}
	writeJSON(w, http.StatusOK, unblockResponse{Unblocked: true})
}

func (h *handlers) clear(w http.ResponseWriter, r *http.Request) {
	h.svc.Clear()
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logs cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
