package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TheusHen/parley/parley/seeker"
	"github.com/TheusHen/parley/parley/transport"
)

// maxBody bounds request bodies; base64 and JSON framing inflate payloads by ~4/3.
const maxBody = 2*transport.MaxMessageSize + 64<<10

type handler struct {
	backend transport.Transport
	log     zerolog.Logger
}

// NewHandler serves backend over the relay API. Every request is access-logged
// with a request id, echoed in the X-Request-ID response header.
func NewHandler(backend transport.Transport, log zerolog.Logger) http.Handler {
	h := &handler{backend: backend, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pathAnnouncements, h.sendAnnouncement)
	mux.HandleFunc("GET "+pathAnnouncements, h.fetchAnnouncements)
	mux.HandleFunc("POST "+pathMessages, h.sendMessage)
	mux.HandleFunc("POST "+pathFetchMessages, h.fetchMessages)
	mux.HandleFunc("GET "+pathHealth, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return h.accessLog(mux)
}

func (h *handler) sendAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.backend.SendAnnouncement(r.Context(), req.Data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, announceResponse{Counter: n})
}

func (h *handler) fetchAnnouncements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since uint64
	if s := q.Get("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		since = v
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}
	out, err := h.backend.FetchAnnouncements(r.Context(), since, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out == nil {
		out = []transport.Announcement{}
	}
	writeJSON(w, http.StatusOK, announcementsResponse{Announcements: out})
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var msg transport.Message
	if !decode(w, r, &msg) {
		return
	}
	if err := h.backend.SendMessage(r.Context(), msg); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) fetchMessages(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.backend.FetchMessages(r.Context(), req.Seekers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out == nil {
		out = []transport.Message{}
	}
	writeJSON(w, http.StatusOK, fetchResponse{Messages: out})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, transport.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, transport.ErrTooManySeekers), errors.Is(err, seeker.ErrInvalidStructure):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("request_id", w.Header().Get(headerRequestID)).Str("path", r.URL.Path).Msg("backend failure")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		h.log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Str("proto", r.Proto).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
