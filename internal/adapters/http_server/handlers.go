package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"portfolio_reviews/internal/app"
	"portfolio_reviews/internal/domain"
)

const maxBody = 64 << 10

type Handlers struct {
	Cmd       *app.ReviewService
	Q         *app.QueryService
	AdminName string
	// Ready reports dependency health for /healthz; nil means always ready.
	Ready func(r *http.Request) error
}

// Guards are the access controls in front of the routes. A nil limiter disables that limit.
type Guards struct {
	AdminToken string
	Submit     domain.RateLimiter
	Verify     domain.RateLimiter
	Admin      domain.RateLimiter
}

func (s *Server) MountHandlers(h *Handlers, g Guards) {
	s.mux.Get("/healthz", h.healthz)
	s.mux.Route("/api/reviews", func(r chi.Router) {
		r.Get("/", h.listPublished)
		r.With(RateLimit("submit", g.Submit)).Post("/submit", h.submit)
		r.With(RateLimit("verify", g.Verify)).Post("/verify/{reviewId}", h.verify)
		r.Route("/admin", func(r chi.Router) {
			r.Use(RateLimit("admin", g.Admin))
			r.Use(AdminAuth(g.AdminToken))
			r.Get("/", h.adminList)
			r.Post("/", h.adminAction)
			r.Get("/stats", h.adminStats)
			r.Get("/audit", h.adminAudit)
		})
	})
}

func meta(r *http.Request) app.RequestMeta {
	return app.RequestMeta{
		RequestID: chimw.GetReqID(r.Context()),
		IP:        remoteIP(r),
		UserAgent: r.UserAgent(),
	}
}

// decodeBody reads a JSON object into dst. An empty body is allowed when optional.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return &domain.Error{Code: domain.CodeValidation, Message: "request body must be a JSON object"}
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &domain.Error{
			Code: domain.CodeValidation, Message: "invalid " + key,
			Details: map[string]string{key: "must be an integer"},
		}
	}
	return n, nil
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r); err != nil {
			log.Warn().Err(err).Msg("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request) {
	var sub app.Submission
	if err := decodeBody(w, r, &sub, false); err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Cmd.Submit(r.Context(), sub, meta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated,
		map[string]any{"reviewId": rv.ID, "status": rv.Status},
		"Thank you! Please check your email to verify your review.")
}

func (h *Handlers) verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(w, r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	token := body.Token
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	rv, err := h.Cmd.Verify(r.Context(), chi.URLParam(r, "reviewId"), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK,
		map[string]any{"reviewId": rv.ID, "status": rv.Status},
		"Your review has been verified and is awaiting moderation.")
}

type pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

func (h *Handlers) adminList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", app.DefaultAdminLimit)
	if err == nil && limit == 0 {
		err = &domain.Error{Code: domain.CodeValidation, Message: "invalid pagination",
			Details: map[string]string{"limit": "must be between 1 and 100"}}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.Q.ListForAdmin(r.Context(), app.AdminListQuery{
		Status: r.URL.Query().Get("status"), Limit: limit, Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"reviews": viewsOf(page.Items),
		"pagination": pagination{
			Total: page.Total, Limit: page.Limit, Offset: page.Offset, HasMore: page.HasMore(),
		},
	}, "")
}

var actionMessages = map[domain.Action]string{
	domain.ActionApprove:   "Review approved",
	domain.ActionReject:    "Review rejected",
	domain.ActionFeature:   "Review featured",
	domain.ActionUnfeature: "Review unfeatured",
}

type actionRequest struct {
	ReviewID string        `json:"reviewId"`
	Action   domain.Action `json:"action"`
	Notes    *string       `json:"notes"`
	Reason   *string       `json:"reason"`
}

func (h *Handlers) adminAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Cmd.Moderate(r.Context(), app.ModerationCommand{
		ReviewID: req.ReviewID,
		Action:   req.Action,
		Notes:    req.Notes,
		Reason:   req.Reason,
		Admin:    h.AdminName,
		Meta:     meta(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, viewOf(rv), actionMessages[req.Action])
}

func (h *Handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Q.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st, "")
}

func (h *Handlers) adminAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err == nil && (limit < 1 || limit > 500) {
		err = &domain.Error{Code: domain.CodeValidation, Message: "invalid limit",
			Details: map[string]string{"limit": "must be between 1 and 500"}}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.Q.RecentActions(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"entries": entries}, "")
}

func (h *Handlers) listPublished(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeError(w, r, &domain.Error{
				Code: domain.CodeValidation, Message: "invalid limit",
				Details: map[string]string{"limit": "must be an integer between 1 and 200"},
			})
			return
		}
		limit = l
	}
	featured := r.URL.Query().Get("featured") == "true"

	out, err := h.Q.Published(r.Context(), featured, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag, body := calcETagAndBody(envelope{Success: true, Data: map[string]any{"reviews": out, "count": len(out)}})
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write published reviews body")
	}
}
