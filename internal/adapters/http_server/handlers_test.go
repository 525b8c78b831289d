package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"portfolio_reviews/internal/adapters/ratelimit"
	"portfolio_reviews/internal/app"
	"portfolio_reviews/internal/domain"
	"portfolio_reviews/internal/storage/filestore"
)

const testToken = "admin-secret"

type nopMailer struct{}

func (nopMailer) Send(context.Context, domain.Message) error { return nil }

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (time.Duration, bool, error) {
	return 42 * time.Second, false, nil
}

// blockingMailer holds every Send until release is closed.
type blockingMailer struct{ release chan struct{} }

func (m blockingMailer) Send(ctx context.Context, _ domain.Message) error {
	select {
	case <-m.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type harness struct {
	dir    string
	repo   *filestore.Repo
	audit  *filestore.AuditLog
	notify *app.Notifier
	svc    *app.ReviewService
	h      http.Handler
	now    time.Time
}

type harnessOpts struct {
	mailer     domain.Mailer
	trustProxy bool
}

func newHarness(t *testing.T, g Guards) *harness {
	t.Helper()
	return newHarnessWith(t, g, harnessOpts{})
}

func newHarnessWith(t *testing.T, g Guards, o harnessOpts) *harness {
	t.Helper()
	if o.mailer == nil {
		o.mailer = nopMailer{}
	}
	dir := t.TempDir()
	repo, err := filestore.New(dir)
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	audit, err := filestore.NewAuditLog(dir)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	hs := &harness{dir: dir, repo: repo, audit: audit, now: time.Now().UTC()}
	hs.notify = app.NewNotifier(o.mailer, "http://site", "", 0)
	hs.svc = app.NewReviewService(repo, audit, nil, hs.notify, 0).
		WithClock(func() time.Time { return hs.now })
	q := app.NewQueryService(repo, audit, nil, time.Minute)

	if g.AdminToken == "" {
		g.AdminToken = testToken
	}
	srv := New(o.trustProxy)
	srv.MountHandlers(&Handlers{Cmd: hs.svc, Q: q, AdminName: "owner"}, g)
	hs.h = srv.Mux()
	return hs
}

type resp struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
	Message string          `json:"message"`
}

func (hs *harness) do(t *testing.T, method, path string, body any, hdr map[string]string) (*httptest.ResponseRecorder, resp) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	hs.h.ServeHTTP(rr, req)
	var out resp
	if rr.Code != http.StatusNotModified && strings.Contains(rr.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rr.Body.String())
		}
	}
	return rr, out
}

func admin() map[string]string { return map[string]string{"Authorization": "Bearer " + testToken} }

func submission() map[string]any {
	return map[string]any{
		"name":           "Grace Hopper",
		"email":          "grace@example.com",
		"relationship":   "colleague",
		"rating":         5,
		"testimonial":    "Turned a messy legacy deployment into a reliable pipeline and taught the team along the way.",
		"recommendation": true,
		"consent":        true,
	}
}

func (hs *harness) submitOne(t *testing.T) string {
	t.Helper()
	rr, out := hs.do(t, "POST", "/api/reviews/submit", submission(), nil)
	if rr.Code != http.StatusCreated || !out.Success {
		t.Fatalf("submit: %d %s", rr.Code, rr.Body.String())
	}
	var data struct {
		ReviewID string `json:"reviewId"`
		Status   string `json:"status"`
	}
	_ = json.Unmarshal(out.Data, &data)
	if data.Status != "pending" || data.ReviewID == "" {
		t.Fatalf("unexpected submit data: %s", out.Data)
	}
	return data.ReviewID
}

func (hs *harness) token(t *testing.T, id string) string {
	t.Helper()
	rv, err := hs.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return rv.Verification.Token
}

func (hs *harness) verifiedOne(t *testing.T) string {
	t.Helper()
	id := hs.submitOne(t)
	rr, _ := hs.do(t, "POST", "/api/reviews/verify/"+id, map[string]string{"token": hs.token(t, id)}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", rr.Code, rr.Body.String())
	}
	return id
}

func TestIsValidAdminAuth(t *testing.T) {
	cases := []struct {
		name   string
		header string
		token  string
		want   bool
	}{
		{"exact", "Bearer s3cret", "s3cret", true},
		{"wrong token", "Bearer nope", "s3cret", false},
		{"missing header", "", "s3cret", false},
		{"lowercase scheme", "bearer s3cret", "s3cret", false},
		{"basic scheme", "Basic s3cret", "s3cret", false},
		{"bare token", "s3cret", "s3cret", false},
		{"extra space", "Bearer  s3cret", "s3cret", false},
		{"trailing data", "Bearer s3cret extra", "s3cret", false},
		{"empty configured token", "Bearer ", "", false},
		{"empty configured token any header", "Bearer anything", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isValidAdminAuth(tc.header, tc.token); got != tc.want {
				t.Fatalf("isValidAdminAuth(%q, %q) = %v, want %v", tc.header, tc.token, got, tc.want)
			}
		})
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	hs := newHarness(t, Guards{})
	for _, path := range []string{"/api/reviews/admin", "/api/reviews/admin/stats", "/api/reviews/admin/audit"} {
		rr, out := hs.do(t, "GET", path, nil, map[string]string{"Authorization": "Bearer wrong"})
		if rr.Code != http.StatusUnauthorized || out.Success || out.Error == nil || out.Error.Code != domain.CodeUnauthorized {
			t.Fatalf("%s: expected 401 UNAUTHORIZED, got %d %s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestSubmit_HoneypotIsSpam(t *testing.T) {
	hs := newHarness(t, Guards{})
	body := submission()
	body["honeypot"] = "i am a bot"

	rr, out := hs.do(t, "POST", "/api/reviews/submit", body, nil)
	if rr.Code != http.StatusBadRequest || out.Error == nil || out.Error.Code != domain.CodeSpam {
		t.Fatalf("expected SPAM_DETECTED, got %d %s", rr.Code, rr.Body.String())
	}
	ids, _ := os.ReadDir(filepath.Join(hs.dir, "reviews", "pending"))
	if len(ids) != 0 {
		t.Fatalf("spam must not be stored")
	}
}

func TestSubmit_ValidationAndBadJSON(t *testing.T) {
	hs := newHarness(t, Guards{})
	body := submission()
	body["rating"] = 0
	rr, out := hs.do(t, "POST", "/api/reviews/submit", body, nil)
	if rr.Code != http.StatusBadRequest || out.Error.Code != domain.CodeValidation || out.Error.Details["rating"] == "" {
		t.Fatalf("expected VALIDATION_ERROR on rating, got %d %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest("POST", "/api/reviews/submit", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("expected VALIDATION_ERROR for bad json, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestVerify_SecondCallIsAlreadyVerified(t *testing.T) {
	hs := newHarness(t, Guards{})
	id := hs.submitOne(t)
	tok := hs.token(t, id)

	// token in the query string works as well as in the body
	rr, out := hs.do(t, "POST", "/api/reviews/verify/"+id+"?token="+tok, nil, nil)
	if rr.Code != http.StatusOK || !out.Success {
		t.Fatalf("first verify: %d %s", rr.Code, rr.Body.String())
	}
	rr, out = hs.do(t, "POST", "/api/reviews/verify/"+id, map[string]string{"token": tok}, nil)
	if rr.Code != http.StatusConflict || out.Error.Code != domain.CodeAlreadyVerified {
		t.Fatalf("expected ALREADY_VERIFIED, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestVerify_ExpiredAndUnknown(t *testing.T) {
	hs := newHarness(t, Guards{})
	id := hs.submitOne(t)
	tok := hs.token(t, id)
	hs.now = hs.now.Add(8 * 24 * time.Hour)

	rr, out := hs.do(t, "POST", "/api/reviews/verify/"+id, map[string]string{"token": tok}, nil)
	if rr.Code != http.StatusGone || out.Error.Code != domain.CodeExpired {
		t.Fatalf("expected EXPIRED, got %d %s", rr.Code, rr.Body.String())
	}
	rr, out = hs.do(t, "POST", "/api/reviews/verify/review_1_00000000", map[string]string{"token": "x"}, nil)
	if rr.Code != http.StatusNotFound || out.Error.Code != domain.CodeNotFound {
		t.Fatalf("expected REVIEW_NOT_FOUND, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAdminApproveMovesFileAndAppendsOneAuditLine(t *testing.T) {
	hs := newHarness(t, Guards{})
	id := hs.verifiedOne(t)

	rr, out := hs.do(t, "POST", "/api/reviews/admin", map[string]any{"reviewId": id, "action": "approve", "notes": "lovely"}, admin())
	if rr.Code != http.StatusOK || !out.Success {
		t.Fatalf("approve: %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(string(out.Data), "token") {
		t.Fatalf("verification token leaked: %s", out.Data)
	}
	if _, err := os.Stat(filepath.Join(hs.dir, "reviews", "approved", id+".json")); err != nil {
		t.Fatalf("approved file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(hs.dir, "reviews", "verified", id+".json")); !os.IsNotExist(err) {
		t.Fatalf("verified copy should be removed")
	}

	raw, err := os.ReadFile(filepath.Join(hs.dir, "audit", "admin-actions.log"))
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 audit line, got %d", len(lines))
	}
	var entry domain.AdminActionLog
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("audit line: %v", err)
	}
	if entry.ReviewID != id || entry.Admin != "owner" || entry.After.Status != domain.StatusApproved {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}

	// public list now carries the review
	rr, out = hs.do(t, "GET", "/api/reviews", nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(string(out.Data), id) {
		t.Fatalf("public list should include %s: %s", id, rr.Body.String())
	}
}

func TestAdminActionErrors(t *testing.T) {
	hs := newHarness(t, Guards{})
	pending := hs.submitOne(t)

	rr, out := hs.do(t, "POST", "/api/reviews/admin", map[string]any{"reviewId": pending, "action": "approve"}, admin())
	if rr.Code != http.StatusConflict || out.Error.Code != domain.CodeInvalidTransition {
		t.Fatalf("pending approve: expected INVALID_TRANSITION, got %d %s", rr.Code, rr.Body.String())
	}
	rr, out = hs.do(t, "POST", "/api/reviews/admin", map[string]any{"reviewId": "review_9_ffffffff", "action": "reject"}, admin())
	if rr.Code != http.StatusNotFound || out.Error.Code != domain.CodeNotFound {
		t.Fatalf("expected REVIEW_NOT_FOUND, got %d %s", rr.Code, rr.Body.String())
	}
	rr, out = hs.do(t, "POST", "/api/reviews/admin", map[string]any{"reviewId": pending, "action": "nuke"}, admin())
	if rr.Code != http.StatusBadRequest || out.Error.Code != domain.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAdminListPagination(t *testing.T) {
	hs := newHarness(t, Guards{})
	for i := 0; i < 5; i++ {
		hs.verifiedOne(t)
		hs.now = hs.now.Add(time.Second)
	}

	rr, out := hs.do(t, "GET", "/api/reviews/admin?status=verified&limit=2&offset=2", nil, admin())
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}
	var data struct {
		Reviews    []map[string]any `json:"reviews"`
		Pagination pagination       `json:"pagination"`
	}
	_ = json.Unmarshal(out.Data, &data)
	if len(data.Reviews) != 2 || data.Pagination != (pagination{Total: 5, Limit: 2, Offset: 2, HasMore: true}) {
		t.Fatalf("unexpected page: %+v", data.Pagination)
	}
	if _, ok := data.Reviews[0]["verification"]; ok {
		t.Fatalf("verification block must be hidden")
	}

	for _, q := range []string{"?limit=0", "?limit=101", "?limit=abc", "?offset=-1", "?status=pending"} {
		rr, out := hs.do(t, "GET", "/api/reviews/admin"+q, nil, admin())
		if rr.Code != http.StatusBadRequest || out.Error.Code != domain.CodeValidation {
			t.Fatalf("%s: expected VALIDATION_ERROR, got %d %s", q, rr.Code, rr.Body.String())
		}
	}
}

func TestAdminStatsAndAudit(t *testing.T) {
	hs := newHarness(t, Guards{})
	id := hs.verifiedOne(t)
	hs.submitOne(t)
	hs.do(t, "POST", "/api/reviews/admin", map[string]any{"reviewId": id, "action": "approve"}, admin())
	hs.do(t, "POST", "/api/reviews/admin", map[string]any{"reviewId": id, "action": "feature"}, admin())

	_, out := hs.do(t, "GET", "/api/reviews/admin/stats", nil, admin())
	var st domain.Stats
	_ = json.Unmarshal(out.Data, &st)
	if st.Pending != 1 || st.Approved != 1 || st.Featured != 1 || st.Total != 2 || st.AverageRating != 5 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	_, out = hs.do(t, "GET", "/api/reviews/admin/audit?limit=1", nil, admin())
	var data struct {
		Entries []domain.AdminActionLog `json:"entries"`
	}
	_ = json.Unmarshal(out.Data, &data)
	if len(data.Entries) != 1 || data.Entries[0].Action != domain.ActionFeature {
		t.Fatalf("expected newest entry to be the feature action: %+v", data.Entries)
	}
}

func TestPublicListETag(t *testing.T) {
	hs := newHarness(t, Guards{})
	rr, _ := hs.do(t, "GET", "/api/reviews?featured=true", nil, nil)
	etag := rr.Header().Get("ETag")
	if rr.Code != http.StatusOK || !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("expected 200 with weak etag, got %d %q", rr.Code, etag)
	}
	rr, _ = hs.do(t, "GET", "/api/reviews?featured=true", nil, map[string]string{"If-None-Match": etag})
	if rr.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rr.Code)
	}
	rr, _ = hs.do(t, "GET", "/api/reviews?limit=500", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=500, got %d", rr.Code)
	}
}

func TestRateLimitedSubmit(t *testing.T) {
	hs := newHarness(t, Guards{Submit: denyLimiter{}})
	rr, out := hs.do(t, "POST", "/api/reviews/submit", submission(), nil)
	if rr.Code != http.StatusTooManyRequests || out.Error.Code != domain.CodeRateLimited {
		t.Fatalf("expected 429 RATE_LIMIT_EXCEEDED, got %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") != "42" {
		t.Fatalf("expected Retry-After 42, got %q", rr.Header().Get("Retry-After"))
	}
	// other routes are not affected
	if rr, _ := hs.do(t, "GET", "/healthz", nil, nil); rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
}

func TestRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	hs := newHarness(t, Guards{Submit: ratelimit.NewBucket(1, time.Hour)})
	hs.submitOne(t)
	for _, xff := range []string{"203.0.113.1", "203.0.113.2", "10.0.0.1, 192.0.2.1"} {
		rr, out := hs.do(t, "POST", "/api/reviews/submit", submission(), map[string]string{"X-Forwarded-For": xff, "X-Real-IP": xff})
		if rr.Code != http.StatusTooManyRequests || out.Error.Code != domain.CodeRateLimited {
			t.Fatalf("X-Forwarded-For %q should share the socket peer bucket, got %d %s", xff, rr.Code, rr.Body.String())
		}
	}
}

func TestRateLimitHonoursForwardedForBehindTrustedProxy(t *testing.T) {
	hs := newHarnessWith(t, Guards{Submit: ratelimit.NewBucket(1, time.Hour)}, harnessOpts{trustProxy: true})
	for _, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		rr, _ := hs.do(t, "POST", "/api/reviews/submit", submission(), map[string]string{"X-Forwarded-For": xff})
		if rr.Code != http.StatusCreated {
			t.Fatalf("client %s: expected 201, got %d %s", xff, rr.Code, rr.Body.String())
		}
	}
	rr, _ := hs.do(t, "POST", "/api/reviews/submit", submission(), map[string]string{"X-Forwarded-For": "203.0.113.1"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("repeat client should be limited, got %d", rr.Code)
	}
}

func TestSubmitAndVerifyDoNotWaitForMailer(t *testing.T) {
	m := blockingMailer{release: make(chan struct{})}
	hs := newHarnessWith(t, Guards{}, harnessOpts{mailer: m})
	t.Cleanup(func() {
		close(m.release)
		_ = hs.notify.Drain(context.Background())
	})

	start := time.Now()
	id := hs.submitOne(t)
	rr, out := hs.do(t, "POST", "/api/reviews/verify/"+id, map[string]string{"token": hs.token(t, id)}, nil)
	if rr.Code != http.StatusOK || !out.Success || out.Message == "" {
		t.Fatalf("verify: expected enveloped 200, got %d %s", rr.Code, rr.Body.String())
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("requests waited on the mailer for %v", elapsed)
	}
}
