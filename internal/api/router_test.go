package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trackr/internal/api/handler"
	"github.com/timmy/trackr/internal/config"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/fetcher"
	"github.com/timmy/trackr/internal/repository/memstore"
	"github.com/timmy/trackr/internal/service"
	"github.com/timmy/trackr/internal/storage"
)

type testServer struct {
	router *gin.Engine
	svc    *Services
}

func newTestServer(t *testing.T, f fetcher.MetricFetcher, store storage.ObjectStorage) *testServer {
	t.Helper()
	if f == nil {
		f = fetcher.Func(func(context.Context, string, domain.Platform) (domain.Metrics, error) {
			return domain.Metrics{Views: 100, Likes: 10, Comments: 2, Shares: 1}, nil
		})
	}

	db := memstore.New()
	pool := service.NewWorkerPool(2, 16)
	pool.Start()
	policy := service.RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	sup := service.NewTaskSupervisor(db.Jobs(), db.Posts(), db.History(), f, policy, nil, nil)
	jobs := service.NewJobCoordinator(db.Jobs(), db.Posts(), db.Campaigns(), sup, pool, nil, nil)
	campaigns := service.NewCampaignService(db.Campaigns(), db.Posts(), db.History(), nil)

	svc := &Services{
		Campaigns: campaigns,
		Registry:  service.NewPostRegistry(db.Campaigns(), db.Posts(), nil),
		Jobs:      jobs,
		Reports:   service.NewReportService(campaigns, store),
		Tracker:   service.NewLiveTracker(db.Campaigns(), db.Posts(), jobs, service.TrackerOptions{Interval: time.Hour}),
		Checks: map[string]handler.Check{
			"database": func(context.Context) error { return nil },
		},
	}
	t.Cleanup(func() {
		svc.Tracker.Stop()
		jobs.Stop()
		pool.Stop()
	})

	cfg := &config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}}
	return &testServer{router: SetupRouter(svc, cfg, nil), svc: svc}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if _, raw := body.(string); body != nil && !raw {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) handler.ErrorBody {
	t.Helper()
	var resp handler.ErrorResponse
	decode(t, w, &resp)
	return resp.Error
}

func (s *testServer) createCampaign(t *testing.T, name string) domain.Campaign {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/campaigns", map[string]string{"name": name, "status": "active"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create campaign: status %d, body %s", w.Code, w.Body)
	}
	var c domain.Campaign
	decode(t, w, &c)
	return c
}

func (s *testServer) addPost(t *testing.T, campaignID, url string) domain.Post {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/campaigns/"+campaignID+"/posts", map[string]string{"url": url}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("add post: status %d, body %s", w.Code, w.Body)
	}
	var p domain.Post
	decode(t, w, &p)
	return p
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w := s.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("missing X-Request-ID header")
	}

	s.svc.Checks["redis"] = func(context.Context) error { return context.DeadlineExceeded }
	s = &testServer{router: SetupRouter(s.svc, &config.ServerConfig{Mode: "test"}, nil), svc: s.svc}
	if w := s.do(t, http.MethodGet, "/health", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", w.Code)
	}
}

func TestCampaignEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)
	c := s.createCampaign(t, "Summer single")

	w := s.do(t, http.MethodPatch, "/api/v1/campaigns/"+c.ID, map[string]string{"song_title": "Heatwave"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status %d, body %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodGet, "/api/v1/campaigns/"+c.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d", w.Code)
	}
	var got service.CampaignWithStats
	decode(t, w, &got)
	if got.SongTitle != "Heatwave" || got.Stats.CampaignID != c.ID {
		t.Errorf("campaign = %+v", got)
	}

	w = s.do(t, http.MethodGet, "/api/v1/campaigns", nil, nil)
	var list struct {
		Total int `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 {
		t.Errorf("total = %d, want 1", list.Total)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown campaign", http.MethodGet, "/api/v1/campaigns/missing", nil, http.StatusNotFound, handler.CodeNotFound},
		{"empty name", http.MethodPost, "/api/v1/campaigns", map[string]string{"name": " "}, http.StatusBadRequest, handler.CodeValidation},
		{"malformed json", http.MethodPost, "/api/v1/campaigns", "{", http.StatusBadRequest, handler.CodeBadRequest},
		{"bad metric", http.MethodGet, "/api/v1/campaigns/" + c.ID + "/history?metric=saves", nil, http.StatusBadRequest, handler.CodeValidation},
		{"bad window", http.MethodGet, "/api/v1/campaigns/" + c.ID + "/history?window=2d", nil, http.StatusBadRequest, handler.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body, nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.status, w.Body)
			}
			if got := errorCode(t, w); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}

	if w := s.do(t, http.MethodDelete, "/api/v1/campaigns/"+c.ID, nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/campaigns/"+c.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", w.Code)
	}
}

func TestAddPostDuplicate(t *testing.T) {
	s := newTestServer(t, nil, nil)
	c := s.createCampaign(t, "Dupes")
	first := s.addPost(t, c.ID, "https://www.tiktok.com/@a/video/123?is_from_webapp=1")

	w := s.do(t, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/posts",
		map[string]string{"url": "https://tiktok.com/@a/video/123"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", w.Code, w.Body)
	}
	body := errorCode(t, w)
	if body.Code != handler.CodeDuplicate {
		t.Errorf("code = %q, want %q", body.Code, handler.CodeDuplicate)
	}
	if body.Existing == nil || body.Existing.ID != first.ID {
		t.Errorf("existing = %+v, want post %s", body.Existing, first.ID)
	}

	w = s.do(t, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/posts", map[string]string{"url": "not a url"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid url status = %d, want 400", w.Code)
	}
}

func TestPostEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)
	c := s.createCampaign(t, "Edits")
	p := s.addPost(t, c.ID, "https://www.instagram.com/reel/Cabc123/")

	w := s.do(t, http.MethodPatch, "/api/v1/posts/"+p.ID, map[string]interface{}{
		"status":       "Briefed",
		"creator_name": "nina",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: status %d, body %s", w.Code, w.Body)
	}
	var updated domain.Post
	decode(t, w, &updated)
	if updated.Status != domain.WorkflowBriefed || updated.CreatorName != "nina" {
		t.Errorf("updated = %+v", updated)
	}

	w = s.do(t, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/placeholders", map[string]string{"creator_name": "tbd"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("placeholder: status %d, body %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodGet, "/api/v1/campaigns/"+c.ID+"/posts", nil, nil)
	var list struct {
		Total int `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 2 {
		t.Errorf("total = %d, want 2", list.Total)
	}

	if w := s.do(t, http.MethodDelete, "/api/v1/posts/"+p.ID, nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/posts/"+p.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", w.Code)
	}
}

func TestImportPostsCSV(t *testing.T) {
	s := newTestServer(t, nil, nil)
	c := s.createCampaign(t, "Import")

	csv := "url,creator,status,views\n" +
		"https://www.tiktok.com/@a/video/1,alice,active,1000\n" +
		"https://www.tiktok.com/@a/video/1?lang=en,alice,active,1000\n" +
		"notaurl,bob,,\n" +
		",carol,,\n" +
		"https://www.tiktok.com/@d/video/4,dave,,many\n"
	w := s.do(t, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/posts/import", csv, map[string]string{"Content-Type": "text/csv"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var res service.ImportResult
	decode(t, w, &res)
	if res.Created != 1 || res.Duplicates != 1 || res.Placeholders != 1 || res.Failed != 2 {
		t.Errorf("result = %+v, want 1 created, 1 duplicate, 1 placeholder, 2 failed", res)
	}
	lines := map[int]bool{}
	for _, e := range res.Errors {
		lines[e.Row] = true
	}
	if !lines[4] || !lines[6] {
		t.Errorf("error rows = %+v, want lines 4 and 6", res.Errors)
	}

	w = s.do(t, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/posts/import", "views\n1\n", map[string]string{"Content-Type": "text/csv"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("header without url: status %d, want 400", w.Code)
	}
}

func TestRescrapeConflict(t *testing.T) {
	gate := make(chan struct{})
	f := fetcher.Func(func(ctx context.Context, url string, p domain.Platform) (domain.Metrics, error) {
		<-gate
		return domain.Metrics{Views: 10, Likes: 1}, nil
	})
	s := newTestServer(t, f, nil)
	c := s.createCampaign(t, "Busy")
	p := s.addPost(t, c.ID, "https://www.youtube.com/watch?v=abcdefghijk")

	w := s.do(t, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/rescrape", nil, nil)
	if w.Code != http.StatusAccepted {
		close(gate)
		t.Fatalf("rescrape: status %d, body %s", w.Code, w.Body)
	}
	var job domain.ScrapeJob
	decode(t, w, &job)

	w = s.do(t, http.MethodPost, "/api/v1/posts/"+p.ID+"/rescrape", nil, nil)
	close(gate)
	if w.Code != http.StatusConflict {
		t.Fatalf("second rescrape: status %d, want 409, body %s", w.Code, w.Body)
	}
	body := errorCode(t, w)
	if body.Code != handler.CodeAlreadyRunning || body.ActiveJob == nil || body.ActiveJob.ID != job.ID {
		t.Errorf("error = %+v, want already_running with job %s", body, job.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.svc.Jobs.Wait(ctx, job.ID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	w = s.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, nil, nil)
	var got domain.JobWithStats
	decode(t, w, &got)
	if got.Status != domain.JobStatusDone || got.Stats.SuccessfulTasks != 1 {
		t.Errorf("job = %+v, want done with 1 success", got)
	}

	w = s.do(t, http.MethodGet, "/api/v1/campaigns/"+c.ID+"/jobs/active", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"job":null`) {
		t.Errorf("active job after finish = %d %s", w.Code, w.Body)
	}

	w = s.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID+"/tasks", nil, nil)
	var tasks struct {
		Total int `json:"total"`
	}
	decode(t, w, &tasks)
	if tasks.Total != 1 {
		t.Errorf("tasks total = %d, want 1", tasks.Total)
	}
}

func TestPublicShare(t *testing.T) {
	s := newTestServer(t, nil, nil)
	c := s.createCampaign(t, "Shared")
	s.addPost(t, c.ID, "https://www.tiktok.com/@a/video/1")

	w := s.do(t, http.MethodPut, "/api/v1/campaigns/"+c.ID+"/sharing",
		map[string]interface{}{"enabled": true, "password": "s3cret"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sharing: status %d, body %s", w.Code, w.Body)
	}
	var share struct {
		Slug      string `json:"share_slug"`
		Protected bool   `json:"password_protected"`
	}
	decode(t, w, &share)
	if share.Slug == "" || !share.Protected {
		t.Fatalf("share = %+v", share)
	}

	tests := []struct {
		name     string
		path     string
		password string
		status   int
	}{
		{"no password", "/api/v1/public/" + share.Slug, "", http.StatusUnauthorized},
		{"wrong password", "/api/v1/public/" + share.Slug, "nope", http.StatusUnauthorized},
		{"campaign", "/api/v1/public/" + share.Slug, "s3cret", http.StatusOK},
		{"posts", "/api/v1/public/" + share.Slug + "/posts", "s3cret", http.StatusOK},
		{"history", "/api/v1/public/" + share.Slug + "/history?metric=likes&window=7d", "s3cret", http.StatusOK},
		{"windows", "/api/v1/public/" + share.Slug + "/windows", "s3cret", http.StatusOK},
		{"unknown slug", "/api/v1/public/doesnotexist", "s3cret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, nil, map[string]string{handler.SharePasswordHeader: tt.password})
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d, body %s", w.Code, tt.status, w.Body)
			}
		})
	}

	s.do(t, http.MethodPut, "/api/v1/campaigns/"+c.ID+"/sharing", map[string]interface{}{"enabled": false}, nil)
	w = s.do(t, http.MethodGet, "/api/v1/public/"+share.Slug, nil, map[string]string{handler.SharePasswordHeader: "s3cret"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("disabled share: status %d, want 401", w.Code)
	}
}

func TestExport(t *testing.T) {
	t.Run("storage disabled", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		c := s.createCampaign(t, "No storage")
		w := s.do(t, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/export", nil, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		if got := errorCode(t, w); got.Code != handler.CodeStorageDisabled {
			t.Errorf("code = %q", got.Code)
		}
	})

	t.Run("memory storage", func(t *testing.T) {
		s := newTestServer(t, nil, storage.NewMemoryStorage("https://cdn.example.com"))
		c := s.createCampaign(t, "Exported")
		s.addPost(t, c.ID, "https://www.tiktok.com/@a/video/1")

		w := s.do(t, http.MethodPost, "/api/v1/campaigns/"+c.ID+"/export", nil, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		var res service.ExportResult
		decode(t, w, &res)
		if !strings.HasPrefix(res.Key, "reports/"+c.ID+"/") || res.Size == 0 {
			t.Fatalf("result = %+v", res)
		}

		name := res.Key[strings.LastIndex(res.Key, "/")+1:]
		w = s.do(t, http.MethodGet, "/api/v1/campaigns/"+c.ID+"/exports/"+name, nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("download: status %d", w.Code)
		}
		var report service.Report
		decode(t, w, &report)
		if report.Campaign.ID != c.ID || len(report.Posts) != 1 {
			t.Errorf("report = %+v", report)
		}

		w = s.do(t, http.MethodGet, "/api/v1/campaigns/"+c.ID+"/exports/missing.json", nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("missing export: status %d, want 404", w.Code)
		}
	})
}

func TestTrackerEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodPost, "/api/v1/tracker/start", nil, nil)
	var status service.TrackerStatus
	decode(t, w, &status)
	if !status.IsScheduled || status.Interval != "1h0m0s" {
		t.Errorf("after start = %+v", status)
	}

	w = s.do(t, http.MethodPost, "/api/v1/tracker/stop", nil, nil)
	decode(t, w, &status)
	if status.IsScheduled {
		t.Errorf("after stop = %+v", status)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/tracker/run", nil, nil); w.Code != http.StatusAccepted {
		t.Errorf("run: status %d, want 202", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/tracker", nil, nil); w.Code != http.StatusOK {
		t.Errorf("status: %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodOptions, "/api/v1/campaigns", nil, map[string]string{"Origin": "https://app.example.com"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow origin = %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), handler.SharePasswordHeader) {
		t.Error("share password header not allowed")
	}

	w = s.do(t, http.MethodGet, "/api/v1/campaigns", nil, map[string]string{"Origin": "https://evil.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin got allow origin %q", got)
	}
}
