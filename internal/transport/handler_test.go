package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"go-kart-insurance/internal/classifier"
	"go-kart-insurance/internal/config"
	"go-kart-insurance/internal/service"
	"go-kart-insurance/pkg/catalog"
	"go-kart-insurance/pkg/models"
	"go-kart-insurance/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// backend is a fake local inference service
type backend struct {
	server *httptest.Server
	calls  int32
}

func newBackend(t *testing.T, status int, body string, delay time.Duration) *backend {
	t.Helper()
	b := &backend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.calls, 1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func testConfig() *config.Config {
	return &config.Config{
		RequestTimeout:     5 * time.Second,
		InferenceTimeout:   2 * time.Second,
		MaxRequestBodySize: 2 << 20,
		MaxImageSize:       1 << 20,
		AllowedImageTypes:  []string{"image/jpeg", "image/png"},
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		InferenceBackend:   config.BackendLocal,
	}
}

func newTestServer(t *testing.T, b *backend, cfg *config.Config) http.Handler {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}
	client := classifier.NewLocalClient(config.LocalInferenceConfig{URL: b.server.URL + "/predict"}, b.server.Client())
	svc := service.NewClassificationService(service.Options{
		Validator:  validation.NewUploadValidator(cfg.AllowedImageTypes, cfg.MaxImageSize),
		Classifier: client,
		Normalizer: classifier.NewNormalizer(append(classifier.DefaultKartTypes, cat.Labels()...)),
		Catalog:    cat,
		Timeout:    cfg.InferenceTimeout,
	})
	return NewHandler(svc, cfg, nil)
}

func kartPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "My Kart.png")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(data)
	} else {
		mw.WriteField("note", "no image here")
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(path string, payload any) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const bDasherReply = `{"success":true,"predictions":{"kartType":"B_Dasher","confidence":0.92}}`

func TestPredict_Multipart(t *testing.T) {
	b := newBackend(t, http.StatusOK, bDasherReply, 0)
	h := newTestServer(t, b, testConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/api/predict", "image", kartPNG(t)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.PredictResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Backend != "local" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Prediction.Label != "B_Dasher" || resp.Prediction.Confidence != 0.92 {
		t.Errorf("prediction = %+v", resp.Prediction)
	}
	if len(resp.Predictions) != 1 || resp.Predictions[0] != resp.Prediction {
		t.Errorf("predictions = %+v", resp.Predictions)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestPredict_JSONDataURL(t *testing.T) {
	b := newBackend(t, http.StatusOK, `{"class":"Flame_Flyer","confidence":0.81}`, 0)
	h := newTestServer(t, b, testConfig())

	payload := map[string]string{"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(kartPNG(t))}
	rec := httptest.NewRecorder()
	req := jsonRequest("/api/predict", payload)
	req.Header.Set("X-Request-ID", "abc-123")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"label":"Flame_Flyer"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestPredict_RejectsBeforeBackend(t *testing.T) {
	tests := []struct {
		name      string
		req       func(t *testing.T) *http.Request
		status    int
		wantError string
		wantType  string
	}{
		{
			name:      "multipart without image",
			req:       func(t *testing.T) *http.Request { return multipartRequest(t, "/api/predict", "", nil) },
			status:    http.StatusBadRequest,
			wantError: "No image file provided",
			wantType:  "missing_image",
		},
		{
			name:      "json without image",
			req:       func(t *testing.T) *http.Request { return jsonRequest("/api/predict", map[string]string{}) },
			status:    http.StatusBadRequest,
			wantError: "No image file provided",
			wantType:  "missing_image",
		},
		{
			name: "not an image",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/predict", "image", []byte("plain text pretending to be a kart"))
			},
			status:    http.StatusBadRequest,
			wantError: "Invalid file type",
			wantType:  "validation",
		},
		{
			name: "json with blank image",
			req: func(t *testing.T) *http.Request {
				return jsonRequest("/api/predict", map[string]string{"image": "   "})
			},
			status:    http.StatusBadRequest,
			wantError: "No image file provided",
			wantType:  "missing_image",
		},
		{
			name: "bad base64",
			req: func(t *testing.T) *http.Request {
				return jsonRequest("/api/predict", map[string]string{"image": "%%%not-base64%%%"})
			},
			status:    http.StatusBadRequest,
			wantError: "Invalid image data",
			wantType:  "validation",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/predict", "image", append(kartPNG(t), make([]byte, 1<<20)...))
			},
			status:   http.StatusRequestEntityTooLarge,
			wantType: "too_large",
		},
		{
			name: "unsupported content type",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader("hello"))
				req.Header.Set("Content-Type", "text/plain")
				return req
			},
			status:    http.StatusBadRequest,
			wantError: "No image file provided",
			wantType:  "missing_image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t, http.StatusOK, bDasherReply, 0)
			h := newTestServer(t, b, testConfig())

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req(t))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			var resp models.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.wantError != "" && resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if resp.Type != tt.wantType {
				t.Errorf("type = %q, want %q", resp.Type, tt.wantType)
			}
			if calls := atomic.LoadInt32(&b.calls); calls != 0 {
				t.Errorf("backend called %d times", calls)
			}
		})
	}
}

func TestPredict_BackendFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		delay     time.Duration
		want      int
		wantError string
		details   string
	}{
		{
			name:      "non-2xx",
			status:    http.StatusServiceUnavailable,
			body:      `{"error":"model not loaded"}`,
			want:      http.StatusInternalServerError,
			wantError: "Error processing image",
			details:   "503",
		},
		{
			name:      "malformed",
			status:    http.StatusOK,
			body:      `{"unexpected":true}`,
			want:      http.StatusInternalServerError,
			wantError: "Error processing image",
			details:   "malformed",
		},
		{
			name:      "confidence out of range",
			status:    http.StatusOK,
			body:      `{"class":"B_Dasher","confidence":7}`,
			want:      http.StatusInternalServerError,
			wantError: "Error processing image",
			details:   "confidence",
		},
		{
			name:      "slow",
			status:    http.StatusOK,
			body:      bDasherReply,
			delay:     time.Second,
			want:      http.StatusGatewayTimeout,
			wantError: "Inference backend timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.InferenceTimeout = 50 * time.Millisecond
			b := newBackend(t, tt.status, tt.body, tt.delay)
			h := newTestServer(t, b, cfg)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, multipartRequest(t, "/api/predict", "image", kartPNG(t)))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			var resp models.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if resp.Details == "" || !strings.Contains(resp.Details, tt.details) {
				t.Errorf("details = %q, want it to contain %q", resp.Details, tt.details)
			}
		})
	}
}

type deniedTokens struct{}

func (deniedTokens) Token() (*oauth2.Token, error) {
	return nil, errors.New("oauth2: cannot fetch token: 401 Unauthorized")
}

func TestPredict_VertexAuthFailure(t *testing.T) {
	b := newBackend(t, http.StatusOK, `{"predictions":[{"displayNames":["B_Dasher"],"confidences":[0.9]}]}`, 0)
	cfg := testConfig()
	cfg.InferenceBackend = config.BackendVertex

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}
	vertex := classifier.NewVertexClient(config.VertexConfig{
		ProjectID:  "kart-project",
		Location:   "us-central1",
		EndpointID: "12345",
		APIBaseURL: b.server.URL,
	}, deniedTokens{}, b.server.Client())
	svc := service.NewClassificationService(service.Options{
		Validator:  validation.NewUploadValidator(cfg.AllowedImageTypes, cfg.MaxImageSize),
		Classifier: vertex,
		Normalizer: classifier.NewNormalizer(classifier.DefaultKartTypes),
		Catalog:    cat,
		Timeout:    cfg.InferenceTimeout,
	})
	h := NewHandler(svc, cfg, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/api/predict", "image", kartPNG(t)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Error processing image" || resp.Type != "upstream" {
		t.Errorf("response = %+v", resp)
	}
	if !strings.Contains(resp.Details, "401 Unauthorized") {
		t.Errorf("details = %q", resp.Details)
	}
	if calls := atomic.LoadInt32(&b.calls); calls != 0 {
		t.Errorf("prediction endpoint called %d times", calls)
	}
}

func TestQuote_JSON(t *testing.T) {
	b := newBackend(t, http.StatusOK, bDasherReply, 0)
	h := newTestServer(t, b, testConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/api/quote", "image", kartPNG(t)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.QuoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DisplayLabel != "B Dasher" {
		t.Errorf("display_label = %q", resp.DisplayLabel)
	}
	if len(resp.Packages) != 1 || resp.Packages[0].ID != "star" {
		t.Errorf("packages = %+v", resp.Packages)
	}
}

func TestQuotePage_RendersOnlyMatchingPackage(t *testing.T) {
	b := newBackend(t, http.StatusOK, bDasherReply, 0)
	h := newTestServer(t, b, testConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/quote", "image", kartPNG(t)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	page := rec.Body.String()
	if !strings.Contains(page, "Star Power Premium") {
		t.Error("page does not show Star Power Premium")
	}
	for _, other := range []string{"Mushroom Coverage", "Bullet Bill Ultimate"} {
		if strings.Contains(page, other) {
			t.Errorf("page unexpectedly shows %s", other)
		}
	}
	if !strings.Contains(page, "Your B Dasher") || !strings.Contains(page, "92%") {
		t.Errorf("page missing label or confidence: %s", page)
	}
}

func TestQuotePage_Error(t *testing.T) {
	b := newBackend(t, http.StatusOK, bDasherReply, 0)
	h := newTestServer(t, b, testConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartRequest(t, "/quote", "", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No image file provided") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPackages(t *testing.T) {
	b := newBackend(t, http.StatusOK, bDasherReply, 0)
	h := newTestServer(t, b, testConfig())

	tests := []struct {
		path   string
		status int
		check  func(t *testing.T, body []byte)
	}{
		{
			path:   "/api/packages",
			status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var resp models.PackagesResponse
				json.Unmarshal(body, &resp)
				if len(resp.Packages) != 3 {
					t.Errorf("got %d packages", len(resp.Packages))
				}
			},
		},
		{
			path:   "/api/packages?label=Cheep_Charge",
			status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var resp models.PackagesResponse
				json.Unmarshal(body, &resp)
				if len(resp.Packages) != 1 || resp.Packages[0].ID != "mushroom" {
					t.Errorf("packages = %+v", resp.Packages)
				}
			},
		},
		{
			path:   "/api/packages?label=Unknown",
			status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				if !strings.Contains(string(body), `"packages":[]`) {
					t.Errorf("body = %s", body)
				}
			},
		},
		{
			path:   "/api/packages/bullet",
			status: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var p models.Package
				json.Unmarshal(body, &p)
				if p.Name != "Bullet Bill Ultimate" || p.MonthlyPrice != 129.99 {
					t.Errorf("package = %+v", p)
				}
			},
		},
		{path: "/api/packages/nope", status: http.StatusNotFound},
		{path: "/does-not-exist", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.check != nil {
				tt.check(t, rec.Body.Bytes())
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	b := newBackend(t, http.StatusOK, bDasherReply, 0)
	h := newTestServer(t, b, testConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var health map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health["status"] != "healthy" || health["backend"] != "local" {
		t.Errorf("health = %v", health)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kart_http_request_duration_seconds") {
		t.Error("metrics output missing request histogram")
	}
}

func TestIndexAndCORS(t *testing.T) {
	b := newBackend(t, http.StatusOK, bDasherReply, 0)
	h := newTestServer(t, b, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `action="/quote"`) {
		t.Error("upload form missing")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
