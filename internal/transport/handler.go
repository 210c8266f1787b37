package transport

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"go-kart-insurance/internal/config"
	apperrors "go-kart-insurance/internal/errors"
	"go-kart-insurance/internal/logger"
	"go-kart-insurance/internal/service"
	"go-kart-insurance/pkg/catalog"
	"go-kart-insurance/pkg/models"
	"go-kart-insurance/pkg/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

// StatsProvider reports running classification totals for /health
type StatsProvider interface {
	GetMetrics() map[string]interface{}
}

type handler struct {
	svc   service.ClassificationService
	cfg   *config.Config
	stats StatsProvider
}

// NewHandler builds the gin engine and wraps it with CORS
func NewHandler(svc service.ClassificationService, cfg *config.Config, stats StatsProvider) http.Handler {
	h := &handler{svc: svc, cfg: cfg, stats: stats}

	r := gin.New()
	r.SetHTMLTemplate(parseTemplates())
	r.MaxMultipartMemory = cfg.MaxRequestBodySize

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		metricsRecorder(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/", h.index)
	r.GET("/health", h.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/quote", h.quotePage)

	api := r.Group("/api")
	api.POST("/predict", h.predict)
	api.POST("/quote", h.quote)
	api.GET("/packages", h.listPackages)
	api.GET("/packages/:id", h.getPackage)

	r.NoRoute(func(c *gin.Context) {
		c.Error(apperrors.NewNotFoundError("Route not found", nil))
	})

	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	})(r)
}

func parseTemplates() *template.Template {
	funcs := template.FuncMap{
		"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
		"price":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

// classify reads the upload and runs it through the service under the request timeout
func (h *handler) classify(c *gin.Context) (*models.Classification, error) {
	data, filename, err := readUpload(c)
	if err != nil {
		return nil, err
	}

	ctx := c.Request.Context()
	if h.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
	}
	return h.svc.Classify(ctx, data, filename)
}

func (h *handler) predict(c *gin.Context) {
	result, err := h.classify(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, predictResponse(result))
}

func (h *handler) quote(c *gin.Context) {
	result, err := h.classify(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.QuoteResponse{
		PredictResponse: predictResponse(result),
		DisplayLabel:    catalog.DisplayLabel(result.Top.Label),
		Packages:        h.svc.Recommend(result.Top.Label),
	})
}

func (h *handler) quotePage(c *gin.Context) {
	result, err := h.classify(c)
	if err != nil {
		appErr := asAppError(err)
		logError(c, appErr)
		c.HTML(appErr.StatusCode, "error.html", models.ErrorResponse{
			Error:   appErr.Message,
			Details: appErr.Detail(),
		})
		return
	}
	c.HTML(http.StatusOK, "quote.html", gin.H{
		"DisplayLabel": catalog.DisplayLabel(result.Top.Label),
		"Confidence":   result.Top.Confidence,
		"Packages":     h.svc.Recommend(result.Top.Label),
		"Backend":      result.Backend,
	})
}

func (h *handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Accept":    strings.Join(h.cfg.AllowedImageTypes, ","),
		"MaxSizeMB": h.cfg.MaxImageSize >> 20,
	})
}

func (h *handler) listPackages(c *gin.Context) {
	label := strings.TrimSpace(c.Query("label"))
	if label == "" {
		c.JSON(http.StatusOK, models.PackagesResponse{Packages: h.svc.Packages()})
		return
	}
	c.JSON(http.StatusOK, models.PackagesResponse{Label: label, Packages: h.svc.Recommend(label)})
}

func (h *handler) getPackage(c *gin.Context) {
	p, err := h.svc.Package(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) healthCheck(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"backend": h.svc.Backend(),
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	if h.stats != nil {
		body["stats"] = h.stats.GetMetrics()
	}
	c.JSON(http.StatusOK, body)
}

func predictResponse(result *models.Classification) models.PredictResponse {
	return models.PredictResponse{
		Success:     true,
		Backend:     result.Backend,
		Prediction:  result.Top,
		Predictions: result.Predictions,
	}
}

// readUpload extracts the image bytes from a multipart field or a JSON body
func readUpload(c *gin.Context) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(c.ContentType(), "multipart/form-data"):
		fh, err := c.FormFile("image")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return nil, "", apperrors.NewMissingImageError()
			}
			if isBodyTooLarge(err) {
				return nil, "", apperrors.NewTooLargeError("Request body is too large", err)
			}
			return nil, "", apperrors.NewValidationError("Invalid multipart form", err)
		}
		data, err := readFormFile(fh)
		if err != nil {
			return nil, "", apperrors.NewValidationError("Could not read uploaded file", err)
		}
		return data, fh.Filename, nil

	case c.ContentType() == gin.MIMEJSON:
		var req models.PredictJSONRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var verrs validator.ValidationErrors
			switch {
			case errors.As(err, &verrs):
				return nil, "", apperrors.NewMissingImageError()
			case isBodyTooLarge(err):
				return nil, "", apperrors.NewTooLargeError("Request body is too large", err)
			default:
				return nil, "", apperrors.NewValidationError("Invalid request format", err)
			}
		}
		data, err := validation.DecodeBase64Image(req.Image)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeMissing) {
				return nil, "", err
			}
			return nil, "", apperrors.NewValidationError("Invalid image data", err)
		}
		filename := req.Filename
		if filename == "" {
			filename = "upload"
		}
		return data, filename, nil

	default:
		return nil, "", apperrors.NewMissingImageError()
	}
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func asAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.NewInternalError("Internal server error", err)
}

func logError(c *gin.Context, appErr *apperrors.AppError) {
	entry := logger.FromContext(c.Request.Context()).WithFields(logrus.Fields{
		"status_code": appErr.StatusCode,
		"type":        appErr.Type,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if appErr.Cause != nil {
		entry = entry.WithError(appErr.Cause)
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error(appErr.Message)
	} else {
		entry.Warn(appErr.Message)
	}
}

func respondError(c *gin.Context, err error) {
	appErr := asAppError(err)
	logError(c, appErr)

	c.AbortWithStatusJSON(appErr.StatusCode, models.ErrorResponse{
		Error:   appErr.Message,
		Details: appErr.Detail(),
		Type:    string(appErr.Type),
	})
}
