package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lanternworks/vitalsync/internal/anchors"
	"github.com/lanternworks/vitalsync/internal/dashboard"
	"github.com/lanternworks/vitalsync/internal/ingest"
	"github.com/lanternworks/vitalsync/internal/owners"
	"github.com/lanternworks/vitalsync/internal/records"
	"go.uber.org/zap"
)

// APIKeyHeader carries the shared secret on every authenticated request.
const APIKeyHeader = "X-API-Key"

var (
	errMissingIngestService    = errors.New("ingest service dependency required")
	errMissingAnchorService    = errors.New("anchor service dependency required")
	errMissingDashboardService = errors.New("dashboard service dependency required")
	errMissingOwnerService     = errors.New("owner service dependency required")
	errMissingAPIKey           = errors.New("api key required")
)

// Dependencies wires the request handlers to their collaborators.
type Dependencies struct {
	IngestService    *ingest.Service
	AnchorService    *anchors.Service
	DashboardService *dashboard.Service
	OwnerService     *owners.Service
	APIKey           string
	DefaultOwner     string
	Logger           *zap.Logger
}

// NewHTTPHandler constructs the API router. Every route except the health
// endpoint sits behind the shared-secret check.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.IngestService == nil {
		return nil, errMissingIngestService
	}
	if deps.AnchorService == nil {
		return nil, errMissingAnchorService
	}
	if deps.DashboardService == nil {
		return nil, errMissingDashboardService
	}
	if deps.OwnerService == nil {
		return nil, errMissingOwnerService
	}
	if strings.TrimSpace(deps.APIKey) == "" {
		return nil, errMissingAPIKey
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultOwner := deps.DefaultOwner
	if defaultOwner == "" {
		defaultOwner = "default"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", APIKeyHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		ingest:       deps.IngestService,
		anchors:      deps.AnchorService,
		dashboard:    deps.DashboardService,
		owners:       deps.OwnerService,
		apiKey:       []byte(deps.APIKey),
		defaultOwner: defaultOwner,
		logger:       logger,
	}

	router.GET("/health", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/sync/workouts", handler.handleSubmitWorkouts)
	protected.POST("/sync/health-metrics", handler.handleSubmitMetrics)
	protected.POST("/sync/activity-rings", handler.handleSubmitRings)
	protected.POST("/sync/anchors", handler.handlePutAnchor)
	protected.GET("/sync/anchors/:owner/:dataType", handler.handleGetAnchor)
	protected.GET("/dashboard/recent", handler.handleDashboardRecent)
	protected.GET("/workout/:uuid", handler.handleWorkoutDetail)
	protected.GET("/workout/:uuid/route", handler.handleWorkoutRoute)
	protected.DELETE("/owners/:owner", handler.handleDeleteOwner)

	return router, nil
}

type httpHandler struct {
	ingest       *ingest.Service
	anchors      *anchors.Service
	dashboard    *dashboard.Service
	owners       *owners.Service
	apiKey       []byte
	defaultOwner string
	logger       *zap.Logger
}

// authorizeRequest enforces the static shared secret: a missing header is
// 401, a mismatched one 403. The comparison is constant time.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	provided := c.GetHeader(APIKeyHeader)
	if provided == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_api_key"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(provided), h.apiKey) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid_api_key"})
		return
	}
	c.Next()
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type batchResponsePayload struct {
	Synced  int                  `json:"synced"`
	Skipped int                  `json:"skipped"`
	Updated int                  `json:"updated"`
	Errors  []ingest.RecordError `json:"errors"`
}

func writeBatchResult(c *gin.Context, result ingest.BatchResult) {
	payload := batchResponsePayload{
		Synced:  result.Synced,
		Skipped: result.Skipped,
		Updated: result.Updated,
		Errors:  result.Errors,
	}
	if payload.Errors == nil {
		payload.Errors = []ingest.RecordError{}
	}
	switch result.Outcome() {
	case ingest.OutcomeSuccess:
		c.JSON(http.StatusOK, payload)
	case ingest.OutcomePartial:
		c.JSON(http.StatusMultiStatus, payload)
	default:
		c.JSON(http.StatusInternalServerError, payload)
	}
}

func (h *httpHandler) writeSubmitError(c *gin.Context, err error) {
	if errors.Is(err, ingest.ErrEmptyBatch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_batch"})
		return
	}
	body := gin.H{"error": "submit_failed"}
	var serviceErr *ingest.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	c.JSON(http.StatusInternalServerError, body)
}

type workoutBatchPayload struct {
	Owner    string           `json:"owner"`
	Workouts []workoutPayload `json:"workouts"`
}

func (h *httpHandler) handleSubmitWorkouts(c *gin.Context) {
	var request workoutBatchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	userID, err := records.NewUserID(request.Owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner"})
		return
	}
	if len(request.Workouts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_batch"})
		return
	}

	submissions := make([]ingest.WorkoutSubmission, 0, len(request.Workouts))
	for _, payload := range request.Workouts {
		submissions = append(submissions, payload.toSubmission())
	}

	result, err := h.ingest.SubmitWorkouts(c.Request.Context(), userID, submissions)
	if err != nil {
		h.logger.Error("workout batch submit failed", zap.Error(err))
		h.writeSubmitError(c, err)
		return
	}
	writeBatchResult(c, result)
}

type metricBatchPayload struct {
	Owner   string          `json:"owner"`
	Metrics []metricPayload `json:"metrics"`
}

func (h *httpHandler) handleSubmitMetrics(c *gin.Context) {
	var request metricBatchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	userID, err := records.NewUserID(request.Owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner"})
		return
	}
	if len(request.Metrics) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_batch"})
		return
	}

	submissions := make([]ingest.MetricSubmission, 0, len(request.Metrics))
	for _, payload := range request.Metrics {
		submissions = append(submissions, payload.toSubmission())
	}

	result, err := h.ingest.SubmitMetrics(c.Request.Context(), userID, submissions)
	if err != nil {
		h.logger.Error("metric batch submit failed", zap.Error(err))
		h.writeSubmitError(c, err)
		return
	}
	writeBatchResult(c, result)
}

type ringBatchPayload struct {
	Owner string        `json:"owner"`
	Rings []ringPayload `json:"activity_rings"`
}

func (h *httpHandler) handleSubmitRings(c *gin.Context) {
	var request ringBatchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	userID, err := records.NewUserID(request.Owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner"})
		return
	}
	if len(request.Rings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_batch"})
		return
	}

	submissions := make([]ingest.RingSubmission, 0, len(request.Rings))
	for _, payload := range request.Rings {
		submissions = append(submissions, payload.toSubmission())
	}

	result, err := h.ingest.SubmitRings(c.Request.Context(), userID, submissions)
	if err != nil {
		h.logger.Error("ring batch submit failed", zap.Error(err))
		h.writeSubmitError(c, err)
		return
	}
	writeBatchResult(c, result)
}

type anchorPutPayload struct {
	Owner      string `json:"owner"`
	DataType   string `json:"data_type"`
	AnchorData string `json:"anchor_data"`
}

type anchorResponsePayload struct {
	Owner      string    `json:"owner"`
	DataType   string    `json:"data_type"`
	AnchorData string    `json:"anchor_data"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

func (h *httpHandler) handlePutAnchor(c *gin.Context) {
	var request anchorPutPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	userID, err := records.NewUserID(request.Owner)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner"})
		return
	}
	dataType, err := records.NewDataType(request.DataType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_data_type"})
		return
	}

	anchor, err := h.anchors.Put(c.Request.Context(), userID, dataType, request.AnchorData)
	if err != nil {
		h.logger.Error("anchor upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "anchor_put_failed"})
		return
	}
	c.JSON(http.StatusOK, anchorResponsePayload{
		Owner:      anchor.UserID.String(),
		DataType:   anchor.DataType.String(),
		AnchorData: anchor.Payload,
		LastSyncAt: anchor.LastSyncAt,
	})
}

func (h *httpHandler) handleGetAnchor(c *gin.Context) {
	userID, err := records.NewUserID(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner"})
		return
	}
	dataType, err := records.NewDataType(c.Param("dataType"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_data_type"})
		return
	}

	anchor, found, err := h.anchors.Get(c.Request.Context(), userID, dataType)
	if err != nil {
		h.logger.Error("anchor lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "anchor_get_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, anchorResponsePayload{
		Owner:      anchor.UserID.String(),
		DataType:   anchor.DataType.String(),
		AnchorData: anchor.Payload,
		LastSyncAt: anchor.LastSyncAt,
	})
}

func (h *httpHandler) handleDashboardRecent(c *gin.Context) {
	userID, ok := h.ownerFromQuery(c)
	if !ok {
		return
	}
	days := dashboard.DefaultWindowDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > dashboard.MaxWindowDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_days"})
			return
		}
		days = parsed
	}

	view, err := h.dashboard.Recent(c.Request.Context(), userID, days)
	if err != nil {
		h.logger.Error("dashboard query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dashboard_failed"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleWorkoutDetail(c *gin.Context) {
	userID, ok := h.ownerFromQuery(c)
	if !ok {
		return
	}
	workoutUUID, err := records.NewRecordUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_workout_id"})
		return
	}

	detail, err := h.dashboard.Workout(c.Request.Context(), userID, workoutUUID)
	if errors.Is(err, dashboard.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("workout detail query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "workout_failed"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleWorkoutRoute(c *gin.Context) {
	userID, ok := h.ownerFromQuery(c)
	if !ok {
		return
	}
	workoutUUID, err := records.NewRecordUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_workout_id"})
		return
	}

	route, err := h.dashboard.Route(c.Request.Context(), userID, workoutUUID)
	if errors.Is(err, dashboard.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("workout route query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "route_failed"})
		return
	}
	c.JSON(http.StatusOK, route)
}

func (h *httpHandler) handleDeleteOwner(c *gin.Context) {
	userID, err := records.NewUserID(c.Param("owner"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner"})
		return
	}

	err = h.owners.Delete(c.Request.Context(), userID)
	if errors.Is(err, owners.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("owner deletion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": userID.String()})
}

// ownerFromQuery resolves the owner for read endpoints. The deployment is
// effectively single tenant, so an absent query parameter falls back to the
// configured default owner.
func (h *httpHandler) ownerFromQuery(c *gin.Context) (records.UserID, bool) {
	raw := c.Query("owner")
	if raw == "" {
		raw = h.defaultOwner
	}
	userID, err := records.NewUserID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_owner"})
		return "", false
	}
	return userID, true
}
