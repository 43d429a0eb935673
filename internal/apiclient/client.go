// Package apiclient speaks the ingestion service's HTTP/JSON wire protocol
// on behalf of the sync agent.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lanternworks/vitalsync/internal/records"
)

const apiKeyHeader = "X-API-Key"

var (
	// ErrUnavailable indicates the ingestion service could not be reached or
	// answered the health check with a failure.
	ErrUnavailable = errors.New("apiclient: service unavailable")
	// ErrUnauthorized indicates the shared secret was missing or rejected.
	ErrUnauthorized = errors.New("apiclient: unauthorized")
	// ErrBatchRejected indicates the whole batch failed structural validation.
	ErrBatchRejected = errors.New("apiclient: batch rejected")
	// ErrBatchFailed indicates every record in the batch failed to apply.
	ErrBatchFailed = errors.New("apiclient: batch failed")
)

// Options configures the wire-protocol client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client is the HTTP client for the sync API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a wire-protocol client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("apiclient: base url is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("apiclient: api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, apiKey: opts.APIKey, httpClient: httpClient}, nil
}

// WorkoutRecord is the wire form of one workout submission.
type WorkoutRecord struct {
	HealthKitUUID   string               `json:"healthkit_uuid"`
	WorkoutType     string               `json:"workout_type"`
	StartTime       time.Time            `json:"start_time"`
	EndTime         time.Time            `json:"end_time"`
	DurationSeconds *float64             `json:"duration_s,omitempty"`
	DistanceMeters  *float64             `json:"distance_m,omitempty"`
	EnergyKcal      *float64             `json:"energy_kcal,omitempty"`
	AvgHeartRate    *float64             `json:"avg_heart_rate,omitempty"`
	MaxHeartRate    *float64             `json:"max_heart_rate,omitempty"`
	SourceName      string               `json:"source_name,omitempty"`
	DeviceName      string               `json:"device_name,omitempty"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
	Route           []records.RoutePoint `json:"route,omitempty"`
}

// MetricRecord is the wire form of one health metric submission.
type MetricRecord struct {
	HealthKitUUID string            `json:"healthkit_uuid"`
	MetricType    string            `json:"metric_type"`
	Value         float64           `json:"value"`
	Unit          string            `json:"unit"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	SourceName    string            `json:"source_name,omitempty"`
	DeviceName    string            `json:"device_name,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RingRecord is the wire form of one activity-ring submission.
type RingRecord struct {
	Date                  string  `json:"date"`
	MoveGoalKcal          float64 `json:"move_goal_kcal"`
	MoveActualKcal        float64 `json:"move_actual_kcal"`
	MovePercent           float64 `json:"move_percent"`
	ExerciseGoalMinutes   float64 `json:"exercise_goal_min"`
	ExerciseActualMinutes float64 `json:"exercise_actual_min"`
	ExercisePercent       float64 `json:"exercise_percent"`
	StandGoalHours        float64 `json:"stand_goal_hours"`
	StandActualHours      float64 `json:"stand_actual_hours"`
	StandPercent          float64 `json:"stand_percent"`
}

// RecordError identifies one failed record within a batch response.
type RecordError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// BatchResult is the normalized batch response envelope. Partial failures
// arrive as a populated Errors list alongside the applied counts.
type BatchResult struct {
	Synced  int           `json:"synced"`
	Skipped int           `json:"skipped"`
	Updated int           `json:"updated"`
	Errors  []RecordError `json:"errors"`
}

// Anchor is the wire form of a stored sync anchor.
type Anchor struct {
	Owner      string    `json:"owner"`
	DataType   string    `json:"data_type"`
	AnchorData string    `json:"anchor_data"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// Health calls the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: liveness status %d", ErrUnavailable, response.StatusCode)
	}
	return nil
}

// SubmitWorkouts posts one workout batch. A 207 response is not an error;
// the caller inspects the result's Errors list. A 500 all-failed response
// surfaces as ErrBatchFailed.
func (c *Client) SubmitWorkouts(ctx context.Context, owner string, workouts []WorkoutRecord) (BatchResult, error) {
	body := map[string]interface{}{"owner": owner, "workouts": workouts}
	return c.submitBatch(ctx, "/sync/workouts", body)
}

// SubmitMetrics posts one health metric batch.
func (c *Client) SubmitMetrics(ctx context.Context, owner string, metrics []MetricRecord) (BatchResult, error) {
	body := map[string]interface{}{"owner": owner, "metrics": metrics}
	return c.submitBatch(ctx, "/sync/health-metrics", body)
}

// SubmitRings posts one activity-ring batch.
func (c *Client) SubmitRings(ctx context.Context, owner string, rings []RingRecord) (BatchResult, error) {
	body := map[string]interface{}{"owner": owner, "activity_rings": rings}
	return c.submitBatch(ctx, "/sync/activity-rings", body)
}

func (c *Client) submitBatch(ctx context.Context, path string, body interface{}) (BatchResult, error) {
	response, raw, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	switch response.StatusCode {
	case http.StatusOK, http.StatusMultiStatus:
		if err := json.Unmarshal(raw, &result); err != nil {
			return BatchResult{}, fmt.Errorf("apiclient: decode batch response: %w", err)
		}
		return result, nil
	case http.StatusBadRequest:
		return BatchResult{}, fmt.Errorf("%w: %s", ErrBatchRejected, strings.TrimSpace(string(raw)))
	case http.StatusUnauthorized, http.StatusForbidden:
		return BatchResult{}, ErrUnauthorized
	case http.StatusInternalServerError:
		if err := json.Unmarshal(raw, &result); err == nil && len(result.Errors) > 0 {
			return result, fmt.Errorf("%w: %d records", ErrBatchFailed, len(result.Errors))
		}
		return BatchResult{}, fmt.Errorf("%w: status %d", ErrBatchFailed, response.StatusCode)
	default:
		return BatchResult{}, fmt.Errorf("apiclient: unexpected status %d", response.StatusCode)
	}
}

// GetAnchor fetches the stored anchor for the pair. Absence is signalled by
// the second return value, never by an error.
func (c *Client) GetAnchor(ctx context.Context, owner, dataType string) (Anchor, bool, error) {
	path := fmt.Sprintf("/sync/anchors/%s/%s", url.PathEscape(owner), url.PathEscape(dataType))
	response, raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Anchor{}, false, err
	}
	switch response.StatusCode {
	case http.StatusOK:
		var anchor Anchor
		if err := json.Unmarshal(raw, &anchor); err != nil {
			return Anchor{}, false, fmt.Errorf("apiclient: decode anchor: %w", err)
		}
		return anchor, true, nil
	case http.StatusNotFound:
		return Anchor{}, false, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return Anchor{}, false, ErrUnauthorized
	default:
		return Anchor{}, false, fmt.Errorf("apiclient: unexpected status %d", response.StatusCode)
	}
}

// PutAnchor upserts the anchor payload for the pair.
func (c *Client) PutAnchor(ctx context.Context, owner, dataType, payload string) error {
	body := map[string]string{"owner": owner, "data_type": dataType, "anchor_data": payload}
	response, raw, err := c.do(ctx, http.MethodPost, "/sync/anchors", body)
	if err != nil {
		return err
	}
	switch response.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("apiclient: anchor put status %d: %s", response.StatusCode, strings.TrimSpace(string(raw)))
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("apiclient: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	request.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("apiclient: read response: %w", err)
	}
	return response, raw, nil
}
