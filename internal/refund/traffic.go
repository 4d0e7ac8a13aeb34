package refund

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TrafficReporter reports how much completed traffic a keyword received
// over a date range, as measured by the external counting service.
type TrafficReporter interface {
	CompletedTraffic(ctx context.Context, keywordID int64, start, end time.Time) (int64, error)
}

const trafficDateLayout = "2006-01-02"

type successCountRequest struct {
	KeywordID int64  `json:"keywordId"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
}

type successCountResponse struct {
	TrafficCount int64 `json:"traffic_count"`
}

// HTTPTrafficReporter calls the counting service over HTTP.
type HTTPTrafficReporter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTrafficReporter(baseURL string) *HTTPTrafficReporter {
	return &HTTPTrafficReporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *HTTPTrafficReporter) CompletedTraffic(ctx context.Context, keywordID int64, start, end time.Time) (int64, error) {
	body, err := json.Marshal(successCountRequest{
		KeywordID: keywordID,
		TimeStart: start.Format(trafficDateLayout),
		TimeEnd:   end.Format(trafficDateLayout),
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/keyword/success-count-duration", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("traffic api status %d for keyword %d", resp.StatusCode, keywordID)
	}

	var out successCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("traffic api decode: %w", err)
	}
	return out.TrafficCount, nil
}
