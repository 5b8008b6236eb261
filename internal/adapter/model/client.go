package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Client implements domain.Classifier against a TensorFlow Serving style
// predict endpoint. Feature rows go out as a JSON instances array and come
// back as one probability row per instance.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a model serving client.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

// Predict sends the feature matrix to the model endpoint and returns the
// per-row class probabilities.
func (c *Client) Predict(ctx context.Context, features *mat.Dense) (*mat.Dense, error) {
	rows, cols := features.Dims()

	instances := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		copy(row, features.RawRowView(i))
		instances[i] = row
	}

	body, err := json.Marshal(predictRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("model server error: status %d: %s", resp.StatusCode, msg)
	}

	var predResp predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&predResp); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}

	return toDense(predResp.Predictions, rows)
}

// toDense packs the prediction rows into a matrix, checking that the server
// returned one row per instance and a consistent class count.
func toDense(predictions [][]float64, want int) (*mat.Dense, error) {
	if len(predictions) != want {
		return nil, fmt.Errorf("model returned %d rows, want %d", len(predictions), want)
	}
	if len(predictions) == 0 {
		return nil, fmt.Errorf("model returned no predictions")
	}

	classes := len(predictions[0])
	if classes == 0 {
		return nil, fmt.Errorf("model returned empty prediction rows")
	}

	out := mat.NewDense(len(predictions), classes, nil)
	for i, row := range predictions {
		if len(row) != classes {
			return nil, fmt.Errorf("prediction row %d has %d classes, want %d", i, len(row), classes)
		}
		out.SetRow(i, row)
	}
	return out, nil
}
