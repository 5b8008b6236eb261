package nomads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
)

// Client downloads model output files from a NOMADS-style HTTP archive into
// a local spool directory. Requests are rate limited so bulk backfills stay
// inside the archive's per-client policy.
type Client struct {
	baseURL    string
	spoolDir   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a downloader writing under spoolDir, limited to rps
// requests per second.
func NewClient(baseURL, spoolDir string, rps float64, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		spoolDir:   spoolDir,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// remotePath mirrors the archive layout: <base>/<model>/<YYYYMMDD>/<file>.
func (c *Client) remotePath(job domain.ForecastJob) string {
	init := job.InitTime.UTC()
	file := fmt.Sprintf("%s_%s_f%03d.nc", job.Model, init.Format("2006010215"), job.ForecastHour)
	return fmt.Sprintf("%s/%s/%s/%s", c.baseURL, job.Model, init.Format("20060102"), file)
}

// localPath places downloads in the layout the field source reads from.
func (c *Client) localPath(job domain.ForecastJob) string {
	file := fmt.Sprintf("%s_%s_f%03d.nc", job.Model, job.InitTime.UTC().Format("2006010215"), job.ForecastHour)
	return filepath.Join(c.spoolDir, job.Model, file)
}

// Download fetches the job's file into the spool directory and returns the
// local path. Already-spooled files are returned without a request. Partial
// downloads are written to a temp file and renamed only on success.
func (c *Client) Download(ctx context.Context, job domain.ForecastJob) (string, error) {
	dest := c.localPath(job)
	if _, err := os.Stat(dest); err == nil {
		c.logger.Debug("file already spooled", "path", dest)
		return dest, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	url := c.remotePath(job)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create spool dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("finalize %s: %w", dest, err)
	}

	c.logger.Info("file downloaded", "url", url, "path", dest, "bytes", n)
	return dest, nil
}
