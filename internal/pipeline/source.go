package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/ptype-inference-service/internal/domain"
)

// Downloader fetches a job's model file into the local spool, returning the
// local path.
type Downloader interface {
	Download(ctx context.Context, job domain.ForecastJob) (string, error)
}

// SpoolingSource is a FieldSource that downloads the model file on demand
// before handing off to the reader. Already-spooled files skip the network.
type SpoolingSource struct {
	downloader Downloader
	source     domain.FieldSource
}

// NewSpoolingSource wraps a field source with on-demand downloads.
func NewSpoolingSource(downloader Downloader, source domain.FieldSource) *SpoolingSource {
	return &SpoolingSource{downloader: downloader, source: source}
}

func (s *SpoolingSource) Fetch(ctx context.Context, job domain.ForecastJob) (*domain.Field, error) {
	if _, err := s.downloader.Download(ctx, job); err != nil {
		return nil, fmt.Errorf("download field: %w", err)
	}
	return s.source.Fetch(ctx, job)
}
