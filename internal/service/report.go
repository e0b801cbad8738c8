package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/timmy/trackr/internal/aggregate"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/storage"
)

// Report is the exported snapshot of a campaign.
type Report struct {
	GeneratedAt time.Time                     `json:"generated_at"`
	Campaign    domain.Campaign               `json:"campaign"`
	Stats       aggregate.CampaignStats       `json:"stats"`
	StatusCount map[aggregate.StatusLabel]int `json:"status_counts"`
	Windows     []aggregate.WindowTotal       `json:"windows"`
	Posts       []domain.Post                 `json:"posts"`
}

// ExportResult locates an uploaded report.
type ExportResult struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// ReportService builds campaign reports and stores them in object storage.
type ReportService struct {
	campaigns *CampaignService
	store     storage.ObjectStorage
	nowFn     func() time.Time
}

// NewReportService creates a report service. A nil store disables exports.
func NewReportService(campaigns *CampaignService, store storage.ObjectStorage) *ReportService {
	return &ReportService{campaigns: campaigns, store: store, nowFn: time.Now}
}

// Build assembles the report of a campaign without storing it.
func (s *ReportService) Build(ctx context.Context, campaignID string) (*Report, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.campaigns.Stats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	windows, err := s.campaigns.Windows(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	posts, err := s.campaigns.Posts(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return &Report{
		GeneratedAt: s.nowFn().UTC(),
		Campaign:    *c,
		Stats:       *stats,
		StatusCount: aggregate.PostCounts(posts),
		Windows:     windows,
		Posts:       posts,
	}, nil
}

// Export uploads the campaign report as JSON under
// reports/{campaignID}/{timestamp}.json.
func (s *ReportService) Export(ctx context.Context, campaignID string) (*ExportResult, error) {
	if s.store == nil {
		return nil, storage.ErrDisabled
	}
	report, err := s.Build(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	key := path.Join("reports", campaignID, report.GeneratedAt.Format("20060102T150405Z")+".json")
	if err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return nil, err
	}

	logger.With(logger.Fields{
		logger.FieldCampaignID: campaignID,
		logger.FieldSize:       len(data),
		"key":                  key,
	}).Info(ctx, "Report exported")
	return &ExportResult{Key: key, URL: s.store.GetURL(key), Size: int64(len(data))}, nil
}

// Open returns a previously exported report of the campaign by file name.
func (s *ReportService) Open(ctx context.Context, campaignID, name string) (io.ReadCloser, error) {
	if s.store == nil {
		return nil, storage.ErrDisabled
	}
	if name == "" || strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".json") {
		return nil, domain.NewValidationError("name", "is not a report file name")
	}
	key := path.Join("reports", campaignID, name)
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("report %s: %w", name, domain.ErrNotFound)
	}
	return s.store.Download(ctx, key)
}
