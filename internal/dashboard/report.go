package dashboard

import (
	"context"
	"fmt"
	"io"

	"github.com/hitoshi/parkspot/internal/report"
)

// Report は売上レポートを返す。
func (s *Service) Report(ctx context.Context, actor Actor) (*report.Report, error) {
	spots, bookings, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	return report.Build(actor.Name, spots, bookings, s.now()), nil
}

// ReportPDF は売上レポートをPDFとして書き出す。
func (s *Service) ReportPDF(ctx context.Context, actor Actor, w io.Writer) error {
	r, err := s.Report(ctx, actor)
	if err != nil {
		return err
	}
	if err := report.RenderPDF(w, r); err != nil {
		return fmt.Errorf("failed to export report: %w", err)
	}
	return nil
}
