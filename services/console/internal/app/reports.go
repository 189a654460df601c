package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pumpconsole/pkg/domain"
	"pumpconsole/pkg/storage"
)

func (a *App) ServiceReport(ctx context.Context, id string) (*domain.ServiceReport, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrIDRequired
	}
	return a.client.ServiceReportDetails(ctx, id)
}

// ReportPDF is a downloaded report. URL is set when the document was
// archived to object storage; Document is always filled.
type ReportPDF struct {
	Document domain.PDFDocument
	URL      string
}

// ServiceReportPDF downloads the report PDF and, when an archive is
// configured, stores it and returns a presigned link. An archive failure
// falls back to the downloaded document.
func (a *App) ServiceReportPDF(ctx context.Context, id string) (ReportPDF, error) {
	if strings.TrimSpace(id) == "" {
		return ReportPDF{}, ErrIDRequired
	}
	doc, err := a.client.ServiceReportPDF(ctx, id)
	if err != nil {
		return ReportPDF{}, err
	}
	out := ReportPDF{Document: doc}
	if a.archive == nil {
		return out, nil
	}
	url, err := a.archivePDF(ctx, id, doc)
	if err != nil {
		slog.Warn("report pdf archive failed", "report_id", id, "err", err)
		return out, nil
	}
	out.URL = url
	return out, nil
}

func (a *App) archivePDF(ctx context.Context, id string, doc domain.PDFDocument) (string, error) {
	key := storage.ReportPDFKey(id, doc.Filename)
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	if err := a.archive.Put(ctx, key, bytes.NewReader(doc.Data), int64(len(doc.Data)), contentType); err != nil {
		return "", err
	}
	url, err := a.archive.PresignGet(ctx, key, a.expiry)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	slog.Info("report pdf archived", "report_id", id, "key", key, "bytes", len(doc.Data))
	return url, nil
}

func (a *App) Statistics(ctx context.Context) (domain.DashboardStatistics, error) {
	return a.client.Statistics(ctx)
}

func (a *App) ServiceTypeStatistics(ctx context.Context) ([]domain.ServiceTypeStat, error) {
	return a.client.ServiceTypeStatistics(ctx)
}

func (a *App) PartNumberStatistics(ctx context.Context) ([]domain.PartNumberStat, error) {
	return a.client.PartNumberStatistics(ctx)
}
