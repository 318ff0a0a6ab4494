package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"teamboard/internal/authz"
	"teamboard/internal/models"
	"teamboard/internal/pdf"
	"teamboard/internal/repositories"
)

type ReportService interface {
	// AuditReport writes the full audit log as a PDF document to w. Manager only.
	AuditReport(ctx context.Context, actor models.Actor, w io.Writer) error
}

type reportService struct {
	audit repositories.AuditRepository
	gen   pdf.Generator
}

func NewReportService(audit repositories.AuditRepository, gen pdf.Generator) ReportService {
	return &reportService{audit: audit, gen: gen}
}

func (s *reportService) AuditReport(ctx context.Context, actor models.Actor, w io.Writer) error {
	if _, err := authz.Decide(actor, authz.OpListAuditLog, nil); err != nil {
		return err
	}
	entries, err := s.audit.List(ctx)
	if err != nil {
		return fmt.Errorf("list audit log: %w", err)
	}
	if err := s.gen.AuditLog(w, entries, time.Now().UTC()); err != nil {
		return fmt.Errorf("render audit report: %w", err)
	}
	return nil
}
