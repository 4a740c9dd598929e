package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"screenplay/api/internal/logger"
)

type renderFunc func(ctx context.Context, html, title string) (*Result, error)

// Artifacts stores rendered exports and hands out download links.
type Artifacts interface {
	Put(ctx context.Context, key string, result *Result) (string, error)
}

// Service provides screenplay export functionality
type Service struct {
	pdf       renderFunc
	docx      renderFunc
	artifacts Artifacts
	logger    *zap.Logger
}

type Option func(*Service)

func WithArtifacts(artifacts Artifacts) Option {
	return func(s *Service) { s.artifacts = artifacts }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.logger = logger.OrNop(log).Named("export") }
}

func NewService(opts ...Option) *Service {
	s := &Service{pdf: exportPDF, docx: exportDOCX, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export generates the screenplay in the requested format
func (s *Service) Export(ctx context.Context, doc Screenplay, format Format) (*Result, error) {
	if format == FormatText {
		return &Result{
			Data:     []byte(RenderText(doc)),
			Filename: sanitizeFilename(doc.Title) + ".txt",
			MimeType: "text/plain; charset=utf-8",
		}, nil
	}

	html, err := RenderHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	started := time.Now()
	var result *Result
	switch format {
	case FormatHTML:
		result = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF:
		result, err = s.pdf(ctx, html, doc.Title)
	case FormatDOCX:
		result, err = s.docx(ctx, html, doc.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("screenplay exported",
		zap.String("format", string(format)),
		zap.Int("bytes", len(result.Data)),
		zap.Duration("took", time.Since(started)))
	return result, nil
}

// Publish stores the result and returns a download URL.
func (s *Service) Publish(ctx context.Context, key string, result *Result) (string, error) {
	if s.artifacts == nil {
		return "", ErrArtifactsDisabled
	}
	link, err := s.artifacts.Put(ctx, key+"/"+result.Filename, result)
	if err != nil {
		return "", fmt.Errorf("publish export: %w", err)
	}
	return link, nil
}
