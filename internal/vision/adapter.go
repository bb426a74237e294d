// Package vision wraps the Cloud Vision images:annotate API for price-tag OCR.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	obsmetrics "github.com/kaimoapp/kaimo/internal/observability/metrics"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"
)

var (
	// ErrNoText means the image contained no detectable text regions. This is
	// a normal empty outcome, not an upstream failure.
	ErrNoText = errors.New("no text detected")
	// ErrDeadline means the call exceeded its caller-imposed budget.
	ErrDeadline = errors.New("vision call deadline exceeded")
)

// Document is the OCR result for one image.
type Document struct {
	Text       string
	Confidence float64
}

// Annotator performs document text detection on raw image bytes.
type Annotator interface {
	DetectText(ctx context.Context, image []byte, languageHints []string) (Document, error)
}

// GoogleAnnotator implements Annotator over the Cloud Vision REST API.
type GoogleAnnotator struct {
	svc *visionapi.Service
	log *zap.Logger
}

func NewGoogleAnnotator(ctx context.Context, apiKey, endpoint string, log *zap.Logger) (*GoogleAnnotator, error) {
	opts := []option.ClientOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := visionapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision service: %w", err)
	}
	return &GoogleAnnotator{svc: svc, log: log.Named("vision")}, nil
}

func (a *GoogleAnnotator) DetectText(ctx context.Context, image []byte, languageHints []string) (Document, error) {
	start := time.Now()

	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image:        &visionapi.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features:     []*visionapi.Feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
			ImageContext: &visionapi.ImageContext{LanguageHints: languageHints},
		}},
	}

	resp, err := a.svc.Images.Annotate(req).Context(ctx).Do()
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamVision, obsmetrics.OutcomeDeadline, elapsed)
		a.log.Warn("annotate timed out", zap.Duration("elapsed", elapsed))
		return Document{}, ErrDeadline
	case err != nil:
		obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamVision, obsmetrics.OutcomeError, elapsed)
		return Document{}, err
	}

	if len(resp.Responses) == 0 {
		obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamVision, obsmetrics.OutcomeError, elapsed)
		return Document{}, fmt.Errorf("annotate returned no responses")
	}
	annotated := resp.Responses[0]
	if annotated.Error != nil {
		obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamVision, obsmetrics.OutcomeError, elapsed)
		return Document{}, fmt.Errorf("annotate: %s", annotated.Error.Message)
	}

	doc, err := documentFromResponse(annotated)
	if err != nil {
		obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamVision, obsmetrics.OutcomeOK, elapsed)
		return Document{}, err
	}

	obsmetrics.App().ObserveUpstreamCall(obsmetrics.UpstreamVision, obsmetrics.OutcomeOK, elapsed)
	return doc, nil
}

// documentFromResponse prefers the full document annotation over the flat
// word list, and averages block confidences for the document score.
func documentFromResponse(resp *visionapi.AnnotateImageResponse) (Document, error) {
	full := resp.FullTextAnnotation
	words := resp.TextAnnotations

	if full == nil && len(words) == 0 {
		return Document{}, ErrNoText
	}

	text := ""
	confidence := 0.0
	if full != nil {
		text = full.Text
		confidence = meanBlockConfidence(full.Pages)
	}
	if text == "" && len(words) > 0 {
		text = words[0].Description
	}

	return Document{Text: text, Confidence: confidence}, nil
}

// meanBlockConfidence averages per-block confidence values across all pages,
// rounded to 3 decimals. Blocks without a reported confidence are skipped;
// with none at all the score is 0.0.
func meanBlockConfidence(pages []*visionapi.Page) float64 {
	sum := 0.0
	count := 0
	for _, page := range pages {
		if page == nil {
			continue
		}
		for _, block := range page.Blocks {
			if block == nil || block.Confidence == 0 {
				continue
			}
			sum += block.Confidence
			count++
		}
	}
	if count == 0 {
		return 0.0
	}
	return math.Round(sum/float64(count)*1000) / 1000
}
