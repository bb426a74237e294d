// Package analysis orchestrates price-tag image analysis: rate limiting,
// OCR, and chat-based product extraction, normalized into one tagged result.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/kaimoapp/kaimo/internal/chat"
	"github.com/kaimoapp/kaimo/internal/clock"
	obsmetrics "github.com/kaimoapp/kaimo/internal/observability/metrics"
	"github.com/kaimoapp/kaimo/internal/vision"
	"go.uber.org/zap"
)

// MaxImageSize is the inbound payload cap.
const MaxImageSize = 10 << 20

const (
	visionTimeout = 10 * time.Second
	chatTimeout   = 15 * time.Second
)

var (
	ErrPayloadTooLarge = errors.New("image exceeds 10MB limit")
	ErrEmptyImage      = errors.New("image payload is required")
)

var languageHints = []string{"ja", "en"}

// ResultKind tags the analysis outcome.
type ResultKind string

const (
	KindSuccess        ResultKind = "success"
	KindNoTextDetected ResultKind = "no_text_detected"
	KindIncomplete     ResultKind = "incomplete"
)

// Result is the normalized outcome of one analysis request.
type Result struct {
	Kind       ResultKind
	Name       string
	Price      int
	OCRText    string
	Confidence float64
	Timestamp  time.Time
}

// Request is one analysis invocation for an authenticated user.
type Request struct {
	UserID    string
	Image     []byte
	Timestamp time.Time // client-supplied; zero means "use server time"
}

// RateLimiter admits or rejects one call for a user.
type RateLimiter interface {
	CheckAndRecord(ctx context.Context, userID string) error
}

// Service sequences the limiter and both upstream adapters.
type Service struct {
	limiter   RateLimiter
	annotator vision.Annotator
	completer chat.Completer
	clock     clock.Clock
	log       *zap.Logger
}

func NewService(limiter RateLimiter, annotator vision.Annotator, completer chat.Completer, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{
		limiter:   limiter,
		annotator: annotator,
		completer: completer,
		clock:     clk,
		log:       log.Named("analysis"),
	}
}

// Analyze runs the full pipeline. Rate-limit, size, and deadline violations
// come back as errors; soft outcomes (no text, incomplete extraction) come
// back as tagged results so the client can fall back to manual entry.
func (s *Service) Analyze(ctx context.Context, req Request) (Result, error) {
	if err := s.limiter.CheckAndRecord(ctx, req.UserID); err != nil {
		return Result{}, err
	}

	if len(req.Image) == 0 {
		return Result{}, ErrEmptyImage
	}
	if len(req.Image) > MaxImageSize {
		return Result{}, ErrPayloadTooLarge
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.clock.Now()
	}

	ocrCtx, cancel := context.WithTimeout(ctx, visionTimeout)
	doc, err := s.annotator.DetectText(ocrCtx, req.Image, languageHints)
	cancel()
	switch {
	case errors.Is(err, vision.ErrNoText):
		s.log.Info("no text regions detected", zap.String("user_id", req.UserID))
		obsmetrics.App().IncAnalysisResult(string(KindNoTextDetected))
		return Result{Kind: KindNoTextDetected, Timestamp: ts}, nil
	case err != nil:
		return Result{}, err
	}

	if strings.TrimSpace(doc.Text) == "" {
		s.log.Info("OCR text empty after trimming", zap.String("user_id", req.UserID))
		obsmetrics.App().IncAnalysisResult(string(KindIncomplete))
		return Result{Kind: KindIncomplete, OCRText: doc.Text, Timestamp: ts}, nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, chatTimeout)
	completion, err := s.completer.Complete(extractCtx, chat.Request{
		System:      productExtractionSystemPrompt,
		User:        productExtractionUserPrompt(doc.Text),
		Temperature: 0.1,
		MaxTokens:   200,
	})
	cancel()
	if err != nil {
		return Result{}, err
	}

	name, price, ok := parseProductInfo(completion)
	if !ok {
		s.log.Warn("product info incomplete",
			zap.String("user_id", req.UserID),
			zap.Int("ocr_len", len(doc.Text)),
		)
		obsmetrics.App().IncAnalysisResult(string(KindIncomplete))
		return Result{Kind: KindIncomplete, OCRText: doc.Text, Timestamp: ts}, nil
	}

	s.log.Info("analysis complete",
		zap.String("user_id", req.UserID),
		zap.String("name", name),
		zap.Int("price", price),
	)
	obsmetrics.App().IncAnalysisResult(string(KindSuccess))
	return Result{
		Kind:       KindSuccess,
		Name:       name,
		Price:      price,
		OCRText:    doc.Text,
		Confidence: doc.Confidence,
		Timestamp:  ts,
	}, nil
}

// parseProductInfo pulls {name, price} out of a free-form completion. Both
// fields must be present and the price must be an integer.
func parseProductInfo(completion string) (string, int, bool) {
	span, err := chat.ExtractJSONObject(completion)
	if err != nil {
		return "", 0, false
	}

	var payload struct {
		Name  string          `json:"name"`
		Price json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal([]byte(span), &payload); err != nil {
		return "", 0, false
	}
	if strings.TrimSpace(payload.Name) == "" || len(payload.Price) == 0 {
		return "", 0, false
	}

	price, ok := parsePrice(payload.Price)
	if !ok {
		return "", 0, false
	}
	return payload.Name, price, true
}

func parsePrice(raw json.RawMessage) (int, bool) {
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return asInt, true
	}
	// Models sometimes quote the number.
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		n, convErr := strconv.Atoi(strings.TrimSpace(asString))
		if convErr == nil {
			return n, true
		}
	}
	return 0, false
}
