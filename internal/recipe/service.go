// Package recipe covers the text-side chat features: recipe ingredient
// extraction, product-name summarization, and ingredient similarity checks.
package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kaimoapp/kaimo/internal/cache"
	"github.com/kaimoapp/kaimo/internal/chat"
	"go.uber.org/zap"
)

// MaxRecipeTextLength caps inbound recipe text, counted in runes.
const MaxRecipeTextLength = 5000

const (
	parseTimeout      = 15 * time.Second
	summarizeTimeout  = 10 * time.Second
	similarityTimeout = 5 * time.Second

	// Similarity verdicts are deterministic (temperature 0), so repeated
	// pairs can be served from memory instead of burning quota.
	similarityCacheTTL = 10 * time.Minute
)

var (
	ErrTextRequired  = errors.New("recipe text is required")
	ErrTextTooLong   = errors.New("recipe text exceeds length limit")
	ErrNameRequired  = errors.New("product name is required")
	ErrNamesRequired = errors.New("two ingredient names are required")
	// ErrUpstreamFormat means the model answered but not with the JSON shape
	// we asked for. Distinct from transport errors.
	ErrUpstreamFormat = errors.New("malformed upstream response")
)

// DefaultTitle is used when the model cannot name the dish.
const DefaultTitle = "レシピから取り込み"

// Ingredient is one extracted recipe line.
type Ingredient struct {
	Name           string  `json:"name"`
	Quantity       *string `json:"quantity"`
	NormalizedName string  `json:"normalizedName"`
	Confidence     float64 `json:"confidence"`
	Notes          *string `json:"notes"`
}

// ParseResult is a parsed recipe: a dish title plus its ingredients.
type ParseResult struct {
	Title       string       `json:"title"`
	Ingredients []Ingredient `json:"ingredients"`
}

// RateLimiter admits or rejects one call for a user.
type RateLimiter interface {
	CheckAndRecord(ctx context.Context, userID string) error
}

type Service struct {
	limiter    RateLimiter
	completer  chat.Completer
	similarity cache.Cache[string, bool]
	log        *zap.Logger
}

func NewService(limiter RateLimiter, completer chat.Completer, log *zap.Logger) *Service {
	return &Service{
		limiter:    limiter,
		completer:  completer,
		similarity: cache.NewTTLCache[string, bool](similarityCacheTTL),
		log:        log.Named("recipe"),
	}
}

// ParseRecipe extracts the dish title and ingredient list from free-form
// recipe text via a single JSON-mode completion.
func (s *Service) ParseRecipe(ctx context.Context, userID, recipeText string) (ParseResult, error) {
	if strings.TrimSpace(recipeText) == "" {
		return ParseResult{}, ErrTextRequired
	}
	if n := utf8.RuneCountInString(recipeText); n > MaxRecipeTextLength {
		return ParseResult{}, fmt.Errorf("%w: %d characters", ErrTextTooLong, n)
	}
	if err := s.limiter.CheckAndRecord(ctx, userID); err != nil {
		return ParseResult{}, err
	}

	s.log.Info("parsing recipe",
		zap.String("user_id", userID),
		zap.Int("text_len", utf8.RuneCountInString(recipeText)),
	)

	callCtx, cancel := context.WithTimeout(ctx, parseTimeout)
	defer cancel()
	completion, err := s.completer.Complete(callCtx, chat.Request{
		System:      recipeParseSystemPrompt,
		User:        recipeParseUserPrompt(recipeText),
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return ParseResult{}, err
	}

	var result ParseResult
	if err := json.Unmarshal([]byte(completion), &result); err != nil {
		return ParseResult{}, fmt.Errorf("%w: %v", ErrUpstreamFormat, err)
	}
	if result.Title == "" {
		result.Title = DefaultTitle
	}
	if result.Ingredients == nil {
		result.Ingredients = []Ingredient{}
	}

	s.log.Info("recipe parsed",
		zap.String("title", result.Title),
		zap.Int("ingredient_count", len(result.Ingredients)),
	)
	return result, nil
}

// SummarizeProductName shortens a verbose listing title to its essential
// product name. An empty or missing completion is a soft failure: the caller
// keeps the original name.
func (s *Service) SummarizeProductName(ctx context.Context, userID, originalName string) (string, error) {
	if strings.TrimSpace(originalName) == "" {
		return "", ErrNameRequired
	}

	callCtx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()
	completion, err := s.completer.Complete(callCtx, chat.Request{
		System:    summarizeSystemPrompt,
		User:      summarizeUserPrompt(originalName),
		MaxTokens: 50,
	})
	if errors.Is(err, chat.ErrEmptyCompletion) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(completion), nil
}

// CheckIngredientSimilarity reports whether two ingredient names refer to the
// same foodstuff. Exact matches never leave the process.
func (s *Service) CheckIngredientSimilarity(ctx context.Context, userID, name1, name2 string) (bool, error) {
	if strings.TrimSpace(name1) == "" || strings.TrimSpace(name2) == "" {
		return false, ErrNamesRequired
	}
	if strings.TrimSpace(name1) == strings.TrimSpace(name2) {
		return true, nil
	}

	key := similarityKey(name1, name2)
	if verdict, ok := s.similarity.Get(key); ok {
		return verdict, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, similarityTimeout)
	defer cancel()
	completion, err := s.completer.Complete(callCtx, chat.Request{
		System:      similaritySystemPrompt,
		User:        similarityUserPrompt(name1, name2),
		Temperature: 0,
		MaxTokens:   10,
	})
	if err != nil {
		return false, err
	}

	verdict := strings.Contains(strings.ToLower(completion), "true")
	s.similarity.Set(key, verdict)
	return verdict, nil
}

// similarityKey is order-insensitive: the verdict for (a, b) answers (b, a).
func similarityKey(name1, name2 string) string {
	a, b := strings.TrimSpace(name1), strings.TrimSpace(name2)
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}
