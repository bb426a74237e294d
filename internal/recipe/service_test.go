package recipe

import (
	"context"
	"strings"
	"testing"

	"github.com/kaimoapp/kaimo/internal/chat"
	"github.com/kaimoapp/kaimo/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubLimiter struct {
	calls int
	err   error
}

func (s *stubLimiter) CheckAndRecord(ctx context.Context, userID string) error {
	s.calls++
	return s.err
}

type stubCompleter struct {
	calls   int
	lastReq chat.Request
	reply   string
	err     error
}

func (s *stubCompleter) Complete(ctx context.Context, req chat.Request) (string, error) {
	s.calls++
	s.lastReq = req
	return s.reply, s.err
}

func TestParseRecipe(t *testing.T) {
	limiter := &stubLimiter{}
	completer := &stubCompleter{reply: `{
		"title": "肉じゃが",
		"ingredients": [
			{"name": "玉ねぎ", "quantity": "1個", "normalizedName": "玉ねぎ", "confidence": 1.0, "notes": null},
			{"name": "醤油", "quantity": null, "normalizedName": "醤油", "confidence": 0.9, "notes": null}
		]
	}`}
	svc := NewService(limiter, completer, zap.NewNop())

	res, err := svc.ParseRecipe(context.Background(), "user-1", "肉じゃがの作り方…")
	require.NoError(t, err)

	assert.Equal(t, "肉じゃが", res.Title)
	require.Len(t, res.Ingredients, 2)
	assert.Equal(t, "玉ねぎ", res.Ingredients[0].Name)
	require.NotNil(t, res.Ingredients[0].Quantity)
	assert.Equal(t, "1個", *res.Ingredients[0].Quantity)
	assert.Nil(t, res.Ingredients[1].Quantity)

	assert.Equal(t, 1, limiter.calls)
	assert.True(t, completer.lastReq.JSONMode)
	assert.Equal(t, float32(0.1), completer.lastReq.Temperature)
}

func TestParseRecipeDefaultsTitleAndIngredients(t *testing.T) {
	completer := &stubCompleter{reply: `{}`}
	svc := NewService(&stubLimiter{}, completer, zap.NewNop())

	res, err := svc.ParseRecipe(context.Background(), "user-1", "材料不明のメモ")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, res.Title)
	assert.NotNil(t, res.Ingredients)
	assert.Empty(t, res.Ingredients)
}

func TestParseRecipeTextLengthBoundary(t *testing.T) {
	completer := &stubCompleter{reply: `{"title": "鍋", "ingredients": []}`}
	svc := NewService(&stubLimiter{}, completer, zap.NewNop())

	// Multibyte runes count as one character each.
	atCap := strings.Repeat("あ", MaxRecipeTextLength)
	_, err := svc.ParseRecipe(context.Background(), "user-1", atCap)
	require.NoError(t, err)

	overCap := strings.Repeat("あ", MaxRecipeTextLength+1)
	_, err = svc.ParseRecipe(context.Background(), "user-1", overCap)
	require.ErrorIs(t, err, ErrTextTooLong)
	assert.Equal(t, 1, completer.calls)
}

func TestParseRecipeEmptyText(t *testing.T) {
	completer := &stubCompleter{}
	svc := NewService(&stubLimiter{}, completer, zap.NewNop())

	_, err := svc.ParseRecipe(context.Background(), "user-1", "   ")
	require.ErrorIs(t, err, ErrTextRequired)
	assert.Equal(t, 0, completer.calls)
}

func TestParseRecipeRateLimited(t *testing.T) {
	limiter := &stubLimiter{err: ratelimit.ErrPerDay}
	completer := &stubCompleter{}
	svc := NewService(limiter, completer, zap.NewNop())

	_, err := svc.ParseRecipe(context.Background(), "user-1", "カレーの作り方")
	require.ErrorIs(t, err, ratelimit.ErrRateLimited)
	assert.Equal(t, 0, completer.calls)
}

func TestParseRecipeMalformedUpstream(t *testing.T) {
	completer := &stubCompleter{reply: "ここに材料を書きます"}
	svc := NewService(&stubLimiter{}, completer, zap.NewNop())

	_, err := svc.ParseRecipe(context.Background(), "user-1", "カレーの作り方")
	require.ErrorIs(t, err, ErrUpstreamFormat)
}

func TestSummarizeProductName(t *testing.T) {
	completer := &stubCompleter{reply: "  明治 やわらかパイ\n"}
	svc := NewService(&stubLimiter{}, completer, zap.NewNop())

	name, err := svc.SummarizeProductName(context.Background(), "user-1", "【送料無料】明治 やわらかパイ 10個入り お菓子 詰め合わせ")
	require.NoError(t, err)
	assert.Equal(t, "明治 やわらかパイ", name)
	assert.Equal(t, 50, completer.lastReq.MaxTokens)
}

func TestSummarizeProductNameEmptyCompletionIsSoftFailure(t *testing.T) {
	completer := &stubCompleter{err: chat.ErrEmptyCompletion}
	svc := NewService(&stubLimiter{}, completer, zap.NewNop())

	name, err := svc.SummarizeProductName(context.Background(), "user-1", "商品名")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestSummarizeProductNameValidation(t *testing.T) {
	svc := NewService(&stubLimiter{}, &stubCompleter{}, zap.NewNop())

	_, err := svc.SummarizeProductName(context.Background(), "user-1", "")
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestCheckIngredientSimilarityExactMatchSkipsModel(t *testing.T) {
	completer := &stubCompleter{}
	svc := NewService(&stubLimiter{}, completer, zap.NewNop())

	same, err := svc.CheckIngredientSimilarity(context.Background(), "user-1", " 玉ねぎ ", "玉ねぎ")
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, 0, completer.calls)
}

func TestCheckIngredientSimilarityModelVerdict(t *testing.T) {
	cases := []struct {
		reply string
		want  bool
	}{
		{"true", true},
		{"True.", true},
		{"false", false},
		{"わかりません", false},
	}
	for _, tc := range cases {
		completer := &stubCompleter{reply: tc.reply}
		svc := NewService(&stubLimiter{}, completer, zap.NewNop())

		same, err := svc.CheckIngredientSimilarity(context.Background(), "user-1", "玉ねぎ", "たまねぎ")
		require.NoError(t, err)
		assert.Equal(t, tc.want, same, "reply %q", tc.reply)
		assert.Equal(t, 10, completer.lastReq.MaxTokens)
		assert.Zero(t, completer.lastReq.Temperature)
	}
}

func TestCheckIngredientSimilarityCachesVerdict(t *testing.T) {
	completer := &stubCompleter{reply: "true"}
	svc := NewService(&stubLimiter{}, completer, zap.NewNop())

	same, err := svc.CheckIngredientSimilarity(context.Background(), "user-1", "じゃがいも", "馬鈴薯")
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, 1, completer.calls)

	// Repeated and reversed pairs are served from the cache.
	same, err = svc.CheckIngredientSimilarity(context.Background(), "user-1", "じゃがいも", "馬鈴薯")
	require.NoError(t, err)
	assert.True(t, same)
	same, err = svc.CheckIngredientSimilarity(context.Background(), "user-2", "馬鈴薯", "じゃがいも")
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, 1, completer.calls)
}

func TestCheckIngredientSimilarityValidation(t *testing.T) {
	svc := NewService(&stubLimiter{}, &stubCompleter{}, zap.NewNop())

	_, err := svc.CheckIngredientSimilarity(context.Background(), "user-1", "玉ねぎ", "")
	require.ErrorIs(t, err, ErrNamesRequired)
}
