package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kaimoapp/kaimo/internal/analysis"
	"github.com/kaimoapp/kaimo/internal/chat"
	"github.com/kaimoapp/kaimo/internal/clock"
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"github.com/kaimoapp/kaimo/internal/identity"
	"github.com/kaimoapp/kaimo/internal/ratelimit"
	"github.com/kaimoapp/kaimo/internal/recipe"
	"github.com/kaimoapp/kaimo/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubLimiter struct {
	err   error
	calls int
}

func (s *stubLimiter) CheckAndRecord(ctx context.Context, userID string) error {
	s.calls++
	return s.err
}

type stubAnnotator struct {
	doc vision.Document
	err error
}

func (s *stubAnnotator) DetectText(ctx context.Context, image []byte, languageHints []string) (vision.Document, error) {
	return s.doc, s.err
}

type stubCompleter struct {
	reply   string
	err     error
	lastReq chat.Request
}

func (s *stubCompleter) Complete(ctx context.Context, req chat.Request) (string, error) {
	s.lastReq = req
	return s.reply, s.err
}

type stubFamilyService struct {
	familydomain.Service

	createdFamily *familydomain.Family
	updatedSub    *familydomain.Subscription
	dissolveErr   error
	removeErr     error
	lastCallerID  string
	lastFamilyID  string
	lastMemberID  string
}

func (s *stubFamilyService) CreateFamily(ctx context.Context, family familydomain.Family) error {
	s.createdFamily = &family
	return nil
}

func (s *stubFamilyService) UpdateSubscription(ctx context.Context, sub familydomain.Subscription) error {
	s.updatedSub = &sub
	return nil
}

func (s *stubFamilyService) Dissolve(ctx context.Context, callerID, familyID string) error {
	s.lastCallerID = callerID
	s.lastFamilyID = familyID
	return s.dissolveErr
}

func (s *stubFamilyService) RemoveMember(ctx context.Context, callerID, familyID, memberID string) error {
	s.lastCallerID = callerID
	s.lastFamilyID = familyID
	s.lastMemberID = memberID
	return s.removeErr
}

type serverFixture struct {
	srv       *Server
	router    *gin.Engine
	verifier  *identity.Verifier
	limiter   *stubLimiter
	annotator *stubAnnotator
	completer *stubCompleter
	familySvc *stubFamilyService
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	verifier := identity.NewVerifier("test-secret")

	limiter := &stubLimiter{}
	annotator := &stubAnnotator{}
	completer := &stubCompleter{}
	familySvc := &stubFamilyService{}

	srv := &Server{
		log:         log,
		verifier:    verifier,
		clock:       clk,
		analysisSvc: analysis.NewService(limiter, annotator, completer, clk, log),
		recipeSvc:   recipe.NewService(limiter, completer, log),
		familySvc:   familySvc,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	srv.engine = router
	srv.registerAPIRoutes()

	return &serverFixture{
		srv:       srv,
		router:    router,
		verifier:  verifier,
		limiter:   limiter,
		annotator: annotator,
		completer: completer,
		familySvc: familySvc,
	}
}

func (f *serverFixture) post(t *testing.T, path string, body string, userID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := f.verifier.SignForTest(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/testConnection", `{}`, "")

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "unauthenticated", errObj["code"])
	assert.Equal(t, "認証が必要です", errObj["message"])
	assert.Zero(t, f.limiter.calls)
}

func TestAuthRequiredRejectsGarbageToken(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/testConnection", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestTestConnection(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/testConnection", `{}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "接続正常", body["message"])
	assert.Equal(t, "user-1", body["userId"])
	assert.Equal(t, "2025-06-01T12:00:00Z", body["timestamp"])
}

func TestAnalyzeImageSuccess(t *testing.T) {
	f := newServerFixture(t)
	f.annotator.doc = vision.Document{Text: "明治おいしい牛乳 258円", Confidence: 0.93}
	f.completer.reply = `{"name":"明治おいしい牛乳","price":258}`

	image := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	resp := f.post(t, "/v1/analyzeImage", `{"imageBase64":"`+image+`"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "明治おいしい牛乳", body["name"])
	assert.Equal(t, float64(258), body["price"])
	assert.Equal(t, "明治おいしい牛乳 258円", body["ocrText"])
	assert.Equal(t, "user-1", body["userId"])
	assert.Equal(t, 1, f.limiter.calls)
}

func TestAnalyzeImageClientTimestampEchoed(t *testing.T) {
	f := newServerFixture(t)
	f.annotator.doc = vision.Document{Text: "パン 128"}
	f.completer.reply = `{"name":"パン","price":128}`

	image := base64.StdEncoding.EncodeToString([]byte("x"))
	resp := f.post(t, "/v1/analyzeImage",
		`{"imageBase64":"`+image+`","timestamp":"2025-05-30T09:15:00Z"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "2025-05-30T09:15:00Z", body["timestamp"])
}

func TestAnalyzeImageInvalidBase64(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/analyzeImage", `{"imageBase64":"%%%%"}`, "user-1")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "invalid-argument", errObj["code"])
	assert.Zero(t, f.limiter.calls)
}

func TestAnalyzeImageEmptyPayload(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/analyzeImage", `{"imageBase64":""}`, "user-1")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "invalid-argument", errObj["code"])
	assert.Equal(t, "画像データが必要です", errObj["message"])
}

func TestAnalyzeImageRateLimited(t *testing.T) {
	f := newServerFixture(t)
	f.limiter.err = ratelimit.ErrPerMinute

	image := base64.StdEncoding.EncodeToString([]byte("x"))
	resp := f.post(t, "/v1/analyzeImage", `{"imageBase64":"`+image+`"}`, "user-1")

	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "resource-exhausted", errObj["code"])
}

func TestAnalyzeImageNoTextDetected(t *testing.T) {
	f := newServerFixture(t)
	f.annotator.err = vision.ErrNoText

	image := base64.StdEncoding.EncodeToString([]byte("x"))
	resp := f.post(t, "/v1/analyzeImage", `{"imageBase64":"`+image+`"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, msgNoTextDetected, body["error"])
}

func TestAnalyzeImageExtractionIncomplete(t *testing.T) {
	f := newServerFixture(t)
	f.annotator.doc = vision.Document{Text: "読めないレシート"}
	f.completer.reply = `{"name":null,"price":null}`

	image := base64.StdEncoding.EncodeToString([]byte("x"))
	resp := f.post(t, "/v1/analyzeImage", `{"imageBase64":"`+image+`"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, msgExtractionEmpty, body["error"])
	assert.Equal(t, "読めないレシート", body["ocrText"])
}

func TestAnalyzeImageDeadlineMapsTo504(t *testing.T) {
	f := newServerFixture(t)
	f.annotator.err = vision.ErrDeadline

	image := base64.StdEncoding.EncodeToString([]byte("x"))
	resp := f.post(t, "/v1/analyzeImage", `{"imageBase64":"`+image+`"}`, "user-1")

	assert.Equal(t, http.StatusGatewayTimeout, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "deadline-exceeded", errObj["code"])
}

func TestParseRecipe(t *testing.T) {
	f := newServerFixture(t)
	f.completer.reply = `{"title":"肉じゃが","ingredients":[{"name":"じゃがいも","quantity":"3個","normalizedName":"じゃがいも","confidence":0.9}]}`

	resp := f.post(t, "/v1/parseRecipe", `{"recipeText":"肉じゃがの作り方..."}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "肉じゃが", body["title"])
	ingredients := body["ingredients"].([]any)
	require.Len(t, ingredients, 1)
	first := ingredients[0].(map[string]any)
	assert.Equal(t, "じゃがいも", first["name"])
	assert.Equal(t, "3個", first["quantity"])
}

func TestParseRecipeMissingText(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/parseRecipe", `{"recipeText":""}`, "user-1")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "invalid-argument", errObj["code"])
	assert.Equal(t, "レシピテキストが必要です", errObj["message"])
}

func TestSummarizeProductNameSoftFailure(t *testing.T) {
	f := newServerFixture(t)
	f.completer.err = chat.ErrEmptyCompletion

	resp := f.post(t, "/v1/summarizeProductName", `{"originalName":"明治おいしい牛乳 900ml 瓶"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "", body["summarizedName"])
}

func TestSummarizeProductName(t *testing.T) {
	f := newServerFixture(t)
	f.completer.reply = "牛乳"

	resp := f.post(t, "/v1/summarizeProductName", `{"originalName":"明治おいしい牛乳 900ml 瓶"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "牛乳", body["summarizedName"])
}

func TestCheckIngredientSimilarity(t *testing.T) {
	f := newServerFixture(t)
	f.completer.reply = "true"

	resp := f.post(t, "/v1/checkIngredientSimilarity", `{"name1":"じゃがいも","name2":"馬鈴薯"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["isSame"])
}

func TestCreateFamilyCallerBecomesOwner(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/createFamily",
		`{"familyId":"fam-1","members":[{"id":"user-2"},{"id":"user-1"}]}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, f.familySvc.createdFamily)
	created := f.familySvc.createdFamily
	assert.Equal(t, "fam-1", created.ID)
	assert.Equal(t, "user-1", created.OwnerID)

	members := created.Members.Data()
	require.Len(t, members, 2)
	assert.Equal(t, "user-1", members[0].ID)
	assert.Equal(t, "owner", members[0].Role)
	assert.Equal(t, "user-2", members[1].ID)
	assert.Equal(t, "member", members[1].Role)
	assert.True(t, members[1].IsActive)
}

func TestUpdateSubscriptionForCaller(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/updateSubscription",
		`{"planType":"family","isActive":false,"expiryDate":"2025-07-01T00:00:00Z"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, f.familySvc.updatedSub)
	sub := f.familySvc.updatedSub
	assert.Equal(t, "user-1", sub.UserID)
	assert.Equal(t, familydomain.PlanFamily, sub.PlanType)
	assert.False(t, sub.IsActive)
	require.NotNil(t, sub.ExpiryDate)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), sub.ExpiryDate.UTC())
}

func TestDissolveFamily(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/dissolveFamily", `{"familyId":"fam-1"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "user-1", f.familySvc.lastCallerID)
	assert.Equal(t, "fam-1", f.familySvc.lastFamilyID)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
}

func TestDissolveFamilyNotOwner(t *testing.T) {
	f := newServerFixture(t)
	f.familySvc.dissolveErr = familydomain.ErrNotOwner

	resp := f.post(t, "/v1/dissolveFamily", `{"familyId":"fam-1"}`, "user-2")

	assert.Equal(t, http.StatusForbidden, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "permission-denied", errObj["code"])
	assert.Equal(t, "ファミリーオーナーのみ実行できます", errObj["message"])
}

func TestRemoveFamilyMember(t *testing.T) {
	f := newServerFixture(t)

	resp := f.post(t, "/v1/removeFamilyMember", `{"familyId":"fam-1","memberId":"user-2"}`, "user-1")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "user-2", f.familySvc.lastMemberID)
}

func TestRemoveFamilyMemberNotFound(t *testing.T) {
	f := newServerFixture(t)
	f.familySvc.removeErr = familydomain.ErrMemberNotFound

	resp := f.post(t, "/v1/removeFamilyMember", `{"familyId":"fam-1","memberId":"ghost"}`, "user-1")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "not-found", errObj["code"])
}
