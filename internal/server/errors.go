package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaimoapp/kaimo/internal/analysis"
	"github.com/kaimoapp/kaimo/internal/chat"
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"github.com/kaimoapp/kaimo/internal/identity"
	"github.com/kaimoapp/kaimo/internal/ratelimit"
	"github.com/kaimoapp/kaimo/internal/recipe"
	"github.com/kaimoapp/kaimo/internal/vision"
	"gorm.io/gorm"
)

// Error codes mirror the taxonomy the mobile client already understands.
const (
	codeUnauthenticated   = "unauthenticated"
	codeInvalidArgument   = "invalid-argument"
	codeResourceExhausted = "resource-exhausted"
	codeDeadlineExceeded  = "deadline-exceeded"
	codeNotFound          = "not-found"
	codePermissionDenied  = "permission-denied"
	codeInternal          = "internal"
)

var ErrInvalidRequest = errors.New("invalid request body")

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool         `json:"success"`
	Error   errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, identity.ErrMissingToken), errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Code:    codeUnauthenticated,
			Message: "認証が必要です",
		}

	case errors.Is(err, ratelimit.ErrPerMinute):
		return http.StatusTooManyRequests, errorPayload{
			Code:    codeResourceExhausted,
			Message: "1分あたりの呼び出し回数制限（5回）を超えました。しばらくしてから再試行してください。",
		}
	case errors.Is(err, ratelimit.ErrPerDay):
		return http.StatusTooManyRequests, errorPayload{
			Code:    codeResourceExhausted,
			Message: "1日あたりの呼び出し回数制限（50回）を超えました。明日再試行してください。",
		}

	case errors.Is(err, analysis.ErrEmptyImage):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "画像データが必要です",
		}
	case errors.Is(err, analysis.ErrPayloadTooLarge):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "画像サイズが上限（10MB）を超えています。画像を小さくして再試行してください。",
		}
	case errors.Is(err, recipe.ErrTextRequired):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "レシピテキストが必要です",
		}
	case errors.Is(err, recipe.ErrTextTooLong):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "レシピテキストが長すぎます。5000文字以下にしてください。",
		}
	case errors.Is(err, recipe.ErrNameRequired):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "商品名が必要です",
		}
	case errors.Is(err, recipe.ErrNamesRequired):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "2つの材料名が必要です",
		}
	case errors.Is(err, familydomain.ErrFamilyIDRequired):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "ファミリーIDが必要です",
		}
	case errors.Is(err, familydomain.ErrMemberIDRequired), errors.Is(err, familydomain.ErrUserIDRequired):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "メンバーIDが必要です",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Code:    codeInvalidArgument,
			Message: "リクエスト形式が不正です",
		}

	case errors.Is(err, chat.ErrDeadline),
		errors.Is(err, vision.ErrDeadline),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{
			Code:    codeDeadlineExceeded,
			Message: "処理がタイムアウトしました。しばらくしてから再試行してください。",
		}

	case errors.Is(err, familydomain.ErrFamilyNotFound):
		return http.StatusNotFound, errorPayload{
			Code:    codeNotFound,
			Message: "ファミリーが見つかりません",
		}
	case errors.Is(err, familydomain.ErrMemberNotFound):
		return http.StatusNotFound, errorPayload{
			Code:    codeNotFound,
			Message: "メンバーが見つかりません",
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Code:    codeNotFound,
			Message: "データが見つかりません",
		}

	case errors.Is(err, familydomain.ErrNotOwner):
		return http.StatusForbidden, errorPayload{
			Code:    codePermissionDenied,
			Message: "ファミリーオーナーのみ実行できます",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Code:    codeInternal,
			Message: "処理に失敗しました。しばらくしてから再試行してください。",
		}
	}
}
