package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kaimoapp/kaimo/internal/analysis"
)

type analyzeImageRequest struct {
	ImageBase64 string `json:"imageBase64"`
	Timestamp   string `json:"timestamp"`
}

type analyzeImageResponse struct {
	Success   bool   `json:"success"`
	Name      string `json:"name,omitempty"`
	Price     int    `json:"price,omitempty"`
	OCRText   string `json:"ocrText,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId,omitempty"`
}

const (
	msgNoTextDetected  = "テキストが検出されませんでした"
	msgEmptyOCRText    = "OCRテキストが空でした"
	msgExtractionEmpty = "商品名または価格を抽出できませんでした"
)

// AnalyzeImage handles POST /v1/analyzeImage. Upstream extraction gaps come
// back as success=false payloads with HTTP 200; only validation, quota, and
// infrastructure failures become error statuses.
func (s *Server) AnalyzeImage(c *gin.Context) {
	var req analyzeImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: imageBase64 is not valid base64", ErrInvalidRequest))
		return
	}

	var ts time.Time
	if req.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: timestamp must be RFC 3339", ErrInvalidRequest))
			return
		}
	}

	userID := callerID(c)
	result, err := s.analysisSvc.Analyze(c.Request.Context(), analysis.Request{
		UserID:    userID,
		Image:     image,
		Timestamp: ts,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch result.Kind {
	case analysis.KindSuccess:
		c.JSON(http.StatusOK, analyzeImageResponse{
			Success:   true,
			Name:      result.Name,
			Price:     result.Price,
			OCRText:   result.OCRText,
			Timestamp: result.Timestamp.Format(time.RFC3339),
			UserID:    userID,
		})
	case analysis.KindNoTextDetected:
		c.JSON(http.StatusOK, analyzeImageResponse{
			Success:   false,
			Error:     msgNoTextDetected,
			Timestamp: result.Timestamp.Format(time.RFC3339),
		})
	default:
		msg := msgExtractionEmpty
		if strings.TrimSpace(result.OCRText) == "" {
			msg = msgEmptyOCRText
		}
		c.JSON(http.StatusOK, analyzeImageResponse{
			Success:   false,
			Error:     msg,
			OCRText:   result.OCRText,
			Timestamp: result.Timestamp.Format(time.RFC3339),
		})
	}
}

type testConnectionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"userId"`
}

// TestConnection is a trivial authenticated round-trip used by clients to
// verify connectivity and token validity.
func (s *Server) TestConnection(c *gin.Context) {
	c.JSON(http.StatusOK, testConnectionResponse{
		Success:   true,
		Message:   "接続正常",
		Timestamp: s.clock.Now().Format(time.RFC3339),
		UserID:    callerID(c),
	})
}
