package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaimoapp/kaimo/internal/recipe"
)

type parseRecipeRequest struct {
	RecipeText string `json:"recipeText"`
}

type parseRecipeResponse struct {
	Success     bool                `json:"success"`
	Title       string              `json:"title"`
	Ingredients []recipe.Ingredient `json:"ingredients"`
}

// ParseRecipe handles POST /v1/parseRecipe.
func (s *Server) ParseRecipe(c *gin.Context) {
	var req parseRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	result, err := s.recipeSvc.ParseRecipe(c.Request.Context(), callerID(c), req.RecipeText)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, parseRecipeResponse{
		Success:     true,
		Title:       result.Title,
		Ingredients: result.Ingredients,
	})
}

type summarizeProductNameRequest struct {
	OriginalName string `json:"originalName"`
}

type summarizeProductNameResponse struct {
	Success        bool   `json:"success"`
	SummarizedName string `json:"summarizedName"`
}

// SummarizeProductName handles POST /v1/summarizeProductName. An empty
// completion is reported as success=false rather than an error so callers
// can fall back to the original name.
func (s *Server) SummarizeProductName(c *gin.Context) {
	var req summarizeProductNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	name, err := s.recipeSvc.SummarizeProductName(c.Request.Context(), callerID(c), req.OriginalName)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summarizeProductNameResponse{
		Success:        name != "",
		SummarizedName: name,
	})
}

type checkIngredientSimilarityRequest struct {
	Name1 string `json:"name1"`
	Name2 string `json:"name2"`
}

type checkIngredientSimilarityResponse struct {
	Success bool `json:"success"`
	IsSame  bool `json:"isSame"`
}

// CheckIngredientSimilarity handles POST /v1/checkIngredientSimilarity.
func (s *Server) CheckIngredientSimilarity(c *gin.Context) {
	var req checkIngredientSimilarityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	isSame, err := s.recipeSvc.CheckIngredientSimilarity(c.Request.Context(), callerID(c), req.Name1, req.Name2)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, checkIngredientSimilarityResponse{
		Success: true,
		IsSame:  isSame,
	})
}
