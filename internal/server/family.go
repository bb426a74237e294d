package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	familydomain "github.com/kaimoapp/kaimo/internal/family/domain"
	"gorm.io/datatypes"
)

type familyMemberPayload struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	IsActive *bool  `json:"isActive"`
}

type createFamilyRequest struct {
	FamilyID string                `json:"familyId"`
	Members  []familyMemberPayload `json:"members"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// CreateFamily handles POST /v1/createFamily. The caller becomes the owner;
// plan propagation to the listed members happens asynchronously off the
// creation event.
func (s *Server) CreateFamily(c *gin.Context) {
	var req createFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	ownerID := callerID(c)
	members := make([]familydomain.Member, 0, len(req.Members)+1)
	members = append(members, familydomain.Member{ID: ownerID, Role: "owner", IsActive: true})
	for _, m := range req.Members {
		if m.ID == "" || m.ID == ownerID {
			continue
		}
		active := true
		if m.IsActive != nil {
			active = *m.IsActive
		}
		role := m.Role
		if role == "" {
			role = "member"
		}
		members = append(members, familydomain.Member{ID: m.ID, Role: role, IsActive: active})
	}

	err := s.familySvc.CreateFamily(c.Request.Context(), familydomain.Family{
		ID:      req.FamilyID,
		OwnerID: ownerID,
		Members: datatypes.NewJSONType(members),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse{Success: true})
}

type updateSubscriptionRequest struct {
	PlanType          string   `json:"planType"`
	IsActive          bool     `json:"isActive"`
	ExpiryDate        *string  `json:"expiryDate"`
	AutoUpgradedFrom  string   `json:"autoUpgradedFrom"`
	FamilyMembers     []string `json:"familyMembers"`
	FamilyOwnerID     *string  `json:"familyOwnerId"`
	FamilyOwnerActive bool     `json:"familyOwnerActive"`
}

// UpdateSubscription handles POST /v1/updateSubscription for the caller's
// own record. Deactivating an active family plan through here triggers
// member restoration.
func (s *Server) UpdateSubscription(c *gin.Context) {
	var req updateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	var expiry *time.Time
	if req.ExpiryDate != nil && *req.ExpiryDate != "" {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiryDate)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: expiryDate must be RFC 3339", ErrInvalidRequest))
			return
		}
		expiry = &parsed
	}

	err := s.familySvc.UpdateSubscription(c.Request.Context(), familydomain.Subscription{
		UserID:            callerID(c),
		PlanType:          familydomain.PlanType(req.PlanType),
		IsActive:          req.IsActive,
		ExpiryDate:        expiry,
		AutoUpgradedFrom:  familydomain.PlanType(req.AutoUpgradedFrom),
		FamilyMembers:     datatypes.JSONSlice[string](req.FamilyMembers),
		FamilyOwnerID:     req.FamilyOwnerID,
		FamilyOwnerActive: req.FamilyOwnerActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse{Success: true})
}

type dissolveFamilyRequest struct {
	FamilyID string `json:"familyId"`
}

// DissolveFamily handles POST /v1/dissolveFamily. Owner only.
func (s *Server) DissolveFamily(c *gin.Context) {
	var req dissolveFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	if err := s.familySvc.Dissolve(c.Request.Context(), callerID(c), req.FamilyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse{Success: true})
}

type removeFamilyMemberRequest struct {
	FamilyID string `json:"familyId"`
	MemberID string `json:"memberId"`
}

// RemoveFamilyMember handles POST /v1/removeFamilyMember. Owner only.
func (s *Server) RemoveFamilyMember(c *gin.Context) {
	var req removeFamilyMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	if err := s.familySvc.RemoveMember(c.Request.Context(), callerID(c), req.FamilyID, req.MemberID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse{Success: true})
}
