package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"call-router/internal/audit"
	"call-router/internal/auth"
	"call-router/internal/calls"
	"call-router/internal/reporting"
	"call-router/internal/store"
	"call-router/internal/telnyx"
	"call-router/pkg/logger"
)

// Notifier triggers delivery evaluation for a call.
type Notifier interface {
	Evaluate(ctx context.Context, callID string)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Store    store.Store
	Carrier  telnyx.CallController
	Notifier Notifier
	Reports  *reporting.Service
	Trail    *audit.Service
}

// --- Auth ---

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tok, err := h.Auth.Login(time.Now(), req.User, req.Password)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	filter := store.ListFilter{
		CallType: calls.CallType(c.Query("call_type")),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return
		}
		filter.Offset = n
	}

	rows, err := h.Store.List(c.Request.Context(), filter)
	if err != nil {
		logger.FromGin(c).Error("list calls", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows, "count": len(rows)})
}

func (h Handlers) GetCall(c *gin.Context) {
	rec, err := h.Store.Get(c.Request.Context(), c.Param("call_id"))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("get call", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type updateCallRequest struct {
	CustomerName    *string `json:"customer_name"`
	CustomerZipCode *string `json:"customer_zip_code"`
	LeadQuality     *string `json:"lead_quality"`
	Notes           *string `json:"notes"`
}

// UpdateCall patches the customer-entered fields. Absent fields keep their
// stored values; the merge semantics of the store make that free.
func (h Handlers) UpdateCall(c *gin.Context) {
	callID := c.Param("call_id")

	var req updateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := calls.ValidateOperatorUpdate(req.CustomerZipCode, req.LeadQuality); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.Store.Get(c.Request.Context(), callID); errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	} else if err != nil {
		logger.FromGin(c).Error("get call", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	rec, err := h.Store.Upsert(c.Request.Context(), calls.CallRecord{
		CallID:          callID,
		CustomerName:    req.CustomerName,
		CustomerZipCode: req.CustomerZipCode,
		LeadQuality:     req.LeadQuality,
		Notes:           req.Notes,
	})
	if err != nil {
		logger.FromGin(c).Error("update call", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	h.Trail.LogOperator(c.Request.Context(), auth.Operator(c), callID, "call fields updated")
	c.JSON(http.StatusOK, rec)
}

// NotifyCall manually triggers delivery evaluation. The notifier re-checks
// eligibility itself, so an ineligible call is simply skipped.
func (h Handlers) NotifyCall(c *gin.Context) {
	callID := c.Param("call_id")

	if _, err := h.Store.Get(c.Request.Context(), callID); errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	} else if err != nil {
		logger.FromGin(c).Error("get call", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	if h.Notifier == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "notification endpoint not configured"})
		return
	}

	h.Notifier.Evaluate(c.Request.Context(), callID)
	h.Trail.LogOperator(c.Request.Context(), auth.Operator(c), callID, "notification triggered")
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

type placeCallRequest struct {
	To       string `json:"to"`
	CallType string `json:"call_type"`
}

// PlaceCall dials an outbound call to a customer or contractor number.
func (h Handlers) PlaceCall(c *gin.Context) {
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to required"})
		return
	}

	callType := calls.CallType(req.CallType)
	switch callType {
	case "":
		callType = calls.CallTypeCustomerFollowup
	case calls.CallTypeCustomerFollowup, calls.CallTypeContractorOutreach:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_type must be customer_followup or contractor_outreach"})
		return
	}

	res, err := h.Carrier.Dial(c.Request.Context(), telnyx.DialRequest{To: req.To})
	if err != nil {
		logger.FromGin(c).Error("place call", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "carrier rejected the call"})
		return
	}

	now := time.Now().UTC()
	rec, err := h.Store.Upsert(c.Request.Context(), calls.CallRecord{
		CallID:    res.CallControlID,
		Direction: calls.DirectionOutbound,
		ToNumber:  req.To,
		Status:    calls.CallStatusInitiated,
		StartTime: &now,
		CallType:  callType,
	})
	if err != nil {
		logger.FromGin(c).Error("store placed call", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call placed but not recorded"})
		return
	}

	h.Trail.LogOperator(c.Request.Context(), auth.Operator(c), res.CallControlID, "outbound call placed to "+req.To)
	c.JSON(http.StatusCreated, rec)
}

// --- Reporting ---

func (h Handlers) Report(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}

	var req reporting.SummaryRequest
	req.CallType = calls.CallType(c.Query("call_type"))
	if v := c.Query("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		req.Range.From = ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		req.Range.To = ts
	}

	out, err := h.Reports.Summary(c.Request.Context(), req)
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("report summary", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Event trail ---

func (h Handlers) RecentEvents(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	evs, err := h.Trail.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("recent events", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trail lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs, "count": len(evs)})
}
