package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cnavas/warebox/internal/operations"
	apperrors "github.com/cnavas/warebox/pkg/errors"
	"github.com/cnavas/warebox/pkg/response"
)

func registerRequestRoutes(api *gin.RouterGroup, facade *operations.Facade) {
	requests := api.Group("/requests")
	{
		requests.GET("", listRequests(facade))
		requests.POST("/:id/approve", approveRequest(facade))
		requests.POST("/:id/deliver", deliverRequest(facade))
		requests.POST("/:id/reject", rejectRequest(facade))
	}
}

// listRequests serves cache-first reads filtered by status or location.
func listRequests(facade *operations.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		location := c.Query("location")

		switch {
		case status != "":
			recs, err := facade.RequestsByStatus(c.Request.Context(), status)
			if err != nil {
				response.Error(c, err)
				return
			}
			response.SuccessWithMeta(c, http.StatusOK, recs, &response.Meta{Total: len(recs)})
		case location != "":
			recs, err := facade.RequestsByLocation(c.Request.Context(), location)
			if err != nil {
				response.Error(c, err)
				return
			}
			response.SuccessWithMeta(c, http.StatusOK, recs, &response.Meta{Total: len(recs)})
		default:
			response.Error(c, apperrors.NewBadRequest("status or location query parameter is required"))
		}
	}
}

func approveRequest(facade *operations.Facade) gin.HandlerFunc {
	type body struct {
		ApprovedQty int    `json:"approved_qty"`
		ApprovedBy  string `json:"approved_by"`
	}

	return func(c *gin.Context) {
		var req body
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperrors.NewBadRequest("invalid request body"))
			return
		}

		rec, err := facade.Approve(c.Request.Context(), operations.ApproveInput{
			RequestID:   c.Param("id"),
			ApprovedQty: req.ApprovedQty,
			ApprovedBy:  req.ApprovedBy,
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, rec)
	}
}

func deliverRequest(facade *operations.Facade) gin.HandlerFunc {
	type body struct {
		DeliveredBy       string     `json:"delivered_by"`
		Quantity          int        `json:"quantity"`
		ConditionCode     string     `json:"condition_code"`
		Notes             string     `json:"notes"`
		CertificateNumber string     `json:"certificate_number"`
		CertificateExpiry *time.Time `json:"certificate_expiry"`
	}

	return func(c *gin.Context) {
		var req body
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperrors.NewBadRequest("invalid request body"))
			return
		}

		rec, err := facade.Deliver(c.Request.Context(), operations.DeliverInput{
			RequestID:         c.Param("id"),
			DeliveredBy:       req.DeliveredBy,
			Quantity:          req.Quantity,
			ConditionCode:     req.ConditionCode,
			Notes:             req.Notes,
			CertificateNumber: req.CertificateNumber,
			CertificateExpiry: req.CertificateExpiry,
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, rec)
	}
}

func rejectRequest(facade *operations.Facade) gin.HandlerFunc {
	type body struct {
		Reason     string `json:"reason"`
		RejectedBy string `json:"rejected_by"`
	}

	return func(c *gin.Context) {
		var req body
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperrors.NewBadRequest("invalid request body"))
			return
		}

		rec, err := facade.Reject(c.Request.Context(), operations.RejectInput{
			RequestID:  c.Param("id"),
			Reason:     req.Reason,
			RejectedBy: req.RejectedBy,
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, rec)
	}
}
