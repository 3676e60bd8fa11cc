package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/MikeMC777/healthnet-pharmacy/internal/httpx"
	"github.com/MikeMC777/healthnet-pharmacy/internal/payment"
)

// POST /payments/initialize
func initializePaymentHandler(payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.InitializeRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
			httpx.BadRequest(c, "order_id is required")
			return
		}
		res, err := payments.Initialize(c.Request.Context(), req.OrderID, httpx.Actor(c), client(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// POST /payments/verify
func verifyPaymentHandler(payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Reference == "" {
			httpx.BadRequest(c, "reference is required")
			return
		}
		p, err := payments.Verify(c.Request.Context(), req.Reference, httpx.Actor(c), client(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// POST /payments/calculate-fees
func calculatePaymentFeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.FeeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil || !amount.IsPositive() {
			httpx.BadRequest(c, "amount must be a positive decimal")
			return
		}
		c.JSON(http.StatusOK, payment.CalculateFees(amount))
	}
}

// GET /payments/history
func paymentHistoryHandler(payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := page(c)
		list, err := payments.History(c.Request.Context(), httpx.Actor(c), limit, offset)
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": list, "limit": limit, "offset": offset})
	}
}

// GET /payments/:id
func getPaymentHandler(payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := payments.Get(c.Request.Context(), c.Param("id"), httpx.Actor(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// POST /payments/webhook/paystack. The gateway always gets a 200 so it
// stops redelivering; failures are visible in logs and metrics.
func paystackWebhookHandler(payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			log.WithError(err).WithField("rid", httpx.RID(c)).Warn("read webhook body")
			c.JSON(http.StatusOK, gin.H{"status": "success"})
			return
		}
		_ = payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(payment.SignatureHeader), client(c))
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// GET /payments/callback?reference=... redirects the browser back to the
// storefront with the settled outcome.
func paymentCallbackHandler(payments *payment.Service, frontendURL string) gin.HandlerFunc {
	base := strings.TrimRight(frontendURL, "/")
	return func(c *gin.Context) {
		ref := c.Query("reference")
		if ref == "" {
			ref = c.Query("trxref")
		}
		outcome := "failed"
		p, err := payments.Callback(c.Request.Context(), ref, client(c))
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"rid": httpx.RID(c), "reference": ref}).Warn("payment callback")
		} else if p.Status == payment.StatusSuccess {
			outcome = "success"
		}
		c.Redirect(http.StatusFound, base+"/payment/"+outcome+"?reference="+url.QueryEscape(ref))
	}
}

// POST /admin/payments/:reference/refund
func refundPaymentHandler(payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := payments.MarkRefunded(c.Request.Context(), c.Param("reference"), httpx.Actor(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// GET /admin/payments/logs/:id
func paymentLogsHandler(payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := payments.Logs(c.Request.Context(), c.Param("id"), httpx.Actor(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		if logs == nil {
			logs = []payment.Log{}
		}
		c.JSON(http.StatusOK, gin.H{"items": logs})
	}
}
