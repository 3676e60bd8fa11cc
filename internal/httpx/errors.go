package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var mappings = []errorMapping{
	{apperr.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{apperr.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperr.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{apperr.ErrUnavailable, http.StatusConflict, "unavailable"},
	{apperr.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{apperr.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{apperr.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
	{apperr.ErrOrderClosed, http.StatusConflict, "order_closed"},
	{apperr.ErrOwnership, http.StatusForbidden, "forbidden"},
	{apperr.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{apperr.ErrGateway, http.StatusBadGateway, "gateway_error"},
}

// Status maps err onto an HTTP status and a stable error code.
func Status(err error) (int, string) {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func details(err error) gin.H {
	var item *apperr.ItemError
	if errors.As(err, &item) {
		return gin.H{"drug_id": item.DrugID, "drug_name": item.DrugName, "requested": item.Requested, "available": item.Available}
	}
	var tr *apperr.TransitionError
	if errors.As(err, &tr) {
		return gin.H{"from": tr.From, "to": tr.To}
	}
	var gw *apperr.GatewayError
	if errors.As(err, &gw) {
		msg := gw.Message
		if msg == "" {
			msg = "payment provider unreachable, please retry"
		}
		return gin.H{"reference": gw.Reference, "message": msg}
	}
	return nil
}

// RenderError writes err as {"error","code","details"}. Unmapped errors are
// logged and hidden behind a generic message.
func RenderError(c *gin.Context, err error) {
	status, code := Status(err)
	body := gin.H{"error": err.Error(), "code": code}
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{"rid": RID(c), "path": c.Request.URL.Path}).Error("request failed")
		body["error"] = "internal error"
	}
	if d := details(err); d != nil {
		body["details"] = d
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest renders a binding or parsing failure.
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_input"})
}
