package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/healthnet-pharmacy/internal/delivery"
	"github.com/MikeMC777/healthnet-pharmacy/internal/httpx"
)

func renderArea(c *gin.Context, status int, a *delivery.Area, err error) {
	if err != nil {
		httpx.RenderError(c, err)
		return
	}
	c.JSON(status, a)
}

func renderAreas(c *gin.Context, list []delivery.Area, err error) {
	if err != nil {
		httpx.RenderError(c, err)
		return
	}
	if list == nil {
		list = []delivery.Area{}
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// GET /delivery/areas
func listAreasHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := dlv.ListActive(c.Request.Context())
		renderAreas(c, list, err)
	}
}

// POST /delivery/calculate-fee
func calculateDeliveryFeeHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req delivery.FeeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		value := decimal.Zero
		if req.OrderValue != "" {
			v, err := decimal.NewFromString(req.OrderValue)
			if err != nil {
				httpx.BadRequest(c, "order_value must be a decimal")
				return
			}
			value = v
		}
		q, err := dlv.CalculateFee(c.Request.Context(), req.Area, value)
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, q)
	}
}

// GET /admin/delivery/areas
func listAllAreasHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := dlv.ListAll(c.Request.Context())
		renderAreas(c, list, err)
	}
}

// GET /admin/delivery/statistics
func deliveryStatisticsHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := dlv.Statistics(c.Request.Context())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// GET /admin/delivery/routes
func deliveryRoutesHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		routes, err := dlv.Routes(c.Request.Context())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		if routes == nil {
			routes = []delivery.Route{}
		}
		c.JSON(http.StatusOK, gin.H{"items": routes})
	}
}

// GET /admin/delivery/area/:code
func ordersByAreaHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := dlv.OrdersByArea(c.Request.Context(), c.Param("code"))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		if list == nil {
			list = []delivery.OpenOrder{}
		}
		c.JSON(http.StatusOK, gin.H{"area": c.Param("code"), "count": len(list), "items": list})
	}
}

// POST /admin/delivery/areas
func createAreaHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req delivery.AreaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		a, err := dlv.Create(c.Request.Context(), req)
		renderArea(c, http.StatusCreated, a, err)
	}
}

// PUT /admin/delivery/areas/:code
func updateAreaHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req delivery.AreaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		a, err := dlv.Update(c.Request.Context(), c.Param("code"), req)
		renderArea(c, http.StatusOK, a, err)
	}
}

// PATCH /admin/delivery/areas/:code/toggle
func toggleAreaHandler(dlv *delivery.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := dlv.Toggle(c.Request.Context(), c.Param("code"))
		renderArea(c, http.StatusOK, a, err)
	}
}
