package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/healthnet-pharmacy/internal/httpx"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
)

func orderFilter(c *gin.Context) (order.Filter, bool) {
	limit, offset := page(c)
	f := order.Filter{
		Status:        order.Status(c.Query("status")),
		PaymentStatus: order.PaymentStatus(c.Query("payment_status")),
		Area:          c.Query("area"),
		Search:        c.Query("q"),
		Limit:         limit,
		Offset:        offset,
	}
	if f.Status != "" && !f.Status.Valid() {
		httpx.BadRequest(c, "invalid status")
		return f, false
	}
	var ok bool
	if f.From, ok = queryDate(c, "from"); !ok {
		httpx.BadRequest(c, "invalid from date")
		return f, false
	}
	if f.To, ok = queryDate(c, "to"); !ok {
		httpx.BadRequest(c, "invalid to date")
		return f, false
	}
	return f, true
}

func views(list []order.Order) []order.View {
	out := make([]order.View, 0, len(list))
	for i := range list {
		out = append(out, order.NewView(&list[i]))
	}
	return out
}

func renderOrders(c *gin.Context, list []order.Order, total int, f order.Filter) {
	c.JSON(http.StatusOK, order.ListResponse{Items: views(list), Total: total, Limit: f.Limit, Offset: f.Offset})
}

func renderOrder(c *gin.Context, o *order.Order, err error) {
	if err != nil {
		httpx.RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order.NewView(o))
}

// POST /orders
func createOrderHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		if len(req.Items) == 0 {
			httpx.BadRequest(c, "items are required")
			return
		}
		lines := make([]inventory.Line, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, inventory.Line{DrugID: it.DrugID, Quantity: it.Quantity})
		}
		o, err := orders.CreateFromItems(c.Request.Context(), httpx.Actor(c), lines, req.Meta())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order.NewView(o))
	}
}

// GET /orders
func listOrdersHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := orderFilter(c)
		if !ok {
			return
		}
		list, total, err := orders.ListForUser(c.Request.Context(), httpx.Actor(c), f)
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		renderOrders(c, list, total, f)
	}
}

// GET /orders/statistics
func orderStatisticsHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := orders.Statistics(c.Request.Context(), httpx.Actor(c).UserID)
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// GET /orders/:id, GET /admin/orders/:id
func getOrderHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.Get(c.Request.Context(), c.Param("id"), httpx.Actor(c))
		renderOrder(c, o, err)
	}
}

// POST /orders/:id/confirm-delivery
func confirmDeliveryHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.ConfirmDelivery(c.Request.Context(), c.Param("id"), httpx.Actor(c))
		renderOrder(c, o, err)
	}
}

// POST /orders/:id/cancel
func cancelOrderHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.Cancel(c.Request.Context(), c.Param("id"), httpx.Actor(c))
		renderOrder(c, o, err)
	}
}

// GET /admin/orders
func adminListOrdersHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := orderFilter(c)
		if !ok {
			return
		}
		f.UserID = c.Query("user_id")
		list, total, err := orders.List(c.Request.Context(), f)
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		renderOrders(c, list, total, f)
	}
}

// GET /admin/orders/analytics
func orderAnalyticsHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := orders.Analytics(c.Request.Context())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// GET /admin/orders/requires-attention
func requiresAttentionHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := orders.RequiresAttention(c.Request.Context())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": views(list), "count": len(list)})
	}
}

// PUT /admin/orders/:id/status
func updateOrderStatusHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		if !req.Status.Valid() {
			httpx.BadRequest(c, "invalid status")
			return
		}
		o, err := orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, httpx.Actor(c))
		renderOrder(c, o, err)
	}
}

// POST /admin/orders/:id/mark-delivering
func markDeliveringHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.MarkAsDelivering(c.Request.Context(), c.Param("id"), httpx.Actor(c))
		renderOrder(c, o, err)
	}
}
