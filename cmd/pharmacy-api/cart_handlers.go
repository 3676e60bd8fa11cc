package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/healthnet-pharmacy/internal/cart"
	"github.com/MikeMC777/healthnet-pharmacy/internal/httpx"
	"github.com/MikeMC777/healthnet-pharmacy/internal/order"
)

// GET /cart
func getCartHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := carts.Get(c.Request.Context(), httpx.Actor(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, ct)
	}
}

// POST /cart/items
func addCartItemHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cart.AddItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}
		ct, err := carts.AddItem(c.Request.Context(), httpx.Actor(c), req.DrugID, req.Quantity)
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ct)
	}
}

// PUT /cart/items/:id
func updateCartItemHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cart.UpdateItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		ct, err := carts.UpdateItemQuantity(c.Request.Context(), httpx.Actor(c), c.Param("id"), req.Quantity)
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, ct)
	}
}

// DELETE /cart/items/:id
func removeCartItemHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := carts.RemoveItem(c.Request.Context(), httpx.Actor(c), c.Param("id"))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, ct)
	}
}

// DELETE /cart
func clearCartHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, err := carts.Clear(c.Request.Context(), httpx.Actor(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, ct)
	}
}

// GET /cart/validate
func validateCartHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		issues, err := carts.Validate(c.Request.Context(), httpx.Actor(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		if issues == nil {
			issues = []cart.Issue{}
		}
		c.JSON(http.StatusOK, gin.H{"valid": len(issues) == 0, "issues": issues})
	}
}

// POST /cart/checkout
func checkoutHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.DeliveryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		o, err := orders.Checkout(c.Request.Context(), httpx.Actor(c), req.Meta())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order.NewView(o))
	}
}
