package main

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/healthnet-pharmacy/internal/httpx"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// statusRequest payload for PUT /admin/inventory/:id/status.
type statusRequest struct {
	Status inventory.Status `json:"status"`
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

type bulkStockRequest struct {
	Updates []inventory.StockUpdate `json:"updates"`
}

func renderDrug(c *gin.Context, status int, d *inventory.Drug, err error) {
	if err != nil {
		httpx.RenderError(c, err)
		return
	}
	c.JSON(status, d)
}

// GET /admin/inventory
func listDrugsHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := page(c)
		q := inventory.Query{
			Q:          c.Query("q"),
			Status:     inventory.Status(c.Query("status")),
			LowStock:   queryBool(c, "low_stock"),
			OutOfStock: queryBool(c, "out_of_stock"),
			Sort:       c.DefaultQuery("sort", "name"),
			Desc:       queryBool(c, "desc"),
			Limit:      limit,
			Offset:     offset,
		}
		if q.Status != "" && !q.Status.Valid() {
			httpx.BadRequest(c, "invalid status")
			return
		}
		list, err := inv.List(c.Request.Context(), q)
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		if list == nil {
			list = []inventory.Drug{}
		}
		c.JSON(http.StatusOK, gin.H{"items": list, "limit": limit, "offset": offset})
	}
}

// GET /admin/inventory/statistics
func inventoryStatisticsHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := inv.Statistics(c.Request.Context())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// GET /admin/inventory/low-stock-alerts
func lowStockAlertsHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := inv.LowStockAlerts(c.Request.Context())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		if list == nil {
			list = []inventory.Drug{}
		}
		c.JSON(http.StatusOK, gin.H{"threshold": inv.LowStockThreshold(), "count": len(list), "items": list})
	}
}

// GET /admin/inventory/report
func inventoryReportHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := inv.Report(c.Request.Context())
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		if rows == nil {
			rows = []inventory.ReportRow{}
		}
		c.JSON(http.StatusOK, gin.H{"generated_at": time.Now().UTC(), "items": rows})
	}
}

// GET /admin/inventory/report.xlsx
func inventoryReportXLSXHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var buf bytes.Buffer
		if err := inv.WriteReportXLSX(c.Request.Context(), &buf); err != nil {
			httpx.RenderError(c, err)
			return
		}
		name := fmt.Sprintf("inventory-%s.xlsx", time.Now().UTC().Format("20060102"))
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	}
}

// POST /admin/inventory
func createDrugHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req inventory.CreateDrugRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		d, err := inv.Create(c.Request.Context(), req)
		renderDrug(c, http.StatusCreated, d, err)
	}
}

// GET /admin/inventory/:id
func getDrugHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := inv.Get(c.Request.Context(), c.Param("id"))
		renderDrug(c, http.StatusOK, d, err)
	}
}

// PUT /admin/inventory/:id
func updateDrugHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req inventory.UpdateDrugRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		d, err := inv.Update(c.Request.Context(), c.Param("id"), req)
		renderDrug(c, http.StatusOK, d, err)
	}
}

// PUT /admin/inventory/:id/stock
func setStockHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req inventory.StockUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		req.DrugID = c.Param("id")
		d, err := inv.SetStock(c.Request.Context(), req, httpx.Actor(c))
		renderDrug(c, http.StatusOK, d, err)
	}
}

// POST /admin/inventory/:id/restock
func restockHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req restockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		d, err := inv.Restock(c.Request.Context(), c.Param("id"), req.Quantity, httpx.Actor(c))
		renderDrug(c, http.StatusOK, d, err)
	}
}

// PUT /admin/inventory/:id/status
func setDrugStatusHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		d, err := inv.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
		renderDrug(c, http.StatusOK, d, err)
	}
}

// POST /admin/inventory/bulk-update-stock
func bulkUpdateStockHandler(inv *inventory.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.BadRequest(c, "invalid json")
			return
		}
		list, err := inv.BulkSetStock(c.Request.Context(), req.Updates, httpx.Actor(c))
		if err != nil {
			httpx.RenderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": len(list), "items": list})
	}
}
