package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/healthnet-pharmacy/internal/payment"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// page reads limit/offset query parameters, clamped to sane bounds.
func page(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}

// queryDate accepts YYYY-MM-DD or RFC3339.
func queryDate(c *gin.Context, key string) (*time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return nil, true
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, true
		}
	}
	return nil, false
}

func client(c *gin.Context) payment.Client {
	return payment.Client{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
