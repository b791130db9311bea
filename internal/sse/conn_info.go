package sse

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const deviceIDHeader = "X-Device-Id"

type ConnInfo struct {
	ConnID      string
	UserID      int64
	DeviceID    string
	IP          string
	UserAgent   string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(c *gin.Context, userID int64, requestID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      ulid.Make().String(),
		UserID:      userID,
		DeviceID:    c.GetHeader(deviceIDHeader),
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}
