package goAuthClient

import (
	"context"
	"io"

	"github.com/MrEthical07/goAuthClient/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one session event delivered to an AuditSink.
type AuditEvent = audit.Event

// AuditSink consumes audit events. Emit runs on the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes events as JSON lines.
type JSONWriterSink = audit.JSONWriterSink

// ZapSink logs events through a zap logger.
type ZapSink = audit.ZapSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

// NewZapSink returns a sink logging through logger.
func NewZapSink(logger *zap.Logger) *ZapSink { return audit.NewZapSink(logger) }

const (
	AuditEventRegisterSuccess = "register_success"
	AuditEventRegisterFailure = "register_failure"
	AuditEventLoginSuccess    = "login_success"
	AuditEventLoginFailure    = "login_failure"
	AuditEventLogout          = "logout"
	AuditEventRefreshSuccess  = "refresh_success"
	AuditEventRefreshFailure  = "refresh_failure"
	AuditEventReplay          = "request_replayed"
	AuditEventForcedLogout    = "forced_logout"
)

func (c *Client) emitAudit(ctx context.Context, event AuditEvent) {
	if c.audit == nil {
		return
	}
	c.audit.Emit(ctx, event)
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
