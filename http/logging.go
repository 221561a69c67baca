package http

import (
	nethttp "net/http"
	"strconv"
)

const (
	logMsgRequest  = "REST client request"
	logMsgResponse = "REST client response"
)

// logRequest logs an outgoing attempt. Payloads are logged at debug level only when enabled.
func (c *client) logRequest(req *nethttp.Request, body []byte, traceID string) {
	event := c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Str("request_id", traceID)

	if n := len(req.Header); n > 0 {
		event = event.Int("header_count", n)
	}
	if len(body) > 0 {
		event = event.Int("body_size", len(body))
	}
	event.Msg(logMsgRequest)

	if !c.config.LogPayloads {
		return
	}

	preview, truncated := c.payloadPreview(body)
	c.logger.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("request_id", traceID).
		Interface("headers", req.Header).
		Int("body_size", len(body)).
		Str("body_truncated", strconv.FormatBool(truncated)).
		Bytes("body_preview", preview).
		Msg(logMsgRequest)
}

// logResponse logs the final response of a call
func (c *client) logResponse(resp *Response, traceID string) {
	event := c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int64("call_count", resp.Stats.CallCount).
		Str("request_id", traceID)

	if resp.Stats.Attempts > 1 {
		event = event.Int("attempts", resp.Stats.Attempts)
	}
	if len(resp.Body) > 0 {
		event = event.Int("body_size", len(resp.Body))
	}
	event.Msg(logMsgResponse)

	if !c.config.LogPayloads {
		return
	}

	preview, truncated := c.payloadPreview(resp.Body)
	c.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Str("request_id", traceID).
		Interface("headers", resp.Headers).
		Int("body_size", len(resp.Body)).
		Str("body_truncated", strconv.FormatBool(truncated)).
		Bytes("body_preview", preview).
		Msg(logMsgResponse)
}

func (c *client) payloadPreview(body []byte) ([]byte, bool) {
	limit := c.config.MaxPayloadLogBytes
	if limit <= 0 {
		limit = DefaultMaxPayloadLogBytes
	}
	if len(body) > limit {
		return body[:limit], true
	}
	return body, false
}
