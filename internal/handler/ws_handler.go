/*
Package handler provides the HTTP handler function for WebSocket connection
upgrading and initialization.

This file contains HandleWebSocket, which is responsible for rate limiting,
resolving the connecting identity from a guest token, upgrading the HTTP
connection to WebSocket, and initiating the client lifecycle.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"chatrelay/internal/pkg/auth/jwt"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// Identity comes from a "token" query parameter (issued by /api/auth/guest or an
// external account system); a missing or invalid token yields an anonymous session,
// which is permitted and simply excluded from presence tracking.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			rateLimitErr := errs.NewError(errs.ErrRateLimitExceeded)
			resp.RespondError(w, r, rateLimitErr)
			return
		}

		var userID, nickname string

		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			payload, parseErr := jwt.ParseToken(tokenString, deps.Config.JWTSecret)
			if parseErr != nil {
				logx.Warn("Invalid connection token, continuing as anonymous", "error", parseErr)
			} else {
				userID = payload.ID
				nickname = payload.Nickname
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := deps.Hub.Connect(conn, userID, nickname)

		go client.WritePump()

		logx.Info("WebSocket connection established", "user_id", userID)

		client.ReadPump()
	}
}
