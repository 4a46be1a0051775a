/*
Package handler provides HTTP handler functions for guest identity issuance.
*/
package handler

import (
	"net/http"

	"chatrelay/internal/pkg/auth/jwt"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
	"chatrelay/internal/pkg/req"
	"chatrelay/internal/pkg/resp"
)

type GuestIdentityInput struct {
	// Nickname is the requested display name (optional; one is generated
	// when absent).
	Nickname string `json:"nickname,omitempty"`
}

// HandleGuestIdentity issues a signed guest identity token. The relay itself
// performs no account management; this is the minimal entry point for clients
// without an external account system.
func HandleGuestIdentity(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input GuestIdentityInput

		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		guestID, err := randx.GuestID()
		if err != nil {
			logx.Error(err, "Failed to generate guest id")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		nickname := input.Nickname
		if nickname == "" {
			nickname, err = randx.Nickname()
			if err != nil {
				logx.Error(err, "Failed to generate nickname")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}
		}

		payload := &jwt.Payload{
			ID:       guestID,
			Nickname: nickname,
			UserType: "guest",
		}

		token, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.IdentityExpiration)
		if err != nil {
			logx.Error(err, "Failed to generate guest token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		data := map[string]any{
			"userId":   guestID,
			"nickname": nickname,
			"token":    token,
		}
		resp.RespondSuccess(w, r, data)
	}
}
