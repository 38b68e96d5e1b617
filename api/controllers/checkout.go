package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/api/responses"
	"github.com/angelmondragon/dealflow-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/dealflow-backend/internal/checkout"
	"github.com/angelmondragon/dealflow-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

type checkoutRequest struct {
	TradeIDs      []uuid.UUID `json:"trade_ids" validate:"required,min=1,unique,dive,required"`
	Address       string      `json:"address" validate:"required,max=255"`
	ReceiverName  string      `json:"receiver_name" validate:"required,max=64"`
	Phone         string      `json:"phone" validate:"required,max=32,phone"`
	Memo          string      `json:"memo" validate:"max=255"`
	IsRemoteArea  bool        `json:"is_remote_area"`
	DeclaredTotal int64       `json:"total" validate:"required,min=1"`
}

// Checkout builds a pending payment with one deal per seller. The declared
// total must match what the server computes or nothing is written.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), buyerID, checkoutsvc.CheckoutInput{
			TradeIDs:      payload.TradeIDs,
			Address:       validators.SanitizeString(payload.Address, 255),
			ReceiverName:  validators.SanitizeString(payload.ReceiverName, 64),
			Phone:         validators.SanitizeString(payload.Phone, 32),
			Memo:          validators.SanitizeString(payload.Memo, 255),
			IsRemoteArea:  payload.IsRemoteArea,
			DeclaredTotal: payload.DeclaredTotal,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, payments.NewPaymentView(result.Payment, result.Deals))
	}
}
