package controllers

import (
	"net/http"

	"github.com/angelmondragon/dealflow-backend/api/responses"
	"github.com/angelmondragon/dealflow-backend/api/validators"
	"github.com/angelmondragon/dealflow-backend/internal/deliveries"
	"github.com/angelmondragon/dealflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

type waybillRequest struct {
	CarrierCode string `json:"carrier_code" validate:"required,max=32"`
	Number      string `json:"number" validate:"required,waybill"`
}

// DeliveryWaybill records the seller's shipping carrier and waybill number.
// A waybill can be entered once.
func DeliveryWaybill(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}
		sellerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveryID, err := pathUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload waybillRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.RegisterWaybill(r.Context(), deliveries.WaybillInput{
			SellerID:    sellerID,
			DeliveryID:  deliveryID,
			CarrierCode: validators.SanitizeString(payload.CarrierCode, 32),
			Number:      validators.SanitizeString(payload.Number, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}

type trackingRequest struct {
	Step string `json:"step" validate:"required,delivery_step"`
}

// AdminDeliveryTracking applies a carrier tracking step to a delivery.
func AdminDeliveryTracking(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}
		deliveryID, err := pathUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload trackingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		step, err := enums.ParseDeliveryStep(payload.Step)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid step"))
			return
		}

		delivery, err := svc.RecordTracking(r.Context(), deliveryID, step)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}
