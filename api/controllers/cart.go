package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealflow-backend/api/responses"
	"github.com/angelmondragon/dealflow-backend/api/validators"
	cartsvc "github.com/angelmondragon/dealflow-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/dealflow-backend/pkg/errors"
	"github.com/angelmondragon/dealflow-backend/pkg/logger"
)

type addToCartRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

type addToCartResponse struct {
	TradeID   uuid.UUID `json:"trade_id"`
	ProductID uuid.UUID `json:"product_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Created   bool      `json:"created"`
}

// CartAdd puts a product into the caller's cart. Adding the same product
// twice returns the existing trade.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addToCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		trade, created, err := svc.AddToCart(r.Context(), buyerID, payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, addToCartResponse{
			TradeID:   trade.ID,
			ProductID: trade.ProductID,
			SellerID:  trade.SellerID,
			Created:   created,
		})
	}
}

// CartList reconciles the cart against sold products and returns the
// seller-grouped view with delivery charges applied.
func CartList(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		remote := false
		if raw := strings.TrimSpace(r.URL.Query().Get("remote")); raw != "" {
			remote, err = strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid remote value"))
				return
			}
		}

		if _, err := svc.Reconcile(r.Context(), buyerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.List(r.Context(), buyerID, remote)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type removeFromCartRequest struct {
	TradeIDs []uuid.UUID `json:"trade_ids" validate:"required,min=1,unique,dive,required"`
}

// CartRemove deletes pending trades owned by the caller.
func CartRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload removeFromCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		removed, err := svc.Remove(r.Context(), buyerID, payload.TradeIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"removed": removed})
	}
}
