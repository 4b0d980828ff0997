package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"soko/auth"
	"soko/dispute"
	"soko/order"
	"soko/payment"
	"soko/policy"
	"soko/shipment"
	"soko/verification"
)

// statusOf translates domain sentinels into HTTP status codes. Validation
// errors (400) tell the client to fix its input; conflicts (409) tell it to
// refresh state and look again.
var statusOf = []struct {
	err  error
	code int
}{
	{payment.ErrInvalidPhone, http.StatusBadRequest},
	{order.ErrEmptyOrder, http.StatusBadRequest},
	{payment.ErrUnknownOutcome, http.StatusBadRequest},
	{verification.ErrUnknownDocumentType, http.StatusBadRequest},
	{verification.ErrUnknownTier, http.StatusBadRequest},
	{verification.ErrTierRequired, http.StatusBadRequest},
	{shipment.ErrUnknownStatus, http.StatusBadRequest},
	{dispute.ErrUnknownType, http.StatusBadRequest},
	{dispute.ErrUnknownResolution, http.StatusBadRequest},
	{auth.ErrWeakPassword, http.StatusBadRequest},

	{auth.ErrInvalidCredentials, http.StatusUnauthorized},

	{order.ErrPaymentRequired, http.StatusPaymentRequired},
	{shipment.ErrPaymentRequired, http.StatusPaymentRequired},

	{policy.ErrForbidden, http.StatusForbidden},
	{shipment.ErrInvalidOTP, http.StatusForbidden},

	{verification.ErrSellerNotFound, http.StatusNotFound},
	{order.ErrNotFound, http.StatusNotFound},
	{payment.ErrOrderNotFound, http.StatusNotFound},
	{payment.ErrAttemptNotFound, http.StatusNotFound},
	{shipment.ErrNotFound, http.StatusNotFound},
	{shipment.ErrOrderNotFound, http.StatusNotFound},
	{dispute.ErrNotFound, http.StatusNotFound},
	{dispute.ErrOrderNotFound, http.StatusNotFound},
	{auth.ErrUserNotFound, http.StatusNotFound},

	{order.ErrInvalidTransition, http.StatusConflict},
	{verification.ErrInvalidTransition, http.StatusConflict},
	{payment.ErrAttemptActive, http.StatusConflict},
	{shipment.ErrInvalidTransition, http.StatusConflict},
	{shipment.ErrShipmentExists, http.StatusConflict},
	{shipment.ErrStaleStatus, http.StatusConflict},
	{dispute.ErrAlreadyResolved, http.StatusConflict},
	{dispute.ErrInvalidTransition, http.StatusConflict},
	{dispute.ErrInvalidOrderState, http.StatusConflict},
	{auth.ErrDuplicateEmail, http.StatusConflict},

	{order.ErrSellerNotVerified, http.StatusUnprocessableEntity},
	{order.ErrSellerBanned, http.StatusUnprocessableEntity},

	{payment.ErrProviderRejected, http.StatusBadGateway},
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	for _, m := range statusOf {
		if errors.Is(err, m.err) {
			writeJSON(w, m.code, errorBody{Error: err.Error()})
			return
		}
	}
	s.log.Error("internal error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
