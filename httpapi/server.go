package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"soko/auth"
	"soko/dispute"
	"soko/order"
	"soko/payment"
	"soko/shipment"
	"soko/verification"
)

// Server wires the domain services to their HTTP surface.
type Server struct {
	auth         *auth.Service
	verification *verification.Service
	orders       *order.Service
	payments     *payment.Service
	shipments    *shipment.Service
	disputes     *dispute.Service
	log          *zap.Logger
}

func NewServer(
	authSvc *auth.Service,
	verificationSvc *verification.Service,
	orderSvc *order.Service,
	paymentSvc *payment.Service,
	shipmentSvc *shipment.Service,
	disputeSvc *dispute.Service,
	log *zap.Logger,
) *Server {
	return &Server{
		auth:         authSvc,
		verification: verificationSvc,
		orders:       orderSvc,
		payments:     paymentSvc,
		shipments:    shipmentSvc,
		disputes:     disputeSvc,
		log:          log.With(zap.String("component", "httpapi")),
	}
}

// Router assembles the full route tree. The payment provider callback and the
// auth endpoints are the only unauthenticated routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/payments/callback", s.handlePaymentCallback)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Route("/sellers", func(r chi.Router) {
				r.Post("/", s.handleOnboardSeller)
				r.Get("/{sellerID}", s.handleGetSeller)
				r.Post("/{sellerID}/documents", s.handleSubmitDocument)
				r.Get("/{sellerID}/tier-evaluation", s.handleEvaluateTier)
				r.Patch("/{sellerID}/verification", s.handleDecideVerification)
				r.Patch("/{sellerID}/standing", s.handleSetStanding)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", s.handleCreateOrder)
				r.Get("/{orderID}", s.handleGetOrder)
				r.Patch("/{orderID}/status", s.handleAdvanceOrder)
				r.Post("/{orderID}/pay", s.handleInitiatePayment)
				r.Get("/{orderID}/disputes", s.handleListDisputes)
			})

			r.Route("/shipments", func(r chi.Router) {
				r.Post("/", s.handleCreateShipment)
				r.Get("/{shipmentID}", s.handleGetShipment)
				r.Patch("/{shipmentID}", s.handleAdvanceShipment)
			})

			r.Route("/disputes", func(r chi.Router) {
				r.Post("/", s.handleOpenDispute)
				r.Get("/{disputeID}", s.handleGetDispute)
				r.Patch("/{disputeID}/respond", s.handleRespondDispute)
				r.Patch("/{disputeID}/review", s.handleReviewDispute)
				r.Patch("/{disputeID}/resolve", s.handleResolveDispute)
			})
		})
	})

	return r
}
