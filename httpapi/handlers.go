package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"soko/auth"
	"soko/dispute"
	"soko/order"
	"soko/payment"
	"soko/policy"
	"soko/shipment"
	"soko/verification"
)

// systemActor drives internal follow-up transitions, like advancing the
// order once its shipment reports delivery.
var systemActor = policy.Actor{ID: "system", Role: policy.RoleAdmin}

func (s *Server) actor(w http.ResponseWriter, r *http.Request) (policy.Actor, bool) {
	actor, ok := policy.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated"})
	}
	return actor, ok
}

// --- auth ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	user, err := s.auth.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	result, err := s.auth.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user": map[string]any{
			"id":    result.User.ID,
			"email": result.User.Email,
			"role":  result.User.Role,
		},
	})
}

// --- sellers / verification ---

type sellerView struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Status      string  `json:"verification_status"`
	Tier        *string `json:"seller_tier"`
	Standing    string  `json:"standing"`
	StrikeCount int     `json:"strike_count"`
}

func toSellerView(sel verification.Seller) sellerView {
	v := sellerView{
		ID:          sel.ID,
		UserID:      sel.UserID,
		Status:      string(sel.Status),
		Standing:    string(sel.Standing),
		StrikeCount: sel.StrikeCount,
	}
	if sel.Tier != nil {
		tier := string(*sel.Tier)
		v.Tier = &tier
	}
	return v
}

func (s *Server) handleOnboardSeller(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeBody(r, &req); err != nil || req.UserID == "" {
		req.UserID = actor.ID
	}

	sel, err := s.verification.Onboard(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSellerView(sel))
}

func (s *Server) handleGetSeller(w http.ResponseWriter, r *http.Request) {
	sel, err := s.verification.GetSeller(r.Context(), chi.URLParam(r, "sellerID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSellerView(sel))
}

func (s *Server) handleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		DocumentType string `json:"document_type"`
		FileRef      string `json:"file_ref"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	doc, err := s.verification.SubmitDocument(r.Context(), actor, chi.URLParam(r, "sellerID"),
		verification.DocumentType(req.DocumentType), req.FileRef)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            doc.ID,
		"document_type": doc.Type,
		"file_ref":      doc.FileRef,
	})
}

func (s *Server) handleEvaluateTier(w http.ResponseWriter, r *http.Request) {
	tier := verification.Tier(r.URL.Query().Get("tier"))
	eval, err := s.verification.EvaluateTier(r.Context(), chi.URLParam(r, "sellerID"), tier)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"satisfied": eval.Satisfied,
		"missing":   eval.Missing,
	})
}

func (s *Server) handleDecideVerification(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Decision     string  `json:"status"`
		AssignedTier *string `json:"seller_tier"`
		Notes        *string `json:"notes"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	params := verification.DecideParams{
		OwnerID:  chi.URLParam(r, "sellerID"),
		Decision: verification.Decision(req.Decision),
		Notes:    req.Notes,
	}
	if req.AssignedTier != nil {
		tier := verification.Tier(*req.AssignedTier)
		params.AssignedTier = &tier
	}

	sel, err := s.verification.Decide(r.Context(), actor, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSellerView(sel))
}

func (s *Server) handleSetStanding(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Standing string `json:"standing"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	err := s.verification.SetStanding(r.Context(), actor, chi.URLParam(r, "sellerID"),
		verification.Standing(req.Standing))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- orders ---

type orderItemView struct {
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type orderView struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"seller_id"`
	CustomerID    string          `json:"customer_id"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	PaymentID     *string         `json:"payment_id,omitempty"`
	DeliveryMode  string          `json:"delivery_mode"`
	ShippingFee   int64           `json:"shipping_fee"`
	Total         int64           `json:"total"`
	Items         []orderItemView `json:"items,omitempty"`
}

func toOrderView(o order.Order) orderView {
	v := orderView{
		ID:            o.ID,
		SellerID:      o.SellerID,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		PaymentID:     o.PaymentID,
		DeliveryMode:  string(o.DeliveryMode),
		ShippingFee:   o.ShippingFee,
		Total:         o.Total,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return v
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		SellerID        string          `json:"seller_id"`
		Items           []orderItemView `json:"items"`
		ShippingAddress *string         `json:"shipping_address"`
		DeliveryMode    string          `json:"delivery_mode"`
		ShippingFee     int64           `json:"shipping_fee"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	params := order.CreateParams{
		SellerID:        req.SellerID,
		ShippingAddress: req.ShippingAddress,
		DeliveryMode:    order.DeliveryMode(req.DeliveryMode),
		ShippingFee:     req.ShippingFee,
	}
	for _, it := range req.Items {
		params.Items = append(params.Items, order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	o, err := s.orders.Create(r.Context(), actor, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderView(o))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (s *Server) handleAdvanceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	orderID := chi.URLParam(r, "orderID")
	if err := s.orders.Advance(r.Context(), actor, orderID, order.Status(req.Status)); err != nil {
		s.writeError(w, err)
		return
	}

	o, err := s.orders.Get(r.Context(), orderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

// --- payments ---

type attemptView struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Phone       string `json:"phone"`
	ProviderRef string `json:"provider_reference"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
}

func toAttemptView(a payment.Attempt) attemptView {
	return attemptView{
		ID:          a.ID,
		OrderID:     a.OrderID,
		Phone:       a.Phone,
		ProviderRef: a.ProviderRef,
		Status:      string(a.Status),
		Amount:      a.Amount,
	}
}

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	a, err := s.payments.Initiate(r.Context(), actor, chi.URLParam(r, "orderID"), req.PhoneNumber)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toAttemptView(a))
}

func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderReference string `json:"provider_reference"`
		Outcome           string `json:"outcome"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	err := s.payments.HandleProviderCallback(r.Context(), req.ProviderReference, payment.Outcome(req.Outcome))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// --- shipments ---

type shipmentView struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	CourierID      string     `json:"courier_id"`
	Status         string     `json:"status"`
	TrackingNumber string     `json:"tracking_number"`
	OTPCode        string     `json:"otp_code,omitempty"`
	ActualDelivery *time.Time `json:"actual_delivery,omitempty"`
}

func toShipmentView(sh shipment.Shipment, includeOTP bool) shipmentView {
	v := shipmentView{
		ID:             sh.ID,
		OrderID:        sh.OrderID,
		CourierID:      sh.CourierID,
		Status:         string(sh.Status),
		TrackingNumber: sh.TrackingNumber,
		ActualDelivery: sh.ActualDelivery,
	}
	if includeOTP {
		v.OTPCode = sh.OTPCode
	}
	return v
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		OrderID   string `json:"order_id"`
		CourierID string `json:"courier_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	sh, err := s.shipments.CreateForOrder(r.Context(), actor, req.OrderID, req.CourierID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// the OTP is surfaced once, at creation, for relay to the recipient
	writeJSON(w, http.StatusCreated, toShipmentView(sh, true))
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.shipments.Get(r.Context(), chi.URLParam(r, "shipmentID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentView(sh, false))
}

func (s *Server) handleAdvanceShipment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
		OTP    string `json:"otp"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	sh, err := s.shipments.Advance(r.Context(), actor, shipment.AdvanceParams{
		ShipmentID: chi.URLParam(r, "shipmentID"),
		RawStatus:  req.Status,
		OTP:        req.OTP,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// delivery confirmed: move the order too. The shipment transition is
	// already committed, so a failure here only means the order lags until
	// staff advances it by hand.
	if sh.Status == shipment.StatusDelivered {
		if err := s.orders.Advance(r.Context(), systemActor, sh.OrderID, order.StatusDelivered); err != nil {
			s.log.Warn("order not advanced after delivery",
				zap.String("order_id", sh.OrderID),
				zap.String("shipment_id", sh.ID),
				zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, toShipmentView(sh, false))
}

// --- disputes ---

type disputeView struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"order_id"`
	SellerID       string  `json:"seller_id"`
	ReporterID     string  `json:"reporter_id"`
	Type           string  `json:"dispute_type"`
	Status         string  `json:"status"`
	Description    string  `json:"description,omitempty"`
	SellerResponse string  `json:"seller_response,omitempty"`
	Resolution     *string `json:"resolution,omitempty"`
	StrikeReason   *string `json:"strike_reason,omitempty"`
}

func toDisputeView(d dispute.Dispute) disputeView {
	v := disputeView{
		ID:             d.ID,
		OrderID:        d.OrderID,
		SellerID:       d.SellerID,
		ReporterID:     d.ReporterID,
		Type:           string(d.Type),
		Status:         string(d.Status),
		Description:    d.Description,
		SellerResponse: d.SellerResponse,
	}
	if d.Resolution != nil {
		res := string(*d.Resolution)
		v.Resolution = &res
	}
	if d.StrikeReason != nil {
		reason := string(*d.StrikeReason)
		v.StrikeReason = &reason
	}
	return v
}

func (s *Server) handleOpenDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		OrderID     string `json:"order_id"`
		DisputeType string `json:"dispute_type"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	d, err := s.disputes.Open(r.Context(), actor, dispute.OpenParams{
		OrderID:     req.OrderID,
		Type:        dispute.Type(req.DisputeType),
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDisputeView(d))
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	d, err := s.disputes.Get(r.Context(), chi.URLParam(r, "disputeID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisputeView(d))
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	list, err := s.disputes.ListByOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]disputeView, 0, len(list))
	for _, d := range list {
		views = append(views, toDisputeView(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRespondDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Response string `json:"response"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	if err := s.disputes.Respond(r.Context(), actor, chi.URLParam(r, "disputeID"), req.Response); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleReviewDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	if err := s.disputes.Review(r.Context(), actor, chi.URLParam(r, "disputeID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Resolution   string  `json:"resolution"`
		StrikeReason *string `json:"strike_reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	params := dispute.ResolveParams{
		DisputeID:  chi.URLParam(r, "disputeID"),
		Resolution: dispute.Resolution(req.Resolution),
	}
	if req.StrikeReason != nil {
		reason := dispute.Type(*req.StrikeReason)
		params.StrikeReason = &reason
	}

	result, err := s.disputes.Resolve(r.Context(), actor, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       dispute.StatusResolved,
		"strike_count": result.StrikeCount,
		"standing":     result.Standing,
	})
}
