package disbursement

import (
	"net/http"
	"time"

	"github.com/klokku/treasury/internal/rest"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type VoucherDTO struct {
	Id                  int             `json:"id"`
	DvNo                string          `json:"dvNo"`
	FundClusterId       int             `json:"fundClusterId"`
	ObjectExpenditureId int             `json:"objectExpenditureId"`
	ObligationId        *int            `json:"obligationId,omitempty"`
	Payee               string          `json:"payee"`
	Particulars         string          `json:"particulars,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Status              string          `json:"status"`
	FiscalYear          int             `json:"fiscalYear"`
	CancelReason        *string         `json:"cancelReason,omitempty"`
	CreatedBy           int             `json:"createdBy,omitempty"`
	CreatedAt           *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt           *time.Time      `json:"updatedAt,omitempty"`
}

type VoucherUpdateDTO struct {
	Payee               *string          `json:"payee,omitempty"`
	Particulars         *string          `json:"particulars,omitempty"`
	Amount              *decimal.Decimal `json:"amount,omitempty"`
	ObjectExpenditureId *int             `json:"objectExpenditureId,omitempty"`
}

type ReasonDTO struct {
	Reason string `json:"reason"`
}

type PaymentDTO struct {
	Id           int             `json:"id"`
	DvId         int             `json:"dvId"`
	PaymentType  string          `json:"paymentType"`
	Amount       decimal.Decimal `json:"amount"`
	CheckNo      *string         `json:"checkNo,omitempty"`
	Status       string          `json:"status"`
	ReceivedBy   *string         `json:"receivedBy,omitempty"`
	ReceivedDate *time.Time      `json:"receivedDate,omitempty"`
	ClearDate    *time.Time      `json:"clearDate,omitempty"`
	CancelReason *string         `json:"cancelReason,omitempty"`
	CreatedBy    int             `json:"createdBy,omitempty"`
}

type IssueDTO struct {
	ReceivedBy   string     `json:"receivedBy"`
	ReceivedDate *time.Time `json:"receivedDate,omitempty"`
}

type ClearDTO struct {
	ClearDate *time.Time `json:"clearDate,omitempty"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func voucherToDTO(v Voucher) VoucherDTO {
	return VoucherDTO{
		Id:                  v.Id,
		DvNo:                v.DvNo,
		FundClusterId:       v.FundClusterId,
		ObjectExpenditureId: v.ObjectExpenditureId,
		ObligationId:        v.ObligationId,
		Payee:               v.Payee,
		Particulars:         v.Particulars,
		Amount:              v.Amount,
		Status:              string(v.Status),
		FiscalYear:          v.FiscalYear,
		CancelReason:        v.CancelReason,
		CreatedBy:           v.CreatedBy,
		CreatedAt:           &v.CreatedAt,
		UpdatedAt:           &v.UpdatedAt,
	}
}

func voucherFromDTO(dto VoucherDTO) Voucher {
	return Voucher{
		FundClusterId:       dto.FundClusterId,
		ObjectExpenditureId: dto.ObjectExpenditureId,
		ObligationId:        dto.ObligationId,
		Payee:               dto.Payee,
		Particulars:         dto.Particulars,
		Amount:              dto.Amount,
		FiscalYear:          dto.FiscalYear,
	}
}

func paymentToDTO(p Payment) PaymentDTO {
	return PaymentDTO{
		Id:           p.Id,
		DvId:         p.DvId,
		PaymentType:  string(p.PaymentType),
		Amount:       p.Amount,
		CheckNo:      p.CheckNo,
		Status:       string(p.Status),
		ReceivedBy:   p.ReceivedBy,
		ReceivedDate: p.ReceivedDate,
		ClearDate:    p.ClearDate,
		CancelReason: p.CancelReason,
		CreatedBy:    p.CreatedBy,
	}
}

func writeVoucher(w http.ResponseWriter, status int, v Voucher, err error) {
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, status, voucherToDTO(v))
}

func writePayment(w http.ResponseWriter, status int, p Payment, err error) {
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, status, paymentToDTO(p))
}

// CreateDV godoc
// @Summary Create a disbursement voucher and start its approval workflow
// @Tags Disbursement
// @Accept json
// @Produce json
// @Param voucher body VoucherDTO true "Voucher"
// @Success 201 {object} VoucherDTO
// @Failure 409 {object} rest.ErrorResponse "Obligation not approved or exceeded"
// @Router /api/dv [post]
// @Security XUserId
func (h *Handler) CreateDV(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating disbursement voucher")
	var dto VoucherDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	v, err := h.service.CreateDV(r.Context(), voucherFromDTO(dto))
	writeVoucher(w, http.StatusCreated, v, err)
}

// GetDV godoc
// @Summary Get a disbursement voucher
// @Tags Disbursement
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Success 200 {object} VoucherDTO
// @Router /api/dv/{dvId} [get]
// @Security XUserId
func (h *Handler) GetDV(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	v, err := h.service.GetDV(r.Context(), id)
	writeVoucher(w, http.StatusOK, v, err)
}

// ListDVs godoc
// @Summary List disbursement vouchers
// @Tags Disbursement
// @Produce json
// @Param status query string false "Voucher status"
// @Success 200 {array} VoucherDTO
// @Router /api/dv [get]
// @Security XUserId
func (h *Handler) ListDVs(w http.ResponseWriter, r *http.Request) {
	var status *VoucherStatus
	if s := r.URL.Query().Get("status"); s != "" {
		vs := VoucherStatus(s)
		status = &vs
	}
	vouchers, err := h.service.ListDVs(r.Context(), status)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]VoucherDTO, 0, len(vouchers))
	for _, v := range vouchers {
		dtos = append(dtos, voucherToDTO(v))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// UpdateDV godoc
// @Summary Update a draft disbursement voucher
// @Tags Disbursement
// @Accept json
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Param update body VoucherUpdateDTO true "Changed fields"
// @Success 200 {object} VoucherDTO
// @Failure 409 {object} rest.ErrorResponse "Voucher is not a draft"
// @Router /api/dv/{dvId} [put]
// @Security XUserId
func (h *Handler) UpdateDV(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto VoucherUpdateDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	v, err := h.service.UpdateDV(r.Context(), id, VoucherUpdate{
		Payee:               dto.Payee,
		Particulars:         dto.Particulars,
		Amount:              dto.Amount,
		ObjectExpenditureId: dto.ObjectExpenditureId,
	})
	writeVoucher(w, http.StatusOK, v, err)
}

// CancelDV godoc
// @Summary Cancel a disbursement voucher
// @Tags Disbursement
// @Accept json
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Param reason body ReasonDTO false "Reason"
// @Success 200 {object} VoucherDTO
// @Failure 409 {object} rest.ErrorResponse "Voucher paid, cancelled or has a live payment"
// @Router /api/dv/{dvId}/cancel [post]
// @Security XUserId
func (h *Handler) CancelDV(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto ReasonDTO
	if err := rest.DecodeOptionalJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	v, err := h.service.CancelDV(r.Context(), id, dto.Reason)
	writeVoucher(w, http.StatusOK, v, err)
}

// CreatePayment godoc
// @Summary Create the payment of an approved voucher
// @Tags Payment
// @Accept json
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Param payment body PaymentDTO true "Payment type and amount"
// @Success 201 {object} PaymentDTO
// @Failure 409 {object} rest.ErrorResponse "Voucher not approved or already paying"
// @Router /api/dv/{dvId}/payments [post]
// @Security XUserId
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	dvId, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto PaymentDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	p, err := h.service.CreatePayment(r.Context(), dvId, PaymentType(dto.PaymentType), dto.Amount)
	writePayment(w, http.StatusCreated, p, err)
}

// ListPayments godoc
// @Summary List payments of a voucher
// @Tags Payment
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Success 200 {array} PaymentDTO
// @Router /api/dv/{dvId}/payments [get]
// @Security XUserId
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	dvId, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), dvId)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, paymentToDTO(p))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// GetPayment godoc
// @Summary Get a payment
// @Tags Payment
// @Produce json
// @Param paymentId path int true "Payment ID"
// @Success 200 {object} PaymentDTO
// @Failure 404 {object} rest.ErrorResponse "Payment not found"
// @Router /api/payments/{paymentId} [get]
// @Security XUserId
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "paymentId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	p, err := h.service.GetPayment(r.Context(), id)
	writePayment(w, http.StatusOK, p, err)
}

// IssuePayment godoc
// @Summary Hand a payment over to the payee
// @Tags Payment
// @Accept json
// @Produce json
// @Param paymentId path int true "Payment ID"
// @Param issue body IssueDTO true "Receiver"
// @Success 200 {object} PaymentDTO
// @Router /api/payments/{paymentId}/issue [post]
// @Security XUserId
func (h *Handler) IssuePayment(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "paymentId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto IssueDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	var receivedDate time.Time
	if dto.ReceivedDate != nil {
		receivedDate = *dto.ReceivedDate
	}
	p, err := h.service.IssuePayment(r.Context(), id, dto.ReceivedBy, receivedDate)
	writePayment(w, http.StatusOK, p, err)
}

// ClearPayment godoc
// @Summary Record that a payment cleared the bank
// @Tags Payment
// @Accept json
// @Produce json
// @Param paymentId path int true "Payment ID"
// @Param clear body ClearDTO false "Clear date"
// @Success 200 {object} PaymentDTO
// @Router /api/payments/{paymentId}/clear [post]
// @Security XUserId
func (h *Handler) ClearPayment(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "paymentId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto ClearDTO
	if err := rest.DecodeOptionalJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	var clearDate time.Time
	if dto.ClearDate != nil {
		clearDate = *dto.ClearDate
	}
	p, err := h.service.ClearPayment(r.Context(), id, clearDate)
	writePayment(w, http.StatusOK, p, err)
}

// CancelPayment godoc
// @Summary Cancel a pending or issued payment
// @Tags Payment
// @Accept json
// @Produce json
// @Param paymentId path int true "Payment ID"
// @Param reason body ReasonDTO true "Reason"
// @Success 200 {object} PaymentDTO
// @Router /api/payments/{paymentId}/cancel [post]
// @Security XUserId
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "paymentId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto ReasonDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	p, err := h.service.CancelPayment(r.Context(), id, dto.Reason)
	writePayment(w, http.StatusOK, p, err)
}

// MarkStale godoc
// @Summary Mark an issued check that was never presented as stale
// @Tags Payment
// @Produce json
// @Param paymentId path int true "Payment ID"
// @Success 200 {object} PaymentDTO
// @Failure 409 {object} rest.ErrorResponse "Payment not issued"
// @Router /api/payments/{paymentId}/stale [post]
// @Security XUserId
func (h *Handler) MarkStale(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "paymentId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	p, err := h.service.MarkStale(r.Context(), id)
	writePayment(w, http.StatusOK, p, err)
}
