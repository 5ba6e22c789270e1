package ledger

import (
	"net/http"
	"time"

	"github.com/klokku/treasury/internal/rest"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type FundClusterDTO struct {
	Id   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type ObjectOfExpenditureDTO struct {
	Id   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type AppropriationDTO struct {
	Id            int             `json:"id"`
	FundClusterId int             `json:"fundClusterId"`
	Year          int             `json:"year"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference"`
	Description   string          `json:"description,omitempty"`
	CreatedBy     int             `json:"createdBy,omitempty"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
}

type AllotmentDTO struct {
	Id                    int             `json:"id"`
	AppropriationId       int             `json:"appropriationId"`
	ObjectOfExpenditureId int             `json:"objectOfExpenditureId"`
	MfoPapId              *int            `json:"mfoPapId,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Class                 string          `json:"class"`
	Purpose               string          `json:"purpose,omitempty"`
	CreatedBy             int             `json:"createdBy,omitempty"`
}

type ObligationDTO struct {
	Id          int             `json:"id"`
	AllotmentId int             `json:"allotmentId"`
	Payee       string          `json:"payee"`
	Particulars string          `json:"particulars,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status,omitempty"`
	OrsNumber   *string         `json:"orsNumber,omitempty"`
	Remarks     *string         `json:"remarks,omitempty"`
	ApprovedBy  *int            `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time      `json:"approvedAt,omitempty"`
}

type RemarksDTO struct {
	Remarks string `json:"remarks"`
}

type AvailabilityDTO struct {
	AllotmentId        int             `json:"allotmentId"`
	Appropriation      decimal.Decimal `json:"appropriation"`
	Allotment          decimal.Decimal `json:"allotment"`
	Obligation         decimal.Decimal `json:"obligation"`
	Disbursement       decimal.Decimal `json:"disbursement"`
	UnobligatedBalance decimal.Decimal `json:"unobligatedBalance"`
	AvailableBalance   decimal.Decimal `json:"availableBalance"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func appropriationToDTO(a Appropriation) AppropriationDTO {
	return AppropriationDTO{
		Id:            a.Id,
		FundClusterId: a.FundClusterId,
		Year:          a.Year,
		Amount:        a.Amount,
		Reference:     a.Reference,
		Description:   a.Description,
		CreatedBy:     a.CreatedBy,
		CreatedAt:     &a.CreatedAt,
	}
}

func allotmentToDTO(a Allotment) AllotmentDTO {
	return AllotmentDTO{
		Id:                    a.Id,
		AppropriationId:       a.AppropriationId,
		ObjectOfExpenditureId: a.ObjectOfExpenditureId,
		MfoPapId:              a.MfoPapId,
		Amount:                a.Amount,
		Class:                 a.Class,
		Purpose:               a.Purpose,
		CreatedBy:             a.CreatedBy,
	}
}

func obligationToDTO(o Obligation) ObligationDTO {
	return ObligationDTO{
		Id:          o.Id,
		AllotmentId: o.AllotmentId,
		Payee:       o.Payee,
		Particulars: o.Particulars,
		Amount:      o.Amount,
		Status:      string(o.Status),
		OrsNumber:   o.OrsNumber,
		Remarks:     o.Remarks,
		ApprovedBy:  o.ApprovedBy,
		ApprovedAt:  o.ApprovedAt,
	}
}

// CreateFundCluster godoc
// @Summary Register a fund cluster
// @Tags Ledger
// @Accept json
// @Produce json
// @Param fundCluster body FundClusterDTO true "Fund cluster"
// @Success 201 {object} FundClusterDTO
// @Router /api/ledger/fund-clusters [post]
// @Security XUserId
func (h *Handler) CreateFundCluster(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating fund cluster")
	var dto FundClusterDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	fc, err := h.service.CreateFundCluster(r.Context(), dto.Code, dto.Name)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, FundClusterDTO(fc))
}

func (h *Handler) ListFundClusters(w http.ResponseWriter, r *http.Request) {
	fundClusters, err := h.service.ListFundClusters(r.Context())
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]FundClusterDTO, 0, len(fundClusters))
	for _, fc := range fundClusters {
		dtos = append(dtos, FundClusterDTO(fc))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateObjectOfExpenditure(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating object of expenditure")
	var dto ObjectOfExpenditureDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	o, err := h.service.CreateObjectOfExpenditure(r.Context(), dto.Code, dto.Name)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ObjectOfExpenditureDTO(o))
}

func (h *Handler) ListObjectsOfExpenditure(w http.ResponseWriter, r *http.Request) {
	objects, err := h.service.ListObjectsOfExpenditure(r.Context())
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]ObjectOfExpenditureDTO, 0, len(objects))
	for _, o := range objects {
		dtos = append(dtos, ObjectOfExpenditureDTO(o))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// CreateAppropriation godoc
// @Summary Record an appropriation
// @Tags Ledger
// @Accept json
// @Produce json
// @Param appropriation body AppropriationDTO true "Appropriation"
// @Success 201 {object} AppropriationDTO
// @Failure 403 {object} rest.ErrorResponse "Not a budget officer"
// @Router /api/ledger/appropriations [post]
// @Security XUserId
func (h *Handler) CreateAppropriation(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating appropriation")
	var dto AppropriationDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	a, err := h.service.CreateAppropriation(r.Context(), Appropriation{
		FundClusterId: dto.FundClusterId,
		Year:          dto.Year,
		Amount:        dto.Amount,
		Reference:     dto.Reference,
		Description:   dto.Description,
	})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, appropriationToDTO(a))
}

func (h *Handler) GetAppropriation(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "appropriationId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	a, err := h.service.GetAppropriation(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, appropriationToDTO(a))
}

// CreateAllotment godoc
// @Summary Allot part of an appropriation
// @Tags Ledger
// @Accept json
// @Produce json
// @Param allotment body AllotmentDTO true "Allotment"
// @Success 201 {object} AllotmentDTO
// @Failure 422 {object} rest.ErrorResponse "Appropriation exceeded"
// @Router /api/ledger/allotments [post]
// @Security XUserId
func (h *Handler) CreateAllotment(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating allotment")
	var dto AllotmentDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	a, err := h.service.CreateAllotment(r.Context(), Allotment{
		AppropriationId:       dto.AppropriationId,
		ObjectOfExpenditureId: dto.ObjectOfExpenditureId,
		MfoPapId:              dto.MfoPapId,
		Amount:                dto.Amount,
		Class:                 dto.Class,
		Purpose:               dto.Purpose,
	})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, allotmentToDTO(a))
}

func (h *Handler) GetAllotment(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "allotmentId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	a, err := h.service.GetAllotment(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, allotmentToDTO(a))
}

func (h *Handler) ListAllotments(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "appropriationId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	allotments, err := h.service.ListAllotments(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]AllotmentDTO, 0, len(allotments))
	for _, a := range allotments {
		dtos = append(dtos, allotmentToDTO(a))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// GetBudgetAvailability godoc
// @Summary Get the balances of an allotment
// @Tags Ledger
// @Produce json
// @Param allotmentId path int true "Allotment ID"
// @Success 200 {object} AvailabilityDTO
// @Router /api/ledger/allotments/{allotmentId}/availability [get]
// @Security XUserId
func (h *Handler) GetBudgetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "allotmentId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	a, err := h.service.GetBudgetAvailability(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, AvailabilityDTO(a))
}

// CreateObligation godoc
// @Summary Request an obligation against an allotment
// @Tags Ledger
// @Accept json
// @Produce json
// @Param obligation body ObligationDTO true "Obligation"
// @Success 201 {object} ObligationDTO
// @Failure 422 {object} rest.ErrorResponse "Allotment exceeded"
// @Router /api/ledger/obligations [post]
// @Security XUserId
func (h *Handler) CreateObligation(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating obligation")
	var dto ObligationDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	o, err := h.service.CreateObligation(r.Context(), Obligation{
		AllotmentId: dto.AllotmentId,
		Payee:       dto.Payee,
		Particulars: dto.Particulars,
		Amount:      dto.Amount,
	})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, obligationToDTO(o))
}

func (h *Handler) GetObligation(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "obligationId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	o, err := h.service.GetObligation(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, obligationToDTO(o))
}

func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	id, err := rest.PathInt(r, "allotmentId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	obligations, err := h.service.ListObligations(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]ObligationDTO, 0, len(obligations))
	for _, o := range obligations {
		dtos = append(dtos, obligationToDTO(o))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// ApproveObligation godoc
// @Summary Approve a pending obligation and issue its ORS number
// @Tags Ledger
// @Produce json
// @Param obligationId path int true "Obligation ID"
// @Success 200 {object} ObligationDTO
// @Failure 409 {object} rest.ErrorResponse "Not pending"
// @Failure 422 {object} rest.ErrorResponse "Allotment exceeded"
// @Router /api/ledger/obligations/{obligationId}/approve [post]
// @Security XUserId
func (h *Handler) ApproveObligation(w http.ResponseWriter, r *http.Request) {
	log.Debug("Approving obligation")
	id, err := rest.PathInt(r, "obligationId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	o, err := h.service.ApproveObligation(r.Context(), id)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, obligationToDTO(o))
}

// RejectObligation godoc
// @Summary Reject a pending obligation
// @Tags Ledger
// @Accept json
// @Produce json
// @Param obligationId path int true "Obligation ID"
// @Param remarks body RemarksDTO true "Remarks"
// @Success 200 {object} ObligationDTO
// @Failure 409 {object} rest.ErrorResponse "Not pending"
// @Router /api/ledger/obligations/{obligationId}/reject [post]
// @Security XUserId
func (h *Handler) RejectObligation(w http.ResponseWriter, r *http.Request) {
	log.Debug("Rejecting obligation")
	id, err := rest.PathInt(r, "obligationId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto RemarksDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	o, err := h.service.RejectObligation(r.Context(), id, dto.Remarks)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, obligationToDTO(o))
}
