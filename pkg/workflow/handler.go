package workflow

import (
	"net/http"
	"time"

	"github.com/klokku/treasury/internal/rest"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type StageDTO struct {
	Id               int        `json:"id"`
	DvId             int        `json:"dvId"`
	Stage            string     `json:"stage"`
	StageOrder       int        `json:"stageOrder"`
	RequiredRole     string     `json:"requiredRole"`
	Status           string     `json:"status"`
	ApproverUserId   *int       `json:"approverUserId,omitempty"`
	ApproverUsername *string    `json:"approverUsername,omitempty"`
	Comments         *string    `json:"comments,omitempty"`
	ActionDate       *time.Time `json:"actionDate,omitempty"`
}

type TransitionDTO struct {
	Approved      StageDTO  `json:"approved"`
	Next          *StageDTO `json:"next,omitempty"`
	VoucherStatus string    `json:"voucherStatus"`
}

type PendingApprovalDTO struct {
	DvId   int             `json:"dvId"`
	DvNo   string          `json:"dvNo"`
	Payee  string          `json:"payee"`
	Amount decimal.Decimal `json:"amount"`
	Stage  StageDTO        `json:"stage"`
}

type CommentsDTO struct {
	Comments string `json:"comments"`
}

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

func stageToDTO(s Stage) StageDTO {
	return StageDTO{
		Id:               s.Id,
		DvId:             s.DvId,
		Stage:            string(s.Name),
		StageOrder:       s.Order,
		RequiredRole:     string(s.RequiredRole),
		Status:           string(s.Status),
		ApproverUserId:   s.ApproverUserId,
		ApproverUsername: s.ApproverUsername,
		Comments:         s.Comments,
		ActionDate:       s.ActionDate,
	}
}

// History godoc
// @Summary List all workflow stages of a voucher
// @Tags Workflow
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Success 200 {array} StageDTO
// @Router /api/dv/{dvId}/workflow [get]
// @Security XUserId
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	dvId, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	stages, err := h.engine.History(r.Context(), dvId)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]StageDTO, 0, len(stages))
	for _, s := range stages {
		dtos = append(dtos, stageToDTO(s))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

// CurrentStage godoc
// @Summary Get the stage a voucher is waiting for
// @Tags Workflow
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Success 200 {object} StageDTO
// @Success 204 "Workflow resolved"
// @Router /api/dv/{dvId}/workflow/current [get]
// @Security XUserId
func (h *Handler) CurrentStage(w http.ResponseWriter, r *http.Request) {
	dvId, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	stage, err := h.engine.CurrentStage(r.Context(), dvId)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	if stage == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	rest.WriteJSON(w, http.StatusOK, stageToDTO(*stage))
}

// ApproveStage godoc
// @Summary Approve the current stage of a voucher
// @Tags Workflow
// @Accept json
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Param comments body CommentsDTO false "Comments"
// @Success 200 {object} TransitionDTO
// @Failure 403 {object} rest.ErrorResponse "Role does not match stage"
// @Failure 409 {object} rest.ErrorResponse "Voucher not awaiting approval"
// @Router /api/dv/{dvId}/workflow/approve [post]
// @Security XUserId
func (h *Handler) ApproveStage(w http.ResponseWriter, r *http.Request) {
	log.Debug("Approving workflow stage")
	dvId, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto CommentsDTO
	if err := rest.DecodeOptionalJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	transition, err := h.engine.ApproveStage(r.Context(), dvId, dto.Comments)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	result := TransitionDTO{Approved: stageToDTO(transition.Approved), VoucherStatus: transition.VoucherStatus}
	if transition.Next != nil {
		next := stageToDTO(*transition.Next)
		result.Next = &next
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

// RejectStage godoc
// @Summary Reject the current stage of a voucher
// @Tags Workflow
// @Accept json
// @Produce json
// @Param dvId path int true "Voucher ID"
// @Param comments body CommentsDTO true "Comments"
// @Success 200 {object} StageDTO
// @Router /api/dv/{dvId}/workflow/reject [post]
// @Security XUserId
func (h *Handler) RejectStage(w http.ResponseWriter, r *http.Request) {
	log.Debug("Rejecting workflow stage")
	dvId, err := rest.PathInt(r, "dvId")
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	var dto CommentsDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	stage, err := h.engine.RejectStage(r.Context(), dvId, dto.Comments)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, stageToDTO(stage))
}

// PendingForUser godoc
// @Summary List vouchers waiting for a stage the current user may sign
// @Tags Workflow
// @Produce json
// @Success 200 {array} PendingApprovalDTO
// @Router /api/approvals/pending [get]
// @Security XUserId
func (h *Handler) PendingForUser(w http.ResponseWriter, r *http.Request) {
	pending, err := h.engine.PendingForUser(r.Context())
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]PendingApprovalDTO, 0, len(pending))
	for _, p := range pending {
		dtos = append(dtos, PendingApprovalDTO{DvId: p.DvId, DvNo: p.DvNo, Payee: p.Payee, Amount: p.Amount, Stage: stageToDTO(p.Stage)})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}
