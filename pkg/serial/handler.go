package serial

import (
	"net/http"
	"strconv"

	"github.com/klokku/treasury/internal/apperr"
	"github.com/klokku/treasury/internal/rest"
	log "github.com/sirupsen/logrus"
)

type ScopeDTO struct {
	Series        string `json:"series"`
	FiscalYear    int    `json:"fiscalYear"`
	FundClusterId int    `json:"fundClusterId,omitempty"`
	DocumentType  string `json:"documentType,omitempty"`
}

type NumberDTO struct {
	Scope  string `json:"scope"`
	Value  int64  `json:"value"`
	Number string `json:"number"`
	End    *int64 `json:"end,omitempty"`
}

type RangeDTO struct {
	ScopeDTO
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type Handler struct {
	allocator Allocator
}

func NewHandler(allocator Allocator) *Handler {
	return &Handler{allocator: allocator}
}

func (dto ScopeDTO) toScope() (Scope, error) {
	series, ok := SeriesByCode(dto.Series)
	if !ok {
		return Scope{}, apperr.Validation("unknown series %q", dto.Series)
	}
	return Scope{
		Series:        series,
		FiscalYear:    dto.FiscalYear,
		FundClusterId: dto.FundClusterId,
		DocumentType:  dto.DocumentType,
	}, nil
}

func numberToDTO(n Number, end *int64) NumberDTO {
	return NumberDTO{Scope: n.Scope.Key(), Value: n.Value, Number: n.String(), End: end}
}

// Allocate godoc
// @Summary Issue the next number of a series scope
// @Tags Serial
// @Accept json
// @Produce json
// @Param scope body ScopeDTO true "Scope"
// @Success 201 {object} NumberDTO
// @Failure 409 {object} rest.ErrorResponse "Series exhausted"
// @Router /api/serial/allocate [post]
// @Security XUserId
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	log.Debug("Allocating serial number")
	var dto ScopeDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	scope, err := dto.toScope()
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	number, err := h.allocator.Allocate(r.Context(), scope)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, numberToDTO(number, nil))
}

// DefineRange godoc
// @Summary Bound a series scope to a range of numbers
// @Tags Serial
// @Accept json
// @Param range body RangeDTO true "Range"
// @Success 204
// @Failure 409 {object} rest.ErrorResponse "Range below issued numbers"
// @Router /api/serial/range [post]
// @Security XUserId
func (h *Handler) DefineRange(w http.ResponseWriter, r *http.Request) {
	log.Debug("Defining serial range")
	var dto RangeDTO
	if err := rest.DecodeJSON(r, &dto); err != nil {
		rest.WriteError(w, err)
		return
	}
	scope, err := dto.toScope()
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	if err := h.allocator.DefineRange(r.Context(), scope, dto.Start, dto.End); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Current godoc
// @Summary Get the last issued number of a series scope
// @Tags Serial
// @Produce json
// @Param series query string true "Series code"
// @Param fiscalYear query int true "Fiscal year"
// @Param fundClusterId query int false "Fund cluster"
// @Param documentType query string false "Document type"
// @Success 200 {object} NumberDTO
// @Router /api/serial/current [get]
// @Security XUserId
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	dto := ScopeDTO{Series: query.Get("series"), DocumentType: query.Get("documentType")}
	var err error
	if dto.FiscalYear, err = strconv.Atoi(query.Get("fiscalYear")); err != nil {
		rest.WriteError(w, apperr.Validation("invalid fiscalYear"))
		return
	}
	if v := query.Get("fundClusterId"); v != "" {
		if dto.FundClusterId, err = strconv.Atoi(v); err != nil {
			rest.WriteError(w, apperr.Validation("invalid fundClusterId"))
			return
		}
	}
	scope, err := dto.toScope()
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	number, end, err := h.allocator.Current(r.Context(), scope)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, numberToDTO(number, end))
}
