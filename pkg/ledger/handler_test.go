package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/klokku/treasury/internal/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(ctx context.Context, h http.HandlerFunc, method, target string, vars map[string]string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req = mux.SetURLVars(req.WithContext(ctx), vars)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body rest.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Kind
}

func TestHandler_Appropriations(t *testing.T) {
	t.Run("should create appropriation", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		handler := NewHandler(service)
		fc, err := service.CreateFundCluster(budgetOfficerCtx, "01", "Regular Agency Fund")
		require.NoError(t, err)
		body := `{"fundClusterId":` + strconv.Itoa(fc.Id) + `,"year":2025,"amount":"1000000.00","reference":"GAA 2025"}`

		// when
		w := serve(budgetOfficerCtx, handler.CreateAppropriation, http.MethodPost, "/api/ledger/appropriations", nil, body)

		// then
		require.Equal(t, http.StatusCreated, w.Code)
		var dto AppropriationDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&dto))
		assert.Equal(t, "1000000.00", dto.Amount.StringFixed(2))
		assert.Equal(t, 1, dto.CreatedBy)
	})

	t.Run("should reject sub-centavo amount", func(t *testing.T) {
		service, _ := setupService(t)
		handler := NewHandler(service)
		fc, err := service.CreateFundCluster(budgetOfficerCtx, "01", "Regular Agency Fund")
		require.NoError(t, err)
		body := `{"fundClusterId":` + strconv.Itoa(fc.Id) + `,"year":2025,"amount":"10.001","reference":"GAA 2025"}`

		w := serve(budgetOfficerCtx, handler.CreateAppropriation, http.MethodPost, "/api/ledger/appropriations", nil, body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation", errorKind(t, w))
	})

	t.Run("should forbid staff", func(t *testing.T) {
		service, _ := setupService(t)
		handler := NewHandler(service)

		w := serve(staffCtx, handler.CreateAppropriation, http.MethodPost, "/api/ledger/appropriations", nil,
			`{"fundClusterId":1,"year":2025,"amount":"10","reference":"GAA 2025"}`)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "permission", errorKind(t, w))
	})
}

func TestHandler_Allotments(t *testing.T) {
	t.Run("should map exceeded appropriation to unprocessable entity", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		handler := NewHandler(service)
		appropriation, objectId := givenAppropriation(t, service, "1000")
		body := `{"appropriationId":` + strconv.Itoa(appropriation.Id) + `,"objectOfExpenditureId":` + strconv.Itoa(objectId) +
			`,"amount":"1000.01","class":"MOOE"}`

		// when
		w := serve(budgetOfficerCtx, handler.CreateAllotment, http.MethodPost, "/api/ledger/allotments", nil, body)

		// then
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var errBody rest.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&errBody))
		assert.Equal(t, "budget_exceeded", errBody.Kind)
		assert.Equal(t, "0.01", errBody.Details["shortfall"])
	})

	t.Run("should report balances of allotment", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		handler := NewHandler(service)
		allotment := givenAllotment(t, service, "500")
		id := strconv.Itoa(allotment.Id)

		// when
		w := serve(budgetOfficerCtx, handler.GetBudgetAvailability, http.MethodGet, "/api/ledger/allotments/"+id+"/availability",
			map[string]string{"allotmentId": id}, "")

		// then
		require.Equal(t, http.StatusOK, w.Code)
		var dto AvailabilityDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&dto))
		assert.Equal(t, "500.00", dto.UnobligatedBalance.StringFixed(2))
		assert.Equal(t, "500.00", dto.AvailableBalance.StringFixed(2))
	})

	t.Run("should reject invalid allotment id", func(t *testing.T) {
		service, _ := setupService(t)
		handler := NewHandler(service)

		w := serve(budgetOfficerCtx, handler.GetBudgetAvailability, http.MethodGet, "/api/ledger/allotments/abc/availability",
			map[string]string{"allotmentId": "abc"}, "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_Obligations(t *testing.T) {
	t.Run("should approve obligation with ORS number", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		handler := NewHandler(service)
		allotment := givenAllotment(t, service, "500")
		o, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("200")})
		require.NoError(t, err)
		id := strconv.Itoa(o.Id)

		// when
		w := serve(budgetOfficerCtx, handler.ApproveObligation, http.MethodPost, "/api/ledger/obligations/"+id+"/approve",
			map[string]string{"obligationId": id}, "")

		// then
		require.Equal(t, http.StatusOK, w.Code)
		var dto ObligationDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&dto))
		assert.Equal(t, "approved", dto.Status)
		require.NotNil(t, dto.OrsNumber)
		assert.True(t, strings.HasPrefix(*dto.OrsNumber, "ORS-2025-"))
	})

	t.Run("should require remarks to reject", func(t *testing.T) {
		// given
		service, _ := setupService(t)
		handler := NewHandler(service)
		allotment := givenAllotment(t, service, "500")
		o, err := service.CreateObligation(staffCtx, Obligation{AllotmentId: allotment.Id, Payee: "Supplier A", Amount: money("200")})
		require.NoError(t, err)
		id := strconv.Itoa(o.Id)

		// when
		w := serve(budgetOfficerCtx, handler.RejectObligation, http.MethodPost, "/api/ledger/obligations/"+id+"/reject",
			map[string]string{"obligationId": id}, `{"remarks":""}`)

		// then
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should map unknown obligation to not found", func(t *testing.T) {
		service, _ := setupService(t)
		handler := NewHandler(service)

		w := serve(budgetOfficerCtx, handler.GetObligation, http.MethodGet, "/api/ledger/obligations/77",
			map[string]string{"obligationId": "77"}, "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
