package disbursement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/treasury/internal/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	ctx     context.Context
	method  string
	target  string
	vars    map[string]string
	body    string
	chunked bool
}

func serve(t *testing.T, h http.HandlerFunc, c call) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if c.body == "" {
		req = httptest.NewRequest(c.method, c.target, nil)
	} else {
		req = httptest.NewRequest(c.method, c.target, strings.NewReader(c.body))
		req.Header.Set("Content-Type", "application/json")
	}
	if c.chunked {
		req.ContentLength = -1
	}
	req = mux.SetURLVars(req.WithContext(c.ctx), c.vars)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) rest.ErrorResponse {
	t.Helper()
	var body rest.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestHandler_Vouchers(t *testing.T) {
	t.Run("should create voucher awaiting division approval", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		body := `{"fundClusterId":` + strconv.Itoa(f.fundClusterId) + `,"objectExpenditureId":` + strconv.Itoa(f.objectId) +
			`,"payee":"Juan Dela Cruz","amount":"1500.50","fiscalYear":2025}`

		// when
		w := serve(t, handler.CreateDV, call{ctx: clerk, method: http.MethodPost, target: "/api/dv", body: body})

		// then
		require.Equal(t, http.StatusCreated, w.Code)
		var dto VoucherDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&dto))
		assert.Equal(t, "DV-2025-0001", dto.DvNo)
		assert.Equal(t, "pending_division", dto.Status)
		assert.Equal(t, "1500.50", dto.Amount.StringFixed(2))
	})

	t.Run("should report malformed body as bad request", func(t *testing.T) {
		f := setupService(t)
		handler := NewHandler(f.service)

		w := serve(t, handler.CreateDV, call{ctx: clerk, method: http.MethodPost, target: "/api/dv", body: `{"payee":`})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation", decodeError(t, w).Kind)
	})

	t.Run("should map missing voucher to not found", func(t *testing.T) {
		f := setupService(t)
		handler := NewHandler(f.service)

		w := serve(t, handler.GetDV, call{ctx: clerk, method: http.MethodGet, target: "/api/dv/404", vars: map[string]string{"dvId": "404"}})

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeError(t, w).Kind)
	})

	t.Run("should map update of submitted voucher to conflict", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenDV(t, "100")
		id := strconv.Itoa(v.Id)

		// when
		w := serve(t, handler.UpdateDV, call{ctx: clerk, method: http.MethodPut, target: "/api/dv/" + id,
			vars: map[string]string{"dvId": id}, body: `{"payee":"Maria Clara"}`})

		// then
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "state_conflict", decodeError(t, w).Kind)
	})

	t.Run("should cancel without a body", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenDV(t, "100")
		id := strconv.Itoa(v.Id)

		// when
		w := serve(t, handler.CancelDV, call{ctx: clerk, method: http.MethodPost, target: "/api/dv/" + id + "/cancel",
			vars: map[string]string{"dvId": id}})

		// then
		require.Equal(t, http.StatusOK, w.Code)
		var dto VoucherDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&dto))
		assert.Equal(t, "cancelled", dto.Status)
		assert.Nil(t, dto.CancelReason)
	})

	t.Run("should keep reason sent without content length", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenDV(t, "100")
		id := strconv.Itoa(v.Id)

		// when
		w := serve(t, handler.CancelDV, call{ctx: clerk, method: http.MethodPost, target: "/api/dv/" + id + "/cancel",
			vars: map[string]string{"dvId": id}, body: `{"reason":"duplicate"}`, chunked: true})

		// then
		require.Equal(t, http.StatusOK, w.Code)
		stored, err := f.service.GetDV(clerk, v.Id)
		require.NoError(t, err)
		require.NotNil(t, stored.CancelReason)
		assert.Equal(t, "duplicate", *stored.CancelReason)
	})
}

func TestHandler_Payments(t *testing.T) {
	t.Run("should reject amount finer than a centavo", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenApprovedDV(t, "100")
		id := strconv.Itoa(v.Id)

		// when
		w := serve(t, handler.CreatePayment, call{ctx: cashierCtx, method: http.MethodPost, target: "/api/dv/" + id + "/payments",
			vars: map[string]string{"dvId": id}, body: `{"paymentType":"cash","amount":"100.004"}`})

		// then
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation", decodeError(t, w).Kind)
	})

	t.Run("should forbid payment by non cashier", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenApprovedDV(t, "100")
		id := strconv.Itoa(v.Id)

		// when
		w := serve(t, handler.CreatePayment, call{ctx: clerk, method: http.MethodPost, target: "/api/dv/" + id + "/payments",
			vars: map[string]string{"dvId": id}, body: `{"paymentType":"cash","amount":"100"}`})

		// then
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "permission", decodeError(t, w).Kind)
	})

	t.Run("should map second live payment to conflict", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenApprovedDV(t, "100")
		_, err := f.service.CreatePayment(cashierCtx, v.Id, PaymentCash, money("100"))
		require.NoError(t, err)
		id := strconv.Itoa(v.Id)

		// when
		w := serve(t, handler.CreatePayment, call{ctx: cashierCtx, method: http.MethodPost, target: "/api/dv/" + id + "/payments",
			vars: map[string]string{"dvId": id}, body: `{"paymentType":"cash","amount":"100"}`})

		// then
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "state_conflict", decodeError(t, w).Kind)
	})

	t.Run("should use clear date sent without content length", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenApprovedDV(t, "100")
		p, err := f.service.CreatePayment(cashierCtx, v.Id, PaymentCash, money("100"))
		require.NoError(t, err)
		_, err = f.service.IssuePayment(cashierCtx, p.Id, "Juan Dela Cruz", fixedNow)
		require.NoError(t, err)
		id := strconv.Itoa(p.Id)

		// when
		w := serve(t, handler.ClearPayment, call{ctx: cashierCtx, method: http.MethodPost, target: "/api/payments/" + id + "/clear",
			vars: map[string]string{"paymentId": id}, body: `{"clearDate":"2025-06-20T00:00:00Z"}`, chunked: true})

		// then
		require.Equal(t, http.StatusOK, w.Code)
		var dto PaymentDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&dto))
		assert.Equal(t, "cleared", dto.Status)
		require.NotNil(t, dto.ClearDate)
		assert.Equal(t, time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC), dto.ClearDate.UTC())
	})

	t.Run("should require a reason to cancel", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenApprovedDV(t, "100")
		p, err := f.service.CreatePayment(cashierCtx, v.Id, PaymentCash, money("100"))
		require.NoError(t, err)
		id := strconv.Itoa(p.Id)

		// when
		w := serve(t, handler.CancelPayment, call{ctx: cashierCtx, method: http.MethodPost, target: "/api/payments/" + id + "/cancel",
			vars: map[string]string{"paymentId": id}, body: `{"reason":" "}`})

		// then
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should map stale of pending payment to conflict", func(t *testing.T) {
		// given
		f := setupService(t)
		handler := NewHandler(f.service)
		v := f.givenApprovedDV(t, "100")
		p, err := f.service.CreatePayment(cashierCtx, v.Id, PaymentCash, money("100"))
		require.NoError(t, err)
		id := strconv.Itoa(p.Id)

		// when
		w := serve(t, handler.MarkStale, call{ctx: cashierCtx, method: http.MethodPost, target: "/api/payments/" + id + "/stale",
			vars: map[string]string{"paymentId": id}})

		// then
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("should map unknown payment to not found", func(t *testing.T) {
		f := setupService(t)
		handler := NewHandler(f.service)

		w := serve(t, handler.GetPayment, call{ctx: cashierCtx, method: http.MethodGet, target: "/api/payments/9",
			vars: map[string]string{"paymentId": "9"}})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
