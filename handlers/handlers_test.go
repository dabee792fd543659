package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/middlewares"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	token  string
	biz    string
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("DB_MAX_OPEN_CONNS", "1")
	t.Setenv("DB_MAX_IDLE_CONNS", "1")

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := config.OpenDatabase(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	require.NoError(t, models.MigrateTable(db))
	prev := config.GetDB()
	config.UseDB(db)
	t.Cleanup(func() {
		config.UseDB(prev)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	RegisterRoutes(r.Group("/", middlewares.AuthMiddleware()))

	biz := "biz-" + uuid.NewString()[:8]
	token, err := utils.JwtGenerate(1, "Tester", biz, "admin")
	require.NoError(t, err)
	api := &apiClient{t: t, router: r, token: token, biz: biz}
	res := api.do(http.MethodPost, "/accounts/bootstrap", nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	return api
}

func (a *apiClient) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *apiClient) chart() map[string]int {
	a.t.Helper()
	res := a.do(http.MethodPost, "/accounts/bootstrap", nil, nil)
	require.Equal(a.t, http.StatusOK, res.Code)
	var chart map[string]int
	require.NoError(a.t, json.Unmarshal(res.Body.Bytes(), &chart))
	return chart
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRoutes_RequireToken(t *testing.T) {
	api := newAPI(t)
	api.token = "not-a-token"
	res := api.do(http.MethodGet, "/accounts/1", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestPostTransaction_StatusMapping(t *testing.T) {
	api := newAPI(t)
	chart := api.chart()

	unbalanced := map[string]any{
		"type": "journal",
		"lines": []map[string]any{
			{"account_id": chart[models.AccountCodeCash], "debit": "100"},
			{"account_id": chart[models.AccountCodeSalesRevenue], "credit": "50"},
		},
	}
	res := api.do(http.MethodPost, "/transactions", unbalanced, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code, res.Body.String())
	require.Equal(t, "validation", decode(t, res)["kind"])

	balanced := map[string]any{
		"type": "income",
		"lines": []map[string]any{
			{"account_id": chart[models.AccountCodeCash], "debit": "100"},
			{"account_id": chart[models.AccountCodeSalesRevenue], "credit": "100"},
		},
	}
	res = api.do(http.MethodPost, "/transactions", balanced, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	trxId := int(decode(t, res)["id"].(float64))

	res = api.do(http.MethodGet, fmt.Sprintf("/transactions/%d", trxId), nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = api.do(http.MethodGet, "/transactions/424242", nil, nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	res = api.do(http.MethodGet, "/transactions/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = api.do(http.MethodPost, fmt.Sprintf("/transactions/%d/reverse", trxId), nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = api.do(http.MethodGet, fmt.Sprintf("/accounts/%d", chart[models.AccountCodeCash]), nil, nil)
	require.Equal(t, "0", decode(t, res)["balance"])
}

func TestPostTransaction_MalformedBody(t *testing.T) {
	api := newAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+api.token)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNextNumber(t *testing.T) {
	api := newAPI(t)
	res := api.do(http.MethodPost, "/numbers/next", map[string]any{"document_type": "sale", "year": 2024}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "SALE2024-0001", decode(t, res)["number"])
	res = api.do(http.MethodPost, "/numbers/next", map[string]any{"document_type": "sale", "year": 2024}, nil)
	require.Equal(t, "SALE2024-0002", decode(t, res)["number"])

	res = api.do(http.MethodPost, "/numbers/next", map[string]any{"document_type": "invoice"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
}

func TestStockEndpoints(t *testing.T) {
	api := newAPI(t)
	res := api.do(http.MethodPost, "/stock/movements", map[string]any{
		"product_id": 7, "warehouse_id": 1, "kind": "in", "quantity": "12.5",
	}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	movementId := int(decode(t, res)["id"].(float64))

	res = api.do(http.MethodPost, "/stock/movements", map[string]any{
		"product_id": 7, "warehouse_id": 1, "kind": "out", "quantity": "20",
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = api.do(http.MethodGet, "/stock/7/1", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "12.5", decode(t, res)["quantity"])

	res = api.do(http.MethodPost, fmt.Sprintf("/stock/movements/%d/reverse", movementId), nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = api.do(http.MethodGet, "/stock/7/1", nil, nil)
	require.Equal(t, "0", decode(t, res)["quantity"])
}

func TestDocumentLifecycle_WithIdempotencyKey(t *testing.T) {
	api := newAPI(t)
	cash := api.chart()[models.AccountCodeCash]
	res := api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/opening-balance", cash), map[string]any{"amount": "1000"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	body := map[string]any{
		"document_type":  "purchase",
		"document_date":  "2024-04-01T00:00:00Z",
		"warehouse_id":   1,
		"payment_method": "credit",
		"lines":          []map[string]any{{"product_id": 3, "quantity": "4", "unit_price": "25"}},
	}
	key := map[string]string{idempotencyHeader: "create-1"}

	res = api.do(http.MethodPost, "/documents", body, key)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	docId := int(decode(t, res)["id"].(float64))

	// the same key answers with the stored reference instead of a second draft
	res = api.do(http.MethodPost, "/documents", body, key)
	require.Equal(t, http.StatusOK, res.Code)
	replay := decode(t, res)
	require.Equal(t, true, replay["idempotent_replay"])
	require.Equal(t, fmt.Sprintf("document:%d", docId), replay["result_ref"])

	res = api.do(http.MethodPost, fmt.Sprintf("/documents/%d/confirm", docId), nil, map[string]string{idempotencyHeader: "confirm-1"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	confirmed := decode(t, res)
	require.Equal(t, "confirmed", confirmed["status"])
	require.Equal(t, "PUR2024-0001", confirmed["number"])

	res = api.do(http.MethodPost, fmt.Sprintf("/documents/%d/confirm", docId), nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = api.do(http.MethodPost, fmt.Sprintf("/documents/%d/payments", docId), map[string]any{"amount": "100"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = api.do(http.MethodGet, fmt.Sprintf("/documents/%d", docId), nil, nil)
	require.Equal(t, "paid", decode(t, res)["payment_status"])

	res = api.do(http.MethodPost, fmt.Sprintf("/documents/%d/cancel", docId), map[string]any{"reason": "wrong supplier"}, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "cancelled", decode(t, res)["status"])

	res = api.do(http.MethodDelete, fmt.Sprintf("/documents/%d", docId), nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = api.do(http.MethodGet, fmt.Sprintf("/documents/%d", docId), nil, nil)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestAccountEndpoints(t *testing.T) {
	api := newAPI(t)
	chart := api.chart()
	bank := chart[models.AccountCodeBank]

	res := api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/opening-balance", bank), map[string]any{"amount": "500"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/adjust", bank), map[string]any{"amount": "20", "op": "subtract"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/adjust", bank), map[string]any{"amount": "20", "op": "double"}, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/reconcile", bank), map[string]any{"external_balance": "480"}, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, true, decode(t, res)["ok"])
	res = api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/reconcile", chart[models.AccountCodeCash]), map[string]any{"external_balance": "1"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = api.do(http.MethodPost, "/accounts", map[string]any{
		"code": "WAL01", "name": "Mobile wallet", "kind": "wallet", "classification": "asset",
	}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	walletId := int(decode(t, res)["id"].(float64))
	res = api.do(http.MethodPost, "/accounts", map[string]any{
		"code": "WAL01", "name": "Duplicate", "kind": "wallet", "classification": "asset",
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/deactivate", walletId), nil, nil)
	require.Equal(t, http.StatusNoContent, res.Code)
	res = api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/deactivate", bank), nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = api.do(http.MethodPost, "/outbox/requeue", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, float64(0), decode(t, res)["requeued"])
}

func TestListEndpoints(t *testing.T) {
	api := newAPI(t)
	for i := 0; i < 3; i++ {
		res := api.do(http.MethodPost, "/stock/movements", map[string]any{
			"product_id": 9, "warehouse_id": 2, "kind": "in", "quantity": "1",
		}, nil)
		require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	}

	res := api.do(http.MethodGet, "/stock/movements?product_id=9&limit=2", nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	page := decode(t, res)
	require.Len(t, page["edges"], 2)
	info := page["pageInfo"].(map[string]any)
	require.Equal(t, true, info["hasNextPage"])

	res = api.do(http.MethodGet, "/stock/movements?product_id=9&limit=2&after="+info["endCursor"].(string), nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Len(t, decode(t, res)["edges"], 1)

	res = api.do(http.MethodGet, "/transactions?limit=500", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	res = api.do(http.MethodGet, "/transactions", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, decode(t, res)["edges"], 0)
}

func TestCashEntryEndpoints(t *testing.T) {
	api := newAPI(t)
	chart := api.chart()
	res := api.do(http.MethodPost, fmt.Sprintf("/accounts/%d/opening-balance", chart[models.AccountCodeCash]), map[string]any{"amount": "100"}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	res = api.do(http.MethodPost, "/cash-entries", map[string]any{
		"kind": "expense", "title": "Stock purchase", "account_id": chart[models.AccountCodePurchasesExpense], "amount": "60",
	}, nil)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	entryId := int(decode(t, res)["id"].(float64))

	res = api.do(http.MethodPost, fmt.Sprintf("/cash-entries/%d/settle", entryId), nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "paid", decode(t, res)["status"])
	res = api.do(http.MethodPost, fmt.Sprintf("/cash-entries/%d/settle", entryId), nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = api.do(http.MethodGet, "/cash-entries?kind=expense", nil, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Len(t, decode(t, res)["edges"], 1)

	res = api.do(http.MethodPost, fmt.Sprintf("/cash-entries/%d/cancel", entryId), map[string]any{"reason": "refunded"}, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = api.do(http.MethodGet, fmt.Sprintf("/accounts/%d", chart[models.AccountCodeCash]), nil, nil)
	require.Equal(t, "100", decode(t, res)["balance"])
	res = api.do(http.MethodGet, fmt.Sprintf("/cash-entries/%d", entryId), nil, nil)
	require.Equal(t, "cancelled", decode(t, res)["status"])
}
