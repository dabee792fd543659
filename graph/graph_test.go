package graph

import (
	"bytes"
	"context"
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
	"github.com/mmdatafocus/erp_core/workflow"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type graphClient struct {
	t      *testing.T
	router *gin.Engine
	token  string
	biz    string
	ctx    context.Context
}

func newGraphClient(t *testing.T) *graphClient {
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

	biz := "biz-" + uuid.NewString()[:8]
	ctx := utils.SetUserInContext(utils.SetBusinessIdInContext(context.Background(), biz), 1, "Tester")
	require.NoError(t, db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := workflow.BootstrapChartOfAccounts(tx, biz)
		return err
	}))

	h := NewServer(&Resolver{})
	r := gin.New()
	r.POST("/query", middlewares.AuthMiddleware(), middlewares.LoaderMiddleware(), func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	})

	token, err := utils.JwtGenerate(1, "Tester", biz, "admin")
	require.NoError(t, err)
	return &graphClient{t: t, router: r, token: token, biz: biz, ctx: ctx}
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message    string                 `json:"message"`
		Path       []interface{}          `json:"path"`
		Extensions map[string]interface{} `json:"extensions"`
	} `json:"errors"`
}

func (g *graphClient) do(query string, variables map[string]interface{}) gqlResponse {
	g.t.Helper()
	var buf bytes.Buffer
	require.NoError(g.t, json.NewEncoder(&buf).Encode(map[string]interface{}{"query": query, "variables": variables}))
	req := httptest.NewRequest(http.MethodPost, "/query", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	// Documents that fail schema validation are answered with 422.
	require.Contains(g.t, []int{http.StatusOK, http.StatusUnprocessableEntity}, rec.Code, rec.Body.String())

	var out gqlResponse
	require.NoError(g.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// field decodes one top-level field of a successful response.
func (g *graphClient) field(res gqlResponse, name string, dst interface{}) {
	g.t.Helper()
	require.Empty(g.t, res.Errors)
	dec := json.NewDecoder(bytes.NewReader(res.Data[name]))
	dec.UseNumber()
	require.NoError(g.t, dec.Decode(dst))
}

const createAndConfirm = `
mutation($input: NewDocument!) {
  created: createDocument(input: $input) { id status }
}`

func (g *graphClient) confirmedDocument(input map[string]interface{}) int {
	g.t.Helper()
	var created struct {
		Id     int
		Status string
	}
	g.field(g.do(createAndConfirm, map[string]interface{}{"input": input}), "created", &created)
	require.Equal(g.t, string(models.DocumentStatusDraft), created.Status)

	var confirmed struct {
		Status string
	}
	res := g.do(`mutation($id: Int!) { confirmDocument(id: $id) { status } }`, map[string]interface{}{"id": created.Id})
	g.field(res, "confirmDocument", &confirmed)
	require.Equal(g.t, string(models.DocumentStatusConfirmed), confirmed.Status)
	return created.Id
}

func purchaseInput(qty string) map[string]interface{} {
	return map[string]interface{}{
		"documentType": "purchase",
		"documentDate": "2024-03-01",
		"warehouseId":  1,
		"partyName":    "Supplier",
		"lines": []map[string]interface{}{
			{"productId": 7, "quantity": qty, "unitPrice": "4"},
			{"productId": 9, "quantity": qty, "unitPrice": "1,000"},
		},
	}
}

func TestGraph_DocumentLifecycleThroughMutations(t *testing.T) {
	g := newGraphClient(t)
	g.confirmedDocument(purchaseInput("10"))

	saleId := g.confirmedDocument(map[string]interface{}{
		"documentType": "sale",
		"documentDate": "2024-03-02T10:00:00Z",
		"warehouseId":  1,
		"lines":        []map[string]interface{}{{"productId": 7, "quantity": "3", "unitPrice": "10"}},
	})

	var payment struct {
		Amount  json.Number
		Account struct{ Code string }
	}
	res := g.do(`mutation($id: Int!, $input: NewPayment!) {
	  recordPayment(documentId: $id, input: $input) { amount account { code } }
	}`, map[string]interface{}{"id": saleId, "input": map[string]interface{}{"amount": "12"}})
	g.field(res, "recordPayment", &payment)
	require.Equal(t, "12", payment.Amount.String())
	require.Equal(t, models.AccountCodeCash, payment.Account.Code)

	var sale struct {
		Number        string
		Total         json.Number
		PaymentStatus string
		Lines         []struct {
			ProductId int
			Quantity  json.Number
			Stock     struct{ Quantity json.Number }
		}
		Payments []struct {
			Amount  json.Number
			Account struct{ Code string }
		}
	}
	res = g.do(`query($id: Int!) {
	  document(id: $id) {
	    number total paymentStatus
	    lines { productId quantity stock { quantity } }
	    payments { amount account { code } }
	  }
	}`, map[string]interface{}{"id": saleId})
	g.field(res, "document", &sale)
	require.Equal(t, "SALE2024-0001", sale.Number)
	require.Equal(t, "30", sale.Total.String())
	require.Equal(t, string(models.PaymentStatusPartiallyPaid), sale.PaymentStatus)
	require.Len(t, sale.Lines, 1)
	require.Equal(t, 7, sale.Lines[0].ProductId)
	require.Equal(t, "7", sale.Lines[0].Stock.Quantity.String())
	require.Len(t, sale.Payments, 1)
	require.Equal(t, models.AccountCodeCash, sale.Payments[0].Account.Code)

	var cancelled struct{ Status string }
	res = g.do(`mutation($id: Int!) { cancelDocument(id: $id, reason: "customer left") { status } }`, map[string]interface{}{"id": saleId})
	g.field(res, "cancelDocument", &cancelled)
	require.Equal(t, string(models.DocumentStatusCancelled), cancelled.Status)

	var stock struct{ Quantity json.Number }
	g.field(g.do(`{ stock(productId: 7, warehouseId: 1) { quantity } }`, nil), "stock", &stock)
	require.Equal(t, "10", stock.Quantity.String())
}

func TestGraph_ListsResolveRelatedRows(t *testing.T) {
	g := newGraphClient(t)
	purchaseId := g.confirmedDocument(purchaseInput("5"))

	var movements struct {
		Edges []struct {
			Node struct {
				ProductId     int
				QtyDelta      json.Number
				ReferenceType string
				ReferenceId   int
				Stock         struct{ Quantity json.Number }
			}
		}
		PageInfo struct{ HasNextPage bool }
	}
	g.field(g.do(`{ stockMovements(warehouseId: 1) {
	  edges { node { productId qtyDelta referenceType referenceId stock { quantity } } }
	  pageInfo { hasNextPage }
	} }`, nil), "stockMovements", &movements)
	require.Len(t, movements.Edges, 2)
	require.False(t, movements.PageInfo.HasNextPage)
	for _, e := range movements.Edges {
		require.Equal(t, string(models.DocumentTypePurchase), e.Node.ReferenceType)
		require.Equal(t, purchaseId, e.Node.ReferenceId)
		require.Equal(t, "5", e.Node.QtyDelta.String())
		require.Equal(t, "5", e.Node.Stock.Quantity.String())
	}

	var transactions struct {
		Edges []struct {
			Node struct {
				ReferenceType string
				Lines         []struct {
					AccountId int
					Account   struct {
						Id   int
						Code string
					}
				}
			}
		}
	}
	g.field(g.do(`{ transactions(referenceType: "purchase", limit: 5) {
	  edges { node { referenceType lines { accountId account { id code } } } }
	} }`, nil), "transactions", &transactions)
	require.Len(t, transactions.Edges, 1)
	lines := transactions.Edges[0].Node.Lines
	require.GreaterOrEqual(t, len(lines), 2)
	for _, l := range lines {
		require.Equal(t, l.AccountId, l.Account.Id)
		require.NotEmpty(t, l.Account.Code)
	}

	var documents struct {
		Edges []struct {
			Node struct {
				Id    int
				Lines []struct{ ProductId int }
			}
			Cursor string
		}
	}
	g.field(g.do(`{ documents(documentType: "purchase") { edges { cursor node { id lines { productId } } } } }`, nil), "documents", &documents)
	require.Len(t, documents.Edges, 1)
	require.Equal(t, purchaseId, documents.Edges[0].Node.Id)
	require.Len(t, documents.Edges[0].Node.Lines, 2)
	require.NotEmpty(t, documents.Edges[0].Cursor)
}

func TestGraph_CashEntrySettlementAndAccounts(t *testing.T) {
	g := newGraphClient(t)

	var expenses []struct {
		Id   int
		Code string
	}
	g.field(g.do(`{ accounts(classification: "expense") { id code } }`, nil), "accounts", &expenses)
	require.NotEmpty(t, expenses)

	var income []struct{ Id int }
	g.field(g.do(`{ accounts(classification: "income") { id } }`, nil), "accounts", &income)
	require.NotEmpty(t, income)

	var entry struct {
		Id      int
		Number  string
		Status  string
		Account struct{ Id int }
	}
	res := g.do(`mutation($input: NewCashEntry!) { createCashEntry(input: $input) { id number status account { id } } }`,
		map[string]interface{}{"input": map[string]interface{}{
			"kind": "income", "title": "Consulting", "accountId": income[0].Id, "amount": "80", "entryDate": "2024-03-05",
		}})
	g.field(res, "createCashEntry", &entry)
	require.Equal(t, "INC2024-0001", entry.Number)
	require.Equal(t, string(models.CashEntryStatusPending), entry.Status)
	require.Equal(t, income[0].Id, entry.Account.Id)

	var settled struct {
		Status            string
		TransactionId     *int
		SettlementAccount struct{ Code string }
	}
	res = g.do(`mutation($id: Int!) { settleCashEntry(id: $id) { status transactionId settlementAccount { code } } }`,
		map[string]interface{}{"id": entry.Id})
	g.field(res, "settleCashEntry", &settled)
	require.Equal(t, string(models.CashEntryStatusReceived), settled.Status)
	require.NotNil(t, settled.TransactionId)
	require.Equal(t, models.AccountCodeCash, settled.SettlementAccount.Code)

	var page struct {
		Edges []struct{ Node struct{ Status string } }
	}
	g.field(g.do(`{ cashEntries(kind: "income") { edges { node { status } } } }`, nil), "cashEntries", &page)
	require.Len(t, page.Edges, 1)
	require.Equal(t, string(models.CashEntryStatusReceived), page.Edges[0].Node.Status)
}

func TestGraph_ErrorsCarryTheirKind(t *testing.T) {
	g := newGraphClient(t)

	res := g.do(`mutation($input: NewDocument!) { createDocument(input: $input) { id } }`, map[string]interface{}{
		"input": map[string]interface{}{
			"documentType": "sale",
			"documentDate": "2024-03-01",
			"warehouseId":  1,
			"lines":        []map[string]interface{}{{"productId": 7, "quantity": "2", "unitPrice": "5"}},
		},
	})
	var draft struct{ Id int }
	g.field(res, "createDocument", &draft)

	res = g.do(`mutation($id: Int!) { confirmDocument(id: $id) { status } }`, map[string]interface{}{"id": draft.Id})
	require.Len(t, res.Errors, 1)
	require.Equal(t, string(models.ErrorKindValidation), res.Errors[0].Extensions["kind"])
	require.Equal(t, []interface{}{"confirmDocument"}, res.Errors[0].Path)
	require.Equal(t, "null", string(res.Data["confirmDocument"]))

	res = g.do(`{ document(id: 999999) { id } }`, nil)
	require.Len(t, res.Errors, 1)
	require.Equal(t, string(models.ErrorKindNotFound), res.Errors[0].Extensions["kind"])

	res = g.do(`{ document(id: 1) { noSuchField } }`, nil)
	require.NotEmpty(t, res.Errors)
	require.Equal(t, string(models.ErrorKindValidation), res.Errors[0].Extensions["kind"])
}
