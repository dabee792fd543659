package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/mmdatafocus/erp_core/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type openingBalanceRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
}

type adjustBalanceRequest struct {
	Amount decimal.Decimal  `json:"amount"`
	Op     models.BalanceOp `json:"op" binding:"required,oneof=add subtract"`
}

type reconcileRequest struct {
	ExternalBalance decimal.Decimal `json:"external_balance"`
	Date            time.Time       `json:"date"`
}

func createAccount(c *gin.Context) {
	var input models.NewAccount
	if !bind(c, &input) {
		return
	}
	idempotent(c, "CreateAccount", func() (*result, error) {
		var account *models.Account
		err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
			account, err = models.CreateAccount(tx, biz, userId(c), &input)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusCreated, body: account, ref: ref("account", account.ID)}, nil
	})
}

func bootstrapAccounts(c *gin.Context) {
	var chart models.ChartOfAccounts
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		chart, err = workflow.BootstrapChartOfAccounts(tx, biz)
		return err
	})
	if err != nil {
		respondError(c, "BootstrapAccounts", err)
		return
	}
	c.JSON(http.StatusOK, chart)
}

func getAccount(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var account *models.Account
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		account, err = utils.FetchModelTx[models.Account](tx, biz, id)
		return err
	})
	if err != nil {
		respondError(c, "GetAccount", err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func deactivateAccount(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	err := inTx(c, func(tx *gorm.DB, biz string) error {
		return models.DeactivateAccount(tx, biz, id)
	})
	if err != nil {
		respondError(c, "DeactivateAccount", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func setOpeningBalance(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input openingBalanceRequest
	if !bind(c, &input) {
		return
	}
	idempotent(c, "SetOpeningBalance", func() (*result, error) {
		var trx *models.Transaction
		err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
			trx, err = workflow.SetOpeningBalance(tx, biz, id, input.Amount, input.Date)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusCreated, body: trx, ref: ref("transaction", trx.ID)}, nil
	})
}

func adjustAccountBalance(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input adjustBalanceRequest
	if !bind(c, &input) {
		return
	}
	idempotent(c, "AdjustAccountBalance", func() (*result, error) {
		var trx *models.Transaction
		err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
			trx, err = workflow.UpdateAccountBalance(tx, biz, id, input.Amount, input.Op)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusCreated, body: trx, ref: ref("transaction", trx.ID)}, nil
	})
}

func reconcileAccount(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input reconcileRequest
	if !bind(c, &input) {
		return
	}
	var res *models.ReconciliationResult
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		res, err = workflow.Reconcile(tx, biz, id, input.ExternalBalance, input.Date)
		return err
	})
	if err != nil {
		respondError(c, "ReconcileAccount", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
