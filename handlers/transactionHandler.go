package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/workflow"
	"gorm.io/gorm"
)

type reverseRequest struct {
	Reason string `json:"reason"`
}

func postTransaction(c *gin.Context) {
	var input models.NewTransaction
	if !bind(c, &input) {
		return
	}
	idempotent(c, "PostTransaction", func() (*result, error) {
		var trx *models.Transaction
		err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
			input.BusinessId = biz
			input.CreatedBy = userId(c)
			trx, err = workflow.PostTransaction(tx, input)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusCreated, body: trx, ref: ref("transaction", trx.ID)}, nil
	})
}

func reverseTransaction(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input reverseRequest
	if c.Request.ContentLength > 0 && !bind(c, &input) {
		return
	}
	if input.Reason == "" {
		input.Reason = workflow.ReversalReasonManual
	}
	idempotent(c, "ReverseTransaction", func() (*result, error) {
		var reversal *models.Transaction
		err := inTx(c, func(tx *gorm.DB, biz string) error {
			reversalId, err := workflow.ReverseTransaction(tx, biz, id, input.Reason)
			if err != nil {
				return err
			}
			reversal, err = models.GetTransaction(tx, biz, reversalId)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusOK, body: reversal, ref: ref("transaction", reversal.ID)}, nil
	})
}

func getTransaction(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var trx *models.Transaction
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		trx, err = models.GetTransaction(tx, biz, id)
		return err
	})
	if err != nil {
		respondError(c, "GetTransaction", err)
		return
	}
	c.JSON(http.StatusOK, trx)
}

func listTransactions(c *gin.Context) {
	var page pageQuery
	var filter models.TransactionFilter
	if !bindQuery(c, &page) || !bindQuery(c, &filter) {
		return
	}
	var conn *models.Connection[models.Transaction]
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		conn, err = models.ListTransactions(tx, biz, filter, page.Limit, page.After)
		return err
	})
	if err != nil {
		respondError(c, "ListTransactions", err)
		return
	}
	c.JSON(http.StatusOK, conn)
}
