package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/workflow"
	"gorm.io/gorm"
)

func createCashEntry(c *gin.Context) {
	var input models.NewCashEntry
	if !bind(c, &input) {
		return
	}
	idempotent(c, "CreateCashEntry", func() (*result, error) {
		entry, err := workflow.CreateCashEntry(c.Request.Context(), input)
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusCreated, body: entry, ref: ref("cash_entry", entry.ID)}, nil
	})
}

func listCashEntries(c *gin.Context) {
	var page pageQuery
	var filter models.CashEntryFilter
	if !bindQuery(c, &page) || !bindQuery(c, &filter) {
		return
	}
	var conn *models.Connection[models.CashEntry]
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		conn, err = models.ListCashEntries(tx, biz, filter, page.Limit, page.After)
		return err
	})
	if err != nil {
		respondError(c, "ListCashEntries", err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func getCashEntry(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var entry *models.CashEntry
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		entry, err = models.GetCashEntry(tx, biz, id)
		return err
	})
	if err != nil {
		respondError(c, "GetCashEntry", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func settleCashEntry(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.CashEntrySettlement
	if c.Request.ContentLength > 0 && !bind(c, &input) {
		return
	}
	idempotent(c, "SettleCashEntry", func() (*result, error) {
		entry, err := workflow.SettleCashEntry(c.Request.Context(), id, input)
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusOK, body: entry, ref: ref("cash_entry", entry.ID)}, nil
	})
}

func cancelCashEntry(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input cancelRequest
	if c.Request.ContentLength > 0 && !bind(c, &input) {
		return
	}
	idempotent(c, "CancelCashEntry", func() (*result, error) {
		entry, err := workflow.CancelCashEntry(c.Request.Context(), id, input.Reason)
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusOK, body: entry, ref: ref("cash_entry", entry.ID)}, nil
	})
}
