package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type nextNumberRequest struct {
	DocumentType models.DocumentType `json:"document_type" binding:"required"`
	Year         int                 `json:"year"`
}

func applyMovement(c *gin.Context) {
	var input models.NewStockMovement
	if !bind(c, &input) {
		return
	}
	idempotent(c, "ApplyMovement", func() (*result, error) {
		var movement *models.StockMovement
		err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
			input.BusinessId = biz
			input.CreatedBy = userId(c)
			movement, err = workflow.ApplyMovement(tx, input)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusCreated, body: movement, ref: ref("movement", movement.ID)}, nil
	})
}

func reverseMovement(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input reverseRequest
	if c.Request.ContentLength > 0 && !bind(c, &input) {
		return
	}
	if input.Reason == "" {
		input.Reason = workflow.ReversalReasonStockCorrection
	}
	idempotent(c, "ReverseMovement", func() (*result, error) {
		var reversal *models.StockMovement
		err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
			reversal, err = workflow.ReverseMovement(tx, biz, id, input.Reason)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusOK, body: reversal, ref: ref("movement", reversal.ID)}, nil
	})
}

func listMovements(c *gin.Context) {
	var page pageQuery
	var filter models.MovementFilter
	if !bindQuery(c, &page) || !bindQuery(c, &filter) {
		return
	}
	var conn *models.Connection[models.StockMovement]
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		conn, err = models.ListStockMovements(tx, biz, filter, page.Limit, page.After)
		return err
	})
	if err != nil {
		respondError(c, "ListMovements", err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func getStock(c *gin.Context) {
	productId, ok := paramId(c, "product")
	if !ok {
		return
	}
	warehouseId, ok := paramId(c, "warehouse")
	if !ok {
		return
	}
	var qty decimal.Decimal
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		qty, err = models.GetStockQuantity(tx, biz, productId, warehouseId)
		return err
	})
	if err != nil {
		respondError(c, "GetStock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id":   productId,
		"warehouse_id": warehouseId,
		"quantity":     qty,
	})
}

func nextNumber(c *gin.Context) {
	var input nextNumberRequest
	if !bind(c, &input) {
		return
	}
	if _, ok := models.DocumentNumberPrefix(input.DocumentType); !ok {
		respondError(c, "NextNumber", &models.ValidationError{Field: "document_type", Message: "unknown document type"})
		return
	}
	if input.Year == 0 {
		input.Year = time.Now().UTC().Year()
	}
	var number string
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		number, err = workflow.NextNumber(tx, biz, input.DocumentType, input.Year)
		return err
	})
	if err != nil {
		respondError(c, "NextNumber", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"number": number})
}
