package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/workflow"
	"gorm.io/gorm"
)

type cancelRequest struct {
	Reason string `json:"reason"`
}

func createDocument(c *gin.Context) {
	var input models.NewDocument
	if !bind(c, &input) {
		return
	}
	idempotent(c, "CreateDocument", func() (*result, error) {
		doc, err := workflow.CreateDocument(c.Request.Context(), &input)
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusCreated, body: doc, ref: ref("document", doc.ID)}, nil
	})
}

func listDocuments(c *gin.Context) {
	var page pageQuery
	var filter models.DocumentFilter
	if !bindQuery(c, &page) || !bindQuery(c, &filter) {
		return
	}
	var conn *models.Connection[models.Document]
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		conn, err = models.ListDocuments(tx, biz, filter, page.Limit, page.After)
		return err
	})
	if err != nil {
		respondError(c, "ListDocuments", err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

func getDocument(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var doc *models.Document
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		doc, err = models.GetDocument(tx, biz, id)
		return err
	})
	if err != nil {
		respondError(c, "GetDocument", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func editDocument(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.NewDocument
	if !bind(c, &input) {
		return
	}
	idempotent(c, "EditDocument", func() (*result, error) {
		doc, err := workflow.EditDocument(c.Request.Context(), id, &input)
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusOK, body: doc, ref: ref("document", doc.ID)}, nil
	})
}

func confirmDocument(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	idempotent(c, "ConfirmDocument", func() (*result, error) {
		doc, err := workflow.ConfirmDocument(c.Request.Context(), id)
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusOK, body: doc, ref: ref("document", doc.ID)}, nil
	})
}

func cancelDocument(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input cancelRequest
	if c.Request.ContentLength > 0 && !bind(c, &input) {
		return
	}
	idempotent(c, "CancelDocument", func() (*result, error) {
		doc, err := workflow.CancelDocument(c.Request.Context(), id, input.Reason)
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusOK, body: doc, ref: ref("document", doc.ID)}, nil
	})
}

func deleteDocument(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	idempotent(c, "DeleteDocument", func() (*result, error) {
		if err := workflow.DeleteDocument(c.Request.Context(), id); err != nil {
			return nil, err
		}
		return &result{status: http.StatusOK, body: gin.H{"id": id, "deleted": true}, ref: ref("document", id)}, nil
	})
}

func recordPayment(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.NewPayment
	if !bind(c, &input) {
		return
	}
	idempotent(c, "RecordPayment", func() (*result, error) {
		payment, err := workflow.RecordPayment(c.Request.Context(), id, input)
		if err != nil {
			return nil, err
		}
		return &result{status: http.StatusCreated, body: payment, ref: ref("payment", payment.ID)}, nil
	})
}
