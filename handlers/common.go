package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/mmdatafocus/erp_core/workflow"
	"gorm.io/gorm"
)

const idempotencyHeader = "Idempotency-Key"

var errDBUnavailable = errors.New("db is nil")

func businessId(c *gin.Context) string {
	id, _ := utils.GetBusinessIdFromContext(c.Request.Context())
	return id
}

func userId(c *gin.Context) int {
	id, _ := utils.GetUserIdFromContext(c.Request.Context())
	return id
}

// paramId reads a positive integer path parameter and answers 400 when it is not one.
func paramId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

type pageQuery struct {
	Limit int     `form:"limit" binding:"omitempty,min=1,max=100"`
	After *string `form:"after"`
}

func bindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query", "detail": err.Error()})
		return false
	}
	return true
}

func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return false
	}
	return true
}

// inTx runs fn in one DB transaction scoped to the request's business.
func inTx(c *gin.Context, fn func(tx *gorm.DB, businessId string) error) error {
	biz := businessId(c)
	if biz == "" {
		return models.ErrBusinessIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return errDBUnavailable
	}
	return db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		return fn(tx, biz)
	})
}

// respondError maps an engine error to its HTTP status. Infrastructure errors are logged and hidden.
func respondError(c *gin.Context, funcName string, err error) {
	switch models.ClassifyError(err) {
	case models.ErrorKindValidation:
		body := gin.H{"error": err.Error(), "kind": models.ErrorKindValidation}
		if utils.IsValidationError(err) {
			body["fields"] = utils.ProcessValidationErrors(err)
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	case models.ErrorKindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": models.ErrorKindConflict})
	case models.ErrorKindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": models.ErrorKindNotFound})
	default:
		config.LogError(config.GetLogger(), "handlers", funcName, c.FullPath(), businessId(c), err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": models.ErrorKindInfrastructure})
	}
}

// result is what a mutating handler produced: the response and a short reference kept for replays.
type result struct {
	status int
	body   any
	ref    string
}

// idempotent runs op once per Idempotency-Key. A replay of a succeeded key answers with the stored reference.
func idempotent(c *gin.Context, handlerName string, op func() (*result, error)) {
	key := c.GetHeader(idempotencyHeader)
	if key == "" {
		res, err := op()
		if err != nil {
			respondError(c, handlerName, err)
			return
		}
		c.JSON(res.status, res.body)
		return
	}

	biz := businessId(c)
	if biz == "" {
		respondError(c, handlerName, models.ErrBusinessIdRequired)
		return
	}
	db := config.GetDB()
	if db == nil {
		respondError(c, handlerName, errDBUnavailable)
		return
	}
	db = db.WithContext(c.Request.Context())

	skip, ref, err := workflow.BeginIdempotency(db, biz, handlerName, key)
	if err != nil {
		respondError(c, handlerName, err)
		return
	}
	if skip {
		c.JSON(http.StatusOK, gin.H{"idempotent_replay": true, "result_ref": ref})
		return
	}

	res, err := op()
	if err != nil {
		if markErr := workflow.MarkIdempotencyFailed(db, biz, handlerName, key, err); markErr != nil {
			config.LogError(config.GetLogger(), "handlers", handlerName, "mark idempotency failed", key, markErr)
		}
		respondError(c, handlerName, err)
		return
	}
	if markErr := workflow.MarkIdempotencySucceeded(db, biz, handlerName, key, res.ref); markErr != nil {
		config.LogError(config.GetLogger(), "handlers", handlerName, "mark idempotency succeeded", key, markErr)
	}
	c.JSON(res.status, res.body)
}

func ref(kind string, id int) string {
	return kind + ":" + strconv.Itoa(id)
}
