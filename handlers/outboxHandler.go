package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_core/workflow"
	"gorm.io/gorm"
)

// requeueDeadEvents puts the business's DEAD outbox rows back in line for the dispatcher.
func requeueDeadEvents(c *gin.Context) {
	var n int64
	err := inTx(c, func(tx *gorm.DB, biz string) (err error) {
		n, err = workflow.RequeueDeadEvents(tx, biz)
		return err
	})
	if err != nil {
		respondError(c, "RequeueDeadEvents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": n})
}
