package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xiebiao/bookstore-ledger/internal/domain/inventory"
)

// OperatorHeader 操作人请求头，写入变动记录的actor字段
const OperatorHeader = "X-Operator"

// GetOperator 获取操作人，未传入时返回system
func GetOperator(c *gin.Context) string {
	if op := strings.TrimSpace(c.GetHeader(OperatorHeader)); op != "" {
		return op
	}
	return inventory.DefaultActor
}
