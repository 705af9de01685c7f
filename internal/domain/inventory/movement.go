package inventory

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxActorLength 操作人最大长度（字符数），与变动记录actor列一致
const MaxActorLength = 64

// MovementType 库存变动类型（封闭枚举）
type MovementType string

const (
	MovementEntry              MovementType = "ENTRY"               // 入库
	MovementExit               MovementType = "EXIT"                // 销售出库
	MovementPositiveAdjustment MovementType = "POSITIVE_ADJUSTMENT" // 正向调整
	MovementNegativeAdjustment MovementType = "NEGATIVE_ADJUSTMENT" // 负向调整
	MovementReturn             MovementType = "RETURN"              // 退货
	MovementReserve            MovementType = "RESERVE"             // 预留
	MovementReleaseReserve     MovementType = "RELEASE_RESERVE"     // 释放预留
	MovementInitialInventory   MovementType = "INITIAL_INVENTORY"   // 初始库存
	MovementUpdateThreshold    MovementType = "UPDATE_THRESHOLD"    // 阈值更新
	MovementDisable            MovementType = "DISABLE"             // 停用
)

// movementLabels 变动类型显示名称
var movementLabels = map[MovementType]string{
	MovementEntry:              "入库",
	MovementExit:               "销售出库",
	MovementPositiveAdjustment: "正向调整",
	MovementNegativeAdjustment: "负向调整",
	MovementReturn:             "退货入库",
	MovementReserve:            "库存预留",
	MovementReleaseReserve:     "释放预留",
	MovementInitialInventory:   "初始库存",
	MovementUpdateThreshold:    "阈值更新",
	MovementDisable:            "停用库存",
}

// MovementTypes 按声明顺序返回全部变动类型
func MovementTypes() []MovementType {
	return []MovementType{
		MovementEntry,
		MovementExit,
		MovementPositiveAdjustment,
		MovementNegativeAdjustment,
		MovementReturn,
		MovementReserve,
		MovementReleaseReserve,
		MovementInitialInventory,
		MovementUpdateThreshold,
		MovementDisable,
	}
}

// Label 显示名称
func (t MovementType) Label() string {
	return movementLabels[t]
}

// IsValid 是否为已知类型
func (t MovementType) IsValid() bool {
	_, ok := movementLabels[t]
	return ok
}

// ParseMovementType 解析变动类型（不区分大小写），未知类型返回ErrInvalidMovementType
func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidMovementType.WithField("movement", "movement_type", s)
	}
	return t, nil
}

// Movement 库存变动记录（只追加，创建后不可修改）
//
// 不变量：QuantityAfter == QuantityBefore + AffectedQuantity
type Movement struct {
	ID               uint
	InventoryID      uint
	Type             MovementType
	QuantityBefore   int
	QuantityAfter    int
	AffectedQuantity int // 有符号：入库为正，出库为负
	Description      string
	Actor            string
	CreatedAt        time.Time
}

// ValidateActor 操作人不能超过MaxActorLength个字符，空值使用DefaultActor
func ValidateActor(actor string) error {
	if utf8.RuneCountInString(actor) > MaxActorLength {
		return ErrInvalidActor.WithField("movement", "actor", actor)
	}
	return nil
}

// newMovement 由变动前后数量构造记录，AffectedQuantity始终由两者相减得到
func newMovement(inventoryID uint, t MovementType, before, after int, actor, description string, at time.Time) *Movement {
	if description == "" {
		description = t.Label()
	}
	if actor == "" {
		actor = DefaultActor
	}
	return &Movement{
		InventoryID:      inventoryID,
		Type:             t,
		QuantityBefore:   before,
		QuantityAfter:    after,
		AffectedQuantity: after - before,
		Description:      description,
		Actor:            actor,
		CreatedAt:        at,
	}
}

// IsBalanced 检查数量恒等式
func (m *Movement) IsBalanced() bool {
	return m.QuantityAfter == m.QuantityBefore+m.AffectedQuantity
}
