package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы escrow-сделки
const (
	StatusPending    = "PENDING"
	StatusPaid       = "PAID"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusApproved   = "APPROVED"
	StatusReleased   = "RELEASED"
	StatusDisputed   = "DISPUTED"
	StatusCancelled  = "CANCELLED"
	StatusRefunded   = "REFUNDED"
)

// ValidStatuses список валидных статусов сделки
var ValidStatuses = map[string]struct{}{
	StatusPending:    {},
	StatusPaid:       {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusApproved:   {},
	StatusReleased:   {},
	StatusDisputed:   {},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// IsTerminalStatus сообщает, достигла ли сделка финального состояния.
func IsTerminalStatus(status string) bool {
	return status == StatusReleased || status == StatusRefunded || status == StatusCancelled
}

// Transaction представляет escrow-сделку между плательщиком и исполнителем.
// Разбиение суммы на комиссию платформы и долю исполнителя вычисляется один
// раз при создании и после этого не меняется, даже если процент комиссии в
// конфигурации поменялся.
type Transaction struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	Reference        string          `db:"reference" json:"reference"`
	PayerID          uuid.UUID       `db:"payer_id" json:"payer_id"`
	PayeeID          uuid.UUID       `db:"payee_id" json:"payee_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	PlatformFee      decimal.Decimal `db:"platform_fee" json:"platform_fee"`
	PayeeAmount      decimal.Decimal `db:"payee_amount" json:"payee_amount"`
	Description      string          `db:"description" json:"description"`
	Category         *string         `db:"category" json:"category,omitempty"`
	Status           string          `db:"status" json:"status"`
	IsPaid           bool            `db:"is_paid" json:"is_paid"`
	PaymentReference *string         `db:"payment_reference" json:"payment_reference,omitempty"`

	IsDisputed       bool    `db:"is_disputed" json:"is_disputed"`
	DisputeReason    *string `db:"dispute_reason" json:"dispute_reason,omitempty"`
	AdminNotes       *string `db:"admin_notes" json:"admin_notes,omitempty"`
	RefundPercentage *int    `db:"refund_percentage" json:"refund_percentage,omitempty"`

	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	PaidAt            *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	WorkStartedAt     *time.Time `db:"work_started_at" json:"work_started_at,omitempty"`
	WorkCompletedAt   *time.Time `db:"work_completed_at" json:"work_completed_at,omitempty"`
	ApprovedAt        *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ReleasedAt        *time.Time `db:"released_at" json:"released_at,omitempty"`
	DisputeRaisedAt   *time.Time `db:"dispute_raised_at" json:"dispute_raised_at,omitempty"`
	DisputeResolvedAt *time.Time `db:"dispute_resolved_at" json:"dispute_resolved_at,omitempty"`
	AutoReleaseAt     *time.Time `db:"auto_release_at" json:"auto_release_at,omitempty"`
}

// NewReference генерирует человекочитаемый номер сделки вида TXN-1A2B3C4D.
func NewReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN-" + strings.ToUpper(raw[:8])
}
