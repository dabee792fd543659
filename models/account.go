package models

import (
	"time"

	"github.com/mmdatafocus/erp_core/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account balance is a cached projection: always the sum of balance_delta over its transaction lines.
// Accounts are never hard-deleted, only deactivated.
type Account struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	BusinessId        string                `gorm:"size:64;not null;index;uniqueIndex:uniq_account_code,priority:1" json:"business_id"`
	Code              string                `gorm:"size:50;not null;uniqueIndex:uniq_account_code,priority:2" json:"code"`
	Name              string                `gorm:"size:100;not null;index" json:"name"`
	Kind              AccountKind           `gorm:"size:10;not null;default:'other';index" json:"kind"`
	Classification    AccountClassification `gorm:"size:10;not null;index" json:"classification"`
	ParentAccountId   *int                  `gorm:"index" json:"parent_account_id"`
	Balance           decimal.Decimal       `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	IsActive          *bool                 `gorm:"not null;default:true" json:"is_active"`
	IsSystem          *bool                 `gorm:"not null;default:false" json:"is_system"`
	SystemDefaultCode string                `gorm:"size:10;index" json:"system_default_code"`
	Description       string                `gorm:"type:text" json:"description"`
	CreatedBy         int                   `json:"created_by"`
	CreatedAt         time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Code            string                `json:"code" validate:"required,max=50"`
	Name            string                `json:"name" validate:"required,max=100"`
	Kind            AccountKind           `json:"kind" validate:"required,oneof=cash bank wallet other"`
	Classification  AccountClassification `json:"classification" validate:"required,oneof=asset liability equity income expense"`
	ParentAccountId *int                  `json:"parent_account_id"`
	Description     string                `json:"description"`
}

func (a Account) Active() bool {
	return a.IsActive == nil || *a.IsActive
}

// validate input for create
func (input *NewAccount) validate(tx *gorm.DB, businessId string) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if err := utils.ValidateUnique[Account](tx, businessId, "code", input.Code, 0); err != nil {
		return &ValidationError{Field: "code", Message: err.Error()}
	}
	if input.ParentAccountId != nil {
		if err := utils.ValidateResourceId[Account](tx, businessId, *input.ParentAccountId); err != nil {
			return &ValidationError{Field: "parent_account_id", Message: "parent not found"}
		}
	}
	return nil
}

// CreateAccount inserts an account with a zero balance. Opening balances are posted separately.
func CreateAccount(tx *gorm.DB, businessId string, userId int, input *NewAccount) (*Account, error) {
	if businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	if err := input.validate(tx, businessId); err != nil {
		return nil, err
	}
	account := Account{
		BusinessId:      businessId,
		Code:            input.Code,
		Name:            input.Name,
		Kind:            input.Kind,
		Classification:  input.Classification,
		ParentAccountId: input.ParentAccountId,
		Balance:         decimal.Zero,
		IsActive:        utils.NewTrue(),
		IsSystem:        utils.NewFalse(),
		Description:     input.Description,
		CreatedBy:       userId,
	}
	if err := tx.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// DeactivateAccount stops new postings to the account; history stays intact.
func DeactivateAccount(tx *gorm.DB, businessId string, id int) error {
	account, err := utils.FetchModelTx[Account](tx, businessId, id)
	if err != nil {
		return err
	}
	if account.IsSystem != nil && *account.IsSystem {
		return &ValidationError{Field: "id", Message: "system accounts cannot be deactivated"}
	}
	return tx.Model(&Account{}).Where("business_id = ? AND id = ?", businessId, id).
		Update("is_active", false).Error
}
