package models

import "gorm.io/gorm"

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&Transaction{}, &TransactionLine{},
		&Stock{}, &StockMovement{},
		&SerialNumber{},
		&Document{}, &DocumentLine{}, &DocumentPayment{}, &DocumentHistory{},
		&CashEntry{},
		&BankReconciliation{},
		&IdempotencyKey{},
		&LedgerEventRecord{},
	)
}
