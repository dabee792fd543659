package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

const documentLockTimeoutSeconds = 30

// withDocumentLock serializes orchestrator operations on one document across instances using a MySQL
// advisory lock. GET_LOCK is connection-scoped, so the lock and run share one pinned connection, and
// the lock is released only after run returns, i.e. after its transaction committed or rolled back.
// Other dialects rely on the document row lock alone.
func withDocumentLock(db *gorm.DB, businessId string, documentId int, run func(session *gorm.DB) error) error {
	if db.Dialector.Name() != "mysql" {
		return run(db)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(db.Statement.Context)
	if err != nil {
		return err
	}
	defer conn.Close()

	session := db.Session(&gorm.Session{NewDB: true, Context: db.Statement.Context})
	session.Statement.ConnPool = conn

	release, err := AcquireDocumentLock(session, businessId, documentId)
	if err != nil {
		return err
	}
	defer release()
	return run(session)
}

// AcquireDocumentLock takes the advisory lock for a document on db's connection. Non-MySQL dialects get a no-op.
func AcquireDocumentLock(db *gorm.DB, businessId string, documentId int) (release func(), err error) {
	if db.Dialector.Name() != "mysql" {
		return func() {}, nil
	}
	lockName := documentLockName(businessId, documentId)
	var ok int
	if err := db.Raw("SELECT GET_LOCK(?, ?)", lockName, documentLockTimeoutSeconds).Scan(&ok).Error; err != nil {
		return nil, err
	}
	if ok != 1 {
		return nil, fmt.Errorf("could not acquire document lock for %s", lockName)
	}
	return func() {
		var released int
		_ = db.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
	}, nil
}

func documentLockName(businessId string, documentId int) string {
	return fmt.Sprintf("doc:%s:%d", businessId, documentId)
}
