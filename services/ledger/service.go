package ledger

import (
	"time"

	"gorm.io/gorm"

	"schoolledger_go/config"
	"schoolledger_go/database"
)

// Actor identifies who is performing a ledger operation. It is resolved from
// the JWT by the caller and passed explicitly into every operation; the ledger
// never reads ambient request state.
type Actor struct {
	SchoolID uint
	UserID   uint
	Role     string
}

// Service is the fee ledger: structures, collections, receipts and the
// consistency rules between them.
type Service struct {
	db              *gorm.DB
	cascadeReceipts bool
	now             func() time.Time
}

// NewService builds a Service on the global database handle.
func NewService() *Service {
	cascade := false
	if config.AppConfig != nil {
		cascade = config.AppConfig.FeeCancelCascadeReceipts
	}
	return &Service{
		db:              database.GetDB(),
		cascadeReceipts: cascade,
		now:             time.Now,
	}
}

// NewServiceWithDB builds a Service on an explicit handle (used by schedulers
// and tests that run inside their own transaction).
func NewServiceWithDB(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}
