package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iprashantai/medrefill-mvp1/internal/review"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Patient{}, &MedicationProtocol{}, &RefillRequest{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListPending returns the requests awaiting human review, oldest first.
func (d *Database) ListPending() ([]RefillRequest, error) {
	var rows []RefillRequest
	err := d.gorm.
		Where("status = ?", string(review.StatusPendingReview)).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return rows, nil
}

// ListAll returns the full historical collection, reviewed requests included, for
// mismatch and metrics tallies.
func (d *Database) ListAll() ([]RefillRequest, error) {
	var rows []RefillRequest
	if err := d.gorm.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return rows, nil
}

// GetRequest fetches one refill request by id.
func (d *Database) GetRequest(id uint) (*RefillRequest, error) {
	var row RefillRequest
	if err := d.gorm.First(&row, id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// GetPatient fetches a patient by id.
func (d *Database) GetPatient(id uint) (*Patient, error) {
	var row Patient
	if err := d.gorm.First(&row, id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// GetProtocol fetches a medication protocol by id.
func (d *Database) GetProtocol(id uint) (*MedicationProtocol, error) {
	var row MedicationProtocol
	if err := d.gorm.First(&row, id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ApplyReview persists the reviewed state computed by the decision workflow. The
// pending check repeats inside the transaction: two concurrent submissions for the
// same request must resolve to exactly one winner, the loser getting
// review.ErrAlreadyReviewed.
func (d *Database) ApplyReview(id uint, decision review.Decision, reviewerID string, reviewedAt time.Time) (*RefillRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var updated RefillRequest
	err := d.gorm.Transaction(func(tx *gorm.DB) error {
		var row RefillRequest
		if err := tx.First(&row, id).Error; err != nil {
			return err
		}
		if row.Status != string(review.StatusPendingReview) || row.FinalDecision != nil {
			return fmt.Errorf("request %d: %w", id, review.ErrAlreadyReviewed)
		}

		final := string(decision)
		reviewer := strings.TrimSpace(reviewerID)
		row.FinalDecision = &final
		row.ReviewedBy = &reviewer
		row.ReviewedAt = &reviewedAt
		row.Status = string(review.StatusReviewed)
		row.UpdatedAt = reviewedAt

		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("save review: %w", err)
		}
		updated = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreateRequest inserts a new refill request. Used by seeding and tests.
func (d *Database) CreateRequest(req *RefillRequest) error {
	if req == nil {
		return errors.New("request is nil")
	}
	if req.Status == "" {
		req.Status = string(review.StatusPendingReview)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(req).Error
}

// CreatePatient inserts a patient row.
func (d *Database) CreatePatient(p *Patient) error {
	if p == nil {
		return errors.New("patient is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(p).Error
}

// CreateProtocol inserts a medication protocol row.
func (d *Database) CreateProtocol(p *MedicationProtocol) error {
	if p == nil {
		return errors.New("protocol is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(p).Error
}

// Reset clears all rows. Seeding runs it before loading demo data.
func (d *Database) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, model := range []interface{}{&RefillRequest{}, &Patient{}, &MedicationProtocol{}} {
		if err := d.gorm.Where("1 = 1").Delete(model).Error; err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return nil
}
