package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/CryptoIceMLH/lnbits-tnaflasher/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.FlashRequest{},
		&models.Setting{},
		&models.Bulletin{},
		&models.PromoCode{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Flash request operations
//
// All state transitions are conditional updates guarded by the current
// status column. An update touching 0 rows means a concurrent writer won
// the race or the request was not where the caller thought; the sentinel
// errors below let callers tell those apart from plain lookups.

func (s *Store) CreateFlashRequest(r *models.FlashRequest) error {
	return s.db.Create(r).Error
}

func (s *Store) GetFlashRequest(paymentHash string) (*models.FlashRequest, error) {
	var r models.FlashRequest
	if err := s.db.Where("payment_hash = ?", paymentHash).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &r, nil
}

// MarkPaid transitions pending -> paid. Duplicate settlement events lose the
// race here and get ErrInvalidTransition, which the listener can ignore.
func (s *Store) MarkPaid(paymentHash string, paidAt time.Time) error {
	res := s.db.Model(&models.FlashRequest{}).
		Where("payment_hash = ? AND status = ?", paymentHash, models.StatusPending).
		Updates(map[string]any{
			"status":  models.StatusPaid,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// AttachToken transitions paid -> token_issued and records the minted token.
// The empty-token guard keeps the token write-once even if the listener is
// somehow re-entered between MarkPaid and here.
func (s *Store) AttachToken(paymentHash, token string, expiresAt time.Time) error {
	res := s.db.Model(&models.FlashRequest{}).
		Where("payment_hash = ? AND status = ? AND token = ?", paymentHash, models.StatusPaid, "").
		Updates(map[string]any{
			"status":           models.StatusTokenIssued,
			"token":            token,
			"token_expires_at": expiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ConsumeToken atomically transitions token_issued -> downloaded and marks
// the token used in the same update. Of two concurrent downloads with the
// same token exactly one wins; the loser gets ErrTokenAlreadyUsed.
func (s *Store) ConsumeToken(paymentHash string, downloadedAt time.Time) error {
	res := s.db.Model(&models.FlashRequest{}).
		Where("payment_hash = ? AND status = ? AND token_used = ?",
			paymentHash, models.StatusTokenIssued, false).
		Updates(map[string]any{
			"status":        models.StatusDownloaded,
			"token_used":    true,
			"downloaded_at": downloadedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenAlreadyUsed
	}
	return nil
}

// MarkCompleted transitions downloaded -> completed.
func (s *Store) MarkCompleted(paymentHash string, completedAt time.Time) error {
	res := s.db.Model(&models.FlashRequest{}).
		Where("payment_hash = ? AND status = ?", paymentHash, models.StatusDownloaded).
		Updates(map[string]any{
			"status":       models.StatusCompleted,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ExpireStaleRequests moves requests stuck in pending or paid past the
// payment window into the terminal expired state. Returns rows expired.
func (s *Store) ExpireStaleRequests(cutoff time.Time) (int64, error) {
	res := s.db.Model(&models.FlashRequest{}).
		Where("status IN ? AND created_at < ?",
			[]string{models.StatusPending, models.StatusPaid}, cutoff).
		Update("status", models.StatusExpired)
	return res.RowsAffected, res.Error
}

// ExpireLapsedTokens expires token_issued requests whose token lapsed
// without ever being consumed. Returns rows expired.
func (s *Store) ExpireLapsedTokens(now time.Time) (int64, error) {
	res := s.db.Model(&models.FlashRequest{}).
		Where("status = ? AND token_expires_at < ?", models.StatusTokenIssued, now).
		Update("status", models.StatusExpired)
	return res.RowsAffected, res.Error
}

// ListFlashRequests returns requests most recent first, bounded by limit.
func (s *Store) ListFlashRequests(limit int) ([]models.FlashRequest, error) {
	var requests []models.FlashRequest
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// Stats aggregates the admin dashboard numbers.
type Stats struct {
	TotalFlashes int64 `json:"total_flashes"`
	TotalSats    int64 `json:"total_sats"`
	TodayFlashes int64 `json:"today_flashes"`
	PendingCount int64 `json:"pending_count"`
}

func (s *Store) GetStats(todayStart time.Time) (*Stats, error) {
	var stats Stats

	row := s.db.Model(&models.FlashRequest{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount_sats), 0) AS total").
		Where("status = ?", models.StatusCompleted).
		Row()
	if err := row.Scan(&stats.TotalFlashes, &stats.TotalSats); err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.FlashRequest{}).
		Where("status = ? AND completed_at >= ?", models.StatusCompleted, todayStart).
		Count(&stats.TodayFlashes).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.FlashRequest{}).
		Where("status = ?", models.StatusPending).
		Count(&stats.PendingCount).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}

// Settings operations

func (s *Store) GetSetting(key string) (string, error) {
	var setting models.Setting
	if err := s.db.Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrRecordNotFound
		}
		return "", err
	}
	return setting.Value, nil
}

func (s *Store) SetSetting(key, value string) error {
	setting := models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Save(&setting).Error
}

// Bulletin operations

func (s *Store) CreateBulletin(b *models.Bulletin) error {
	return s.db.Create(b).Error
}

func (s *Store) ListBulletins(activeOnly bool, limit int) ([]models.Bulletin, error) {
	var bulletins []models.Bulletin
	q := s.db.Order("created_at DESC").Limit(limit)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Find(&bulletins).Error; err != nil {
		return nil, err
	}
	return bulletins, nil
}

func (s *Store) UpdateBulletin(b *models.Bulletin) error {
	return s.db.Save(b).Error
}

func (s *Store) DeleteBulletin(id string) error {
	return s.db.Delete(&models.Bulletin{}, "id = ?", id).Error
}

func (s *Store) GetBulletin(id string) (*models.Bulletin, error) {
	var b models.Bulletin
	if err := s.db.Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &b, nil
}

// Promo code operations

func (s *Store) CreatePromoCode(p *models.PromoCode) error {
	return s.db.Create(p).Error
}

func (s *Store) GetPromoCodeByCode(code string) (*models.PromoCode, error) {
	var p models.PromoCode
	if err := s.db.Where("code = ?", code).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPromoCodes() ([]models.PromoCode, error) {
	var codes []models.PromoCode
	if err := s.db.Order("created_at DESC").Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// IncrementPromoUsage bumps used_count only while uses remain, so two
// concurrent redemptions cannot overshoot max_uses.
func (s *Store) IncrementPromoUsage(code string) error {
	res := s.db.Model(&models.PromoCode{}).
		Where("code = ? AND active = ? AND used_count < max_uses", code, true).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPromoExhausted
	}
	return nil
}

func (s *Store) DeletePromoCode(id string) error {
	return s.db.Delete(&models.PromoCode{}, "id = ?", id).Error
}
