package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

// Database is the gorm backed implementation of models.Repository.
type Database struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*Database, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return New(db, logger), nil
}

// GormConfig is shared by every dialect. TranslateError makes unique
// violations surface as gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	return &gorm.Config{Logger: gormLogger, TranslateError: true}
}

// Migrate creates or updates the tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Merchant{}, &models.Plan{}, &models.Payment{}, &models.Subscription{}); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

// New wraps an open gorm connection.
func New(conn *gorm.DB, logger *logger.Logger) *Database {
	return &Database{Conn: conn, logger: logger}
}

func (db *Database) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

func (db *Database) Transaction(ctx context.Context, fn func(repo models.Repository) error) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{Conn: tx, logger: db.logger})
	})
}

// translate maps gorm errors onto the model error kinds.
func translate(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", msg, models.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", msg, models.ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w: %s", msg, models.ErrUpstream, err)
	}
}

func (db *Database) CreateMerchant(ctx context.Context, merchant *models.Merchant) error {
	if err := db.Conn.WithContext(ctx).Create(merchant).Error; err != nil {
		return translate(err, "failed to create merchant")
	}
	return nil
}

func (db *Database) GetMerchantByID(ctx context.Context, id string) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&merchant).Error; err != nil {
		return nil, translate(err, "failed to get merchant %s", id)
	}
	return &merchant, nil
}

func (db *Database) GetMerchantByWallet(ctx context.Context, wallet string) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := db.Conn.WithContext(ctx).Where("wallet = ?", wallet).First(&merchant).Error; err != nil {
		return nil, translate(err, "failed to get merchant by wallet %s", wallet)
	}
	return &merchant, nil
}

func (db *Database) GetMerchantByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := db.Conn.WithContext(ctx).Where("api_key = ?", apiKey).First(&merchant).Error; err != nil {
		return nil, translate(err, "failed to get merchant by api key")
	}
	return &merchant, nil
}

func (db *Database) UpdateMerchantWebhook(ctx context.Context, id, webhookURL string) error {
	result := db.Conn.WithContext(ctx).Model(&models.Merchant{}).Where("id = ?", id).Update("webhook_url", webhookURL)
	if result.Error != nil {
		return translate(result.Error, "failed to update merchant webhook")
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("merchant %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (db *Database) CreatePayment(ctx context.Context, payment *models.Payment) error {
	db.logger.Debugw("Adding payment", "tx_hash", payment.TxHash, "merchant_id", payment.MerchantID)
	if err := db.Conn.WithContext(ctx).Create(payment).Error; err != nil {
		return translate(err, "failed to add payment")
	}
	return nil
}

func (db *Database) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, translate(err, "failed to get payment %s", id)
	}
	return &payment, nil
}

func (db *Database) GetPaymentByTxHash(ctx context.Context, txHash string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Conn.WithContext(ctx).Where("tx_hash = ?", txHash).First(&payment).Error; err != nil {
		return nil, translate(err, "failed to get payment by tx hash %s", txHash)
	}
	return &payment, nil
}

func (db *Database) ListPayments(ctx context.Context, merchantID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	if err := db.Conn.WithContext(ctx).Where("merchant_id = ?", merchantID).Order("timestamp DESC").Find(&payments).Error; err != nil {
		return nil, translate(err, "failed to list payments")
	}
	return payments, nil
}

func (db *Database) ListPaymentsPendingInvoice(ctx context.Context, limit int) ([]*models.Payment, error) {
	var payments []*models.Payment
	if err := db.Conn.WithContext(ctx).
		Where("status = ? AND invoice_sent = ?", models.PaymentStatusVerified, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error; err != nil {
		return nil, translate(err, "failed to list payments pending invoice")
	}
	return payments, nil
}

func (db *Database) MarkInvoiceSent(ctx context.Context, id string) error {
	result := db.Conn.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Update("invoice_sent", true)
	if result.Error != nil {
		return translate(result.Error, "failed to mark invoice sent")
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (db *Database) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if err := db.Conn.WithContext(ctx).Create(plan).Error; err != nil {
		return translate(err, "failed to create plan")
	}
	return nil
}

func (db *Database) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, translate(err, "failed to get plan %s", id)
	}
	return &plan, nil
}

func (db *Database) ListPlans(ctx context.Context, merchantID string) ([]*models.Plan, error) {
	var plans []*models.Plan
	if err := db.Conn.WithContext(ctx).Where("merchant_id = ?", merchantID).Order("created_at ASC").Find(&plans).Error; err != nil {
		return nil, translate(err, "failed to list plans")
	}
	return plans, nil
}

func (db *Database) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	if err := db.Conn.WithContext(ctx).Omit(clause.Associations).Create(subscription).Error; err != nil {
		return translate(err, "failed to create subscription")
	}
	return nil
}

func (db *Database) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var subscription models.Subscription
	if err := db.Conn.WithContext(ctx).Preload("Plan").Where("id = ?", id).First(&subscription).Error; err != nil {
		return nil, translate(err, "failed to get subscription %s", id)
	}
	return &subscription, nil
}

func (db *Database) ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, error) {
	query := db.Conn.WithContext(ctx).Model(&models.Subscription{})
	if filter.MerchantID != "" {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}
	if filter.PayerWallet != "" {
		query = query.Where("payer_wallet = ?", filter.PayerWallet)
	}
	if filter.PlanID != "" {
		query = query.Where("plan_id = ?", filter.PlanID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var subscriptions []*models.Subscription
	if err := query.Order("created_at DESC").Find(&subscriptions).Error; err != nil {
		return nil, translate(err, "failed to list subscriptions")
	}
	return subscriptions, nil
}

func (db *Database) UpdateSubscription(ctx context.Context, id string, updates map[string]interface{}) error {
	result := db.Conn.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "failed to update subscription %s", id)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("subscription %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (db *Database) ListDueSubscriptions(ctx context.Context, now int64, limit int) ([]*models.Subscription, error) {
	query := db.Conn.WithContext(ctx).
		Preload("Plan").
		Where("status = ? AND current_period_end < ?", models.SubscriptionStatusActive, now).
		Order("current_period_end ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var subscriptions []*models.Subscription
	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, translate(err, "failed to list due subscriptions")
	}
	return subscriptions, nil
}

func (db *Database) ExpireSubscriptions(ctx context.Context, ids []string, now int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// The status and period filters are repeated so a renewal that committed
	// after the candidates were read is left alone.
	result := db.Conn.WithContext(ctx).Model(&models.Subscription{}).
		Where("id IN ? AND status = ? AND current_period_end < ?", ids, models.SubscriptionStatusActive, now).
		Updates(map[string]interface{}{
			"status":     models.SubscriptionStatusExpired,
			"updated_at": time.Unix(now, 0).UTC(),
		})
	if result.Error != nil {
		return 0, translate(result.Error, "failed to expire subscriptions")
	}
	return result.RowsAffected, nil
}
