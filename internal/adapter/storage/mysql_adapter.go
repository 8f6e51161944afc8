package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/catalog-service/internal/core/domain"
	"github.com/rl1809/catalog-service/internal/port"
)

var (
	_ port.CatalogRepository = (*MySQLAdapter)(nil)
	_ port.UserRepository    = (*MySQLAdapter)(nil)
	_ port.UnitOfWork        = (*MySQLAdapter)(nil)
	_ port.TxRepository      = (*mysqlTx)(nil)
)

//go:embed schema.sql
var schemaSQL string

const variantDetailSelect = `
	SELECT v.id, v.product_id, v.code, v.size_label, v.price, v.energy, v.active,
		p.id, p.name, COALESCE(p.description, ''), COALESCE(p.image_path, ''), p.created_at,
		s.quantity, s.updated_at
	FROM variants v
	JOIN products p ON p.id = v.product_id
	JOIN stock s ON s.variant_id = v.id`

const userDetailSelect = `
	SELECT u.id, u.user_name,
		up.height, up.weight, up.activity_level, up.bmr, up.tdee, up.updated_at,
		dp.user_id, dp.allergens, dp.taboos, dp.taste_preference, dp.eating_habit, dp.equipment_limit,
		hg.goal_type, hg.target_weight, hg.target_date, hg.energy_target
	FROM users u
	LEFT JOIN user_profiles up ON up.user_id = u.id
	LEFT JOIN diet_preferences dp ON dp.user_id = u.id
	LEFT JOIN health_goals hg ON hg.user_id = u.id
	WHERE u.id = ?`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates missing tables. Statements are run one at a time since
// the driver rejects multi-statement queries by default.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) GetVariantDetail(ctx context.Context, variantID uint64) (*domain.VariantDetail, error) {
	return m.queryVariantDetail(ctx, variantDetailSelect+` WHERE v.id = ?`, variantID)
}

func (m *MySQLAdapter) GetActiveVariantDetail(ctx context.Context, variantID uint64) (*domain.VariantDetail, error) {
	return m.queryVariantDetail(ctx, variantDetailSelect+` WHERE v.id = ? AND v.active = 1`, variantID)
}

func (m *MySQLAdapter) ListActiveVariantDetails(ctx context.Context) ([]domain.VariantDetail, error) {
	rows, err := m.db.QueryContext(ctx, variantDetailSelect+` WHERE v.active = 1 ORDER BY v.id`)
	if err != nil {
		return nil, fmt.Errorf("query active variants: %w", err)
	}
	defer rows.Close()

	var details []domain.VariantDetail
	for rows.Next() {
		d, err := scanVariantDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		details = append(details, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}
	return details, nil
}

func (m *MySQLAdapter) queryVariantDetail(ctx context.Context, query string, variantID uint64) (*domain.VariantDetail, error) {
	d, err := scanVariantDetail(m.db.QueryRowContext(ctx, query, variantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant %d: %w", variantID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query variant %d: %w", variantID, err)
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariantDetail(row rowScanner) (*domain.VariantDetail, error) {
	var d domain.VariantDetail
	err := row.Scan(
		&d.Variant.ID, &d.Variant.ProductID, &d.Variant.Code, &d.Variant.SizeLabel,
		&d.Variant.Price, &d.Variant.Energy, &d.Variant.Active,
		&d.Product.ID, &d.Product.Name, &d.Product.Description, &d.Product.ImagePath, &d.Product.CreatedAt,
		&d.Stock.Quantity, &d.Stock.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Stock.VariantID = d.Variant.ID
	return &d, nil
}

func (m *MySQLAdapter) GetUserDetail(ctx context.Context, userID uint64) (*domain.UserDetail, error) {
	var (
		u domain.UserDetail

		height, weight, bmr, tdee  decimal.NullDecimal
		activity                   sql.NullString
		profileUpdated             sql.NullTime
		dietUser                   sql.NullInt64
		allergens, taboos, taste   sql.NullString
		habit, equipment           sql.NullString
		goalType                   sql.NullString
		targetWeight, energyTarget decimal.NullDecimal
		targetDate                 sql.NullTime
	)

	err := m.db.QueryRowContext(ctx, userDetailSelect, userID).Scan(
		&u.ID, &u.Name,
		&height, &weight, &activity, &bmr, &tdee, &profileUpdated,
		&dietUser, &allergens, &taboos, &taste, &habit, &equipment,
		&goalType, &targetWeight, &targetDate, &energyTarget,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", userID, err)
	}

	if activity.Valid {
		u.Profile = &domain.UserProfile{
			Height:        height.Decimal,
			Weight:        weight.Decimal,
			ActivityLevel: activity.String,
			BMR:           bmr.Decimal,
			TDEE:          tdee.Decimal,
			UpdatedAt:     profileUpdated.Time,
		}
	}
	if dietUser.Valid {
		u.Diet = &domain.DietPreference{
			Allergens:       allergens.String,
			Taboos:          taboos.String,
			TastePreference: taste.String,
			EatingHabit:     habit.String,
			EquipmentLimit:  equipment.String,
		}
	}
	if goalType.Valid {
		u.Goal = &domain.HealthGoal{
			GoalType:     goalType.String,
			TargetWeight: targetWeight.Decimal,
			TargetDate:   targetDate.Time,
			EnergyTarget: energyTarget.Decimal,
		}
	}
	return &u, nil
}

// Do runs fn inside one transaction with a repository bound to it.
func (m *MySQLAdapter) Do(ctx context.Context, fn func(tx port.TxRepository) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) GetStockForUpdate(ctx context.Context, variantID uint64) (*domain.Stock, error) {
	var s domain.Stock
	err := t.tx.QueryRowContext(ctx, `
		SELECT variant_id, quantity, updated_at
		FROM stock WHERE variant_id = ? FOR UPDATE`, variantID,
	).Scan(&s.VariantID, &s.Quantity, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stock for variant %d: %w", variantID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	return &s, nil
}

func (t *mysqlTx) DecrementStock(ctx context.Context, variantID uint64, quantity int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE stock
		SET quantity = quantity - ?, updated_at = NOW(3)
		WHERE variant_id = ? AND quantity >= ?`,
		quantity, variantID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (t *mysqlTx) UserExists(ctx context.Context, userID uint64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}
	return true, nil
}

func (t *mysqlTx) InsertOrder(ctx context.Context, order domain.Order) error {
	if len(order.Items) == 0 {
		return fmt.Errorf("order %d has no items: %w", order.ID, domain.ErrInvalidInput)
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, address, created_at)
		VALUES (?, ?, ?, ?)`,
		order.ID, order.UserID, order.Address, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	placeholders := make([]string, 0, len(order.Items))
	args := make([]any, 0, len(order.Items)*3)
	for _, it := range order.Items {
		placeholders = append(placeholders, "(?, ?, ?)")
		args = append(args, order.ID, it.VariantID, it.Quantity)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO order_items (order_id, variant_id, quantity) VALUES `+strings.Join(placeholders, ", "),
		args...,
	)
	if err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (t *mysqlTx) UpsertUserProfile(ctx context.Context, userID uint64, p domain.UserProfile) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, height, weight, activity_level, bmr, tdee, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE height = VALUES(height), weight = VALUES(weight),
			activity_level = VALUES(activity_level), bmr = VALUES(bmr), tdee = VALUES(tdee),
			updated_at = VALUES(updated_at)`,
		userID, p.Height, p.Weight, p.ActivityLevel, p.BMR, p.TDEE, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}

func (t *mysqlTx) UpsertDietPreference(ctx context.Context, userID uint64, d domain.DietPreference) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO diet_preferences (user_id, allergens, taboos, taste_preference, eating_habit, equipment_limit)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE allergens = VALUES(allergens), taboos = VALUES(taboos),
			taste_preference = VALUES(taste_preference), eating_habit = VALUES(eating_habit),
			equipment_limit = VALUES(equipment_limit)`,
		userID, d.Allergens, d.Taboos, d.TastePreference, d.EatingHabit, d.EquipmentLimit,
	)
	if err != nil {
		return fmt.Errorf("upsert diet preference: %w", err)
	}
	return nil
}

func (t *mysqlTx) UpsertHealthGoal(ctx context.Context, userID uint64, g domain.HealthGoal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO health_goals (user_id, goal_type, target_weight, target_date, energy_target)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE goal_type = VALUES(goal_type), target_weight = VALUES(target_weight),
			target_date = VALUES(target_date), energy_target = VALUES(energy_target)`,
		userID, g.GoalType, g.TargetWeight, g.TargetDate, g.EnergyTarget,
	)
	if err != nil {
		return fmt.Errorf("upsert health goal: %w", err)
	}
	return nil
}
