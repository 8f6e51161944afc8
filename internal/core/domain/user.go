package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserProfile struct {
	Height        decimal.Decimal `json:"height"`
	Weight        decimal.Decimal `json:"weight"`
	ActivityLevel string          `json:"activity_level"`
	BMR           decimal.Decimal `json:"bmr"`
	TDEE          decimal.Decimal `json:"tdee"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type DietPreference struct {
	Allergens       string `json:"allergens"`
	Taboos          string `json:"taboos"`
	TastePreference string `json:"taste_preference"`
	EatingHabit     string `json:"eating_habit"`
	EquipmentLimit  string `json:"equipment_limit"`
}

type HealthGoal struct {
	GoalType     string          `json:"goal_type"`
	TargetWeight decimal.Decimal `json:"target_weight"`
	TargetDate   time.Time       `json:"target_date"`
	EnergyTarget decimal.Decimal `json:"energy_target"`
}

// UserDetail is the user aggregate; sub-records are nil when absent.
type UserDetail struct {
	ID      uint64          `json:"id,string"`
	Name    string          `json:"name"`
	Profile *UserProfile    `json:"profile,omitempty"`
	Diet    *DietPreference `json:"diet,omitempty"`
	Goal    *HealthGoal     `json:"goal,omitempty"`
}
