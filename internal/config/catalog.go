package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"rewardbridge/internal/board"
	"rewardbridge/internal/milestone"
	"rewardbridge/internal/rewards"
	"rewardbridge/internal/types"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Amount is a decimal that decodes from YAML scalars ("2", 2.5, "1.2").
type Amount struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", node.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid amount %q: %w", node.Line, node.Value, err)
	}
	a.Decimal = d
	return nil
}

// Catalog holds the business tables the core treats as inputs.
type Catalog struct {
	Milestones            MilestoneCatalog    `yaml:"milestones"`
	Tiers                 []TierBand          `yaml:"tiers" validate:"required,min=1,dive"`
	DepartmentMultipliers map[string]Amount   `yaml:"department_multipliers"`
	Managers              map[string]Manager  `yaml:"managers" validate:"dive"`
	DefaultProduct        Product             `yaml:"default_product"`
	MerchantAlternatives  map[string][]string `yaml:"merchant_alternatives"`
	Policy                Policy              `yaml:"policy"`
	Columns               board.ColumnMap     `yaml:"columns"`
}

// MilestoneCatalog is the milestone type -> amount table.
type MilestoneCatalog struct {
	DefaultAmount Amount            `yaml:"default_amount"`
	Amounts       map[string]Amount `yaml:"amounts"`
}

// TierBand is one performance tier. Bands are half-open: a band covers
// [Min, next band's Min).
type TierBand struct {
	Name   string `yaml:"name" validate:"required,oneof=Bronze Silver Gold Platinum"`
	Min    Amount `yaml:"min"`
	Amount Amount `yaml:"amount"`
}

// Manager is the approver for a department.
type Manager struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name"`
	Email       string `yaml:"email" validate:"omitempty,email"`
	SlackUserID string `yaml:"slack_user_id"`
}

// Product is the gift-card product used for milestone orders.
type Product struct {
	ProductCode string `yaml:"product_code" validate:"required"`
	Merchant    string `yaml:"merchant" validate:"required"`
	Currency    string `yaml:"currency" validate:"required,len=3"`
}

// Policy holds the fixed workflow thresholds.
type Policy struct {
	ApprovalSLADays      int `yaml:"approval_sla_days" validate:"min=1"`
	GiftCardValidityDays int `yaml:"gift_card_validity_days" validate:"min=1"`
	ExpiryWarningDays    int `yaml:"expiry_warning_days" validate:"min=1"`
	ExpiryLookaheadDays  int `yaml:"expiry_lookahead_days" validate:"min=1"`
}

// LoadCatalog reads the catalog from path, or the embedded default when path
// is empty, and validates it.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Type: ErrCatalog, Message: "failed to read rewards catalog " + path, Err: err}
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog. Unknown keys are
// rejected so a typo in a column name fails at startup.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, &ConfigError{Type: ErrCatalog, Message: "failed to parse rewards catalog", Err: err}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate applies struct tags plus the rules tags cannot express.
func (c *Catalog) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return &ConfigError{Type: ErrCatalog, Message: "rewards catalog validation failed", Err: err}
	}

	var problems []string
	if !c.Milestones.DefaultAmount.IsPositive() {
		problems = append(problems, "milestones.default_amount must be positive")
	}
	for name, amt := range c.Milestones.Amounts {
		if amt.IsNegative() {
			problems = append(problems, fmt.Sprintf("milestones.amounts[%s] must not be negative", name))
		}
	}
	for i := 1; i < len(c.Tiers); i++ {
		if !c.Tiers[i].Min.GreaterThan(c.Tiers[i-1].Min.Decimal) {
			problems = append(problems, fmt.Sprintf("tiers[%d] (%s) must start above tiers[%d]", i, c.Tiers[i].Name, i-1))
		}
	}
	for dept, m := range c.DepartmentMultipliers {
		if !m.IsPositive() {
			problems = append(problems, fmt.Sprintf("department_multipliers[%s] must be positive", dept))
		}
	}
	if len(problems) > 0 {
		return &ConfigError{Type: ErrCatalog, Message: strings.Join(problems, "; ")}
	}

	if err := c.Columns.Validate(); err != nil {
		return &ConfigError{Type: ErrCatalog, Message: "board column map is invalid", Err: err}
	}
	return nil
}

// AmountTable converts the milestone amounts for the calculator.
func (c *Catalog) AmountTable() milestone.AmountTable {
	amounts := make(map[types.MilestoneType]decimal.Decimal, len(c.Milestones.Amounts))
	for name, amt := range c.Milestones.Amounts {
		amounts[types.MilestoneType(name)] = amt.Decimal
	}
	return milestone.AmountTable{Amounts: amounts, Default: c.Milestones.DefaultAmount.Decimal}
}

// TierEngine builds the tier engine from the bands and multipliers.
func (c *Catalog) TierEngine() (*rewards.TierEngine, error) {
	bands := make([]rewards.Band, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		bands = append(bands, rewards.Band{Tier: types.RewardTier(t.Name), Min: t.Min.Decimal, Amount: t.Amount.Decimal})
	}
	multipliers := make(map[string]decimal.Decimal, len(c.DepartmentMultipliers))
	for dept, m := range c.DepartmentMultipliers {
		multipliers[dept] = m.Decimal
	}
	return rewards.NewTierEngine(bands, multipliers)
}
