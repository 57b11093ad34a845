package board

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EmployeeColumns maps each semantic employee field to its column id on the
// milestones board.
type EmployeeColumns struct {
	Email             string `yaml:"email" validate:"required"`
	HireDate          string `yaml:"hire_date" validate:"required"`
	Birthday          string `yaml:"birthday" validate:"required"`
	Department        string `yaml:"department" validate:"required"`
	NextMilestoneDate string `yaml:"next_milestone_date" validate:"required"`
	MilestoneType     string `yaml:"milestone_type" validate:"required"`
	GiftCardAmount    string `yaml:"gift_card_amount" validate:"required"`
	ProcessingStatus  string `yaml:"processing_status" validate:"required"`
	LastProcessed     string `yaml:"last_processed" validate:"required"`
	GiftCardCode      string `yaml:"gift_card_code" validate:"required"`
}

// RewardColumns maps each semantic reward field to its column id on the
// performance rewards board.
type RewardColumns struct {
	EmployeeEmail     string `yaml:"employee_email" validate:"required"`
	PerformancePeriod string `yaml:"performance_period" validate:"required"`
	TargetDescription string `yaml:"target_description" validate:"required"`
	TargetValue       string `yaml:"target_value" validate:"required"`
	Department        string `yaml:"department" validate:"required"`
	RewardTier        string `yaml:"reward_tier" validate:"required"`
	GiftCardAmount    string `yaml:"gift_card_amount" validate:"required"`
	ApprovalStatus    string `yaml:"approval_status" validate:"required"`
	AssignedManager   string `yaml:"assigned_manager" validate:"required"`
	Comments          string `yaml:"comments" validate:"required"`
	DecisionDate      string `yaml:"decision_date" validate:"required"`
	GiftCardCode      string `yaml:"gift_card_code" validate:"required"`
	IssueDate         string `yaml:"issue_date" validate:"required"`
	RedemptionStatus  string `yaml:"redemption_status" validate:"required"`
	RedemptionValue   string `yaml:"redemption_value" validate:"required"`
	ExpiryDate        string `yaml:"expiry_date" validate:"required"`
	ROIImpact         string `yaml:"roi_impact" validate:"required"`
	OrderID           string `yaml:"order_id" validate:"required"`
}

// ColumnMap is the validated mapping table for both boards.
type ColumnMap struct {
	Employees EmployeeColumns `yaml:"employees"`
	Rewards   RewardColumns   `yaml:"rewards"`
}

// ColumnMapError lists every problem found in a column map.
type ColumnMapError struct {
	Problems []string
}

func (e *ColumnMapError) Error() string {
	return "invalid board column map: " + strings.Join(e.Problems, "; ")
}

// Validate checks that every semantic field has a column id and that no
// column id is mapped to two fields on the same board.
func (m ColumnMap) Validate() error {
	var problems []string

	if err := validator.New().Struct(m); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s is required", fe.Namespace()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	problems = append(problems, duplicateColumns("employees", m.Employees)...)
	problems = append(problems, duplicateColumns("rewards", m.Rewards)...)

	if len(problems) > 0 {
		return &ColumnMapError{Problems: problems}
	}
	return nil
}

// duplicateColumns reports column ids shared by more than one field of the
// struct v.
func duplicateColumns(board string, v any) []string {
	rv := reflect.ValueOf(v)
	rt := rv.Type()
	owners := make(map[string][]string)
	for i := 0; i < rt.NumField(); i++ {
		id := rv.Field(i).String()
		if id == "" {
			continue
		}
		owners[id] = append(owners[id], rt.Field(i).Tag.Get("yaml"))
	}

	var problems []string
	for id, fields := range owners {
		if len(fields) > 1 {
			problems = append(problems, fmt.Sprintf("%s: column %q mapped to %s", board, id, strings.Join(fields, ", ")))
		}
	}
	sort.Strings(problems)
	return problems
}
