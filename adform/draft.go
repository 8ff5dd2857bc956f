package adform

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Condition of the item being sold.
type Condition string

const (
	ConditionNew         Condition = "New"
	ConditionUsed        Condition = "Used"
	ConditionRefurbished Condition = "Refurbished"
)

func ParseCondition(s string) (Condition, error) {
	switch c := Condition(strings.TrimSpace(s)); c {
	case ConditionNew, ConditionUsed, ConditionRefurbished:
		return c, nil
	}
	return "", fmt.Errorf("%w: condition %q", ErrInvalidValue, s)
}

// Field names a Draft field as the form addresses it.
type Field string

const (
	FieldTitle        Field = "title"
	FieldCategory     Field = "category"
	FieldDescription  Field = "description"
	FieldPrice        Field = "price"
	FieldCondition    Field = "condition"
	FieldRegion       Field = "region"
	FieldCity         Field = "city"
	FieldIsNegotiable Field = "is_negotiable"
)

// Draft is a listing under construction. It belongs to exactly one Machine.
type Draft struct {
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	Description  string    `json:"description"`
	Price        string    `json:"price"`
	Condition    Condition `json:"condition"`
	Region       string    `json:"region"`
	City         string    `json:"city"`
	IsNegotiable bool      `json:"is_negotiable"`
}

// NewDraft returns the empty draft a session starts from. Text fields are blank;
// the selectors carry the form defaults.
func NewDraft() Draft {
	return Draft{
		Condition:    ConditionUsed,
		Region:       DefaultRegion,
		IsNegotiable: true,
	}
}

func (d *Draft) set(f Field, value string) error {
	switch f {
	case FieldTitle:
		d.Title = value
	case FieldCategory:
		d.Category = value
	case FieldDescription:
		d.Description = value
	case FieldPrice:
		d.Price = value
	case FieldRegion:
		d.Region = value
	case FieldCity:
		d.City = value
	case FieldCondition:
		c, err := ParseCondition(value)
		if err != nil {
			return err
		}
		d.Condition = c
	case FieldIsNegotiable:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: is_negotiable %q", ErrInvalidValue, value)
		}
		d.IsNegotiable = b
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, string(f))
	}
	return nil
}

func (d Draft) value(f Field) string {
	switch f {
	case FieldTitle:
		return d.Title
	case FieldCategory:
		return d.Category
	case FieldDescription:
		return d.Description
	case FieldPrice:
		return d.Price
	case FieldCity:
		return d.City
	}
	return ""
}

// Missing lists the required fields of step that are still blank.
func (d Draft) Missing(step Step) []Field {
	var missing []Field
	for _, f := range step.Required() {
		if strings.TrimSpace(d.value(f)) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Complete reports whether every step's required fields are filled in.
func (d Draft) Complete() bool {
	for s := StepCategory; s <= StepLocation; s++ {
		if len(d.Missing(s)) > 0 {
			return false
		}
	}
	return true
}

// Step is the form page the seller is on.
type Step int

const (
	StepCategory Step = iota + 1
	StepDetails
	StepLocation
)

var requiredByStep = map[Step][]Field{
	StepCategory: {FieldTitle, FieldCategory},
	StepDetails:  {FieldDescription, FieldPrice},
	StepLocation: {FieldCity},
}

// Required returns the fields that must be filled before leaving the step
// (for StepLocation: before submitting).
func (s Step) Required() []Field {
	return requiredByStep[s]
}

func (s Step) String() string {
	switch s {
	case StepCategory:
		return "category"
	case StepDetails:
		return "details"
	case StepLocation:
		return "location"
	}
	return "step(" + strconv.Itoa(int(s)) + ")"
}

// Listing is the published snapshot of a Draft. ID, SellerID, PostedAt and the
// rendered description are assigned by the persistence collaborator.
type Listing struct {
	ID              string    `json:"id"`
	SellerID        string    `json:"seller_id"`
	PostedAt        time.Time `json:"posted_at"`
	Currency        string    `json:"currency"`
	DescriptionHTML string    `json:"description_html"`
	Draft
}
