// Package scholarship turns a test score into a discount, a coupon code and
// a fee breakdown. Everything here is free of I/O.
package scholarship

import (
	"fmt"
	"math"

	"admissions-go/internal/models"
	"admissions-go/internal/utils"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	MaxDiscount      = 90
	couponSuffixLen  = 6
	scoreToDiscount  = 1.5
	DefaultCouponTag = "SCHOLAR"
)

// DiscountFromScore is the intake formula: floor(score / 1.5) clamped to [0, 90].
func DiscountFromScore(score int) int {
	return ClampDiscount(int(math.Floor(float64(score) / scoreToDiscount)))
}

// ClampDiscount keeps a discount percentage inside [0, MaxDiscount].
func ClampDiscount(d int) int {
	switch {
	case d < 0:
		return 0
	case d > MaxDiscount:
		return MaxDiscount
	default:
		return d
	}
}

// NewCouponCode returns prefix followed by six random A-Z0-9 characters.
func NewCouponCode(prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultCouponTag
	}
	suffix, err := utils.RandomUpperAlphanumeric(couponSuffixLen)
	if err != nil {
		return "", fmt.Errorf("generate coupon suffix: %w", err)
	}
	return prefix + suffix, nil
}

// Breakdown is the fee summary mailed to a qualifying student. Amounts are
// whole rupees.
type Breakdown struct {
	PlanName          string `json:"planName"`
	DiscountPercent   int    `json:"discountPercent"`
	MRPAmount         int64  `json:"mrpAmount"`
	ScholarshipAmount int64  `json:"scholarshipAmount"`
	FinalFee          int64  `json:"finalFee"`
}

// Calculate builds the breakdown for a plan at the given discount.
func Calculate(plan models.Plan, discount int) Breakdown {
	discount = ClampDiscount(discount)
	scholarship := int64(math.Round(float64(plan.MRP) * float64(discount) / 100))
	return Breakdown{
		PlanName:          plan.Name,
		DiscountPercent:   discount,
		MRPAmount:         plan.MRP,
		ScholarshipAmount: scholarship,
		FinalFee:          plan.MRP - scholarship,
	}
}

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders an amount with Indian digit grouping, e.g. ₹1,20,000.
func FormatINR(amount int64) string {
	return inrPrinter.Sprintf("₹%d", amount)
}
