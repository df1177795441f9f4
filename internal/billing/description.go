package billing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// installmentSuffix matches a trailing "(k/N)" as rendered on grouped installments.
var installmentSuffix = regexp.MustCompile(`\s*\((\d+)\s*/\s*(\d+)\)\s*$`)

// StripInstallmentSuffix removes a trailing "(k/N)" from a description.
// Rows imported before the explicit definition key existed are grouped by this.
func StripInstallmentSuffix(description string) string {
	return strings.TrimSpace(installmentSuffix.ReplaceAllString(description, ""))
}

// ParseInstallmentSuffix extracts k and N from a trailing "(k/N)".
func ParseInstallmentSuffix(description string) (number, total int, ok bool) {
	m := installmentSuffix.FindStringSubmatch(description)
	if m == nil {
		return 0, 0, false
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return number, total, true
}

// RenderInstallmentDescription renders "<base> (k/N)". Single-installment
// groups keep the bare description.
func RenderInstallmentDescription(base string, number, total int) string {
	base = StripInstallmentSuffix(base)
	if total <= 1 {
		return base
	}
	return fmt.Sprintf("%s (%d/%d)", base, number, total)
}
