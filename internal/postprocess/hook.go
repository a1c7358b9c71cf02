// Package postprocess holds optional hooks that run after an answer is presented.
package postprocess

import (
	"context"
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Hook inspects a finished turn and returns a notice to print, or "" for none.
type Hook interface {
	Name() string
	After(ctx context.Context, question string, answer *models.Answer) string
}

var financialKeywords = []string{
	"finance", "economy", "investment", "stocks", "dividends", "earnings",
	"income", "balance", "accounting", "loan", "mortgage", "interest",
	"credit", "debt", "credit card", "taxes", "tax return", "refund",
	"inflation", "stock market", "stock exchange", "quote", "stock quote",
	"funds", "assets", "liabilities", "cash flow",
}

var financialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\d+(?:\.\d+)?`),
	regexp.MustCompile(`\d+(?:,\d+)*(?:\.\d+)?%`),
	regexp.MustCompile(`\b\d+(?:,\d+)*(?:\.\d+)?[MB]\b`),
	regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`),
	regexp.MustCompile(`\b\d{2}-\d{2}-\d{4}\b`),
}

// FinancialNoticeText is printed after answers to financial questions.
const FinancialNoticeText = "Note: this question looks financial. The answer is generated from your documents and is not financial advice."

// FinancialNotice flags questions about money, markets or dated figures.
type FinancialNotice struct{}

// Name implements Hook.
func (FinancialNotice) Name() string { return "financial-notice" }

// After implements Hook.
func (f FinancialNotice) After(_ context.Context, question string, _ *models.Answer) string {
	if IsFinancial(question) {
		return FinancialNoticeText
	}
	return ""
}

// IsFinancial reports whether text mentions a financial keyword or contains an
// amount, percentage or date.
func IsFinancial(text string) bool {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	joined := " " + strings.Join(words, " ") + " "
	for _, kw := range financialKeywords {
		if strings.Contains(joined, " "+kw+" ") {
			return true
		}
	}
	for _, re := range financialPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
