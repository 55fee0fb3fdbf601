package domain

import (
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var payeeKeys = []string{"payee name", "payee", "pay to", "vendor", "supplier", "supplier name"}
var invoiceNumberKeys = []string{"invoice number", "invoice no", "invoice"}
var dueDateKeys = []string{"due date", "payment due", "payment due date"}
var totalKeys = []string{"total", "total amount", "amount due", "total due"}
var statusKeys = []string{"approval status", "payment status", "status"}

// ExtractInvoiceFields reassembles the form key-value pairs of an analysis
// result into invoice payment fields. A KEY block is paired with the next
// VALUE block in sequence; the engine emits them in that order.
func ExtractInvoiceFields(res AnalysisResult) InvoiceFields {
	pairs := make(map[string]string)
	pendingKey := ""
	havePending := false
	for _, block := range res.Blocks {
		if block.BlockType != BlockTypeKeyValueSet {
			continue
		}
		switch {
		case block.HasEntityType(EntityTypeKey):
			pendingKey = normalizeKey(block.Text)
			havePending = pendingKey != ""
		case block.HasEntityType(EntityTypeValue):
			if !havePending {
				continue
			}
			if _, seen := pairs[pendingKey]; !seen {
				pairs[pendingKey] = strings.TrimSpace(block.Text)
			}
			havePending = false
		}
	}

	fields := InvoiceFields{
		PayeeName:     firstValue(pairs, payeeKeys),
		InvoiceNumber: firstValue(pairs, invoiceNumberKeys),
		DueDate:       firstValue(pairs, dueDateKeys),
		StatusText:    firstValue(pairs, statusKeys),
	}
	if raw := firstValue(pairs, totalKeys); raw != "" {
		if amount, err := parseAmount(raw); err == nil {
			fields.TotalAmount = amount
		}
	}
	return fields
}

// Decide derives the payment-approval decision for an analysis result. It is
// a pure function of its inputs: no side effects, no external calls, safe to
// replay. A document with an explicit unrecognized status carries that status
// through verbatim; the router treats everything except an approval as a
// review candidate, so nothing is ever silently dropped.
func Decide(res AnalysisResult, maxAutoApproveAmount float64) Decision {
	fields := ExtractInvoiceFields(res)
	failed := evaluateInvoiceRules(fields, maxAutoApproveAmount)

	if len(failed) > 0 {
		return Decision{Status: DecisionPendingReview, FailedRules: failed, Invoice: fields}
	}

	switch normalizeKey(fields.StatusText) {
	case "", "approved", "approved for payment":
		return Decision{Status: DecisionApprovedForPayment, Invoice: fields}
	case "rejected":
		return Decision{Status: DecisionRejected, Invoice: fields}
	default:
		return Decision{Status: DecisionStatus(fields.StatusText), Invoice: fields}
	}
}

func evaluateInvoiceRules(fields InvoiceFields, maxAutoApproveAmount float64) []string {
	failed := make([]string, 0)

	if fields.PayeeName == "" {
		failed = append(failed, "invoice.payee_name_present")
	}
	if fields.InvoiceNumber == "" {
		failed = append(failed, "invoice.invoice_number_present")
	}
	if fields.DueDate == "" {
		failed = append(failed, "invoice.due_date_present")
	} else if _, err := time.Parse(dateLayout, fields.DueDate); err != nil {
		failed = append(failed, "invoice.due_date_parseable")
	}
	if fields.TotalAmount <= 0 {
		failed = append(failed, "invoice.total_amount_gt_zero")
	} else if fields.TotalAmount > maxAutoApproveAmount {
		failed = append(failed, "invoice.total_within_auto_approval_limit")
	}

	return failed
}

func normalizeKey(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimRight(v, ":#")
	return strings.Join(strings.Fields(v), " ")
}

func firstValue(pairs map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := pairs[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func parseAmount(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	return strconv.ParseFloat(cleaned, 64)
}
