package amounts

import (
	"fmt"
	"strings"
)

const tokensPrompt = `Extract all numeric tokens that could be monetary amounts from the following text and identify the currency.

Text:
"""
%s
"""

Return a JSON object with this exact structure:
{
  "raw_tokens": ["list", "of", "numeric", "tokens", "found"],
  "currency_hint": "detected currency code (INR, USD, EUR, GBP, etc.)",
  "confidence": 0.85
}

Rules:
- Include all numbers that could be amounts (prices, totals, discounts, etc.)
- Include percentages as tokens (e.g. "10%%")
- Leave out page numbers, dates, phone numbers and other non-monetary numbers
- Keep each token exactly as written, including OCR mistakes such as "1O0"
- If no amounts are found, return: {"status": "no_amounts_found", "reason": "no monetary amounts detected"}
- Confidence is between 0.0 and 1.0 and reflects text clarity and detection quality

Only return valid JSON, no other text.`

const classifyPrompt = `Given the following text and amounts, classify each amount by its type based on the surrounding context.

Text:
"""
%s
"""

Amounts: [%s]

Return a JSON object with this exact structure:
{
  "amounts": [
    {"type": "total_bill", "value": 1200, "entity": "Grand Total"},
    {"type": "paid", "value": 1000, "entity": "Amount Paid"},
    {"type": "due", "value": 200, "entity": "Outstanding Balance"}
  ],
  "confidence": 0.85
}

Types:
- "total_bill": total amount, grand total, bill total, amount due, final amount
- "paid": amount paid, payment received, paid amount
- "due": outstanding balance, amount due, remaining amount
- "discount": discount amount, reduction, off amount
- "tax": tax amount, GST, CGST, SGST, VAT, service tax
- "subtotal": subtotal, base amount before taxes
- "other": anything not listed above

For every amount copy the label exactly as it is written next to it in the text:
- "ROOM RENT 4,000.00" -> entity: "ROOM RENT"
- "Bill Amount 15,143.54" -> entity: "Bill Amount"
- "Received Rs.420 by Cash" -> entity: "Received"
- "Refundable Deposit Rs.5000" -> entity: "Refundable Deposit"

Rules:
- Use the words around each amount to decide its type
- If an amount cannot be clearly classified, use "other"
- Include every amount from the list exactly once
- Confidence is between 0.0 and 1.0 and reflects how clear the context is

Only return valid JSON, no other text.`

func buildTokensPrompt(text string) string {
	return fmt.Sprintf(tokensPrompt, text)
}

func buildClassifyPrompt(text string, values []float64) string {
	rendered := make([]string, len(values))
	for i, v := range values {
		rendered[i] = formatValue(v)
	}
	return fmt.Sprintf(classifyPrompt, text, strings.Join(rendered, ", "))
}
