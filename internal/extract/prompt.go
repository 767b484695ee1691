package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = "You are an information extraction service for invoices. " +
	"Return STRICT JSON only (no prose). Use null for unknowns."

// buildUserPrompt creates the extraction prompt for a document's OCR text.
// The key spellings here are the canonical field contract; fields.Normalize
// consumes them verbatim.
func buildUserPrompt(text string) string {
	var b strings.Builder

	b.WriteString(`Extract the following fields from the invoice text.
Return a SINGLE JSON object with EXACT keys and the following constraints:

Keys (exact spelling):
- "Invoice Number": string
- "Invoice Date": string (YYYY-MM-DD if possible)
- "Due Date": string (YYYY-MM-DD or null)
- "Vendor Name": string or null
- "Vendor Address": string or null
- "PO Number": string or null
- "Billing Period": string or null
- "Account Number": string or null
- "Account Name": string or null
- "Account Manager": string or null
- "Tax Code": string or null
- "Subtotal": string or null                # numeric string, e.g., "680.00"
- "Tax Amount": string or null              # numeric string, e.g., "34.00"
- "Currency": string or null                # ISO code if obvious (USD, CAD, GBP, EUR, INR)
- "Total Amount": string                    # numeric string, required
- "Line Description": string or null        # short human label for this invoice (vendor + invno)

Normalization rules:
- Dates: prefer ISO YYYY-MM-DD if you can infer; else keep as seen.
- Amounts: output ONLY digits and a decimal point (strip currency symbols and commas).
- Currency: output a code like USD/CAD/INR/GBP/EUR if present or clearly implied; else null.
- If a field truly does not appear, set it to null.

Example output:
{
  "Invoice Number": "INV-101905",
  "Invoice Date": "2025-08-05",
  "Due Date": "2025-08-24",
  "Vendor Name": "Scott Inc",
  "Vendor Address": "123 Example St, Toronto, ON",
  "PO Number": "PO-77831",
  "Billing Period": "2025-07",
  "Account Number": "5850133469",
  "Account Name": "Innovate Wireless Partnerships",
  "Account Manager": "Cody Burke",
  "Tax Code": "VAT-20%",
  "Subtotal": "680.00",
  "Tax Amount": "34.00",
  "Currency": "CAD",
  "Total Amount": "714.00",
  "Line Description": "Scott Inc — INV-101905"
}

INVOICE TEXT:
`)
	fmt.Fprintf(&b, "%q\n", text)

	return b.String()
}

// decodeModelJSON parses model output into a raw mapping, tolerating the
// usual failure modes: Markdown code fences around the JSON, and prose
// wrapped around a JSON object. When nothing parses, it returns an empty
// mapping — downstream normalization surfaces the failure as null fields.
func decodeModelJSON(raw string) map[string]any {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimPrefix(raw, "json")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		return data
	}

	// Last ditch: the span from the first "{" to the last "}".
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), &data); err == nil {
			return data
		}
	}

	return map[string]any{}
}

// cleanAmountValues strips currency symbols and thousands separators from
// the amount keys in place. The prompt already asks for bare numeric
// strings, but model compliance is not guaranteed.
func cleanAmountValues(m map[string]any) {
	for _, k := range []string{"Subtotal", "Tax Amount", "Total Amount"} {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.ReplaceAll(s, "$", "")
		s = strings.ReplaceAll(s, ",", "")
		m[k] = strings.TrimSpace(s)
	}
}
