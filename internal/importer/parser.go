// Package importer turns pasted delimited text into grouped yarn purchase
// documents and runs each group through the intake workflow.
package importer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/milltrack-erp/milltrack/internal/shared"
)

// Row is one normalized import line.
type Row struct {
	SupplierName string
	FactoryName  string
	NoteNo       string
	NoteDate     string
	YarnType     string
	YarnBrand    string
	LotNo        string
	Qty          string
	Price        string
}

// fixedOrder is the positional schema assumed when no header row is present.
var fixedOrder = []string{
	"supplier_name", "factory_name", "supplier_note_no", "supplier_note_date",
	"yarn_type", "yarn_brand", "lot_no", "qty", "price",
}

// headerAliases maps canonical field names to accepted header variants
// (english and arabic). Keys are compared after headerKey normalization.
var headerAliases = map[string][]string{
	"supplier_name":      {"supplier_name", "supplier", "المورد", "مورد", "اسم_المورد", "اسم المورد"},
	"factory_name":       {"factory_name", "factory", "مصنع", "المصنع", "مصنع_الخام", "اسم_المصنع", "اسم المصنع"},
	"supplier_note_no":   {"supplier_note_no", "note_no", "receipt_no", "رقم_الأذن", "رقم الاذن", "رقم رسالة المورد", "supplier_note_number"},
	"supplier_note_date": {"supplier_note_date", "note_date", "receipt_date", "التاريخ", "تاريخ", "تاريخ رسالة المورد"},
	"yarn_type":          {"yarn_type", "type", "نوع_الخيط", "نوع الخيط", "نوع الغزل"},
	"yarn_brand":         {"yarn_brand", "brand", "ماركة_الخيط", "ماركة الخيط", "ماركة الغزل"},
	"lot_no":             {"lot_no", "lot", "لوط", "رقم_اللوط", "رقم اللوط"},
	"qty":                {"qty", "quantity", "الكمية", "كمية"},
	"price":              {"price", "السعر", "سعر"},
}

var letterPattern = regexp.MustCompile(`[A-Za-z\x{0600}-\x{06FF}]`)

// splitLine splits one line, preferring tab when present, else comma.
func splitLine(line string) []string {
	delim := ","
	if strings.Contains(line, "\t") {
		delim = "\t"
	}
	cells := strings.Split(line, delim)
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// headerKey normalizes a header cell for alias matching.
func headerKey(h string) string {
	k := shared.NormKey(h)
	k = strings.ReplaceAll(k, " ", "_")
	return strings.ReplaceAll(k, "-", "_")
}

// hasHeader reports whether the first line looks like a header row. The
// heuristic is crude: any cell containing letters counts.
func detectHasHeader(cells []string) bool {
	for _, c := range cells {
		if letterPattern.MatchString(c) {
			return true
		}
	}
	return false
}

func normalizedAliases(canonical string) []string {
	raw := headerAliases[canonical]
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		out = append(out, headerKey(a))
	}
	return out
}

func pick(record map[string]string, canonical string) string {
	for _, k := range normalizedAliases(canonical) {
		if v, ok := record[k]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func normalizeRow(record map[string]string) Row {
	return Row{
		SupplierName: pick(record, "supplier_name"),
		FactoryName:  pick(record, "factory_name"),
		NoteNo:       shared.ASCIIDigits(pick(record, "supplier_note_no")),
		NoteDate:     pick(record, "supplier_note_date"),
		YarnType:     pick(record, "yarn_type"),
		YarnBrand:    pick(record, "yarn_brand"),
		LotNo:        shared.ASCIIDigits(pick(record, "lot_no")),
		Qty:          shared.ASCIIDigits(pick(record, "qty")),
		Price:        shared.ASCIIDigits(pick(record, "price")),
	}
}

// Parse splits raw pasted text into normalized rows. A header row is
// auto-detected; with one present, field order follows header names rather
// than position.
func Parse(raw string) ([]Row, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("importer: %w: no data", shared.ErrValidation)
	}

	first := splitLine(lines[0])
	var headers []string
	start := 0
	if detectHasHeader(first) {
		headers = make([]string, len(first))
		for i, h := range first {
			headers[i] = headerKey(h)
		}
		start = 1
	}

	var rows []Row
	for _, line := range lines[start:] {
		cells := splitLine(line)
		empty := true
		for _, c := range cells {
			if c != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		record := make(map[string]string, len(cells))
		if headers != nil {
			for i, h := range headers {
				if i < len(cells) {
					record[h] = cells[i]
				}
			}
		} else {
			for i, name := range fixedOrder {
				if i < len(cells) {
					record[name] = cells[i]
				}
			}
		}
		rows = append(rows, normalizeRow(record))
	}
	return rows, nil
}

// GroupKey is the document identity of one row: same supplier, factory,
// note number and date means same document.
func GroupKey(r Row) string {
	return strings.Join([]string{
		shared.NormKey(r.SupplierName),
		shared.NormKey(r.FactoryName),
		shared.ASCIIDigits(r.NoteNo),
		strings.TrimSpace(r.NoteDate),
	}, "|")
}

// Group buckets rows into documents, preserving first-seen order.
func Group(rows []Row) [][]Row {
	index := make(map[string]int)
	var groups [][]Row
	for _, r := range rows {
		k := GroupKey(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}
