// Package query turns a free-text investigation query into an intent and
// the structured parameters the planner needs.
package query

import (
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/util"
)

const minYear = 1990

var (
	// digit runs with the separators tax ids are written with
	taxIDPattern = regexp.MustCompile(`\d[\d./-]{9,20}\d`)

	// "1.000.000" is an amount, not a tax id
	thousandsPattern = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)

	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\b`)
	isoDatePattern     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?Z?)?\b`)
	monthYearPattern   = regexp.MustCompile(`(?i)\b(janeiro|fevereiro|março|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro|jan|fev|mar|abr|mai|jun|jul|ago|set|out|nov|dez)\.?(?:\s+de\s+|/|\s+)(\d{4})\b`)
	yearPattern        = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	wordPattern        = regexp.MustCompile(`[\p{L}\p{N}]+`)

	// amounts: "R$ 1.500.000,00", "R$ 2 milhões", "500 mil reais"
	moneyPattern = regexp.MustCompile(`(?i)(?:R\$\s*([\d.,]+)(?:\s*(mil|milh(?:ão|ao|ões|oes)|bilh(?:ão|ao|ões|oes)))?)|(?:\b([\d.,]+)\s*(mil|milh(?:ão|ao|ões|oes)|bilh(?:ão|ao|ões|oes))\b(?:\s+de)?(?:\s+reais)?)`)
	thresholdPattern = regexp.MustCompile(`(?i)(acima\s+de|superior(?:es)?\s+a|maior(?:es)?\s+(?:que|do\s+que)|mais\s+de|a\s+partir\s+de|>=?)\s*$`)

	quotedPattern = regexp.MustCompile(`["“]([^"”]{2,})["”]`)
)

// month names and abbreviations, January first
var monthNames = [12][]string{
	{"janeiro", "jan"},
	{"fevereiro", "fev"},
	{"março", "marco", "mar"},
	{"abril", "abr"},
	{"maio", "mai"},
	{"junho", "jun"},
	{"julho", "jul"},
	{"agosto", "ago"},
	{"setembro", "set"},
	{"outubro", "out"},
	{"novembro", "nov"},
	{"dezembro", "dez"},
}

// two-letter codes of the 27 federative units
var regionCodes = strings.Fields("AC AL AP AM BA CE DF ES GO MA MT MS MG PA PB PR PE PI RJ RN RS RO RR SC SP SE TO")

// words that introduce a company name
var companyIndicators = []string{"empresa", "fornecedor", "fornecedora", "companhia", "construtora", "firma", "contratada"}

// words that start an agency name; they are part of the name
var agencyIndicators = []string{
	"ministério", "ministerio", "secretaria", "prefeitura", "agência", "agencia", "fundação", "fundacao",
	"universidade", "instituto", "departamento", "tribunal", "câmara", "camara", "governo", "autarquia",
	"superintendência", "superintendencia", "hospital", "órgão", "orgao",
}

// lowercase words allowed inside a multi-word name
var nameConnectors = map[string]bool{"de": true, "da": true, "do": true, "das": true, "dos": true, "e": true}

// tokens that end a captured name
var nameStops = map[string]bool{"CNPJ": true, "CPF": true}

// Extractor recognizes structured parameters in a query. It never fails.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an extractor
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// Extract returns every parameter recognized in the query; unmatched fields stay empty
func (e *Extractor) Extract(query string) model.Parameters {
	var p model.Parameters

	p.CNPJ, p.CPF = extractTaxIDs(query)

	dates := extractDates(query)
	if len(dates) > 0 {
		start, end := dates[0], dates[len(dates)-1]
		p.StartDate = &start
		p.EndDate = &end
	}

	p.Year = e.extractYear(query)
	p.Region = extractRegion(query)
	p.CompanyName = extractCompany(query)
	p.AgencyName = extractAgency(query)
	p.MinValue = extractMinValue(query)

	return p
}

func extractTaxIDs(query string) (cnpj, cpf string) {
	for _, tok := range taxIDPattern.FindAllString(query, -1) {
		if thousandsPattern.MatchString(tok) || numericDatePattern.MatchString(tok) {
			continue
		}
		digits := util.Digits(tok)
		switch {
		case len(digits) == 14 && cnpj == "":
			cnpj = digits
		case len(digits) == 11 && cpf == "":
			cpf = digits
		}
	}
	return cnpj, cpf
}

// extractDates parses every recognizable date and returns them sorted
func extractDates(query string) []time.Time {
	var dates []time.Time

	for _, m := range numericDatePattern.FindAllStringSubmatch(query, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		// day first, as written in Brazil
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() == day && int(t.Month()) == month {
			dates = append(dates, t)
		}
	}

	for _, s := range isoDatePattern.FindAllString(query, -1) {
		t, err := dateparse.ParseAny(s)
		if err != nil {
			continue
		}
		dates = append(dates, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
	}

	for _, m := range monthYearPattern.FindAllStringSubmatch(query, -1) {
		month := parseMonth(m[1])
		if month == 0 {
			continue
		}
		year, _ := strconv.Atoi(m[2])
		dates = append(dates, time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func parseMonth(name string) time.Month {
	name = strings.ToLower(name)
	for i, names := range monthNames {
		if slices.Contains(names, name) {
			return time.Month(i + 1)
		}
	}
	return 0
}

// extractYear returns the first plausible four-digit year
func (e *Extractor) extractYear(query string) int {
	maxYear := e.now().Year() + 1
	// tax ids contain digit runs that look like years
	cleaned := taxIDPattern.ReplaceAllStringFunc(query, func(tok string) string {
		if n := len(util.Digits(tok)); n == 14 || n == 11 {
			return " "
		}
		return tok
	})
	for _, s := range yearPattern.FindAllString(cleaned, -1) {
		y, _ := strconv.Atoi(s)
		if y >= minYear && y <= maxYear {
			return y
		}
	}
	return 0
}

// extractRegion matches two-letter state codes written as whole uppercase tokens
func extractRegion(query string) string {
	for _, w := range wordPattern.FindAllString(query, -1) {
		if len(w) == 2 && slices.Contains(regionCodes, w) {
			return w
		}
	}
	return ""
}

func extractCompany(query string) string {
	for _, ind := range companyIndicators {
		_, end := indexWord(query, ind)
		if end < 0 {
			continue
		}
		rest := query[end:]
		if m := quotedPattern.FindStringSubmatchIndex(rest); m != nil && strings.TrimSpace(rest[:m[0]]) == "" {
			return strings.TrimSpace(rest[m[2]:m[3]])
		}
		words := capitalizedRun(rest)
		for len(words) > 0 && nameConnectors[words[0]] {
			words = words[1:]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	if m := quotedPattern.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractAgency captures the earliest indicator word together with the
// name that follows it ("Ministério da Saúde", "Prefeitura de São Paulo")
func extractAgency(query string) string {
	best, bestIdx := "", -1
	for _, ind := range agencyIndicators {
		idx, end := indexWord(query, ind)
		if idx < 0 || (bestIdx >= 0 && idx >= bestIdx) {
			continue
		}
		tail := capitalizedRun(query[end:])
		if len(tail) == 0 {
			continue
		}
		head := []rune(query[idx:end])
		head[0] = unicode.ToUpper(head[0])
		best, bestIdx = string(head)+" "+strings.Join(tail, " "), idx
	}
	return best
}

// capitalizedRun captures the name at the start of s: capitalized words,
// possibly joined by lowercase connectors. The run ends at a lowercase word,
// a number, a tax id label or trailing punctuation.
func capitalizedRun(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		clean := strings.TrimRight(w, ",;:!?).")
		if clean == "" {
			break
		}
		if nameStops[strings.ToUpper(clean)] || isNumeric(clean) {
			break
		}
		first, _ := utf8.DecodeRuneInString(clean)
		switch {
		case nameConnectors[clean]:
			out = append(out, clean)
		case unicode.IsUpper(first):
			out = append(out, clean)
		default:
			return trimConnectors(out)
		}
		// "S.A." keeps going; "Alfa," ends the name
		if clean != w && !strings.Contains(clean, ".") {
			break
		}
	}
	return trimConnectors(out)
}

func trimConnectors(words []string) []string {
	for len(words) > 0 && nameConnectors[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return words
}

func isNumeric(w string) bool {
	d := util.Digits(w)
	return d != "" && len(d)*2 >= len(w)
}

// indexWord finds word as a whole token of s, ignoring case. Offsets refer to
// s itself, so callers can slice the original query with them.
func indexWord(s, word string) (start, end int) {
	for _, span := range wordPattern.FindAllStringIndex(s, -1) {
		if strings.EqualFold(s[span[0]:span[1]], word) {
			return span[0], span[1]
		}
	}
	return -1, -1
}

// extractMinValue returns the amount introduced by a threshold phrase,
// or the first amount in the query
func extractMinValue(query string) float64 {
	var first float64
	for _, m := range moneyPattern.FindAllStringSubmatchIndex(query, -1) {
		num, unit := submatch(query, m, 2), submatch(query, m, 4)
		if num == "" {
			num, unit = submatch(query, m, 6), submatch(query, m, 8)
		}
		v, ok := model.ParseAmount(num)
		if !ok {
			continue
		}
		v *= multiplier(unit)
		if thresholdPattern.MatchString(query[:m[0]]) {
			return v
		}
		if first == 0 {
			first = v
		}
	}
	return first
}

func submatch(s string, m []int, i int) string {
	if m[i] < 0 {
		return ""
	}
	return s[m[i]:m[i+1]]
}

func multiplier(unit string) float64 {
	u := util.NormalizeName(unit)
	switch {
	case u == "mil":
		return 1e3
	case strings.HasPrefix(u, "milh"):
		return 1e6
	case strings.HasPrefix(u, "bilh"):
		return 1e9
	default:
		return 1
	}
}

// hasMoney reports whether the query mentions an amount
func hasMoney(query string) bool {
	return moneyPattern.MatchString(query)
}
