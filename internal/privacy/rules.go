package privacy

import (
	"regexp"
	"strings"
	"unicode"
)

// DetectionRule is one regex scan of the pattern masker. Group selects the
// capture group that is replaced; text outside it is kept verbatim.
type DetectionRule struct {
	Name     string
	Category Category
	Pattern  *regexp.Regexp
	Group    int
	// Accept filters a candidate match. text is the whole input as of this
	// scan and start is the byte offset of the match inside it.
	Accept func(text string, start int, value string) bool
}

// PatternOptions tunes the default rule set
type PatternOptions struct {
	// SkipPhoneAfterSSN leaves a phone match untouched when an SSN
	// placeholder already appears anywhere before it.
	SkipPhoneAfterSSN bool
}

// capitalizedName is one or two capitalized words
const capitalizedName = `([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`

var (
	creditCardPattern = regexp.MustCompile(`\b(\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{1,7})\b`)
	ssnPattern        = regexp.MustCompile(`\b(\d{3}[-\s]?\d{2}[-\s]?\d{4})\b`)
	emailPattern      = regexp.MustCompile(`\b([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})\b`)
	phonePattern      = regexp.MustCompile(`((?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4})\b`)

	namePatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"name_my_name_is", regexp.MustCompile(`((?i:\bmy name is)\s+)` + capitalizedName)},
		{"name_i_m", regexp.MustCompile(`((?i:\bI['’]?m)\s+)` + capitalizedName)},
		{"name_i_am", regexp.MustCompile(`((?i:\bI am)\s+)` + capitalizedName)},
		{"name_label", regexp.MustCompile(`((?i:\bname:)\s*)` + capitalizedName)},
	}
)

// GetDefaultRules returns the rule list in scan order: credit card, SSN,
// email, phone, then the name lead-ins.
func GetDefaultRules(opts PatternOptions) []DetectionRule {
	rules := []DetectionRule{
		{
			Name:     "credit_card",
			Category: CategoryCreditCard,
			Pattern:  creditCardPattern,
			Group:    1,
		},
		{
			Name:     "ssn",
			Category: CategorySSN,
			Pattern:  ssnPattern,
			Group:    1,
			Accept: func(_ string, _ int, value string) bool {
				return countDigits(value) == 9
			},
		},
		{
			Name:     "email",
			Category: CategoryEmail,
			Pattern:  emailPattern,
			Group:    1,
		},
		{
			Name:     "phone",
			Category: CategoryPhone,
			Pattern:  phonePattern,
			Group:    1,
			Accept: func(text string, start int, _ string) bool {
				if !opts.SkipPhoneAfterSSN {
					return true
				}
				return !strings.Contains(text[:start], "["+CategorySSN.Label()+"_")
			},
		},
	}

	for _, np := range namePatterns {
		rules = append(rules, DetectionRule{
			Name:     np.name,
			Category: CategoryName,
			Pattern:  np.re,
			Group:    2,
		})
	}

	return rules
}

// apply runs the rule over text and replaces accepted captures with
// placeholders issued by the session.
func (r DetectionRule) apply(text string, session *Session) (string, int) {
	locs := r.Pattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, 0
	}

	var b strings.Builder
	last, hits := 0, 0
	for _, loc := range locs {
		gs, ge := loc[2*r.Group], loc[2*r.Group+1]
		if gs < 0 {
			continue
		}
		value := text[gs:ge]
		if r.Accept != nil && !r.Accept(text, loc[0], value) {
			continue
		}
		b.WriteString(text[last:gs])
		b.WriteString(session.Assign(r.Category, value))
		last = ge
		hits++
	}
	b.WriteString(text[last:])
	return b.String(), hits
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
