package dataset

import (
	"log"
	"strings"
)

// RecodeFunc maps a raw cell to its recoded value; ok=false marks the cell
// as missing
type RecodeFunc func(raw string) (value string, ok bool)

// Rule derives Target from Source. Rows where a Required rule yields a
// missing value are dropped.
type Rule struct {
	Source   string
	Target   string
	Required bool
	Map      RecodeFunc
}

// PrepReport summarises one preparation pass
type PrepReport struct {
	InputRows    int            `json:"input_rows"`
	OutputRows   int            `json:"output_rows"`
	Dropped      map[string]int `json:"dropped"`
	SkippedRules []string       `json:"skipped_rules,omitempty"`
}

// DroppedRows returns the total number of rows removed
func (r *PrepReport) DroppedRows() int {
	return r.InputRows - r.OutputRows
}

// Recoder applies a fixed list of rules in order
type Recoder struct {
	rules []Rule
}

// NewRecoder creates a recoder from rules
func NewRecoder(rules ...Rule) *Recoder {
	return &Recoder{rules: rules}
}

// ShotSheetRecoder returns the recodes of the raw penalty shot sheet
func ShotSheetRecoder() *Recoder {
	return NewRecoder(
		Rule{Source: "foot", Target: "foot_R", Required: true, Map: Categories(map[string]string{"R": "1", "L": "0"})},
		Rule{Source: "age", Target: "age", Required: true, Map: Numeric()},
		Rule{Source: "Favourite", Target: "fav_diff", Required: true, Map: NumericRange(-2, 2)},
		Rule{Source: "Favourite", Target: "fav_flag", Required: true, Map: Positive(-2, 2)},
		Rule{Source: "Great GK?", Target: "greatGK_flag", Required: true, Map: YesNo(true)},
		Rule{Source: "Decider?", Target: "decider_flag", Map: YesNo(false)},
		Rule{Source: "Ingame-Shootout?", Target: "ingame_flag", Required: true, Map: Categories(map[string]string{"Ingame": "1", "Shootout": "0"})},
		Rule{Source: "Location (H-A-N)", Target: "loc_home", Map: Equals("H")},
		Rule{Source: "Location (H-A-N)", Target: "loc_away", Map: Equals("A")},
		Rule{Source: "last penalty direction", Target: "last_dir", Map: Numeric()},
	)
}

// Apply recodes t into a new table. Source columns absent from t skip
// their rule; the skip is recorded in the report.
func (r *Recoder) Apply(t *RawTable) (*RawTable, *PrepReport) {
	report := &PrepReport{InputRows: t.Len(), Dropped: make(map[string]int)}

	active := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if !t.HasColumn(rule.Source) {
			report.SkippedRules = append(report.SkippedRules, rule.Target)
			log.Printf("[Recoder] column %q not found, %s not derived", rule.Source, rule.Target)
			continue
		}
		active = append(active, rule)
	}

	out := &RawTable{Headers: append([]string(nil), t.Headers...)}
	for _, rule := range active {
		out.addColumn(rule.Target)
	}

rows:
	for _, row := range t.Rows {
		next := make(Row, len(out.Headers))
		for k, v := range row {
			next[k] = v
		}
		for _, rule := range active {
			value, ok := rule.Map(row[rule.Source])
			if !ok {
				if rule.Required {
					report.Dropped[rule.Target]++
					continue rows
				}
				value = ""
			}
			next[rule.Target] = value
		}
		out.Rows = append(out.Rows, next)
	}

	report.OutputRows = out.Len()
	log.Printf("[Recoder] %d rows in, %d rows out (%d dropped)", report.InputRows, report.OutputRows, report.DroppedRows())
	return out, report
}

// Categories maps exact labels (after trimming) to codes
func Categories(codes map[string]string) RecodeFunc {
	return func(raw string) (string, bool) {
		v, ok := codes[strings.TrimSpace(raw)]
		return v, ok
	}
}

// YesNo maps yes/no to 1/0; caseless also accepts any capitalisation
func YesNo(caseless bool) RecodeFunc {
	return func(raw string) (string, bool) {
		s := strings.TrimSpace(raw)
		if caseless {
			s = strings.ToLower(s)
		}
		switch s {
		case "yes":
			return "1", true
		case "no":
			return "0", true
		}
		return "", false
	}
}

// Equals is the 0/1 dummy of raw == label. It never reports missing.
func Equals(label string) RecodeFunc {
	return func(raw string) (string, bool) {
		if strings.TrimSpace(raw) == label {
			return "1", true
		}
		return "0", true
	}
}

// Numeric keeps parsable numbers
func Numeric() RecodeFunc {
	return func(raw string) (string, bool) {
		v, ok := parseNumber(raw)
		if !ok {
			return "", false
		}
		return formatNumber(v), true
	}
}

// NumericRange keeps numbers inside [lo, hi]
func NumericRange(lo, hi float64) RecodeFunc {
	return func(raw string) (string, bool) {
		v, ok := parseNumber(raw)
		if !ok || v < lo || v > hi {
			return "", false
		}
		return formatNumber(v), true
	}
}

// Positive is the 0/1 flag of v > 0 for numbers inside [lo, hi]
func Positive(lo, hi float64) RecodeFunc {
	return func(raw string) (string, bool) {
		v, ok := parseNumber(raw)
		if !ok || v < lo || v > hi {
			return "", false
		}
		if v > 0 {
			return "1", true
		}
		return "0", true
	}
}
