// Package materialize turns expanded occurrence groups and posting payloads
// into line and rate records.
package materialize

// Kind identifies how occurrence groups are packed.
type Kind int

const (
	// Single packs one line per non-repeating input range.
	Single Kind = iota
	// RepeatedGroup packs every expanded occurrence of each source range.
	RepeatedGroup
	// PerWeekday packs one line per custom weekday range.
	PerWeekday
	// PerDayCustom packs one line per caller supplied custom day.
	PerDayCustom
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case RepeatedGroup:
		return "repeated_group"
	case PerWeekday:
		return "per_weekday"
	case PerDayCustom:
		return "per_day_custom"
	default:
		return "unknown"
	}
}

// Plan is the packing policy chosen once per posting.
type Plan struct {
	Kind Kind
	// PerIndexRates gives every output index its own rate list instead of
	// sharing the posted one. Only per-day custom postings set it.
	PerIndexRates bool
}

// SelectPlan maps the posting flags onto a Plan.
//
//	repeat custom perDay  kind           rates
//	F      F      -       Single         shared
//	T      F      -       RepeatedGroup  shared
//	F      T      F       PerWeekday     shared
//	F      T      T       PerDayCustom   per index
//	T      T      F       RepeatedGroup  shared
//	T      T      T       RepeatedGroup  per index
func SelectPlan(repeat, customSelected, customPerDay bool) Plan {
	perIndex := customSelected && customPerDay
	switch {
	case repeat:
		return Plan{Kind: RepeatedGroup, PerIndexRates: perIndex}
	case customSelected && customPerDay:
		return Plan{Kind: PerDayCustom, PerIndexRates: true}
	case customSelected:
		return Plan{Kind: PerWeekday}
	default:
		return Plan{Kind: Single}
	}
}

func (p Plan) String() string {
	if p.PerIndexRates {
		return p.Kind.String() + "+per_index_rates"
	}
	return p.Kind.String()
}
