package changes

import "sort"

// LineChanges holds the records of one line and of the rates it owns.
type LineChanges struct {
	Fields []Record `json:"fields"`
	Rates  []Record `json:"rates"`
}

// HeaderChanges holds the records of one header and its lines.
type HeaderChanges struct {
	Header []Record                `json:"header"`
	Lines  map[string]*LineChanges `json:"lines"`
}

// Summary nests records as header id → header fields, then line id → line
// fields and rate records. It is the structure the notification renderer
// consumes.
type Summary map[string]*HeaderChanges

// Aggregate builds the nested summary. Line and rate records that could not
// be resolved to a line are left out; they stay in the flat record list.
func Aggregate(records []Record) Summary {
	summary := Summary{}
	for _, r := range records {
		hc, ok := summary[r.HeaderID]
		if !ok {
			hc = &HeaderChanges{Header: []Record{}, Lines: map[string]*LineChanges{}}
			summary[r.HeaderID] = hc
		}
		if r.Table == TableHeader {
			hc.Header = append(hc.Header, r)
			continue
		}
		if r.LineID == "" {
			continue
		}
		lc, ok := hc.Lines[r.LineID]
		if !ok {
			lc = &LineChanges{Fields: []Record{}, Rates: []Record{}}
			hc.Lines[r.LineID] = lc
		}
		if r.Table == TableRates {
			lc.Rates = append(lc.Rates, r)
		} else {
			lc.Fields = append(lc.Fields, r)
		}
	}
	return summary
}

// HeaderIDs returns the summary keys in ascending order.
func (s Summary) HeaderIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LineIDs returns the line keys in ascending order.
func (h *HeaderChanges) LineIDs() []string {
	ids := make([]string, 0, len(h.Lines))
	for id := range h.Lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether the summary carries no record at all.
func (s Summary) Empty() bool {
	for _, hc := range s {
		if len(hc.Header) > 0 {
			return false
		}
		for _, lc := range hc.Lines {
			if len(lc.Fields) > 0 || len(lc.Rates) > 0 {
				return false
			}
		}
	}
	return true
}
