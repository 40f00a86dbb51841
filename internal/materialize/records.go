package materialize

import (
	"time"

	"github.com/example/event-board/internal/persistence"
)

// Records converts packed slots into line and rate rows owned by headerID.
// Every slot gets its own copy of its rates.
func Records(headerID string, packed []Packed, newID func() string, now time.Time) ([]persistence.EventLine, []persistence.EventRate) {
	var (
		lines []persistence.EventLine
		rates []persistence.EventRate
	)
	for _, p := range packed {
		for _, slot := range p.Slots {
			line := persistence.EventLine{
				ID:        newID(),
				HeaderID:  headerID,
				Start:     slot.Start,
				End:       slot.End,
				IsPublic:  slot.IsPublic,
				Capacity:  slot.Capacity,
				CreatedAt: now,
				UpdatedAt: now,
			}
			lines = append(lines, line)
			for _, r := range slot.Rates {
				rates = append(rates, persistence.EventRate{
					ID:        newID(),
					LineID:    line.ID,
					Title:     r.Title,
					Amount:    r.Amount,
					Currency:  r.Currency,
					CreatedAt: now,
					UpdatedAt: now,
				})
			}
		}
	}
	return lines, rates
}
