package materialize

import (
	"fmt"
	"testing"
	"time"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
}

func TestRecordsDuplicatesRatesPerLine(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	groups := weeklyGroups(t, time.Date(2024, 12, 22, 15, 30, 0, 0, time.UTC))
	packed, err := Pack(SelectPlan(true, false, false), groups, Payload{
		IsPublic: []bool{true},
		Rates:    []Rate{general, {Title: "Reduced", Amount: 6, Currency: "EUR"}},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	lines, rates := Records("header-1", packed, sequentialIDs(), now)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if len(rates) != 6 {
		t.Fatalf("got %d rates, want 6", len(rates))
	}

	perLine := map[string]int{}
	for _, r := range rates {
		perLine[r.LineID]++
	}
	for _, line := range lines {
		if line.HeaderID != "header-1" || !line.CreatedAt.Equal(now) {
			t.Fatalf("unexpected line: %+v", line)
		}
		if perLine[line.ID] != 2 {
			t.Fatalf("line %s owns %d rates, want 2", line.ID, perLine[line.ID])
		}
	}
}

func TestRecordsWithoutRates(t *testing.T) {
	t.Parallel()

	packed, err := Pack(Plan{Kind: Single}, singleGroups(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)), Payload{})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	lines, rates := Records("h", packed, sequentialIDs(), time.Now())
	if len(lines) != 1 || len(rates) != 0 {
		t.Fatalf("got %d lines and %d rates", len(lines), len(rates))
	}
}
