package analytics_test

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/displayforce"
)

type aggregateCase struct {
	Name   string   `yaml:"name"`
	Events []string `yaml:"events"`
	Want   struct {
		Total      int            `yaml:"total"`
		Male       int            `yaml:"male"`
		Female     int            `yaml:"female"`
		AgeCount   int            `yaml:"age_count"`
		AverageAge int            `yaml:"average_age"`
		ByAge      []int          `yaml:"by_age"`
		Hours      map[int]int    `yaml:"hours"`
		Weekdays   map[string]int `yaml:"weekdays"`
	} `yaml:"want"`
}

func loadAggregateCases(t *testing.T) []aggregateCase {
	t.Helper()
	data, err := os.ReadFile("testdata/aggregate_cases.yaml")
	require.NoError(t, err)

	var cases []aggregateCase
	require.NoError(t, yaml.Unmarshal(data, &cases))
	require.NotEmpty(t, cases)
	return cases
}

func decodeEvents(t *testing.T, raw []string) []displayforce.Visitor {
	t.Helper()
	out := make([]displayforce.Visitor, 0, len(raw))
	for _, r := range raw {
		var v displayforce.Visitor
		require.NoError(t, json.Unmarshal([]byte(r), &v), r)
		out = append(out, v)
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func TestAggregateFixtures(t *testing.T) {
	for _, tc := range loadAggregateCases(t) {
		t.Run(tc.Name, func(t *testing.T) {
			tally := analytics.Aggregate(decodeEvents(t, tc.Events))

			assert.Equal(t, tc.Want.Total, tally.Total)
			assert.Equal(t, tc.Want.Male, tally.Male)
			assert.Equal(t, tc.Want.Female, tally.Female)
			assert.Equal(t, tc.Want.AgeCount, tally.AgeCount)
			assert.Equal(t, tc.Want.AverageAge, tally.AverageAge())
			assert.Equal(t, tc.Want.ByAge, tally.ByAge[:])

			var wantHours [24]int
			for h, n := range tc.Want.Hours {
				wantHours[h] = n
			}
			assert.Equal(t, wantHours, tally.ByHour)

			var wantWeekdays [7]int
			for name, n := range tc.Want.Weekdays {
				wd, ok := weekdayNames[strings.ToLower(name)]
				require.True(t, ok, name)
				wantWeekdays[wd] = n
			}
			assert.Equal(t, wantWeekdays, tally.ByWeekday)

			assert.Equal(t, tally.Total, tally.Male+tally.Female)
		})
	}
}

func TestBandForAge(t *testing.T) {
	tests := []struct {
		age  float64
		band analytics.AgeBand
		ok   bool
	}{
		{0, 0, false},
		{-3, 0, false},
		{17, 0, false},
		{18, analytics.Age18To25, true},
		{25, analytics.Age18To25, true},
		{25.5, 0, false},
		{26, analytics.Age26To35, true},
		{35, analytics.Age26To35, true},
		{36, analytics.Age36To45, true},
		{45, analytics.Age36To45, true},
		{46, analytics.Age46To60, true},
		{60, analytics.Age46To60, true},
		{60.5, analytics.Age60Plus, true},
		{61, analytics.Age60Plus, true},
		{99, analytics.Age60Plus, true},
	}
	for _, tt := range tests {
		band, ok := analytics.BandForAge(tt.age)
		assert.Equal(t, tt.ok, ok, "age %v", tt.age)
		if tt.ok {
			assert.Equal(t, tt.band, band, "age %v", tt.age)
		}
	}
}

func TestTallyInvariants(t *testing.T) {
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	var events []displayforce.Visitor
	for i := 0; i < 200; i++ {
		raw := map[string]any{
			"id":  i,
			"sex": i % 3,
			"age": float64(i%80) - 5,
		}
		if i%7 != 0 {
			raw["start"] = base.Add(time.Duration(i*7) * time.Minute).Format(time.RFC3339)
		}
		data, err := json.Marshal(raw)
		require.NoError(t, err)
		var v displayforce.Visitor
		require.NoError(t, json.Unmarshal(data, &v))
		events = append(events, v)
	}

	tally := analytics.Aggregate(events)

	assert.Equal(t, 200, tally.Total)
	assert.Equal(t, tally.Total, tally.Male+tally.Female)

	banded := 0
	for _, n := range tally.ByAge {
		banded += n
	}
	assert.Equal(t, tally.Total, banded+tally.Unbanded())

	hourSum, maleHours, femaleHours, weekdaySum := 0, 0, 0, 0
	for h := 0; h < 24; h++ {
		hourSum += tally.ByHour[h]
		maleHours += tally.MaleByHour[h]
		femaleHours += tally.FemaleByHour[h]
	}
	for _, n := range tally.ByWeekday {
		weekdaySum += n
	}
	assert.Equal(t, hourSum, maleHours+femaleHours)
	assert.Equal(t, hourSum, weekdaySum)
	assert.Less(t, hourSum, tally.Total, "events without a timestamp are not bucketed")
}

func TestMergeKeepsAccumulators(t *testing.T) {
	a := analytics.Tally{Total: 2, Male: 1, Female: 1, AgeSum: 50, AgeCount: 2}
	b := analytics.Tally{Total: 1, Male: 1, AgeSum: 61, AgeCount: 1}
	a.ByHour[3] = 2
	b.ByHour[3] = 1

	a.Merge(b)

	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 37, a.AverageAge(), "round(111/3)")
	assert.Equal(t, 3, a.ByHour[3])
}

func TestWeekdayLabel(t *testing.T) {
	monday := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Seg", analytics.WeekdayLabel(monday))
	assert.Equal(t, "Dom", analytics.WeekdayLabel(monday.AddDate(0, 0, 6)))
	assert.Equal(t, "Sáb", analytics.WeekdayLabel(monday.AddDate(0, 0, 5)))

	// 23:30 at -03:00 is already Tuesday in UTC.
	local := time.Date(2024, 1, 1, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, "Ter", analytics.WeekdayLabel(local))
}
