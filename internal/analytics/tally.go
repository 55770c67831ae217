package analytics

import (
	"math"
	"time"

	"visitorinsights/internal/displayforce"
)

// AgeBand indexes Tally.ByAge.
type AgeBand int

const (
	Age18To25 AgeBand = iota
	Age26To35
	Age36To45
	Age46To60
	Age60Plus
	ageBandCount
)

// AgeBandLabels are the response keys for each band, in band order.
var AgeBandLabels = [ageBandCount]string{"18-25", "26-35", "36-45", "46-60", "60+"}

// BandForAge returns the band an age belongs to. ok is false for ages at or
// below zero and for ages that fall between the explicit bands.
func BandForAge(age float64) (band AgeBand, ok bool) {
	switch {
	case age <= 0:
		return 0, false
	case age >= 18 && age <= 25:
		return Age18To25, true
	case age >= 26 && age <= 35:
		return Age26To35, true
	case age >= 36 && age <= 45:
		return Age36To45, true
	case age >= 46 && age <= 60:
		return Age46To60, true
	case age > 60:
		return Age60Plus, true
	default:
		return 0, false
	}
}

// Tally is the aggregate of one day's visitor events. Weekday arrays are
// indexed by time.Weekday, so Sunday is 0.
type Tally struct {
	Total    int
	Male     int
	Female   int
	AgeSum   float64
	AgeCount int

	ByAge     [ageBandCount]int
	ByWeekday [7]int

	ByHour       [24]int
	MaleByHour   [24]int
	FemaleByHour [24]int
}

// Aggregate reduces a day's events into a Tally.
func Aggregate(visitors []displayforce.Visitor) Tally {
	var t Tally
	for _, v := range visitors {
		t.Add(v)
	}
	return t
}

// Add counts a single event.
func (t *Tally) Add(v displayforce.Visitor) {
	t.Total++
	male := v.IsMale()
	if male {
		t.Male++
	} else {
		t.Female++
	}

	age := v.AgeYears()
	if age > 0 {
		t.AgeSum += age
		t.AgeCount++
	}
	if band, ok := BandForAge(age); ok {
		t.ByAge[band]++
	}

	ts, ok := v.Timestamp()
	if !ok {
		return
	}
	t.ByWeekday[ts.Weekday()]++
	hour := ts.Hour()
	t.ByHour[hour]++
	if male {
		t.MaleByHour[hour]++
	} else {
		t.FemaleByHour[hour]++
	}
}

// Merge adds other's counts into t.
func (t *Tally) Merge(other Tally) {
	t.Total += other.Total
	t.Male += other.Male
	t.Female += other.Female
	t.AgeSum += other.AgeSum
	t.AgeCount += other.AgeCount
	for i := range t.ByAge {
		t.ByAge[i] += other.ByAge[i]
	}
	for i := range t.ByWeekday {
		t.ByWeekday[i] += other.ByWeekday[i]
	}
	t.MergeHourly(other)
}

// MergeHourly adds only other's hourly series into t.
func (t *Tally) MergeHourly(other Tally) {
	for h := 0; h < 24; h++ {
		t.ByHour[h] += other.ByHour[h]
		t.MaleByHour[h] += other.MaleByHour[h]
		t.FemaleByHour[h] += other.FemaleByHour[h]
	}
}

// AverageAge is round(AgeSum / AgeCount), or 0 with no ages counted.
func (t Tally) AverageAge() int {
	return AverageAge(t.AgeSum, t.AgeCount)
}

// AverageAge computes a rounded mean from accumulators.
func AverageAge(sum float64, count int) int {
	if count == 0 {
		return 0
	}
	return int(math.Round(sum / float64(count)))
}

// Unbanded counts the events that fell in no age band.
func (t Tally) Unbanded() int {
	banded := 0
	for _, n := range t.ByAge {
		banded += n
	}
	return t.Total - banded
}

// WeekdayLabels are the three-letter Portuguese abbreviations used by the
// dashboard, indexed by time.Weekday.
var WeekdayLabels = [7]string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}

// WeekdayOrder lists weekdays Monday first, the order the dashboard shows.
var WeekdayOrder = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayLabel returns the abbreviation for a timestamp's UTC weekday.
func WeekdayLabel(t time.Time) string {
	return WeekdayLabels[t.UTC().Weekday()]
}
