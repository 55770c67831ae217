package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DailyRollup is the stored Tally for one (day, scope).
type DailyRollup struct {
	ID        uint    `gorm:"primaryKey"`
	Day       string  `gorm:"size:10;not null;uniqueIndex:idx_daily_day_scope"`
	Scope     string  `gorm:"size:191;not null;uniqueIndex:idx_daily_day_scope"`
	Total     int     `gorm:"not null;default:0"`
	Male      int     `gorm:"not null;default:0"`
	Female    int     `gorm:"not null;default:0"`
	AgeSum    float64 `gorm:"not null;default:0"`
	AgeCount  int     `gorm:"not null;default:0"`
	Age18To25 int     `gorm:"column:age_18_25;not null;default:0"`
	Age26To35 int     `gorm:"column:age_26_35;not null;default:0"`
	Age36To45 int     `gorm:"column:age_36_45;not null;default:0"`
	Age46To60 int     `gorm:"column:age_46_60;not null;default:0"`
	Age60Plus int     `gorm:"column:age_60_plus;not null;default:0"`
	Monday    int     `gorm:"not null;default:0"`
	Tuesday   int     `gorm:"not null;default:0"`
	Wednesday int     `gorm:"not null;default:0"`
	Thursday  int     `gorm:"not null;default:0"`
	Friday    int     `gorm:"not null;default:0"`
	Saturday  int     `gorm:"not null;default:0"`
	Sunday    int     `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (DailyRollup) TableName() string { return "daily_rollups" }

// HourlyRollup is one hour of a day's tally.
type HourlyRollup struct {
	ID        uint   `gorm:"primaryKey"`
	Day       string `gorm:"size:10;not null;uniqueIndex:idx_hourly_day_scope_hour"`
	Scope     string `gorm:"size:191;not null;uniqueIndex:idx_hourly_day_scope_hour"`
	Hour      int    `gorm:"not null;uniqueIndex:idx_hourly_day_scope_hour"`
	Total     int    `gorm:"not null;default:0"`
	Male      int    `gorm:"not null;default:0"`
	Female    int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (HourlyRollup) TableName() string { return "hourly_rollups" }

// Models lists the tables owned by this package, for migrations.
func Models() []any {
	return []any{&DailyRollup{}, &HourlyRollup{}}
}

// Tally converts the stored row back into a Tally. Hourly series are left
// empty; they live in HourlyRollup.
func (r DailyRollup) Tally() Tally {
	t := Tally{
		Total:    r.Total,
		Male:     r.Male,
		Female:   r.Female,
		AgeSum:   r.AgeSum,
		AgeCount: r.AgeCount,
	}
	t.ByAge = [ageBandCount]int{r.Age18To25, r.Age26To35, r.Age36To45, r.Age46To60, r.Age60Plus}
	t.ByWeekday[time.Sunday] = r.Sunday
	t.ByWeekday[time.Monday] = r.Monday
	t.ByWeekday[time.Tuesday] = r.Tuesday
	t.ByWeekday[time.Wednesday] = r.Wednesday
	t.ByWeekday[time.Thursday] = r.Thursday
	t.ByWeekday[time.Friday] = r.Friday
	t.ByWeekday[time.Saturday] = r.Saturday
	return t
}

// UpsertDaily writes the tally for (day, scope), replacing any previous row.
func UpsertDaily(tx *gorm.DB, day string, scope Scope, t Tally, now time.Time) error {
	now = now.UTC()
	query := `
		INSERT INTO daily_rollups (
			day, scope, total, male, female, age_sum, age_count,
			age_18_25, age_26_35, age_36_45, age_46_60, age_60_plus,
			monday, tuesday, wednesday, thursday, friday, saturday, sunday,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (day, scope) DO UPDATE SET
			total = excluded.total,
			male = excluded.male,
			female = excluded.female,
			age_sum = excluded.age_sum,
			age_count = excluded.age_count,
			age_18_25 = excluded.age_18_25,
			age_26_35 = excluded.age_26_35,
			age_36_45 = excluded.age_36_45,
			age_46_60 = excluded.age_46_60,
			age_60_plus = excluded.age_60_plus,
			monday = excluded.monday,
			tuesday = excluded.tuesday,
			wednesday = excluded.wednesday,
			thursday = excluded.thursday,
			friday = excluded.friday,
			saturday = excluded.saturday,
			sunday = excluded.sunday,
			updated_at = excluded.updated_at
	`
	err := tx.Exec(query,
		day, scope.Key(), t.Total, t.Male, t.Female, t.AgeSum, t.AgeCount,
		t.ByAge[Age18To25], t.ByAge[Age26To35], t.ByAge[Age36To45], t.ByAge[Age46To60], t.ByAge[Age60Plus],
		t.ByWeekday[time.Monday], t.ByWeekday[time.Tuesday], t.ByWeekday[time.Wednesday],
		t.ByWeekday[time.Thursday], t.ByWeekday[time.Friday], t.ByWeekday[time.Saturday],
		t.ByWeekday[time.Sunday],
		now, now).Error
	if err != nil {
		return fmt.Errorf("upsert daily rollup %s/%s: %w", day, scope, err)
	}
	return nil
}

// UpsertHourly writes all 24 hours for (day, scope), zeros included.
func UpsertHourly(tx *gorm.DB, day string, scope Scope, t Tally, now time.Time) error {
	now = now.UTC()
	query := `
		INSERT INTO hourly_rollups (day, scope, hour, total, male, female, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (day, scope, hour) DO UPDATE SET
			total = excluded.total,
			male = excluded.male,
			female = excluded.female,
			updated_at = excluded.updated_at
	`
	for hour := 0; hour < 24; hour++ {
		err := tx.Exec(query, day, scope.Key(), hour,
			t.ByHour[hour], t.MaleByHour[hour], t.FemaleByHour[hour], now, now).Error
		if err != nil {
			return fmt.Errorf("upsert hourly rollup %s/%s hour %d: %w", day, scope, hour, err)
		}
	}
	return nil
}

// SaveDay writes the daily row and its 24 hourly rows in one transaction.
func SaveDay(db *gorm.DB, day string, scope Scope, t Tally, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := UpsertDaily(tx, day, scope, t, now); err != nil {
			return err
		}
		return UpsertHourly(tx, day, scope, t, now)
	})
}

// ReadDaily returns the stored rows for the given days, keyed by day. Days
// without a row are absent from the map.
func ReadDaily(db *gorm.DB, days []string, scope Scope) (map[string]DailyRollup, error) {
	out := make(map[string]DailyRollup, len(days))
	if len(days) == 0 {
		return out, nil
	}

	var rows []DailyRollup
	err := db.Where("scope = ? AND day IN ?", scope.Key(), days).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read daily rollups: %w", err)
	}
	for _, row := range rows {
		out[row.Day] = row
	}
	return out, nil
}

// ReadHourly returns the stored hourly rows for (day, scope), ordered by hour.
func ReadHourly(db *gorm.DB, day string, scope Scope) ([]HourlyRollup, error) {
	var rows []HourlyRollup
	err := db.Where("day = ? AND scope = ?", day, scope.Key()).Order("hour ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read hourly rollups: %w", err)
	}
	return rows, nil
}

// HourlyTally folds stored hourly rows into the hourly series of a Tally.
func HourlyTally(rows []HourlyRollup) Tally {
	var t Tally
	for _, row := range rows {
		if row.Hour < 0 || row.Hour > 23 {
			continue
		}
		t.ByHour[row.Hour] += row.Total
		t.MaleByHour[row.Hour] += row.Male
		t.FemaleByHour[row.Hour] += row.Female
	}
	return t
}
