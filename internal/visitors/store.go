package visitors

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/timeframe"
)

const (
	DefaultPageSize = 40
	MaxPageSize     = 1000

	insertBatchSize = 200
)

// InsertMany stores records, silently skipping any whose visitor id is
// already present, including duplicates within records itself.
func InsertMany(db *gorm.DB, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(records))
	unique := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.VisitorID == "" {
			continue
		}
		if _, dup := seen[rec.VisitorID]; dup {
			continue
		}
		seen[rec.VisitorID] = struct{}{}
		unique = append(unique, rec)
	}
	if len(unique) == 0 {
		return nil
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "visitor_id"}},
		DoNothing: true,
	}).CreateInBatches(&unique, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("insert visitor records: %w", err)
	}
	return nil
}

// Filter narrows a listing.
type Filter struct {
	Range timeframe.Range
	Scope analytics.Scope
}

// Page is one page of a listing.
type Page struct {
	Items    []Record `json:"items"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
}

// NormalizePage applies the listing defaults and bounds: a zero page is 1, a
// zero page size is DefaultPageSize, and both are clamped to their ranges.
func NormalizePage(page, pageSize int) (int, int) {
	if page == 0 {
		page = 1
	}
	page = max(1, page)

	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(MaxPageSize, max(1, pageSize))
	return page, pageSize
}

// List returns the records matching f, newest first.
func List(db *gorm.DB, f Filter, page, pageSize int) (*Page, error) {
	page, pageSize = NormalizePage(page, pageSize)

	query := db.Model(&Record{}).
		Where("timestamp >= ? AND timestamp < ?", f.Range.Start, f.Range.End.AddDate(0, 0, 1))
	if !f.Scope.IsAll() {
		query = query.Where("store_id = ?", f.Scope.StoreID())
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count visitor records: %w", err)
	}

	items := []Record{}
	err := query.
		Order("timestamp DESC").
		Order("id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list visitor records: %w", err)
	}
	for i := range items {
		items[i].Alias = Alias(items[i].VisitorID)
	}

	return &Page{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Count returns the number of stored records.
func Count(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&Record{}).Count(&n).Error
	return n, err
}

// DeleteBefore removes at most limit records detected before cutoff and
// returns how many were removed. Records without a timestamp are judged by
// their insertion time.
func DeleteBefore(db *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	ids := db.Model(&Record{}).
		Select("id").
		Where("timestamp < ? OR (timestamp IS NULL AND created_at < ?)", cutoff, cutoff).
		Order("id").
		Limit(limit)

	result := db.Where("id IN (?)", ids).Delete(&Record{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete visitor records before %s: %w", cutoff.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}
