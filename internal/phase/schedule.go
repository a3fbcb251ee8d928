package phase

import (
	"fmt"
	"time"
)

// Schedule 活动时间锚点，SaleStart/SaleEnd 必填，其余为空时按 Offsets 推导
type Schedule struct {
	WhitelistStart *time.Time
	WhitelistEnd   *time.Time
	SaleStart      *time.Time
	SaleEnd        *time.Time
	ClaimStart     *time.Time
	ListingDate    *time.Time
}

// Offsets 缺省锚点的固定偏移
type Offsets struct {
	WhitelistLead    time.Duration // whitelistStart = saleStart - WhitelistLead
	WhitelistEndLead time.Duration // whitelistEnd = saleStart - WhitelistEndLead
	ClaimDelay       time.Duration // claimStart = saleEnd + ClaimDelay
	ListingDelay     time.Duration // listingDate = saleEnd + ListingDelay
}

// DefaultOffsets 默认偏移表
func DefaultOffsets() Offsets {
	return Offsets{
		WhitelistLead:    7 * 24 * time.Hour,
		WhitelistEndLead: time.Hour,
		ClaimDelay:       24 * time.Hour,
		ListingDelay:     7 * 24 * time.Hour,
	}
}

// Anchors 补全后的时间锚点
type Anchors struct {
	WhitelistStart time.Time
	WhitelistEnd   time.Time
	SaleStart      time.Time
	SaleEnd        time.Time
	ClaimStart     time.Time
	ListingDate    time.Time
}

// InvalidScheduleError 时间表缺失必填锚点或顺序错误
type InvalidScheduleError struct {
	Field  string
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	if e.Field == "" {
		return "invalid schedule: " + e.Reason
	}
	return fmt.Sprintf("invalid schedule: %s %s", e.Field, e.Reason)
}

// Resolve 校验时间表并按偏移补全缺省锚点
func (s Schedule) Resolve(offsets Offsets) (Anchors, error) {
	if s.SaleStart == nil || s.SaleStart.IsZero() {
		return Anchors{}, &InvalidScheduleError{Field: "sale_start", Reason: "is required"}
	}
	if s.SaleEnd == nil || s.SaleEnd.IsZero() {
		return Anchors{}, &InvalidScheduleError{Field: "sale_end", Reason: "is required"}
	}

	saleStart, saleEnd := *s.SaleStart, *s.SaleEnd
	a := Anchors{
		WhitelistStart: orDefault(s.WhitelistStart, saleStart.Add(-offsets.WhitelistLead)),
		WhitelistEnd:   orDefault(s.WhitelistEnd, saleStart.Add(-offsets.WhitelistEndLead)),
		SaleStart:      saleStart,
		SaleEnd:        saleEnd,
		ClaimStart:     orDefault(s.ClaimStart, saleEnd.Add(offsets.ClaimDelay)),
		ListingDate:    orDefault(s.ListingDate, saleEnd.Add(offsets.ListingDelay)),
	}

	ordered := []struct {
		name string
		at   time.Time
	}{
		{"whitelist_start", a.WhitelistStart},
		{"whitelist_end", a.WhitelistEnd},
		{"sale_start", a.SaleStart},
		{"sale_end", a.SaleEnd},
		{"claim_start", a.ClaimStart},
		{"listing_date", a.ListingDate},
	}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].at.Before(ordered[i-1].at) {
			return Anchors{}, &InvalidScheduleError{
				Field:  ordered[i].name,
				Reason: fmt.Sprintf("(%s) is before %s (%s)", ordered[i].at.Format(time.RFC3339), ordered[i-1].name, ordered[i-1].at.Format(time.RFC3339)),
			}
		}
	}

	return a, nil
}

// given 不补全也不校验，缺失的锚点为零值
func (s Schedule) given() Anchors {
	return Anchors{
		WhitelistStart: orDefault(s.WhitelistStart, time.Time{}),
		WhitelistEnd:   orDefault(s.WhitelistEnd, time.Time{}),
		SaleStart:      orDefault(s.SaleStart, time.Time{}),
		SaleEnd:        orDefault(s.SaleEnd, time.Time{}),
		ClaimStart:     orDefault(s.ClaimStart, time.Time{}),
		ListingDate:    orDefault(s.ListingDate, time.Time{}),
	}
}

// ValidateSchedule 仅校验时间表
func ValidateSchedule(s Schedule, offsets Offsets) error {
	_, err := s.Resolve(offsets)
	return err
}

func orDefault(t *time.Time, def time.Time) time.Time {
	if t == nil || t.IsZero() {
		return def
	}
	return *t
}
