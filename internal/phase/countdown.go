package phase

import "time"

// Countdown 倒计时
type Countdown struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	Expired bool  `json:"expired"`
}

// Remaining 计算距 target 的剩余时间，每次调用重新计算，不保存状态
func Remaining(target, now time.Time) Countdown {
	d := target.Sub(now)
	if d <= 0 {
		return Countdown{Expired: true}
	}

	total := int64(d / time.Second)
	return Countdown{
		Days:    total / 86400,
		Hours:   total % 86400 / 3600,
		Minutes: total % 3600 / 60,
		Seconds: total % 60,
	}
}

// Duration 转回 time.Duration
func (c Countdown) Duration() time.Duration {
	if c.Expired {
		return 0
	}
	return time.Duration(c.Days)*24*time.Hour +
		time.Duration(c.Hours)*time.Hour +
		time.Duration(c.Minutes)*time.Minute +
		time.Duration(c.Seconds)*time.Second
}
