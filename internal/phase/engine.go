package phase

import (
	"time"
)

// Window 阶段时间窗口，End 为零值表示无上界
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// Unbounded 是否无上界
func (w Window) Unbounded() bool {
	return w.End.IsZero()
}

// PhaseState 单个阶段的计算结果
type PhaseState struct {
	Phase  Phase  `json:"id"`
	Window Window `json:"window"`
	Status Status `json:"status"`
}

// Engine 阶段计算引擎，无状态
type Engine struct {
	offsets Offsets
}

// NewEngine 创建阶段计算引擎
func NewEngine(offsets Offsets) *Engine {
	return &Engine{offsets: offsets}
}

// Offsets 返回引擎使用的偏移表
func (e *Engine) Offsets() Offsets {
	return e.offsets
}

// ComputePhases 计算 now 时刻各阶段状态。
// override 为合法阶段时完全忽略时间，时间表不完整也照常返回；非法值视为未设置。
func (e *Engine) ComputePhases(schedule Schedule, override *Phase, now time.Time) ([]PhaseState, error) {
	overridden := override != nil && override.Valid()

	anchors, err := schedule.Resolve(e.offsets)
	if err != nil {
		if !overridden {
			return nil, err
		}
		// 窗口只保留已填写的锚点
		anchors = schedule.given()
	}

	phases := []PhaseState{
		{Phase: PhaseUpcoming, Window: Window{Start: anchors.WhitelistStart, End: anchors.WhitelistEnd}},
		{Phase: PhaseLive, Window: Window{Start: anchors.SaleStart, End: anchors.SaleEnd}},
		{Phase: PhaseProcessing, Window: Window{Start: anchors.SaleEnd, End: anchors.ClaimStart}},
		{Phase: PhaseClaimable, Window: Window{Start: anchors.ClaimStart, End: anchors.ListingDate}},
		{Phase: PhaseEnded, Window: Window{Start: anchors.ListingDate}},
	}

	if overridden {
		target := override.Order()
		for i := range phases {
			switch {
			case i < target:
				phases[i].Status = StatusCompleted
			case i == target:
				phases[i].Status = StatusActive
			default:
				phases[i].Status = StatusPending
			}
		}
		return phases, nil
	}

	// 阶段在下一阶段开始时结束，whitelistEnd 到 saleStart 之间仍属于 Upcoming
	for i := range phases {
		started := i == 0 || !now.Before(phases[i].Window.Start)
		completed := i < len(phases)-1 && !now.Before(phases[i+1].Window.Start)
		switch {
		case completed:
			phases[i].Status = StatusCompleted
		case started:
			phases[i].Status = StatusActive
		default:
			phases[i].Status = StatusPending
		}
	}

	return phases, nil
}

// ActivePhase 返回处于 active 的阶段，没有则返回第一个阶段
func ActivePhase(phases []PhaseState) PhaseState {
	for _, p := range phases {
		if p.Status == StatusActive {
			return p
		}
	}
	if len(phases) == 0 {
		return PhaseState{Phase: PhaseUpcoming, Status: StatusActive}
	}
	return phases[0]
}

// CountdownTarget 当前阶段窗口的结束时刻。
// whitelistEnd 到 saleStart 的空档仍属于 Upcoming，此时返回 saleStart；当前阶段无上界时返回 saleEnd。
func CountdownTarget(phases []PhaseState, saleEnd, now time.Time) time.Time {
	for i, p := range phases {
		if p.Status != StatusActive {
			continue
		}
		if p.Window.Unbounded() {
			return saleEnd
		}
		if now.Before(p.Window.End) {
			return p.Window.End
		}
		if i+1 < len(phases) && now.Before(phases[i+1].Window.Start) {
			return phases[i+1].Window.Start
		}
		return p.Window.End
	}
	if len(phases) > 0 && !phases[0].Window.Unbounded() {
		return phases[0].Window.End
	}
	return saleEnd
}
