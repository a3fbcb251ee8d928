package phase

import (
	"errors"
	"fmt"
	"strings"
)

// Phase IDO生命周期阶段
type Phase string

const (
	PhaseUpcoming   Phase = "upcoming"   // 白名单/预热
	PhaseLive       Phase = "live"       // 公售中
	PhaseProcessing Phase = "processing" // 结算处理中
	PhaseClaimable  Phase = "claimable"  // 可领取
	PhaseEnded      Phase = "ended"      // 已结束
)

// ErrUnknownPhase 未知阶段
var ErrUnknownPhase = errors.New("unknown phase")

// All 按固定顺序返回全部阶段
func All() []Phase {
	return []Phase{PhaseUpcoming, PhaseLive, PhaseProcessing, PhaseClaimable, PhaseEnded}
}

// FundingPhases 需要同步链上募资数据的阶段
func FundingPhases() []Phase {
	return []Phase{PhaseLive, PhaseProcessing, PhaseClaimable}
}

// Order 返回阶段序号，未知阶段返回 -1
func (p Phase) Order() int {
	switch p {
	case PhaseUpcoming:
		return 0
	case PhaseLive:
		return 1
	case PhaseProcessing:
		return 2
	case PhaseClaimable:
		return 3
	case PhaseEnded:
		return 4
	default:
		return -1
	}
}

// Valid 是否为合法阶段
func (p Phase) Valid() bool {
	return p.Order() >= 0
}

func (p Phase) String() string {
	return string(p)
}

// ParsePhase 解析阶段字符串，大小写不敏感
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return p, nil
}

// Status 阶段状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)
