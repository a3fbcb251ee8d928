package phase

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func phasePtr(p Phase) *Phase { return &p }

func fullSchedule() Schedule {
	return Schedule{
		WhitelistStart: ptr(t0.Add(-48 * time.Hour)),
		WhitelistEnd:   ptr(t0.Add(-2 * time.Hour)),
		SaleStart:      ptr(t0),
		SaleEnd:        ptr(t0.Add(24 * time.Hour)),
		ClaimStart:     ptr(t0.Add(48 * time.Hour)),
		ListingDate:    ptr(t0.Add(72 * time.Hour)),
	}
}

func statuses(phases []PhaseState) []Status {
	out := make([]Status, len(phases))
	for i, p := range phases {
		out[i] = p.Status
	}
	return out
}

func countActive(phases []PhaseState) int {
	n := 0
	for _, p := range phases {
		if p.Status == StatusActive {
			n++
		}
	}
	return n
}

func TestComputePhasesScenarioA(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := Schedule{SaleStart: ptr(t0), SaleEnd: ptr(t0.Add(10 * time.Second))}

	phases, err := e.ComputePhases(s, nil, t0.Add(5*time.Second))
	require.NoError(t, err)

	active := ActivePhase(phases)
	assert.Equal(t, PhaseLive, active.Phase)
	assert.True(t, CountdownTarget(phases, *s.SaleEnd, t0.Add(5*time.Second)).Equal(t0.Add(10*time.Second)))
}

func TestComputePhasesScenarioBOverride(t *testing.T) {
	e := NewEngine(DefaultOffsets())

	// 时间在公售前，但覆盖值优先
	phases, err := e.ComputePhases(fullSchedule(), phasePtr(PhaseClaimable), t0.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusCompleted, StatusCompleted, StatusCompleted, StatusActive, StatusPending}, statuses(phases))
}

func TestComputePhasesOverrideIgnoresTime(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	nows := []time.Time{
		t0.Add(-30 * 24 * time.Hour),
		t0,
		t0.Add(36 * time.Hour),
		t0.Add(365 * 24 * time.Hour),
	}

	for _, override := range All() {
		for _, now := range nows {
			phases, err := e.ComputePhases(fullSchedule(), phasePtr(override), now)
			require.NoError(t, err)
			for i, p := range phases {
				switch {
				case i < override.Order():
					assert.Equal(t, StatusCompleted, p.Status, "override=%s now=%s phase=%s", override, now, p.Phase)
				case i == override.Order():
					assert.Equal(t, StatusActive, p.Status, "override=%s now=%s phase=%s", override, now, p.Phase)
				default:
					assert.Equal(t, StatusPending, p.Status, "override=%s now=%s phase=%s", override, now, p.Phase)
				}
			}
		}
	}
}

func TestComputePhasesUnknownOverrideFallsBackToSchedule(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	bogus := Phase("settled")

	phases, err := e.ComputePhases(fullSchedule(), &bogus, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, PhaseLive, ActivePhase(phases).Phase)
}

func TestComputePhasesScenarioCEnded(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := fullSchedule()

	now := s.ListingDate.Add(time.Second)
	phases, err := e.ComputePhases(s, nil, now)
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, ActivePhase(phases).Phase)
	assert.Equal(t, []Status{StatusCompleted, StatusCompleted, StatusCompleted, StatusCompleted, StatusActive}, statuses(phases))
	// Ended 无上界，倒计时回落到 saleEnd
	assert.True(t, CountdownTarget(phases, *s.SaleEnd, now).Equal(*s.SaleEnd))
}

func TestComputePhasesScenarioEMissingSaleStart(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := Schedule{SaleEnd: ptr(t0)}

	phases, err := e.ComputePhases(s, nil, t0)
	require.Error(t, err)
	assert.Nil(t, phases)

	var scheduleErr *InvalidScheduleError
	require.True(t, errors.As(err, &scheduleErr))
	assert.Equal(t, "sale_start", scheduleErr.Field)
}

func TestComputePhasesOverrideWithIncompleteSchedule(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := Schedule{SaleEnd: ptr(t0)}

	phases, err := e.ComputePhases(s, phasePtr(PhaseClaimable), t0)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusCompleted, StatusCompleted, StatusCompleted, StatusActive, StatusPending}, statuses(phases))
	assert.True(t, phases[0].Window.Start.IsZero())
	assert.True(t, phases[1].Window.End.Equal(t0))

	// 顺序错误的时间表同样不影响覆盖
	broken := fullSchedule()
	broken.ClaimStart = ptr(broken.SaleEnd.Add(-time.Minute))
	phases, err = e.ComputePhases(broken, phasePtr(PhaseLive), t0)
	require.NoError(t, err)
	assert.Equal(t, PhaseLive, ActivePhase(phases).Phase)

	// 非法覆盖值不能绕过校验
	bogus := Phase("settled")
	_, err = e.ComputePhases(s, &bogus, t0)
	var scheduleErr *InvalidScheduleError
	require.ErrorAs(t, err, &scheduleErr)
}

func TestComputePhasesRejectsOutOfOrderAnchors(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := fullSchedule()
	s.ClaimStart = ptr(s.SaleEnd.Add(-time.Minute))

	_, err := e.ComputePhases(s, nil, t0)
	var scheduleErr *InvalidScheduleError
	require.ErrorAs(t, err, &scheduleErr)
	assert.Equal(t, "claim_start", scheduleErr.Field)
}

func TestComputePhasesRejectsDefaultsConflictingWithExplicitAnchors(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	// listingDate 早于默认 claimStart (saleEnd + 24h)
	s := Schedule{
		SaleStart:   ptr(t0),
		SaleEnd:     ptr(t0.Add(time.Hour)),
		ListingDate: ptr(t0.Add(2 * time.Hour)),
	}

	_, err := e.ComputePhases(s, nil, t0)
	var scheduleErr *InvalidScheduleError
	require.ErrorAs(t, err, &scheduleErr)
	assert.Equal(t, "listing_date", scheduleErr.Field)
}

func TestComputePhasesDefaultWindows(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := Schedule{SaleStart: ptr(t0), SaleEnd: ptr(t0.Add(10 * time.Hour))}

	phases, err := e.ComputePhases(s, nil, t0)
	require.NoError(t, err)
	require.Len(t, phases, 5)

	assert.True(t, phases[0].Window.Start.Equal(t0.Add(-7*24*time.Hour)))
	assert.True(t, phases[0].Window.End.Equal(t0.Add(-time.Hour)))
	assert.True(t, phases[2].Window.End.Equal(t0.Add(34*time.Hour)))
	assert.True(t, phases[3].Window.End.Equal(t0.Add(10*time.Hour+7*24*time.Hour)))
	assert.True(t, phases[4].Window.Unbounded())
}

func TestComputePhasesExactlyOneActive(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := fullSchedule()

	// 从白名单开始前一天逐小时推进到上市后两天
	for now := s.WhitelistStart.Add(-24 * time.Hour); now.Before(s.ListingDate.Add(48 * time.Hour)); now = now.Add(30 * time.Minute) {
		phases, err := e.ComputePhases(s, nil, now)
		require.NoError(t, err)
		assert.Equal(t, 1, countActive(phases), "now=%s statuses=%v", now, statuses(phases))
	}
}

func TestComputePhasesBeforeWhitelistIsUpcoming(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := fullSchedule()

	phases, err := e.ComputePhases(s, nil, s.WhitelistStart.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, PhaseUpcoming, ActivePhase(phases).Phase)
}

func TestComputePhasesWhitelistGapStaysUpcoming(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := fullSchedule()

	now := s.WhitelistEnd.Add(time.Minute)
	phases, err := e.ComputePhases(s, nil, now)
	require.NoError(t, err)
	assert.Equal(t, PhaseUpcoming, ActivePhase(phases).Phase)
	assert.True(t, CountdownTarget(phases, *s.SaleEnd, now).Equal(*s.SaleStart))
}

func TestComputePhasesBoundaries(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := fullSchedule()

	cases := []struct {
		now  time.Time
		want Phase
	}{
		{s.SaleStart.Add(-time.Nanosecond), PhaseUpcoming},
		{*s.SaleStart, PhaseLive},
		{*s.SaleEnd, PhaseProcessing},
		{*s.ClaimStart, PhaseClaimable},
		{*s.ListingDate, PhaseEnded},
	}
	for _, c := range cases {
		phases, err := e.ComputePhases(s, nil, c.now)
		require.NoError(t, err)
		assert.Equal(t, c.want, ActivePhase(phases).Phase, "now=%s", c.now)
	}
}

func TestCountdownTargetNonIncreasingWithinPhase(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := fullSchedule()

	var prevPhase Phase
	var prevTarget time.Time
	for now := *s.SaleStart; now.Before(s.ListingDate.Add(time.Hour)); now = now.Add(15 * time.Minute) {
		phases, err := e.ComputePhases(s, nil, now)
		require.NoError(t, err)
		active := ActivePhase(phases).Phase
		target := CountdownTarget(phases, *s.SaleEnd, now)

		if active == prevPhase {
			assert.False(t, target.After(prevTarget), "target moved forward within %s at %s", active, now)
		} else if prevPhase != "" && active != PhaseEnded {
			// 跨越边界时跳到下一阶段的结束时刻
			assert.True(t, target.After(prevTarget), "target did not jump at boundary into %s", active)
		}
		prevPhase, prevTarget = active, target
	}
}

func TestCountdownTargetInsideUpcomingWindow(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := Schedule{SaleStart: ptr(t0), SaleEnd: ptr(t0.Add(10 * time.Hour))}

	now := t0.Add(-72 * time.Hour)
	phases, err := e.ComputePhases(s, nil, now)
	require.NoError(t, err)

	active := ActivePhase(phases)
	require.Equal(t, PhaseUpcoming, active.Phase)
	target := CountdownTarget(phases, *s.SaleEnd, now)
	assert.True(t, target.Equal(t0.Add(-time.Hour)), "target=%s", target)
	assert.True(t, target.Equal(active.Window.End))

	// 白名单开始前同样指向白名单结束
	now = t0.Add(-8 * 24 * time.Hour)
	phases, err = e.ComputePhases(s, nil, now)
	require.NoError(t, err)
	assert.True(t, CountdownTarget(phases, *s.SaleEnd, now).Equal(t0.Add(-time.Hour)))
}

func TestCountdownTargetForOverride(t *testing.T) {
	e := NewEngine(DefaultOffsets())
	s := fullSchedule()

	// 覆盖为 Claimable 时倒计时指向该阶段窗口结束
	now := t0.Add(-time.Hour)
	phases, err := e.ComputePhases(s, phasePtr(PhaseClaimable), now)
	require.NoError(t, err)
	assert.True(t, CountdownTarget(phases, *s.SaleEnd, now).Equal(*s.ListingDate))

	// 窗口已过仍被覆盖时返回已过去的结束时刻，倒计时显示已到期
	now = s.ListingDate.Add(time.Hour)
	phases, err = e.ComputePhases(s, phasePtr(PhaseLive), now)
	require.NoError(t, err)
	target := CountdownTarget(phases, *s.SaleEnd, now)
	assert.True(t, target.Equal(*s.SaleEnd))
	assert.True(t, Remaining(target, now).Expired)
}

func TestActivePhaseFallsBackToFirst(t *testing.T) {
	phases := []PhaseState{
		{Phase: PhaseUpcoming, Status: StatusPending},
		{Phase: PhaseLive, Status: StatusPending},
	}
	assert.Equal(t, PhaseUpcoming, ActivePhase(phases).Phase)
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase(" Claimable ")
	require.NoError(t, err)
	assert.Equal(t, PhaseClaimable, p)

	_, err = ParsePhase("refunding")
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestPhaseOrderIsTotal(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Order(), all[i].Order())
	}
	assert.Equal(t, -1, Phase("").Order())
}
