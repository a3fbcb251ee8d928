package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ihrahat0/whalespad-sub001/internal/database/dbtest"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/notifier"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/ihrahat0/whalespad-sub001/internal/repository"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type transitionEvent struct {
	CampaignId int64
	Old, New   phase.Phase
	At         time.Time
}

// recordingNotifier 记录收到的阶段变更
type recordingNotifier struct {
	mu     sync.Mutex
	events []transitionEvent
}

func (r *recordingNotifier) OnTransition(_ context.Context, c *model.CampaignModel, oldPhase, newPhase phase.Phase, source model.NotificationSource, at time.Time) (notifier.Event, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, transitionEvent{CampaignId: c.Id, Old: oldPhase, New: newPhase, At: at})
	return notifier.Event{CampaignId: c.Id, OldPhase: oldPhase, NewPhase: newPhase, Source: source, At: at}, nil
}

func (r *recordingNotifier) Events() []transitionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transitionEvent(nil), r.events...)
}

func newRepo(t *testing.T) *repository.CampaignRepository {
	t.Helper()
	return repository.NewCampaignRepository(dbtest.New(t))
}

// createCampaign 销售期 [saleStart, saleStart+1h]，其余锚点取默认值
func createCampaign(t *testing.T, repo *repository.CampaignRepository, saleStart time.Time, mutate ...func(*model.CampaignModel)) *model.CampaignModel {
	t.Helper()
	c := &model.CampaignModel{
		Name:      "campaign",
		SaleStart: ptr(saleStart),
		SaleEnd:   ptr(saleStart.Add(time.Hour)),
	}
	for _, fn := range mutate {
		fn(c)
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func deployed(address string) func(*model.CampaignModel) {
	return func(c *model.CampaignModel) {
		c.ContractAddress = ptr(address)
		c.ChainId = ptr(int64(1))
	}
}

func inPhase(p phase.Phase) func(*model.CampaignModel) {
	return func(c *model.CampaignModel) {
		c.CurrentPhase = p
	}
}

func reload(t *testing.T, repo *repository.CampaignRepository, id int64) *model.CampaignModel {
	t.Helper()
	c, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}
