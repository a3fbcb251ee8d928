package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/ihrahat0/whalespad-sub001/internal/cache"
	"github.com/ihrahat0/whalespad-sub001/internal/database/dbtest"
	"github.com/ihrahat0/whalespad-sub001/internal/metrics"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/ihrahat0/whalespad-sub001/internal/repository"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingHook struct {
	name   string
	err    error
	panics bool
	calls  *[]string
}

func (h recordingHook) Name() string { return h.name }

func (h recordingHook) OnPhaseChange(_ context.Context, evt Event, _ *model.CampaignModel) error {
	*h.calls = append(*h.calls, h.name)
	if h.panics {
		panic("boom")
	}
	return h.err
}

type failingStore struct{}

func (failingStore) Create(context.Context, *model.PhaseNotificationModel) error {
	return errors.New("db down")
}

func TestOnTransitionPersistsAndRunsHooksInOrder(t *testing.T) {
	db := dbtest.New(t)
	store := repository.NewNotificationRepository(db)
	var calls []string
	n := New(store, nil,
		recordingHook{name: "first", calls: &calls},
		recordingHook{name: "second", calls: &calls},
	)

	campaign := &model.CampaignModel{Id: 11, Name: "alpha", CurrentPhase: phase.PhaseLive}
	evt, errs := n.OnTransition(context.Background(), campaign, phase.PhaseUpcoming, phase.PhaseLive, model.NotificationSourceScheduler, at)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.NotEmpty(t, evt.EventId)

	list, total, err := store.ListByCampaign(context.Background(), 11, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, evt.EventId, list[0].EventId)
	assert.Equal(t, phase.PhaseUpcoming, list[0].OldPhase)
	assert.Equal(t, phase.PhaseLive, list[0].NewPhase)
	assert.Equal(t, model.NotificationSourceScheduler, list[0].Source)

	var snapshot model.CampaignModel
	require.NoError(t, json.Unmarshal(list[0].Payload, &snapshot))
	assert.Equal(t, "alpha", snapshot.Name)
}

func TestOnTransitionSwallowsFailures(t *testing.T) {
	m := metrics.New()
	var calls []string
	n := New(failingStore{}, m,
		recordingHook{name: "broken", err: errors.New("smtp down"), calls: &calls},
		recordingHook{name: "panicky", panics: true, calls: &calls},
		recordingHook{name: "healthy", calls: &calls},
	)

	_, errs := n.OnTransition(context.Background(), &model.CampaignModel{Id: 1}, phase.PhaseLive, phase.PhaseProcessing, model.NotificationSourceScheduler, at)

	// 失败的 hook 不影响后续 hook
	assert.Equal(t, []string{"broken", "panicky", "healthy"}, calls)
	require.Len(t, errs, 3)
	stages := []string{}
	for _, err := range errs {
		var deliveryErr *NotificationDeliveryError
		require.ErrorAs(t, err, &deliveryErr)
		stages = append(stages, deliveryErr.Stage)
	}
	assert.Equal(t, []string{"persist", "broken", "panicky"}, stages)
	assert.Contains(t, errs[2].Error(), "panicked")

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "ido_notifier_failures_total" {
			found = true
			assert.Len(t, f.GetMetric(), 3)
		}
	}
	assert.True(t, found)
}

func TestCacheInvalidationHook(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.NewCampaignCache(client, time.Minute)

	campaign := &model.CampaignModel{Id: 5, Name: "cached"}
	c.Set(context.Background(), campaign, 0)
	require.True(t, mr.Exists(cache.Key(5)))

	n := New(nil, nil, CacheInvalidationHook{Cache: c})
	_, errs := n.OnTransition(context.Background(), campaign, phase.PhaseLive, phase.PhaseProcessing, model.NotificationSourceScheduler, at)
	assert.Empty(t, errs)
	assert.False(t, mr.Exists(cache.Key(5)))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestQueueHookEnqueuesWithEventId(t *testing.T) {
	q := &fakeEnqueuer{}
	n := New(nil, nil, QueueHook{Client: q, Queue: "notifications", MaxRetry: 5})

	campaign := &model.CampaignModel{Id: 9, Name: "queued", TokenSymbol: "QQ"}
	evt, errs := n.OnTransition(context.Background(), campaign, phase.PhaseProcessing, phase.PhaseClaimable, model.NotificationSourceOverride, at)
	require.Empty(t, errs)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TypePhaseChanged, q.tasks[0].Type())

	var payload PhaseChangedPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, evt.EventId, payload.EventId)
	assert.Equal(t, int64(9), payload.CampaignId)
	assert.Equal(t, phase.PhaseClaimable, payload.NewPhase)
	assert.Equal(t, "QQ", payload.TokenSymbol)

	values := map[asynq.OptionType]interface{}{}
	for _, opt := range q.opts[0] {
		values[opt.Type()] = opt.Value()
	}
	assert.Equal(t, evt.EventId, values[asynq.TaskIDOpt])
	assert.Equal(t, "notifications", values[asynq.QueueOpt])
	assert.Equal(t, 5, values[asynq.MaxRetryOpt])
}

func TestQueueHookTreatsDuplicateAsDelivered(t *testing.T) {
	hook := QueueHook{Client: &fakeEnqueuer{err: asynq.ErrTaskIDConflict}}
	err := hook.OnPhaseChange(context.Background(), Event{EventId: "dup"}, &model.CampaignModel{})
	assert.NoError(t, err)

	hook = QueueHook{Client: &fakeEnqueuer{err: errors.New("redis down")}}
	err = hook.OnPhaseChange(context.Background(), Event{EventId: "x"}, &model.CampaignModel{})
	assert.Error(t, err)
}

func TestBuiltinHooksNeverFail(t *testing.T) {
	ctx := context.Background()
	evt := Event{CampaignId: 1, OldPhase: phase.PhaseLive, NewPhase: phase.PhaseProcessing}
	campaign := &model.CampaignModel{Id: 1}

	assert.NoError(t, LogHook{}.OnPhaseChange(ctx, evt, campaign))
	assert.NoError(t, LifecycleHook{}.OnPhaseChange(ctx, evt, campaign))
	assert.NoError(t, CacheInvalidationHook{}.OnPhaseChange(ctx, evt, campaign))
}

func TestNotificationSwallowMetricCount(t *testing.T) {
	m := metrics.New()
	n := New(failingStore{}, m)
	_, errs := n.OnTransition(context.Background(), &model.CampaignModel{Id: 2}, phase.PhaseUpcoming, phase.PhaseLive, model.NotificationSourceScheduler, at)
	require.Len(t, errs, 1)
	count, err := testutil.GatherAndCount(m.Registry(), "ido_notifier_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
