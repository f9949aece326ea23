// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmachen/gridwatch/internal/models"
	"github.com/tmachen/gridwatch/internal/store"
)

// fakeNotifier records broadcasts.
type fakeNotifier struct {
	mu          sync.Mutex
	alarmCounts []int
	varBatches  [][]string
}

func (f *fakeNotifier) BroadcastAlarmCountChanged(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alarmCounts = append(f.alarmCounts, count)
}

func (f *fakeNotifier) BroadcastGlobalVariablesChanged(names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.varBatches = append(f.varBatches, names)
}

func newEngineFixture(t *testing.T) (*Engine, *store.Store, *fakeNotifier) {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	notifier := &fakeNotifier{}
	return New(st, notifier, 10*time.Millisecond), st, notifier
}

func seedItem(t *testing.T, st *store.Store, name string, value float64) *models.Item {
	t.Helper()
	group := &models.Group{Name: "test"}
	// Group may already exist from a prior call; ignore the duplicate
	groups, err := st.ListGroups()
	require.NoError(t, err)
	if len(groups) > 0 {
		group = groups[0]
	} else {
		require.NoError(t, st.CreateGroup(group))
	}

	item := &models.Item{GroupID: group.ID, Name: name, Kind: models.ItemAnalogInput}
	require.NoError(t, st.CreateItem(item))
	require.NoError(t, st.SetItemValue(item.ID, value, time.Now()))
	return item
}

func TestEngine_WritesOutputVariable(t *testing.T) {
	e, st, notifier := newEngineFixture(t)
	item := seedItem(t, st, "pressure", 42)

	require.NoError(t, st.CreateMemory(&models.Memory{
		Name: "passthrough", Type: models.MemoryIf, Enabled: true,
		Interval: 100, OutputVariable: "out",
		If: &models.IfConfig{ConditionItem: item.ID, ThenValue: 1, ElseValue: 0},
	}))

	now := time.Now()
	require.NoError(t, e.reload(now))
	e.runTick(now)

	gv, err := st.GetGlobalVariableByName("out")
	require.NoError(t, err)
	assert.Equal(t, 1.0, gv.Value)

	require.Len(t, notifier.varBatches, 1)
	assert.Equal(t, []string{"out"}, notifier.varBatches[0])
}

func TestEngine_RaisesAndClearsAlarm(t *testing.T) {
	e, st, notifier := newEngineFixture(t)
	item := seedItem(t, st, "temp", 150)

	mem := &models.Memory{
		Name: "overtemp", Type: models.MemoryComparison, Enabled: true,
		Interval: 100,
		Comparison: &models.ComparisonConfig{
			InputItem: item.ID, Operator: models.CompareGT, Threshold: 100,
			RaiseAlarm: true, AlarmSeverity: models.SeverityCritical,
		},
	}
	require.NoError(t, st.CreateMemory(mem))

	now := time.Now()
	require.NoError(t, e.reload(now))
	e.runTick(now)

	alarm, err := st.GetActiveAlarmBySource(mem.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, alarm.Severity)
	require.NotEmpty(t, notifier.alarmCounts)
	assert.Equal(t, 1, notifier.alarmCounts[len(notifier.alarmCounts)-1])

	// Condition recovers: the alarm clears on the next due evaluation
	require.NoError(t, st.SetItemValue(item.ID, 50, time.Now()))
	later := now.Add(200 * time.Millisecond)
	e.runTick(later)

	_, err = st.GetActiveAlarmBySource(mem.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, notifier.alarmCounts[len(notifier.alarmCounts)-1])
}

func TestEngine_IntervalGating(t *testing.T) {
	e, st, notifier := newEngineFixture(t)
	item := seedItem(t, st, "flow", 5)

	require.NoError(t, st.CreateMemory(&models.Memory{
		Name: "slow-avg", Type: models.MemoryAverage, Enabled: true,
		Interval: 60000, OutputVariable: "avg",
		Average: &models.AverageConfig{InputItem: item.ID, WindowSize: 5},
	}))

	now := time.Now()
	require.NoError(t, e.reload(now))
	e.runTick(now)
	require.Len(t, notifier.varBatches, 1)

	// Not due again within the interval
	e.runTick(now.Add(time.Second))
	assert.Len(t, notifier.varBatches, 1)

	e.runTick(now.Add(61 * time.Second))
	assert.Len(t, notifier.varBatches, 2)
}

func TestEngine_BrokenFormulaIsSkipped(t *testing.T) {
	e, st, _ := newEngineFixture(t)

	// Store-level validation checks envelope consistency, not formula
	// syntax; the engine rejects it at evaluator build time
	require.NoError(t, st.CreateMemory(&models.Memory{
		Name: "bad", Type: models.MemoryFormula, Enabled: true,
		Interval: 100, OutputVariable: "never",
		Formula: &models.FormulaConfig{Expression: "a + unbound", Inputs: map[string]string{"a": "x"}},
	}))

	now := time.Now()
	require.NoError(t, e.reload(now))
	e.runTick(now)

	_, err := st.GetGlobalVariableByName("never")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_RemovedMemoryClearsAlarm(t *testing.T) {
	e, st, _ := newEngineFixture(t)
	item := seedItem(t, st, "temp", 150)

	mem := &models.Memory{
		Name: "overtemp", Type: models.MemoryComparison, Enabled: true,
		Interval: 100,
		Comparison: &models.ComparisonConfig{
			InputItem: item.ID, Operator: models.CompareGT, Threshold: 100, RaiseAlarm: true,
		},
	}
	require.NoError(t, st.CreateMemory(mem))

	now := time.Now()
	require.NoError(t, e.reload(now))
	e.runTick(now)
	_, err := st.GetActiveAlarmBySource(mem.ID)
	require.NoError(t, err)

	require.NoError(t, st.SetMemoryEnabled(mem.ID, false))
	require.NoError(t, e.reload(now.Add(time.Second)))

	_, err = st.GetActiveAlarmBySource(mem.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEngine_ConfigChangeRebuildsEvaluator(t *testing.T) {
	e, st, _ := newEngineFixture(t)
	item := seedItem(t, st, "level", 10)

	mem := &models.Memory{
		Name: "avg", Type: models.MemoryAverage, Enabled: true,
		Interval: 100, OutputVariable: "avg",
		Average: &models.AverageConfig{InputItem: item.ID, WindowSize: 2},
	}
	require.NoError(t, st.CreateMemory(mem))

	now := time.Now()
	require.NoError(t, e.reload(now))
	first := e.entries[mem.ID].evaluator

	// Unchanged reload keeps the evaluator and its window state
	require.NoError(t, e.reload(now.Add(time.Second)))
	assert.Same(t, first, e.entries[mem.ID].evaluator)

	mem.Average.WindowSize = 10
	require.NoError(t, st.UpdateMemory(mem))
	require.NoError(t, e.reload(now.Add(2*time.Second)))
	assert.NotSame(t, first, e.entries[mem.ID].evaluator)
}
