// Gridwatch - Industrial Monitoring and SCADA Configuration Backend
// Copyright 2026 T. Machen (tmachen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tmachen/gridwatch

package client

import (
	"context"
	"sync"
	"time"

	"github.com/tmachen/gridwatch/internal/logging"
	"github.com/tmachen/gridwatch/internal/models"
)

// StageStatus is the lifecycle of one sync stage.
type StageStatus string

const (
	StageIdle    StageStatus = "idle"
	StageLoading StageStatus = "loading"
	StageSuccess StageStatus = "success"
	StageError   StageStatus = "error"
)

// Sync stage names, in execution order.
const (
	StageGroups = "groups"
	StageItems  = "items"
)

// completionDelay holds the "sync complete" state visible before the
// completion callback fires.
const completionDelay = 1500 * time.Millisecond

// StageProgress is the observable state of one stage.
type StageProgress struct {
	Status   StageStatus `json:"status"`
	Progress int         `json:"progress"` // 0-100
	Error    string      `json:"error,omitempty"`
}

// SyncState aggregates all stages. Completed and HasErrors are derived and
// mutually exclusive: a run is complete only when every stage succeeded.
type SyncState struct {
	Stages    map[string]StageProgress `json:"stages"`
	Completed bool                     `json:"completed"`
	HasErrors bool                     `json:"has_errors"`
}

// Syncer drives the post-login cache refresh: groups first, then items,
// strictly in that order because the item snapshot is keyed by group IDs.
// There is no automatic retry; the caller decides to retry or skip.
type Syncer struct {
	client *Client
	cache  *Cache

	mu     sync.Mutex
	stages map[string]*StageProgress

	// onComplete fires once per Syncer, completionDelay after the run
	// reaches Completed. Guarded against duplicate invocation.
	onComplete   func()
	completeOnce sync.Once
}

// NewSyncer builds a syncer with both stages idle. onComplete may be nil.
func NewSyncer(client *Client, cache *Cache, onComplete func()) *Syncer {
	return &Syncer{
		client: client,
		cache:  cache,
		stages: map[string]*StageProgress{
			StageGroups: {Status: StageIdle},
			StageItems:  {Status: StageIdle},
		},
		onComplete: onComplete,
	}
}

// State returns a copy of the current sync state.
func (s *Syncer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := SyncState{Stages: make(map[string]StageProgress, len(s.stages))}
	allSuccess := true
	for name, stage := range s.stages {
		state.Stages[name] = *stage
		if stage.Status == StageError {
			state.HasErrors = true
		}
		if stage.Status != StageSuccess {
			allSuccess = false
		}
	}
	state.Completed = allSuccess
	return state
}

// StartSync runs both stages in order. Stage 2 never starts unless stage 1
// succeeded. The returned error is the first stage failure, also recorded in
// the stage state.
func (s *Syncer) StartSync(ctx context.Context) error {
	if err := s.runStage(ctx, StageGroups); err != nil {
		return err
	}
	err := s.runStage(ctx, StageItems)
	s.maybeComplete()
	return err
}

// RetryFailed re-runs every stage that has not succeeded: stages in error,
// and stages still idle because an earlier failure blocked them. Succeeded
// stages are preserved, and the sequential contract holds on the retry too:
// a stage that fails again stops the run before the later stages.
func (s *Syncer) RetryFailed(ctx context.Context) error {
	for _, name := range []string{StageGroups, StageItems} {
		s.mu.Lock()
		succeeded := s.stages[name].Status == StageSuccess
		s.mu.Unlock()
		if succeeded {
			continue
		}
		if err := s.runStage(ctx, name); err != nil {
			return err
		}
	}
	s.maybeComplete()
	return nil
}

// runStage executes one fetch-and-cache stage.
func (s *Syncer) runStage(ctx context.Context, name string) error {
	s.setStage(name, StageProgress{Status: StageLoading, Progress: 0})

	var err error
	switch name {
	case StageGroups:
		var groups []*models.Group
		groups, err = s.client.ListGroups(ctx)
		if err == nil {
			err = s.cache.SaveGroups(groups)
		}
	case StageItems:
		var items []*models.Item
		items, err = s.client.ListItems(ctx)
		if err == nil {
			err = s.cache.SaveItems(items)
		}
	}

	if err != nil {
		logging.Error().Err(err).Str("stage", name).Msg("Sync stage failed")
		s.setStage(name, StageProgress{Status: StageError, Progress: 0, Error: err.Error()})
		return err
	}
	s.setStage(name, StageProgress{Status: StageSuccess, Progress: 100})
	return nil
}

func (s *Syncer) setStage(name string, progress StageProgress) {
	s.mu.Lock()
	*s.stages[name] = progress
	s.mu.Unlock()
}

// maybeComplete schedules the one-shot completion callback when every stage
// succeeded.
func (s *Syncer) maybeComplete() {
	if !s.State().Completed || s.onComplete == nil {
		return
	}
	s.completeOnce.Do(func() {
		time.AfterFunc(completionDelay, s.onComplete)
	})
}
