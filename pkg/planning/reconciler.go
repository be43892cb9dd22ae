// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/tether/pkg/storage"
	"github.com/teradata-labs/tether/pkg/types"
)

// DefaultReconcileSchedule sweeps every minute.
const DefaultReconcileSchedule = "* * * * *"

// Reconciler periodically reconciles the planning transcripts of all
// tasks still in planning against the gateway. It backstops the
// in-request poll: replies that arrive after the poll budget expired
// are picked up here instead of waiting for the next read.
type Reconciler struct {
	store    storage.Store
	planner  *Planner
	schedule string
	logger   *zap.Logger

	cronEngine *cron.Cron
}

// NewReconciler creates a reconciler on the given cron schedule
// (standard 5-field format). An empty schedule uses the default.
func NewReconciler(store storage.Store, planner *Planner, schedule string, logger *zap.Logger) *Reconciler {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:    store,
		planner:  planner,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the sweep and starts the cron engine.
func (r *Reconciler) Start() error {
	r.cronEngine = cron.New()
	if _, err := r.cronEngine.AddFunc(r.schedule, r.sweep); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}
	r.cronEngine.Start()
	r.logger.Info("Planning reconciler started", zap.String("schedule", r.schedule))
	return nil
}

// Stop halts the cron engine, waiting for an in-flight sweep.
func (r *Reconciler) Stop() {
	if r.cronEngine == nil {
		return
	}
	<-r.cronEngine.Stop().Done()
	r.logger.Info("Planning reconciler stopped")
}

func (r *Reconciler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tasks, err := r.store.ListTasksByStatus(ctx, types.StatusPlanning)
	if err != nil {
		r.logger.Error("Planning sweep failed to list tasks", zap.Error(err))
		return
	}

	reconciled := 0
	for _, task := range tasks {
		before := len(task.PlanningMessages)
		after, err := r.planner.Reconcile(ctx, task)
		if err != nil {
			r.logger.Warn("Planning sweep failed for task",
				zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		if len(after.PlanningMessages) > before {
			reconciled++
		}
	}

	if reconciled > 0 {
		r.logger.Info("Planning sweep reconciled replies",
			zap.Int("tasks", len(tasks)), zap.Int("reconciled", reconciled))
	}
}
