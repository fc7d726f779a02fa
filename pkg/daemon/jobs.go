package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/archive"
	"github.com/charlie0129/q0/pkg/batch"
	"github.com/charlie0129/q0/pkg/events"
)

// sched reprocesses the configured batch plan.
var sched = newBatchScheduler()

// fetcher is replaced in tests.
var fetcher = func() archive.Fetcher { return archive.NewMySampler(conf.MySamplerPath()) }

func newBatchScheduler() *Scheduler {
	return NewScheduler(runBatchPlan, checkBatchPlan, notifyBatchUpcoming, notifyBatchError)
}

func checkBatchPlan() error {
	path := conf.BatchPlan()
	if path == "" {
		return pkgerrors.New("no batch plan configured")
	}
	if _, err := os.Stat(path); err != nil {
		return pkgerrors.Wrapf(err, "batch plan %s", path)
	}
	return nil
}

func runBatchPlan() error {
	path := conf.BatchPlan()
	plan, err := batch.LoadPlan(path)
	if err != nil {
		return err
	}

	runner := &batch.Runner{
		Params:  conf.Params(),
		Fetcher: fetcher(),
		DataDir: conf.DataDir(),
	}
	if out := sinks(); len(out) > 0 {
		runner.Sink = out
	}

	logrus.WithField("plan", path).Info("running batch plan")
	res, err := runner.Run(context.Background(), plan)
	if err != nil {
		return err
	}

	sessions := 0
	for _, cm := range res.Cryomodules {
		for _, sr := range append([]batch.SessionResult{cm.Calibration}, cm.Measurements...) {
			sessions++
			if sr.Session == nil {
				sseHub.Publish(events.SessionFailed, events.SessionEvent{
					Name:    sr.Name,
					Message: sr.Error,
					Ts:      time.Now().Unix(),
				})
				continue
			}
			reg.add(sr.Session)
			sseHub.Publish(events.SessionProcessed, events.SessionEvent{
				ID:   sr.Session.ID(),
				Name: sr.Name,
				Kind: string(sr.Session.Kind()),
				Runs: len(sr.Session.Runs()),
				Ts:   time.Now().Unix(),
			})
		}
	}

	failed := res.Failed()
	logrus.WithFields(logrus.Fields{
		"plan":     path,
		"sessions": sessions,
		"failed":   failed,
	}).Info("batch plan finished")
	sseHub.Publish(events.BatchFinished, events.BatchEvent{
		Plan:     path,
		Sessions: sessions,
		Failed:   failed,
		Ts:       time.Now().Unix(),
	})
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions failed or were skipped", failed, sessions)
	}
	return nil
}

func notifyBatchUpcoming(data any) {
	runAt, _ := data.(time.Time)
	sseHub.Publish(events.BatchUpcoming, events.BatchEvent{
		Plan:  conf.BatchPlan(),
		RunAt: runAt.Unix(),
		Ts:    time.Now().Unix(),
	})
}

func notifyBatchError(data any) {
	err, _ := data.(error)
	logrus.WithError(err).Error("scheduled batch failed")
	sseHub.Publish(events.BatchFailed, events.BatchEvent{
		Plan:    conf.BatchPlan(),
		Message: fmt.Sprint(data),
		Ts:      time.Now().Unix(),
	})
}
