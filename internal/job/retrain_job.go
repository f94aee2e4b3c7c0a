package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"

	"stock-signal-lab/internal/service"
)

type ModelTrainer interface {
	Train(ctx context.Context, ticker, family string) (*service.TrainSummary, error)
}

// RetrainJob refits every watched ticker once per day at a fixed UTC
// hour, so active models keep up with fresh bars.
type RetrainJob struct {
	tracer    trace.Tracer
	trainer   ModelTrainer
	tickers   []string
	family    string
	trainHour int
}

func NewRetrainJob(tracer trace.Tracer, trainer ModelTrainer, tickers []string, family string, trainHourUTC int) *RetrainJob {
	if trainHourUTC < 0 || trainHourUTC > 23 {
		trainHourUTC = 0
	}
	return &RetrainJob{
		tracer:    tracer,
		trainer:   trainer,
		tickers:   tickers,
		family:    family,
		trainHour: trainHourUTC,
	}
}

func (j *RetrainJob) Start(ctx context.Context) {
	if j.trainer == nil || len(j.tickers) == 0 {
		log.Println("Retrain job disabled: no trainer or empty watchlist")
		<-ctx.Done()
		return
	}
	for {
		next := nextRunUTC(time.Now().UTC(), j.trainHour)
		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.runOnce(ctx)
		}
	}
}

func (j *RetrainJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "retrain-job.run-once")
	defer span.End()

	for _, ticker := range j.tickers {
		if ctx.Err() != nil {
			return
		}
		summary, err := j.trainer.Train(ctx, ticker, j.family)
		if err != nil {
			log.Printf("Retrain error ticker=%s: %v", ticker, err)
			continue
		}
		log.Printf("Retrain result model=%s version=%d f1=%.4f promoted=%v",
			summary.ModelKey, summary.Version, summary.Metrics["f1"], summary.Promoted)
	}
}

func nextRunUTC(now time.Time, hour int) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.Add(24 * time.Hour)
	}
	return run
}
