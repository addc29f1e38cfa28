package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/neardup/config"
	"github.com/use-agent/neardup/engine"
	"github.com/use-agent/neardup/metrics"
	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/simhash"
	"github.com/use-agent/neardup/store"
	"github.com/use-agent/neardup/webhook"
)

// Jobs holds in-flight and finished dedupe jobs.
type Jobs struct {
	jobs      sync.Map // id -> *models.DedupeJob
	sem       chan struct{}
	retention time.Duration

	st     *store.Store
	disp   *engine.Dispatcher
	finder config.FinderConfig
	hooks  *webhook.Deliverer

	// ctx is cancelled by Close and aborts running searches.
	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewJobs creates the job registry and starts its expiry loop. Call Close to
// stop it.
func NewJobs(cfg config.JobsConfig, finder config.FinderConfig, st *store.Store, disp *engine.Dispatcher, hooks *webhook.Deliverer) *Jobs {
	ctx, cancel := context.WithCancel(context.Background())
	j := &Jobs{
		ctx:       ctx,
		cancel:    cancel,
		sem:       make(chan struct{}, cfg.Concurrency),
		retention: cfg.Retention,
		st:        st,
		disp:      disp,
		finder:    finder,
		hooks:     hooks,
		stop:      make(chan struct{}),
	}

	interval := min(cfg.Retention/4, 5*time.Minute)
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-j.stop:
				return
			case <-ticker.C:
				j.expire(time.Now())
			}
		}
	}()
	return j
}

// Close stops the expiry loop, cancels running and queued jobs, and waits
// for them to finish along with their webhook deliveries.
func (j *Jobs) Close() {
	close(j.stop)
	j.cancel()
	j.wg.Wait()
}

// expire drops finished jobs created before now minus the retention period.
func (j *Jobs) expire(now time.Time) {
	cutoff := now.Add(-j.retention).Unix()
	j.jobs.Range(func(key, value any) bool {
		job := value.(*models.DedupeJob)
		if job.CreatedAt < cutoff && job.Done() {
			j.jobs.Delete(key)
		}
		return true
	})
}

// Stats counts jobs by state.
func (j *Jobs) Stats() models.JobStats {
	st := models.JobStats{Capacity: cap(j.sem)}
	j.jobs.Range(func(_, value any) bool {
		if value.(*models.DedupeJob).Done() {
			st.Finished++
		} else {
			st.Processing++
		}
		return true
	})
	return st
}

// Get returns a job by ID.
func (j *Jobs) Get(id string) (*models.DedupeJob, bool) {
	v, ok := j.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.DedupeJob), true
}

// Submit validates a dedupe of collection and starts it in the background.
func (j *Jobs) Submit(collection string, req models.DedupeRequest) (*models.DedupeJob, error) {
	records, err := j.st.List(collection)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, models.NewAPIError(models.ErrCodeNotFound, "collection "+collection+" is empty or does not exist", store.ErrNotFound)
	}
	plan, err := planSearch(j.finder, len(records), *req.MaxDistance, nil, req.Rotations, req.Exact)
	if err != nil {
		return nil, err
	}

	job := &models.DedupeJob{
		ID:         "dedupe-" + uuid.NewString(),
		Collection: collection,
		Status:     models.JobProcessing,
		Total:      len(records),
		CreatedAt:  time.Now().Unix(),
	}
	j.jobs.Store(job.ID, job)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		err := j.run(job, records, plan)
		j.notify(job, req, err)
	}()
	return job, nil
}

// run performs one dedupe job, bounded by the job semaphore.
func (j *Jobs) run(job *models.DedupeJob, records []store.Record, plan searchPlan) error {
	select {
	case j.sem <- struct{}{}:
	case <-j.ctx.Done():
		err := j.ctx.Err()
		job.Finish(nil, nil, err)
		slog.Warn("dedupe job cancelled before start", "id", job.ID, "collection", job.Collection)
		return err
	}
	defer func() { <-j.sem }()
	metrics.JobStarted()
	defer metrics.JobFinished()

	fps := make([]uint64, len(records))
	for i, r := range records {
		fps[i] = r.Fingerprint
	}

	result, err := j.disp.Dispatch(j.ctx, &engine.Request{
		Fingerprints: fps,
		MaxDistance:  plan.maxDistance,
	}, plan.passes())

	var pairs []models.IDPair
	var passes []models.PassInfo
	if err == nil {
		pairs = make([]models.IDPair, len(result.Pairs))
		for i, p := range result.Pairs {
			pairs[i] = models.IDPair{
				A:        records[p.I].ID,
				B:        records[p.J].ID,
				Distance: simhash.HammingDistance(fps[p.I], fps[p.J]),
			}
		}
		passes = passInfos(result.Passes)
	}
	job.Finish(pairs, passes, err)

	if err != nil {
		slog.Error("dedupe job failed", "id", job.ID, "collection", job.Collection, "error", err)
	} else {
		slog.Info("dedupe job finished",
			"id", job.ID,
			"collection", job.Collection,
			"records", job.Total,
			"pairs", len(pairs),
		)
	}
	return err
}

// notify delivers the job's final state to its webhook, if it has one.
// Deliveries ignore the job context; the retry budget bounds them.
func (j *Jobs) notify(job *models.DedupeJob, req models.DedupeRequest, err error) {
	if req.WebhookURL == "" || j.hooks == nil {
		return
	}
	eventType := "dedupe.completed"
	if err != nil {
		eventType = "dedupe.failed"
	}
	_ = j.hooks.DeliverWithRetry(context.Background(), req.WebhookURL, req.WebhookSecret, &webhook.Event{
		Type:      eventType,
		JobID:     job.ID,
		Timestamp: time.Now().Unix(),
		Data:      job.Snapshot(),
	})
}

// PostDedupe returns a handler for POST /api/v1/collections/:name/dedupe.
// It validates the request, creates a job, and runs it in the background.
func PostDedupe(jobs *Jobs) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jobs == nil || jobs.st == nil {
			respondError(c, errStoreDisabled)
			return
		}
		var req models.DedupeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		job, err := jobs.Submit(c.Param("name"), req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, models.DedupeResponse{
			Success: true,
			ID:      job.ID,
			Status:  models.JobProcessing,
			Total:   job.Total,
		})
	}
}

// GetJob returns a handler for GET /api/v1/jobs/:id.
func GetJob(jobs *Jobs) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jobs == nil {
			respondError(c, errStoreDisabled)
			return
		}
		job, ok := jobs.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewAPIError(models.ErrCodeNotFound, "job not found", nil))
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}
