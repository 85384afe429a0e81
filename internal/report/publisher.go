package report

import (
	"bytes"
	"caseledger/internal/blob"
	"caseledger/internal/core"
	"caseledger/pkg/domain"
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus describes the lifecycle stage of a publish request.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// KeyPrefix is the blob key prefix of every published report.
const KeyPrefix = "reports/"

// Source lists the records a report is built from.
type Source interface {
	ListTestCases(ctx context.Context, filter domain.Filter) (iter.Seq[domain.TestCase], error)
}

// Request selects the records and renderings of one report.
type Request struct {
	Filter      domain.Filter
	Formats     []Format
	RequestedBy string
}

// Artifact is one stored rendering.
type Artifact struct {
	Format Format    `json:"format"`
	Key    string    `json:"key"`
	Size   int64     `json:"size_bytes"`
	URL    string    `json:"url,omitempty"`
	Stored time.Time `json:"stored_at"`
}

// Job tracks a publish request and its artifacts.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Formats     []Format       `json:"formats"`
	RequestedBy string         `json:"requested_by,omitempty"`
	Error       string         `json:"error,omitempty"`
	Summary     domain.Summary `json:"summary"`
	Artifacts   []Artifact     `json:"artifacts,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (j Job) clone() Job {
	cp := j
	cp.Formats = append([]Format(nil), j.Formats...)
	cp.Artifacts = append([]Artifact(nil), j.Artifacts...)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.Summary.Counts != nil {
		cp.Summary.Counts = make(map[domain.Status]int, len(j.Summary.Counts))
		for k, v := range j.Summary.Counts {
			cp.Summary.Counts[k] = v
		}
	}
	return cp
}

// ErrQueueFull is returned by Enqueue when the backlog is at capacity.
var ErrQueueFull = errors.New("report queue full")

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the publisher logger.
func WithLogger(logger core.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the clock used for keys, summaries and job stamps.
func WithClock(clock core.ClockFunc) PublisherOption {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithQueueSize sets the number of requests Enqueue may buffer.
func WithQueueSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// Publisher renders reports and writes them to a blob store. Publish runs
// synchronously; Enqueue hands the request to a background worker started
// with Start.
type Publisher struct {
	source    Source
	store     blob.Store
	logger    core.Logger
	clock     core.ClockFunc
	queueSize int

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*Job
	reqs  map[string]Request

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher constructs a publisher over source and store.
func NewPublisher(source Source, store blob.Store, opts ...PublisherOption) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		source:    source,
		store:     store,
		logger:    nopLogger{},
		queueSize: 16,
		jobs:      make(map[string]*Job),
		reqs:      make(map[string]Request),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan string, p.queueSize)
	return p
}

// Start launches the background worker.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop halts the worker and waits for the job in progress, if any.
func (p *Publisher) Stop(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case id := <-p.queue:
			p.run(p.ctx, id)
		}
	}
}

func normalizeFormats(formats []Format) ([]Format, error) {
	if len(formats) == 0 {
		return Formats(), nil
	}
	out := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{}, len(formats))
	for _, f := range formats {
		parsed, err := ParseFormat(string(f))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[parsed]; dup {
			continue
		}
		seen[parsed] = struct{}{}
		out = append(out, parsed)
	}
	return out, nil
}

func (p *Publisher) newJob(req Request) (Job, error) {
	if err := req.Filter.Validate(); err != nil {
		return Job{}, err
	}
	formats, err := normalizeFormats(req.Formats)
	if err != nil {
		return Job{}, err
	}
	now := p.clock.Now()
	job := Job{
		ID:          uuid.NewString(),
		Status:      JobQueued,
		Formats:     formats,
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req.Formats = formats
	p.mu.Lock()
	p.jobs[job.ID] = &job
	p.reqs[job.ID] = req
	p.mu.Unlock()
	return job.clone(), nil
}

// Publish renders and stores a report before returning the finished job. A
// failed job is returned together with the error.
func (p *Publisher) Publish(ctx context.Context, req Request) (Job, error) {
	job, err := p.newJob(req)
	if err != nil {
		return Job{}, err
	}
	if err := p.run(ctx, job.ID); err != nil {
		finished, _ := p.Job(job.ID)
		return finished, err
	}
	finished, _ := p.Job(job.ID)
	return finished, nil
}

// Enqueue registers a job for the background worker and returns it queued.
func (p *Publisher) Enqueue(_ context.Context, req Request) (Job, error) {
	job, err := p.newJob(req)
	if err != nil {
		return Job{}, err
	}
	select {
	case p.queue <- job.ID:
		return job, nil
	default:
		p.mu.Lock()
		delete(p.jobs, job.ID)
		delete(p.reqs, job.ID)
		p.mu.Unlock()
		return Job{}, ErrQueueFull
	}
}

// Job returns a snapshot of the job with id.
func (p *Publisher) Job(id string) (Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	job, ok := p.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// Published lists the stored report artifacts.
func (p *Publisher) Published(ctx context.Context) ([]blob.Info, error) {
	return p.store.List(ctx, KeyPrefix)
}

func (p *Publisher) run(ctx context.Context, id string) error {
	p.mu.RLock()
	req := p.reqs[id]
	p.mu.RUnlock()
	p.update(id, func(j *Job) { j.Status = JobRunning })

	data, err := p.collect(ctx, req.Filter)
	if err != nil {
		return p.fail(id, fmt.Errorf("collect records: %w", err))
	}
	p.update(id, func(j *Job) { j.Summary = data.Summary })

	prefix := fmt.Sprintf("%s%s-%s/", KeyPrefix, data.Summary.GeneratedAt.UTC().Format("20060102T150405Z"), id[:8])
	artifacts := make([]Artifact, 0, len(req.Formats))
	for _, f := range req.Formats {
		var buf bytes.Buffer
		if err := Render(&buf, f, data); err != nil {
			return p.fail(id, fmt.Errorf("render %s: %w", f, err))
		}
		key := prefix + "testcases" + f.Extension()
		info, err := p.store.Put(ctx, key, &buf, blob.PutOptions{
			ContentType: f.ContentType(),
			Metadata:    map[string]string{"job": id, "format": string(f)},
		})
		if err != nil {
			return p.fail(id, fmt.Errorf("store %s: %w", key, err))
		}
		url := info.URL
		if url == "" {
			if signed, err := p.store.PresignURL(ctx, key, blob.SignedURLOptions{}); err == nil {
				url = signed
			}
		}
		artifacts = append(artifacts, Artifact{Format: f, Key: key, Size: info.Size, URL: url, Stored: info.LastModified})
	}

	now := p.clock.Now()
	p.update(id, func(j *Job) {
		j.Status = JobSucceeded
		j.Error = ""
		j.Artifacts = artifacts
		j.CompletedAt = &now
	})
	p.logger.Info("report published", "job", id, "artifacts", len(artifacts), "records", data.Summary.Total)
	return nil
}

func (p *Publisher) collect(ctx context.Context, filter domain.Filter) (Data, error) {
	seq, err := p.source.ListTestCases(ctx, filter)
	if err != nil {
		return Data{}, err
	}
	var records []domain.TestCase
	for tc := range seq {
		records = append(records, tc)
	}
	return NewData(records, p.clock.Now()), nil
}

func (p *Publisher) update(id string, fn func(*Job)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if job, ok := p.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = p.clock.Now()
	}
}

func (p *Publisher) fail(id string, err error) error {
	now := p.clock.Now()
	p.update(id, func(j *Job) {
		j.Status = JobFailed
		j.Error = err.Error()
		j.CompletedAt = &now
	})
	p.logger.Error("report publish failed", "job", id, "error", err)
	return err
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
