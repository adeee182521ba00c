package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/martinsuchenak/gestion-impacts/internal/log"
)

// Task status values
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TaskHandler is the function executed by a task
type TaskHandler func(ctx context.Context) error

// Task is a registered recurring task
type Task struct {
	Name      string
	Spec      string
	Status    string
	Runs      int
	LastRun   *time.Time
	LastError string
	NextRun   time.Time

	handler TaskHandler
	entryID cron.EntryID
}

// Scheduler triggers recurring tasks on cron specs and runs them on the
// worker pool. A task never overlaps with its own previous run.
type Scheduler struct {
	mu    sync.Mutex
	cron  *cron.Cron
	pool  *Pool
	tasks map[string]*Task
}

// NewScheduler creates a scheduler running its tasks on pool
func NewScheduler(pool *Pool) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		pool:  pool,
		tasks: make(map[string]*Task),
	}
}

// Register adds a task. spec is a standard five-field cron spec or a
// descriptor such as "@every 1h".
func (s *Scheduler) Register(name, spec string, handler TaskHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("task %q already registered", name)
	}

	task := &Task{Name: name, Spec: spec, Status: StatusPending, handler: handler}
	id, err := s.cron.AddFunc(spec, func() { s.trigger(task) })
	if err != nil {
		return fmt.Errorf("invalid schedule for task %q: %w", name, err)
	}
	task.entryID = id
	s.tasks[name] = task

	log.Info("Task registered", "task", name, "schedule", spec)
	return nil
}

// Start starts triggering tasks
func (s *Scheduler) Start() {
	log.Info("Starting background scheduler", "tasks", len(s.tasks))
	s.cron.Start()
}

// Stop stops triggering tasks and waits for triggers in progress. Jobs
// already on the pool finish with the pool.
func (s *Scheduler) Stop() {
	log.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

// RunNow triggers name immediately and waits for it to finish.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	return s.run(ctx, task)
}

// Tasks returns a snapshot of the registered tasks ordered by name
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		c := *t
		c.NextRun = s.cron.Entry(t.entryID).Next
		tasks = append(tasks, c)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

func (s *Scheduler) trigger(task *Task) {
	if err := s.run(context.Background(), task); err != nil && !errors.Is(err, errTaskRunning) {
		log.Debug("Scheduled run ended with error", "task", task.Name, "error", err)
	}
}

var errTaskRunning = errors.New("task already running")

func (s *Scheduler) run(ctx context.Context, task *Task) error {
	s.mu.Lock()
	if task.Status == StatusRunning {
		s.mu.Unlock()
		log.Warn("Skipping task, previous run still in progress", "task", task.Name)
		return errTaskRunning
	}
	task.Status = StatusRunning
	now := time.Now()
	task.LastRun = &now
	s.mu.Unlock()

	log.Info("Running task", "task", task.Name)
	err := s.pool.Do(ctx, task.Name, task.handler)

	s.mu.Lock()
	defer s.mu.Unlock()
	task.Runs++
	if err != nil {
		task.Status = StatusFailed
		task.LastError = err.Error()
		log.Error("Task failed", "task", task.Name, "error", err)
		return err
	}
	task.Status = StatusCompleted
	task.LastError = ""
	log.Info("Task completed", "task", task.Name, "duration", time.Since(now))
	return nil
}

// cronLogger routes cron's own logging to the service log
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
