package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/pipeline"
	"github.com/LJTian/CryptoNewsBot/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// ErrAlreadyRunning 同一时间只允许一次运行；重复触发直接返回该错误
var ErrAlreadyRunning = errors.New("scheduler: a run is already in progress")

// ErrStopped Stop 之后不再接受新的运行
var ErrStopped = errors.New("scheduler: stopped")

// DefaultStartupDelay 进程启动后延迟执行首轮，等依赖服务就绪
const DefaultStartupDelay = 15 * time.Second

const (
	TriggerCron    = "cron"
	TriggerStartup = "startup"
	TriggerAPI     = "api"
	TriggerCLI     = "cli"
)

type Runner interface {
	Run(ctx context.Context) pipeline.Report
}

type Scheduler struct {
	cron   *cron.Cron
	entry  cron.EntryID
	runner Runner
	// runs 为 nil 时不保存运行历史
	runs storage.RunStore

	StartupDelay time.Duration
	startup      *time.Timer

	mu      sync.Mutex // 持有期间即有一次运行在进行
	running atomic.Bool
	wg      sync.WaitGroup

	lastMu sync.RWMutex
	last   *pipeline.Report

	ctx    context.Context
	cancel context.CancelFunc
}

func New(spec string, runner Runner, runs storage.RunStore) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:         c,
		runner:       runner,
		runs:         runs,
		StartupDelay: DefaultStartupDelay,
		ctx:          ctx,
		cancel:       cancel,
	}

	id, err := c.AddFunc(spec, s.cronJob)
	if err != nil {
		cancel()
		return nil, err
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.startup = time.AfterFunc(s.StartupDelay, func() {
		if err := s.Trigger(TriggerStartup); err != nil {
			log.Warn().Err(err).Msg("startup run skipped")
		}
	})
}

// Stop 停止调度并取消进行中的运行，等待其退出
func (s *Scheduler) Stop() {
	if s.startup != nil {
		s.startup.Stop()
	}
	ctx := s.cron.Stop()
	s.cancel()
	<-ctx.Done()
	s.wg.Wait()
}

func (s *Scheduler) cronJob() {
	if _, err := s.RunOnce(s.ctx, TriggerCron); err != nil {
		log.Warn().Err(err).Msg("scheduled run skipped")
	}
}

// RunOnce 同步执行一次完整流程
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) (pipeline.Report, error) {
	if s.ctx.Err() != nil {
		return pipeline.Report{}, ErrStopped
	}
	if !s.mu.TryLock() {
		return pipeline.Report{}, ErrAlreadyRunning
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.mu.Unlock()
	return s.run(ctx, trigger), nil
}

// Trigger 立即在后台开始一次运行；已有运行时返回 ErrAlreadyRunning
func (s *Scheduler) Trigger(trigger string) error {
	if s.ctx.Err() != nil {
		return ErrStopped
	}
	if !s.mu.TryLock() {
		return ErrAlreadyRunning
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.mu.Unlock()
		s.run(s.ctx, trigger)
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context, trigger string) pipeline.Report {
	s.running.Store(true)
	defer s.running.Store(false)

	log.Info().Str("trigger", trigger).Msg("start publish job...")
	rep := s.runner.Run(ctx)
	rep.Trigger = trigger

	s.lastMu.Lock()
	s.last = &rep
	s.lastMu.Unlock()

	if s.runs != nil {
		if err := s.runs.SaveRun(context.WithoutCancel(ctx), toRecord(rep)); err != nil {
			log.Error().Err(err).Str("run_id", rep.RunID).Msg("save run record failed")
		}
	}
	return rep
}

func toRecord(rep pipeline.Report) *storage.RunRecord {
	phases := datatypes.JSONMap{}
	for _, p := range rep.Phases {
		phases[p.Name] = p
	}
	return &storage.RunRecord{
		ID:         rep.RunID,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Trigger:    rep.Trigger,
		Posted:     rep.Posted(),
		Phases:     phases,
	}
}

func (s *Scheduler) LastReport() (pipeline.Report, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.last == nil {
		return pipeline.Report{}, false
	}
	return *s.last, true
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Next 下一次定时运行的时间；调度未启动时为零值
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// cronLogger 把 cron 的日志接到 zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
