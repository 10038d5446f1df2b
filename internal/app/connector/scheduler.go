package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/exp/slog"
)

type job struct {
	name    string
	spec    string
	fn      func(ctx context.Context) error
	mu      sync.Mutex
	running bool
}

// Scheduler запускает задачи коннектора по cron-расписанию. Если
// предыдущий запуск задачи еще идет, очередной пропускается.
type Scheduler struct {
	log    *slog.Logger
	cron   *cron.Cron
	jobs   []*job
	parent context.Context
	wg     sync.WaitGroup
}

func NewScheduler(log *slog.Logger) *Scheduler {
	log = log.With(slog.String("component", "scheduler"))
	return &Scheduler{
		log:  log,
		cron: cron.New(cron.WithLogger(cronLogger{log: log})),
	}
}

// Add регистрирует задачу; spec в стандартном формате cron или @every
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	j := &job{name: name, spec: spec, fn: fn}
	if _, err := s.cron.AddFunc(spec, func() { s.runOnce(j) }); err != nil {
		return fmt.Errorf("ошибка регистрации задачи %s (%q): %w", name, spec, err)
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start запускает расписание и сразу выполняет каждую задачу один раз.
// Возвращаемая функция останавливает планировщик и дожидается задач.
func (s *Scheduler) Start(parent context.Context) context.CancelFunc {
	s.parent = parent
	s.cron.Start()

	for _, j := range s.jobs {
		s.log.Info("Задача запланирована", slog.String("job", j.name), slog.String("spec", j.spec))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runOnce(j)
		}()
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			<-s.cron.Stop().Done()
			s.wg.Wait()
			s.log.Info("Планировщик остановлен")
		})
	}

	go func() {
		<-parent.Done()
		stop()
	}()

	return stop
}

func (s *Scheduler) runOnce(j *job) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		s.log.Warn("Предыдущий запуск еще идет, пропускаем", slog.String("job", j.name))
		return
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	ctx := s.parent
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := j.fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.log.Error("Задача завершилась с ошибкой",
			slog.String("job", j.name),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return
	}
	s.log.Debug("Задача выполнена", slog.String("job", j.name), slog.Duration("duration", elapsed))
}

// cronLogger направляет внутренние сообщения cron в slog
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
