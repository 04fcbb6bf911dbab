package server

import (
	"context"
	"time"

	"OrderSaga/internal/biz"
	"OrderSaga/internal/conf"
	pkglog "OrderSaga/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/robfig/cron/v3"
)

const (
	// 默认每 5 分钟执行一次（秒 分 时 日 月 周）
	defaultPendingReportSchedule = "0 */5 * * * *"
	defaultPendingStaleAfter     = 15 * time.Minute
	pendingReportTimeout         = time.Minute
)

var _ transport.Server = (*CronServer)(nil)

// CronServer runs the pending-payment report on a schedule.
type CronServer struct {
	cron       *cron.Cron
	reporter   *biz.PendingPaymentReporter
	schedule   string
	staleAfter time.Duration
	log        *pkglog.LogHelper
}

// NewCronServer registers the report job. An invalid schedule fails startup.
func NewCronServer(c *conf.Saga, reporter *biz.PendingPaymentReporter, logger log.Logger) (*CronServer, error) {
	s := &CronServer{
		cron:       cron.New(cron.WithSeconds()),
		reporter:   reporter,
		schedule:   defaultPendingReportSchedule,
		staleAfter: defaultPendingStaleAfter,
		log:        pkglog.NewLogHelper(logger),
	}
	if c != nil {
		if c.PendingReportCron != "" {
			s.schedule = c.PendingReportCron
		}
		if c.PendingStaleAfter != nil && c.PendingStaleAfter.AsDuration() > 0 {
			s.staleAfter = c.PendingStaleAfter.AsDuration()
		}
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runReport); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CronServer) runReport() {
	ctx, cancel := context.WithTimeout(context.Background(), pendingReportTimeout)
	defer cancel()

	if _, err := s.reporter.Report(ctx, s.staleAfter); err != nil {
		s.log.Errorw("msg", "pending payment report failed", "type", "scheduler", "error", err)
	}
}

// Start starts the scheduler in its own goroutine.
func (s *CronServer) Start(context.Context) error {
	s.cron.Start()
	s.log.Scheduler("pending payment report scheduled", "schedule", s.schedule, "stale_after", s.staleAfter.String())
	return nil
}

// Stop stops the scheduler and waits for a running report.
func (s *CronServer) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	return nil
}
