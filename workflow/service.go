package workflow

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/distillery_backend/config"
	"github.com/mmdatafocus/distillery_backend/store"
	"github.com/mmdatafocus/distillery_backend/store/gormstore"
	"github.com/mmdatafocus/distillery_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service runs every stock and workflow operation. Each exported operation is one transaction.
type Service struct {
	store  store.Store
	logger *logrus.Logger
	tracer trace.Tracer
	locker utils.KeyLocker
	events EventPublisher
	now    func() time.Time

	reserveRawStockOnStart bool
}

type Option func(*Service)

// WithKeyLocker serializes stock mutations across instances on top of the row locks.
func WithKeyLocker(locker utils.KeyLocker) Option {
	return func(s *Service) { s.locker = locker }
}

func WithRawStockReservation(enabled bool) Option {
	return func(s *Service) { s.reserveRawStockOnStart = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, logger *logrus.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = config.GetLogger()
	}
	s := &Service{
		store:                  st,
		logger:                 logger,
		tracer:                 otel.Tracer("distillery-workflow"),
		now:                    time.Now,
		reserveRawStockOnStart: config.ReserveRawStockOnDistillationStart(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDefaultService wires the MySQL store and, when configured, the Redis key locker and the
// Pub/Sub stock events. config.ConnectDatabaseWithRetry must have run first.
func NewDefaultService() *Service {
	logger := config.GetLogger()
	var opts []Option
	if topic := config.StockEventsTopic(); topic != "" {
		publisher, err := config.NewPubSubStockEventPublisher(context.Background(), topic)
		if err != nil {
			config.LogError(logger, "service.go", "NewDefaultService", "NewPubSubStockEventPublisher", topic, err)
		} else {
			opts = append(opts, WithEventPublisher(publisher))
		}
	}
	if config.UseStockKeyLock() {
		if err := config.ConnectRedisWithRetry(5); err != nil {
			config.LogError(logger, "service.go", "NewDefaultService", "ConnectRedisWithRetry", nil, err)
		} else if locker := utils.NewRedisKeyLocker(config.GetRedisLock()); locker != nil {
			opts = append(opts, WithKeyLocker(locker))
		}
	}
	return NewService(gormstore.New(config.GetDB()), logger, opts...)
}

// startSpan also tags the context with a correlation id when the caller did not set one.
func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	attrs = append(attrs, attribute.String("correlation_id", correlationId))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// lockKeys takes the cross-instance locks in a stable order; without a locker it does nothing.
func (s *Service) lockKeys(ctx context.Context, keys ...string) (func(), error) {
	if s.locker == nil || len(keys) == 0 {
		return func() {}, nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	seen := map[string]bool{}
	for _, key := range sorted {
		if seen[key] {
			continue
		}
		seen[key] = true
		release, err := s.locker.Obtain(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// inTransaction runs fn under the given key locks and one store transaction.
func (s *Service) inTransaction(ctx context.Context, keys []string, fn func(tx store.Store) error) error {
	release, err := s.lockKeys(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()
	return s.store.Transaction(ctx, fn)
}
