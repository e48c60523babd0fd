package service_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/boardcheck/internal/adapters/auditsink"
	"github.com/okian/boardcheck/internal/adapters/inference"
	"github.com/okian/boardcheck/internal/adapters/repository"
	service "github.com/okian/boardcheck/internal/app"
	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
	"github.com/okian/boardcheck/internal/domain/model"
	"github.com/okian/boardcheck/pkg/logger"
)

func init() { //nolint:gochecknoinits // test logger
	if err := logger.InitWithWriter(io.Discard); err != nil {
		panic(err)
	}
}

// scriptedSource answers from fixed per-model reports.
type scriptedSource struct {
	mu      sync.Mutex
	reports map[string]model.ModelScoreReport
	errs    map[string]error
	calls   map[string]int
	gate    chan struct{}
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		reports: make(map[string]model.ModelScoreReport),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (s *scriptedSource) set(name string, candidates ...model.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[name] = model.NewReport(name, candidates, 0)
}

func (s *scriptedSource) fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[name] = err
}

func (s *scriptedSource) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *scriptedSource) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *scriptedSource) Infer(ctx context.Context, _ []byte, name string) (model.ModelScoreReport, error) {
	s.mu.Lock()
	s.calls[name]++
	gate := s.gate
	report, ok := s.reports[name]
	err := s.errs[name]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.ModelScoreReport{}, ctx.Err()
		}
	}
	if err != nil {
		return model.ModelScoreReport{}, err
	}
	if !ok {
		return model.ModelScoreReport{}, inference.ErrUnknownModel
	}
	return report, nil
}

// flakySink fails the first n writes.
type flakySink struct {
	*auditsink.Memory
	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakySink) Write(ctx context.Context, rec audit.Record) error {
	f.mu.Lock()
	f.attempts++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.Memory.Write(ctx, rec)
}

var fixedNow = time.Date(2026, 3, 2, 7, 45, 0, 0, time.UTC)

func newService(source inference.Source, sink auditsink.Store, opts ...service.Option) (*service.Service, *mlconfig.Manager) {
	manager := mlconfig.NewManager(repository.NewMemoryStore())
	opts = append([]service.Option{
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithIDGenerator(func() string { return "rec-1" }),
		service.WithAuditRetry(3, time.Millisecond),
		service.WithInferenceTimeout(time.Second),
	}, opts...)
	svc, err := service.New(manager, source, sink, opts...)
	So(err, ShouldBeNil)
	return svc, manager
}

func event(id string) model.BoardingEvent {
	return model.BoardingEvent{EventID: id, BusID: "bus-12", KioskID: "kiosk-3", Image: []byte("jpeg"), CapturedAt: fixedNow}
}

func TestService_New(t *testing.T) {
	Convey("Given missing dependencies", t, func() {
		_, err := service.New(nil, nil, nil)

		Convey("Then construction fails", func() {
			So(errors.Is(err, service.ErrNilDependency), ShouldBeTrue)
		})
	})
}

func TestService_VerifyFastPath(t *testing.T) {
	Convey("Given a confident and unambiguous fast model", t, func() {
		source := newScriptedSource()
		source.set(model.MobileFaceNet, model.Candidate{StudentID: "stu-1", Score: 0.92}, model.Candidate{StudentID: "stu-2", Score: 0.62})
		source.set(model.ArcFaceInt8, model.Candidate{StudentID: "stu-1", Score: 0.40})
		sink := auditsink.NewMemory()
		svc, _ := newService(source, sink)

		rec, err := svc.Verify(context.Background(), event("evt-1"))

		Convey("Then the fast path decides alone", func() {
			So(err, ShouldBeNil)
			So(rec.VerificationStatus, ShouldEqual, model.StatusVerified)
			So(rec.ConfidenceLevel, ShouldEqual, model.ConfidenceHigh)
			So(rec.StudentID, ShouldEqual, "stu-1")
			So(rec.UsedFastPath, ShouldBeTrue)
			So(rec.EscalatedToEnsemble, ShouldBeFalse)
			So(rec.ConsensusCount, ShouldEqual, 1)
			So(source.count(model.ArcFaceInt8), ShouldEqual, 0)
		})

		Convey("Then the record is stamped and persisted", func() {
			So(rec.RecordID, ShouldEqual, "rec-1")
			So(rec.EventID, ShouldEqual, "evt-1")
			So(rec.BusID, ShouldEqual, "bus-12")
			So(rec.KioskID, ShouldEqual, "kiosk-3")
			So(rec.DecidedAt, ShouldEqual, fixedNow)
			So(rec.ConfigVersion, ShouldEqual, 1)

			stored, err := svc.GetDecision(context.Background(), "rec-1")
			So(err, ShouldBeNil)
			So(stored.VerificationStatus, ShouldEqual, model.StatusVerified)
		})
	})
}

func TestService_VerifyEscalates(t *testing.T) {
	Convey("Given an ambiguous fast model", t, func() {
		source := newScriptedSource()
		source.set(model.MobileFaceNet, model.Candidate{StudentID: "stu-1", Score: 0.92}, model.Candidate{StudentID: "stu-2", Score: 0.87})
		source.set(model.ArcFaceInt8, model.Candidate{StudentID: "stu-1", Score: 0.40})
		svc, _ := newService(source, auditsink.NewMemory())

		rec, err := svc.Verify(context.Background(), event("evt-2"))

		Convey("Then the ensemble decides with calibrated scores", func() {
			So(err, ShouldBeNil)
			So(rec.UsedFastPath, ShouldBeFalse)
			So(rec.EscalatedToEnsemble, ShouldBeTrue)
			So(rec.VerificationStatus, ShouldEqual, model.StatusVerified)
			So(rec.ConsensusCount, ShouldEqual, 2)
			So(rec.CombinedScore, ShouldAlmostEqual, 0.835, 1e-9)
			So(rec.PerModelResults, ShouldHaveLength, 2)
		})

		Convey("Then the fast model is not queried twice and disabled models not at all", func() {
			So(source.count(model.MobileFaceNet), ShouldEqual, 1)
			So(source.count(model.ArcFaceInt8), ShouldEqual, 1)
			So(source.count(model.AdaFace), ShouldEqual, 0)
		})
	})

	Convey("Given a fast model that fails", t, func() {
		source := newScriptedSource()
		source.fail(model.MobileFaceNet, inference.ErrNoFaceDetected)
		source.set(model.ArcFaceInt8, model.Candidate{StudentID: "stu-1", Score: 0.40})
		svc, _ := newService(source, auditsink.NewMemory())

		rec, err := svc.Verify(context.Background(), event("evt-3"))

		Convey("Then the failed model is omitted and consensus is not reached", func() {
			So(err, ShouldBeNil)
			So(rec.EscalatedToEnsemble, ShouldBeTrue)
			So(rec.PerModelResults, ShouldHaveLength, 1)
			So(rec.VerificationStatus, ShouldEqual, model.StatusRejected)
			So(rec.Reason, ShouldEqual, audit.ReasonBelowConsensus)
			So(rec.StudentID, ShouldBeEmpty)
		})
	})

	Convey("Given the ensemble restricted to MobileFaceNet", t, func() {
		source := newScriptedSource()
		source.set(model.MobileFaceNet, model.Candidate{StudentID: "stu-1", Score: 0.92}, model.Candidate{StudentID: "stu-2", Score: 0.87})
		source.set(model.ArcFaceInt8, model.Candidate{StudentID: "stu-1", Score: 0.40})
		svc, _ := newService(source, auditsink.NewMemory(), service.WithEnsembleModels([]string{model.MobileFaceNet}))

		_, err := svc.Verify(context.Background(), event("evt-4"))

		Convey("Then other models are never queried", func() {
			So(err, ShouldBeNil)
			So(source.count(model.ArcFaceInt8), ShouldEqual, 0)
		})
	})
}

func TestService_VerifyPending(t *testing.T) {
	Convey("Given no model can score the image", t, func() {
		source := newScriptedSource()
		source.fail(model.MobileFaceNet, inference.ErrNoFaceDetected)
		source.fail(model.ArcFaceInt8, inference.ErrNoFaceDetected)
		sink := auditsink.NewMemory()
		svc, _ := newService(source, sink)

		rec, err := svc.Verify(context.Background(), event("evt-5"))

		Convey("Then a PENDING record is persisted for manual review", func() {
			So(err, ShouldBeNil)
			So(rec.VerificationStatus, ShouldEqual, model.StatusPending)
			So(rec.ConfidenceLevel, ShouldEqual, model.ConfidenceNone)
			So(rec.Reason, ShouldEqual, audit.ReasonInsufficientData)
			So(rec.PerModelResults, ShouldBeEmpty)
			So(sink.Len(), ShouldEqual, 1)
		})
	})
}

func TestService_VerifyAuditRetry(t *testing.T) {
	Convey("Given an audit sink that fails twice", t, func() {
		source := newScriptedSource()
		source.set(model.MobileFaceNet, model.Candidate{StudentID: "stu-1", Score: 0.92}, model.Candidate{StudentID: "stu-2", Score: 0.62})
		sink := &flakySink{Memory: auditsink.NewMemory(), failures: 2}
		svc, _ := newService(source, sink)

		_, err := svc.Verify(context.Background(), event("evt-6"))

		Convey("Then the write is retried until it lands", func() {
			So(err, ShouldBeNil)
			So(sink.attempts, ShouldEqual, 3)
			So(sink.Len(), ShouldEqual, 1)
		})
	})

	Convey("Given an audit sink that never recovers", t, func() {
		source := newScriptedSource()
		source.set(model.MobileFaceNet, model.Candidate{StudentID: "stu-1", Score: 0.92}, model.Candidate{StudentID: "stu-2", Score: 0.62})
		sink := &flakySink{Memory: auditsink.NewMemory(), failures: 100}
		svc, _ := newService(source, sink, service.WithAuditRetry(2, time.Millisecond))

		rec, err := svc.Verify(context.Background(), event("evt-7"))

		Convey("Then Verify fails after the retry budget", func() {
			So(err, ShouldNotBeNil)
			So(sink.attempts, ShouldEqual, 3)
			So(rec.RecordID, ShouldEqual, "rec-1")
		})
	})
}

func TestService_Enqueue(t *testing.T) {
	Convey("Given a service that has not started", t, func() {
		svc, _ := newService(newScriptedSource(), auditsink.NewMemory())

		_, err := svc.Enqueue(context.Background(), event("evt-1"))

		Convey("Then intake is refused", func() {
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		source := newScriptedSource()
		source.set(model.MobileFaceNet, model.Candidate{StudentID: "stu-1", Score: 0.92}, model.Candidate{StudentID: "stu-2", Score: 0.62})
		sink := auditsink.NewMemory()
		ids := 0
		var idMu sync.Mutex
		svc, _ := newService(source, sink, service.WithWorkerCount(2), service.WithIDGenerator(func() string {
			idMu.Lock()
			defer idMu.Unlock()
			ids++
			return "rec-" + string(rune('0'+ids))
		}))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When the same event arrives twice", func() {
			dup1, err1 := svc.Enqueue(ctx, event("evt-10"))
			dup2, err2 := svc.Enqueue(ctx, event("evt-10"))
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it is verified once", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(dup1, ShouldBeFalse)
				So(dup2, ShouldBeTrue)
				So(sink.Len(), ShouldEqual, 1)
			})
		})

		Convey("When the event has no id", func() {
			_, err := svc.Enqueue(ctx, model.BoardingEvent{})
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidEvent), ShouldBeTrue)
			})
		})

		Convey("When stats are read", func() {
			stats := svc.GetStats(ctx)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then they describe the running service", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["workers"], ShouldEqual, 2)
				So(stats["activeConfigVersion"], ShouldEqual, 1)
			})
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a single worker stuck on a slow model and a queue of one", t, func() {
		source := newScriptedSource()
		source.set(model.MobileFaceNet, model.Candidate{StudentID: "stu-1", Score: 0.92}, model.Candidate{StudentID: "stu-2", Score: 0.62})
		source.gate = make(chan struct{})
		svc, _ := newService(source, auditsink.NewMemory(),
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithInferenceTimeout(5*time.Second),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		_, err := svc.Enqueue(ctx, event("evt-a"))
		So(err, ShouldBeNil)
		for source.total() == 0 {
			time.Sleep(time.Millisecond)
		}
		_, err = svc.Enqueue(ctx, event("evt-b"))
		So(err, ShouldBeNil)

		_, full := svc.Enqueue(ctx, event("evt-c"))
		dup, again := svc.Enqueue(ctx, event("evt-c"))

		close(source.gate)
		So(svc.Stop(ctx), ShouldBeNil)

		Convey("Then the overflow is refused and its id forgotten", func() {
			So(errors.Is(full, service.ErrBackpressure), ShouldBeTrue)
			So(errors.Is(again, service.ErrBackpressure), ShouldBeTrue)
			So(dup, ShouldBeFalse)
		})
	})
}

func TestService_Configs(t *testing.T) {
	Convey("Given a service over a fresh config store", t, func() {
		svc, _ := newService(newScriptedSource(), auditsink.NewMemory())
		ctx := context.Background()

		active, err := svc.ActiveConfig(ctx)
		So(err, ShouldBeNil)

		Convey("When the active config is duplicated and activated", func() {
			cp, err := svc.DuplicateConfig(ctx, active.Version, "raise match threshold")
			So(err, ShouldBeNil)
			So(svc.ActivateConfig(ctx, cp.Version), ShouldBeNil)

			Convey("Then the copy is active and the original is unchanged", func() {
				now, err := svc.ActiveConfig(ctx)
				So(err, ShouldBeNil)
				So(now.Version, ShouldEqual, 2)
				So(now.Description, ShouldEqual, "raise match threshold")

				old, err := svc.Config(ctx, 1)
				So(err, ShouldBeNil)
				So(old.IsActive, ShouldBeFalse)

				all, err := svc.Configs(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 2)
			})
		})

		Convey("When an invalid draft is created", func() {
			draft := active.Draft()
			draft.Thresholds.MatchThreshold = 1.5
			_, err := svc.CreateConfig(ctx, draft)

			Convey("Then it is rejected as invalid", func() {
				So(errors.Is(err, mlconfig.ErrInvalidConfig), ShouldBeTrue)
			})
		})

		Convey("When an unknown version is activated", func() {
			err := svc.ActivateConfig(ctx, 99)

			Convey("Then it is reported as not found", func() {
				So(errors.Is(err, mlconfig.ErrVersionNotFound), ShouldBeTrue)
			})
		})
	})
}

// slowStore holds GetActive open while hold is set, until release is closed.
type slowStore struct {
	*repository.MemoryStore
	hold    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) GetActive(ctx context.Context) (mlconfig.ModelConfig, error) {
	if s.hold.Load() {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.MemoryStore.GetActive(ctx)
}

func TestService_StatsDoNotBlockStop(t *testing.T) {
	Convey("Given a started service whose config store is slow", t, func() {
		store := &slowStore{
			MemoryStore: repository.NewMemoryStore(),
			entered:     make(chan struct{}, 1),
			release:     make(chan struct{}),
		}
		svc, err := service.New(mlconfig.NewManager(store), newScriptedSource(), auditsink.NewMemory(),
			service.WithWorkerCount(1))
		So(err, ShouldBeNil)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When stats are read while the store is stalled", func() {
			store.hold.Store(true)
			statsDone := make(chan map[string]any, 1)
			go func() { statsDone <- svc.GetStats(ctx) }()
			<-store.entered

			Convey("Then Stop still completes and stats report the stopped service", func() {
				stopped := make(chan error, 1)
				go func() { stopped <- svc.Stop(ctx) }()

				select {
				case err := <-stopped:
					So(err, ShouldBeNil)
				case <-time.After(2 * time.Second):
					So("Stop blocked behind GetStats", ShouldBeEmpty)
				}

				store.hold.Store(false)
				close(store.release)
				stats := <-statsDone
				So(stats["started"], ShouldEqual, false)
				So(stats["activeConfigVersion"], ShouldEqual, 1)
			})
		})
	})
}
