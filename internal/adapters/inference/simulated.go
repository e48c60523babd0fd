package inference

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/boardcheck/internal/domain/model"
)

const (
	defaultMinLatency = 20 * time.Millisecond
	defaultMaxLatency = 60 * time.Millisecond
	defaultRosterSize = 40
)

// Profile shapes how a simulated model reports similarity: score = base*Scale
// + Offset, plus noise in [-Jitter, Jitter].
type Profile struct {
	Scale  float64
	Offset float64
	Jitter float64
}

// DefaultProfiles mirror the observed behaviour of the production models;
// ArcFace INT8 compresses its scores into a narrow band.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		model.MobileFaceNet: {Scale: 1.0, Offset: 0, Jitter: 0.04},
		model.ArcFaceInt8:   {Scale: 0.45, Offset: 0.12, Jitter: 0.02},
		model.AdaFace:       {Scale: 0.95, Offset: 0.02, Jitter: 0.03},
	}
}

// SimulatedSource stands in for the ML inference service. Results are a pure
// function of the image bytes and model name so repeated calls agree; only
// the latency is random. An empty image reports no face.
type SimulatedSource struct {
	profiles   map[string]Profile
	roster     []string
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Source = (*SimulatedSource)(nil)

// SimOption configures a SimulatedSource.
type SimOption func(*SimulatedSource)

// WithLatencyRange sets the simulated latency bounds. A zero range disables the delay.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimOption {
	return func(s *SimulatedSource) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithRoster sets the enrolled student ids.
func WithRoster(ids []string) SimOption {
	return func(s *SimulatedSource) {
		if len(ids) > 0 {
			s.roster = append([]string(nil), ids...)
		}
	}
}

// WithProfiles replaces the model profiles.
func WithProfiles(p map[string]Profile) SimOption {
	return func(s *SimulatedSource) {
		if len(p) > 0 {
			s.profiles = p
		}
	}
}

// NewSimulatedSource builds a simulated source.
func NewSimulatedSource(opts ...SimOption) *SimulatedSource {
	roster := make([]string, defaultRosterSize)
	for i := range roster {
		roster[i] = fmt.Sprintf("student-%03d", i+1)
	}
	s := &SimulatedSource{
		profiles:   DefaultProfiles(),
		roster:     roster,
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // latency jitter only
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Infer returns the simulated report for image under modelName.
func (s *SimulatedSource) Infer(ctx context.Context, image []byte, modelName string) (model.ModelScoreReport, error) {
	profile, ok := s.profiles[modelName]
	if !ok {
		return model.ModelScoreReport{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelName)
	}
	if err := s.wait(ctx); err != nil {
		return model.ModelScoreReport{}, err
	}
	if len(image) == 0 {
		return model.ModelScoreReport{}, fmt.Errorf("%w: empty image", ErrNoFaceDetected)
	}

	// The image decides who is pictured and how clear the shot is; the model
	// name only adds that model's own noise.
	imageSeed := seed(image)
	subject := int(imageSeed % uint64(len(s.roster)))
	clarity := 0.55 + float64((imageSeed>>16)%440)/1000 // [0.55, 0.99]
	noise := rand.New(rand.NewSource(int64(seed(image, []byte(modelName))))) //nolint:gosec // deterministic simulation

	candidates := make([]model.Candidate, 0, model.MaxTopCandidates+1)
	candidates = append(candidates, model.Candidate{
		StudentID: s.roster[subject],
		Score:     shape(clarity, profile, noise),
	})
	for i := 1; i <= model.MaxTopCandidates && i < len(s.roster); i++ {
		other := s.roster[(subject+i*7)%len(s.roster)]
		base := clarity * (0.35 + noise.Float64()*0.5)
		candidates = append(candidates, model.Candidate{StudentID: other, Score: shape(base, profile, noise)})
	}
	return model.NewReport(modelName, candidates, 0), nil
}

func (s *SimulatedSource) wait(ctx context.Context) error {
	if s.maxLatency <= 0 {
		return ctx.Err()
	}
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		s.mu.Lock()
		latency += time.Duration(s.rng.Int63n(int64(span)))
		s.mu.Unlock()
	}
	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("simulated inference: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func shape(base float64, p Profile, noise *rand.Rand) float64 {
	v := base*p.Scale + p.Offset + (noise.Float64()*2-1)*p.Jitter
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func seed(parts ...[]byte) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write(p)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
