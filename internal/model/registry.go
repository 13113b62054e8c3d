package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/flood-risk-ensemble/internal/artifact"
	"github.com/couchcryptid/flood-risk-ensemble/internal/domain"
	"github.com/couchcryptid/flood-risk-ensemble/internal/observability"
)

// State is a slot's lifecycle state.
type State int

const (
	Untrained State = iota
	Trained
)

func (s State) String() string {
	if s == Trained {
		return "trained"
	}
	return "untrained"
}

// Status describes one slot for operators.
type Status struct {
	Kind        Kind       `json:"kind"`
	State       string     `json:"state"`
	TrainedAt   *time.Time `json:"trained_at,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
}

// slot is Trained exactly when model is non-nil.
type slot struct {
	model Classifier
	info  Info
}

// Registry holds the serving copy of each model. Readers take a snapshot
// under a read lock; reloads and installs swap whole slots.
type Registry struct {
	mu      sync.RWMutex
	slots   map[Kind]slot
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRegistry returns a registry with every slot Untrained.
func NewRegistry(logger *slog.Logger, metrics *observability.Metrics) *Registry {
	r := &Registry{slots: make(map[Kind]slot, len(Kinds)), logger: logger, metrics: metrics}
	for _, k := range Kinds {
		r.setGauge(k, false)
	}
	return r
}

// Get returns the trained model for kind, or false if the slot is Untrained.
func (r *Registry) Get(kind Kind) (Classifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.slots[kind]
	return s.model, s.model != nil
}

// Info returns the artifact metadata of a trained slot.
func (r *Registry) Info(kind Kind) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.slots[kind]
	return s.info, s.model != nil
}

// AllTrained reports whether every slot holds a model.
func (r *Registry) AllTrained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range Kinds {
		if r.slots[k].model == nil {
			return false
		}
	}
	return true
}

// Statuses lists every slot in ensemble order.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(Kinds))
	for _, k := range Kinds {
		s := r.slots[k]
		st := Status{Kind: k, State: Untrained.String()}
		if s.model != nil {
			at := s.info.TrainedAt
			st.State = Trained.String()
			st.TrainedAt = &at
			st.Fingerprint = s.info.Fingerprint
		}
		out = append(out, st)
	}
	return out
}

// Install puts a trained model into its slot.
func (r *Registry) Install(kind Kind, c Classifier, info Info) {
	r.mu.Lock()
	r.slots[kind] = slot{model: c, info: info}
	r.mu.Unlock()
	r.setGauge(kind, c != nil)
}

// Save persists c and then installs it. The LSTM's scaler blob is written
// before the network so a crash in between never leaves a network without
// its scaler.
func (r *Registry) Save(ctx context.Context, store artifact.Store, c Classifier, info Info) error {
	blobs, err := Encode(c, info)
	if err != nil {
		return err
	}
	var kind Kind
	switch c.(type) {
	case *Forest:
		kind = KindForest
	case *Booster:
		kind = KindBoost
	case *SequenceModel:
		kind = KindLSTM
	}
	for _, name := range BlobNames(kind) {
		if err := store.Put(ctx, name, blobs[name]); err != nil {
			return fmt.Errorf("%w: save %s: %w", domain.ErrPersistence, name, err)
		}
	}
	info.Kind = kind
	info.FormatVersion = FormatVersion
	r.Install(kind, c, info)
	return nil
}

// Load replaces every slot from the store. Absent or unusable artifacts
// leave the slot Untrained. The returned error joins store failures other
// than not-found; the registry is still usable when it is non-nil.
func (r *Registry) Load(ctx context.Context, store artifact.Store) error {
	var errs []error
	for _, kind := range Kinds {
		c, info, err := r.loadSlot(ctx, store, kind)
		switch {
		case err == nil:
			r.Install(kind, c, info)
			r.logger.Info("model loaded", "model", kind, "trained_at", info.TrainedAt, "fingerprint", short(info.Fingerprint))
		case errors.Is(err, artifact.ErrNotFound):
			r.Install(kind, nil, Info{})
			r.logger.Info("model artifact absent, slot untrained", "model", kind)
		case errors.Is(err, ErrCorruptArtifact), errors.Is(err, ErrFeatureMismatch):
			r.Install(kind, nil, Info{})
			r.logger.Warn("model artifact unusable, slot untrained", "model", kind, "error", err)
		default:
			r.Install(kind, nil, Info{})
			r.logger.Error("model artifact load failed", "model", kind, "error", err)
			errs = append(errs, fmt.Errorf("%w: load %s: %w", domain.ErrPersistence, kind, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) loadSlot(ctx context.Context, store artifact.Store, kind Kind) (Classifier, Info, error) {
	blobs := make(map[string][]byte)
	for _, name := range BlobNames(kind) {
		data, err := store.Get(ctx, name)
		if err != nil {
			return nil, Info{}, err
		}
		blobs[name] = data
	}
	c, info, err := Decode(kind, blobs)
	if err != nil {
		return nil, Info{}, err
	}
	if !info.sameColumns(domain.FeatureColumns) {
		return nil, Info{}, fmt.Errorf("%w: trained on %v, serving %v", ErrFeatureMismatch, info.Columns, domain.FeatureColumns)
	}
	return c, info, nil
}

func (r *Registry) setGauge(kind Kind, trained bool) {
	v := 0.0
	if trained {
		v = 1
	}
	r.metrics.ModelsTrained.WithLabelValues(string(kind)).Set(v)
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
