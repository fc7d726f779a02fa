package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/batch"
	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/store"
	"github.com/charlie0129/q0/pkg/types"
)

// Store is the optional persistence behind the daemon.
type Store interface {
	batch.Sink
	LoadCurve(ctx context.Context, id string) (*q0.Curve, error)
}

// ErrUnknownCalibration is returned for a measurement whose calibration the
// daemon has never seen.
var ErrUnknownCalibration = errors.New("unknown calibration")

// maxSessions bounds how many session summaries the registry keeps.
const maxSessions = 256

// registry holds summaries of the most recent sessions processed since
// startup, oldest evicted first. Calibration curves are kept for every
// calibration and written to disk so measurements can refer to them after a
// restart.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*types.SessionResponse
	order    []string
	limit    int
	curves   map[string]*q0.Curve
	path     string
}

func newRegistry() *registry {
	return &registry{
		sessions: map[string]*types.SessionResponse{},
		limit:    maxSessions,
		curves:   map[string]*q0.Curve{},
	}
}

func (r *registry) load(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.path = path
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read %s", path)
	}
	var curves map[string]*q0.Curve
	if err := json.Unmarshal(b, &curves); err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal %s", path)
	}
	for id, c := range curves {
		r.curves[id] = c
	}
	logrus.WithField("curves", len(curves)).Info("loaded calibration curves")
	return nil
}

// persist must be called with r.mu held.
func (r *registry) persist() {
	if r.path == "" {
		return
	}
	b, err := json.MarshalIndent(r.curves, "", "  ")
	if err != nil {
		logrus.WithError(err).Error("marshal calibration curves")
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		logrus.WithError(err).Error("create data directory")
		return
	}
	if err := os.WriteFile(r.path, b, 0644); err != nil {
		logrus.WithError(err).Error("write calibration curves")
	}
}

func (r *registry) add(s *q0.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID()]; !ok {
		r.order = append(r.order, s.ID())
	}
	r.sessions[s.ID()] = types.NewSessionResponse(s)
	for len(r.order) > r.limit {
		delete(r.sessions, r.order[0])
		r.order = r.order[1:]
	}

	if s.Kind() == q0.KindCalibration && s.Curve() != nil {
		r.curves[s.ID()] = s.Curve()
		r.persist()
	}
}

func (r *registry) session(id string) (*types.SessionResponse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// curve looks id up in memory, then in the database when there is one.
func (r *registry) curve(ctx context.Context, id string) (*q0.Curve, error) {
	r.mu.RLock()
	c, ok := r.curves[id]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if db == nil {
		return nil, pkgerrors.Wrapf(ErrUnknownCalibration, "calibration %s", id)
	}

	c, err := db.LoadCurve(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, pkgerrors.Wrapf(ErrUnknownCalibration, "calibration %s", id)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.curves[id] = c
	r.mu.Unlock()
	return c, nil
}
