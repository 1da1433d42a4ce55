package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"cansat-altimeter/internal/telemetry"
	"cansat-altimeter/internal/web"
)

type Monitor struct {
	src     Source
	store   *Store
	datalog *Datalog
	log     *zap.Logger
	tail    *tailBuffer
	now     func() time.Time

	mu          sync.Mutex
	datalogErrs uint64
	started     time.Time
}

type Option func(*Monitor)

func WithDatalog(d *Datalog) Option { return func(m *Monitor) { m.datalog = d } }

func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func New(src Source, store *Store, log *zap.Logger, opts ...Option) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{
		src:   src,
		store: store,
		log:   log,
		tail:  newTailBuffer(20, 256),
		now:   time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Monitor) Store() *Store { return m.store }

// Warm preloads the windows from the datalog so charts survive a restart.
func (m *Monitor) Warm(ctx context.Context) error {
	if m.datalog == nil {
		return nil
	}
	for _, k := range telemetry.Keys {
		pts, err := m.datalog.Recent(ctx, k, m.store.MaxPoints())
		if err != nil {
			return err
		}
		for _, p := range pts {
			m.store.Add(k, p)
		}
	}
	return nil
}

// Run reads the source until ctx is done or the source fails.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	m.started = m.now()
	m.mu.Unlock()

	m.log.Info("monitor started", zap.String("source", m.src.Name()))
	err := m.src.Run(ctx, m.handleLine)

	st := m.store.Stats()
	m.log.Info("monitor stopped",
		zap.String("source", m.src.Name()),
		zap.String("lines", humanize.Comma(int64(st.Lines))),
		zap.String("parsed", humanize.Comma(int64(st.Parsed))),
		zap.String("uptime", humanize.RelTime(m.started, m.now(), "", "")),
	)
	return err
}

func (m *Monitor) handleLine(line string) {
	m.tail.add(line)
	now := m.now()
	key, v, ok := m.store.Ingest(line, now)
	if !ok {
		m.log.Debug("unparsed line", zap.String("line", line))
		return
	}
	if m.datalog == nil {
		return
	}
	if err := m.datalog.Insert(now, key, v); err != nil {
		m.mu.Lock()
		m.datalogErrs++
		first := m.datalogErrs == 1
		m.mu.Unlock()
		if first {
			m.log.Warn("datalog insert failed", zap.Error(err))
		}
	}
}

type Stats struct {
	Source      string     `json:"source"`
	Store       StoreStats `json:"store"`
	DatalogErrs uint64     `json:"datalog_errors"`
	Tail        []string   `json:"tail"`
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	errs := m.datalogErrs
	m.mu.Unlock()
	return Stats{
		Source:      m.src.Name(),
		Store:       m.store.Stats(),
		DatalogErrs: errs,
		Tail:        m.tail.snapshot(),
	}
}

type seriesResponse struct {
	MaxPoints int                       `json:"max_points"`
	Series    map[telemetry.Key][]Point `json:"series"`
}

// SeriesHandler serves the rolling windows as JSON. ?key= selects one.
func (s *Store) SeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := seriesResponse{MaxPoints: s.max}
		if k := r.URL.Query().Get("key"); k != "" {
			key := telemetry.Key(k)
			if !knownKey(key) {
				http.Error(w, "unknown key", http.StatusBadRequest)
				return
			}
			resp.Series = map[telemetry.Key][]Point{key: s.Series(key)}
		} else {
			resp.Series = s.All()
		}
		web.WriteJSON(w, resp)
	})
}

func knownKey(k telemetry.Key) bool {
	for _, kk := range telemetry.Keys {
		if kk == k {
			return true
		}
	}
	return false
}
