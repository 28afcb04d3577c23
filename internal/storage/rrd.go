package storage

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/ziutek/rrd"
)

// RRDArchive keeps one round robin database per target address,
// with a latency and a loss data source
type RRDArchive struct {
	dir         string
	step        time.Duration
	heartbeat   time.Duration
	xff         float64
	aggregation string // AVERAGE, MIN, MAX or LAST
	archives    []rraConfig

	updaters map[string]*rrd.Updater
	mu       sync.Mutex
}

// rraConfig is one consolidation level: base steps per row and row count
type rraConfig struct {
	steps int
	rows  int
}

// NewRRDArchive creates the archive directory. step is the probe interval
// that primary data points are expected at, rounded up to whole seconds.
func NewRRDArchive(cfg config.RRDConfig, step time.Duration) (*RRDArchive, error) {
	step = step.Round(time.Second)
	if step < time.Second {
		step = time.Second
	}

	archives, err := parseRRAs(cfg.Retention, step)
	if err != nil {
		return nil, fmt.Errorf("failed to parse retentions: %w", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create rrd directory: %w", err)
	}

	aggregation := strings.ToUpper(cfg.Aggregation)
	if aggregation == "" {
		aggregation = "AVERAGE"
	}

	return &RRDArchive{
		dir:         cfg.Dir,
		step:        step,
		heartbeat:   step * 3,
		xff:         cfg.XFF,
		aggregation: aggregation,
		archives:    archives,
		updaters:    make(map[string]*rrd.Updater),
	}, nil
}

// Append records one outcome: latency is NaN and loss 1 for a failed probe
func (a *RRDArchive) Append(o probe.Outcome) error {
	u, err := a.updater(o.Target)
	if err != nil {
		return err
	}

	var latency, loss interface{} = math.NaN(), 1.0
	if o.Success && o.LatencyMs != nil {
		latency, loss = *o.LatencyMs, 0.0
	}

	if err := u.Update(o.Timestamp, latency, loss); err != nil {
		return fmt.Errorf("rrd update %s: %w", o.Target, err)
	}
	return nil
}

// updater returns the cached updater for address, creating the file on first use
func (a *RRDArchive) updater(address string) (*rrd.Updater, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if u, ok := a.updaters[address]; ok {
		return u, nil
	}

	filename := a.filename(address)
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		if err := a.create(filename); err != nil {
			return nil, fmt.Errorf("failed to create rrd file: %w", err)
		}
	}

	u := rrd.NewUpdater(filename)
	a.updaters[address] = u
	return u, nil
}

// Fetch returns consolidated points for address between from and to
func (a *RRDArchive) Fetch(address string, from, to time.Time) ([]DataPoint, error) {
	filename := a.filename(address)
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return []DataPoint{}, nil
	}

	res, err := rrd.Fetch(filename, a.aggregation, from, to, a.resolution(to.Sub(from)))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch data: %w", err)
	}
	defer res.FreeValues()

	if len(res.DsNames) < 2 {
		return nil, fmt.Errorf("unexpected data source count: %d (expected 2)", len(res.DsNames))
	}

	points := make([]DataPoint, 0, res.RowCnt)
	for row := 0; row < res.RowCnt; row++ {
		points = append(points, DataPoint{
			Timestamp: res.Start.Add(time.Duration(row) * res.Step),
			Value:     res.ValueAt(0, row),
			Loss:      res.ValueAt(1, row),
		})
	}
	return points, nil
}

// resolution picks the fetch step so the query lands on the matching archive
func (a *RRDArchive) resolution(span time.Duration) time.Duration {
	switch {
	case span <= 24*time.Hour:
		return a.step
	case span <= 7*24*time.Hour:
		return time.Minute
	default:
		return time.Hour
	}
}

// Close drops the cached updaters
func (a *RRDArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.updaters = make(map[string]*rrd.Updater)
	return nil
}

func (a *RRDArchive) create(filename string) error {
	c := rrd.NewCreator(filename, time.Now().Add(-a.step), uint(a.step.Seconds()))

	for _, rra := range a.archives {
		c.RRA(a.aggregation, a.xff, rra.steps, rra.rows)
	}

	heartbeat := int(a.heartbeat.Seconds())
	c.DS("latency", "GAUGE", heartbeat, 0, "U")
	c.DS("loss", "GAUGE", heartbeat, 0, 1)

	return c.Create(false)
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

// filename maps an address (hostname, IPv4 or IPv6) to a safe file path
func (a *RRDArchive) filename(address string) string {
	safe := unsafeFilenameChars.ReplaceAllString(strings.ToLower(address), "_")
	safe = repeatedUnderscores.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if len(safe) > 200 {
		safe = safe[:200]
	}
	if safe == "" {
		safe = "unnamed"
	}
	return filepath.Join(a.dir, safe+".rrd")
}

// parseRRAs turns "10s:1d,1m:7d,1h:90d" into archive definitions relative to baseStep
func parseRRAs(retention string, baseStep time.Duration) ([]rraConfig, error) {
	var archives []rraConfig

	for _, part := range strings.Split(retention, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		resStr, spanStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid retention format: %s", part)
		}

		resolution, err := parseDuration(resStr)
		if err != nil {
			return nil, fmt.Errorf("invalid resolution in %s: %w", part, err)
		}
		span, err := parseDuration(spanStr)
		if err != nil {
			return nil, fmt.Errorf("invalid duration in %s: %w", part, err)
		}

		archives = append(archives, rraConfig{
			steps: max(int(resolution/baseStep), 1),
			rows:  max(int(span/resolution), 1),
		})
	}

	if len(archives) == 0 {
		return nil, fmt.Errorf("no valid retentions found")
	}
	return archives, nil
}

// parseDuration extends time.ParseDuration with a day suffix ("7d")
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err != nil {
			return 0, fmt.Errorf("invalid day duration: %s", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}
