// Package changedetect decides, per component, whether upstream data has
// changed since the last successful run. A component may declare several
// detection methods; it is skipped only when every one of them independently
// reports "unchanged". Anything indeterminate forces execution: running an
// unchanged fetch is cheap, missing a changed one is not.
package changedetect

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vk/conductor/internal/config"
	"github.com/vk/conductor/internal/ctxlog"
	"github.com/vk/conductor/internal/task"
)

// Verdict is one method's opinion about a component's upstream data.
type Verdict int

const (
	Unchanged Verdict = iota
	Changed
	Indeterminate
)

func (v Verdict) String() string {
	switch v {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	default:
		return "indeterminate"
	}
}

// Fingerprint is the persisted comparison state for one component.
type Fingerprint struct {
	ContentHash        string    `yaml:"content_hash,omitempty"`
	Validator          string    `yaml:"validator,omitempty"`
	ValidatorCheckedAt time.Time `yaml:"validator_checked_at,omitempty"`
	RecordCount        *int      `yaml:"record_count,omitempty"`
	LastModified       string    `yaml:"last_modified,omitempty"`
}

// CountProbe samples the approximate record count of a data source. The
// default detector has none, in which case the record-count method reports
// indeterminate.
type CountProbe func(ctx context.Context, src config.Source) (int, error)

// Decision is the outcome of a change check.
type Decision struct {
	Skip     bool
	Verdicts map[config.Method]Verdict
}

// Detector evaluates change detection methods and owns the fingerprint
// store. Observations made during a check are staged and only committed
// once the component completes, so a failed or timed-out run never poisons
// the next comparison.
type Detector struct {
	mu        sync.Mutex
	committed map[string]*Fingerprint
	staged    map[string]*Fingerprint

	client     *http.Client
	countProbe CountProbe
	now        func() time.Time
}

// NewDetector returns a detector with a short-timeout HTTP client for
// validator probes.
func NewDetector() *Detector {
	return &Detector{
		committed: make(map[string]*Fingerprint),
		staged:    make(map[string]*Fingerprint),
		client:    &http.Client{Timeout: 5 * time.Second},
		now:       time.Now,
	}
}

// SetCountProbe installs the record-count sampler.
func (d *Detector) SetCountProbe(p CountProbe) {
	d.countProbe = p
}

// Check evaluates every declared method for the component. Skip is true only
// when at least one method is declared and all of them report unchanged.
// The record-count method is a corroborating signal only: declared alone, it
// cannot authorize a skip.
func (d *Detector) Check(ctx context.Context, c *config.Component) Decision {
	logger := ctxlog.FromContext(ctx).With("component", c.ID)

	cd := c.ChangeDetection
	if cd == nil || len(cd.Methods) == 0 {
		return Decision{Skip: false}
	}

	d.mu.Lock()
	prev := d.committed[c.ID]
	next := &Fingerprint{}
	if prev != nil {
		clone := *prev
		next = &clone
	}
	d.mu.Unlock()

	decision := Decision{Verdicts: make(map[config.Method]Verdict, len(cd.Methods))}
	soleCount := len(cd.Methods) == 1 && cd.Methods[0] == config.MethodRecordCount

	allUnchanged := true
	for _, method := range cd.Methods {
		var v Verdict
		switch method {
		case config.MethodContentHash:
			v = d.checkContentHash(ctx, c, cd, prev, next)
		case config.MethodHTTPValidator:
			v = d.checkValidator(ctx, c, cd, prev, next)
		case config.MethodRecordCount:
			v = d.checkRecordCount(ctx, c, cd, prev, next)
			if soleCount {
				v = Indeterminate
			}
		case config.MethodLastModified:
			v = d.checkLastModified(ctx, c, prev, next)
		default:
			v = Indeterminate
		}
		decision.Verdicts[method] = v
		if v != Unchanged {
			allUnchanged = false
		}
	}
	decision.Skip = allUnchanged

	d.mu.Lock()
	d.staged[c.ID] = next
	d.mu.Unlock()

	logger.Debug("Change detection evaluated.", "skip", decision.Skip, "verdicts", verdictSummary(decision.Verdicts))
	return decision
}

// RecordResult folds a completed task's observations into the staged
// fingerprint before commit.
func (d *Detector) RecordResult(componentID string, res *task.Result) {
	if res == nil || res.RecordCount < 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fp, ok := d.staged[componentID]
	if !ok {
		fp = &Fingerprint{}
		d.staged[componentID] = fp
	}
	count := res.RecordCount
	fp.RecordCount = &count
}

// Commit promotes the staged fingerprint after a completed run. Failed and
// timed-out components never reach here, so their partial observations are
// discarded at the next Check.
func (d *Detector) Commit(componentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fp, ok := d.staged[componentID]; ok {
		d.committed[componentID] = fp
		delete(d.staged, componentID)
	}
}

func (d *Detector) checkContentHash(ctx context.Context, c *config.Component, cd *config.ChangeDetection, prev, next *Fingerprint) Verdict {
	logger := ctxlog.FromContext(ctx)
	if c.Source.Path == "" {
		return Indeterminate
	}
	sum, err := hashFile(c.Source.Path, cd.HashAlgorithm)
	if err != nil {
		// Fail open: an unreadable source is treated as changed.
		logger.Warn("Content hash probe failed.", "component", c.ID, "error", err)
		return Changed
	}
	next.ContentHash = sum
	if prev == nil || prev.ContentHash == "" {
		return Indeterminate
	}
	if sum == prev.ContentHash {
		return Unchanged
	}
	return Changed
}

func (d *Detector) checkValidator(ctx context.Context, c *config.Component, cd *config.ChangeDetection, prev, next *Fingerprint) Verdict {
	logger := ctxlog.FromContext(ctx)
	if c.Source.URL == "" {
		return Indeterminate
	}

	// A validator verified within its TTL is still authoritative; no probe.
	if prev != nil && prev.Validator != "" && d.now().Sub(prev.ValidatorCheckedAt) < cd.ValidatorTTL {
		return Unchanged
	}

	validator, err := d.probeValidator(ctx, c.Source.URL)
	if err != nil || validator == "" {
		if err != nil {
			logger.Warn("Validator probe failed.", "component", c.ID, "error", err)
		}
		return Indeterminate
	}
	next.Validator = validator
	next.ValidatorCheckedAt = d.now()
	if prev == nil || prev.Validator == "" {
		return Indeterminate
	}
	if validator == prev.Validator {
		return Unchanged
	}
	return Changed
}

func (d *Detector) checkRecordCount(ctx context.Context, c *config.Component, cd *config.ChangeDetection, prev, next *Fingerprint) Verdict {
	if d.countProbe == nil {
		return Indeterminate
	}
	count, err := d.countProbe(ctx, c.Source)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Record count probe failed.", "component", c.ID, "error", err)
		return Changed
	}
	next.RecordCount = &count
	if prev == nil || prev.RecordCount == nil {
		return Indeterminate
	}
	previous := *prev.RecordCount
	if previous == 0 {
		if count > 0 {
			return Changed
		}
		return Unchanged
	}
	pct := abs(float64(count-previous)) / float64(previous) * 100
	if pct > cd.CountThresholdPct {
		return Changed
	}
	return Unchanged
}

func (d *Detector) checkLastModified(ctx context.Context, c *config.Component, prev, next *Fingerprint) Verdict {
	logger := ctxlog.FromContext(ctx)

	var current string
	switch {
	case c.Source.Path != "":
		info, err := os.Stat(c.Source.Path)
		if err != nil {
			logger.Warn("Last modified probe failed.", "component", c.ID, "error", err)
			return Changed
		}
		current = info.ModTime().UTC().Format(time.RFC3339Nano)
	case c.Source.URL != "":
		lm, err := d.probeHeader(ctx, c.Source.URL, "Last-Modified")
		if err != nil || lm == "" {
			if err != nil {
				logger.Warn("Last modified probe failed.", "component", c.ID, "error", err)
			}
			return Indeterminate
		}
		current = lm
	default:
		return Indeterminate
	}

	next.LastModified = current
	if prev == nil || prev.LastModified == "" {
		return Indeterminate
	}
	if current == prev.LastModified {
		return Unchanged
	}
	return Changed
}

// probeValidator issues a HEAD request and returns the strongest validator
// the server offers: ETag first, Last-Modified second.
func (d *Detector) probeValidator(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if etag := resp.Header.Get("ETag"); etag != "" {
		return "etag:" + etag, nil
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		return "last-modified:" + lm, nil
	}
	return "", nil
}

func (d *Detector) probeHeader(ctx context.Context, url, header string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return resp.Header.Get(header), nil
}

func hashFile(path, algorithm string) (string, error) {
	var h hash.Hash
	switch algorithm {
	case "", "sha256":
		h = sha256.New()
	case "sha1":
		h = sha1.New()
	case "md5":
		h = md5.New()
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func verdictSummary(verdicts map[config.Method]Verdict) string {
	parts := make([]string, 0, len(verdicts))
	for m, v := range verdicts {
		parts = append(parts, string(m)+"="+v.String())
	}
	return strings.Join(parts, ",")
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
