package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// progressTracker remembers, per symbol, the last date a gather run fetched
// through. It lets an interrupted run resume and makes reruns on the same day
// no-ops. State lives in <dir>/.gathered as "SYMBOL YYYY-MM-DD" lines.
type progressTracker struct {
	mu   sync.Mutex
	path string
	done map[string]string
}

// newProgressTracker loads the tracker state from dir, creating the
// directory if needed.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{
		path: filepath.Join(dir, ".gathered"),
		done: make(map[string]string),
	}

	f, err := os.Open(pt.path)
	if os.IsNotExist(err) {
		return pt, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening .gathered: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		sym, date, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		if !ok || sym == "" {
			continue
		}
		if date > pt.done[sym] {
			pt.done[sym] = date
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading .gathered: %w", err)
	}
	return pt, nil
}

// IsDone reports whether symbol was gathered through date or later.
func (p *progressTracker) IsDone(symbol, date string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done[symbol] >= date && p.done[symbol] != ""
}

// LastDate returns the last date symbol was gathered through, or "".
func (p *progressTracker) LastDate(symbol string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done[symbol]
}

// MarkDone records that symbol has been gathered through date and rewrites
// the state file.
func (p *progressTracker) MarkDone(symbol, date string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done[symbol] = date

	syms := make([]string, 0, len(p.done))
	for s := range p.done {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	var b strings.Builder
	for _, s := range syms {
		b.WriteString(s + " " + p.done[s] + "\n")
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing .gathered: %w", err)
	}
	return os.Rename(tmp, p.path)
}
