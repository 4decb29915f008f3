package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// progressTracker keeps the .tried-empty and .last-completed files that let
// an interrupted backfill resume without re-asking for symbols known to
// have no bars.
type progressTracker struct {
	mu         sync.Mutex
	triedEmpty map[string]struct{}
	writer     *bufio.Writer
	file       *os.File
	dir        string
}

func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{
		triedEmpty: make(map[string]struct{}),
		dir:        dir,
	}

	path := filepath.Join(dir, ".tried-empty")
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if sym := strings.TrimSpace(line); sym != "" {
				pt.triedEmpty[sym] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening .tried-empty: %w", err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)
	return pt, nil
}

func (p *progressTracker) IsTriedEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.triedEmpty[symbol]
	return ok
}

func (p *progressTracker) MarkEmpty(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.triedEmpty[symbol]; ok {
		return nil
	}
	p.triedEmpty[symbol] = struct{}{}
	if _, err := p.writer.WriteString(symbol + "\n"); err != nil {
		return fmt.Errorf("writing to .tried-empty: %w", err)
	}
	return p.writer.Flush()
}

// MarkCompleted records key as the last finished run.
func (p *progressTracker) MarkCompleted(key string) error {
	return os.WriteFile(filepath.Join(p.dir, ".last-completed"), []byte(key), 0o644)
}

func (p *progressTracker) IsCompleted(key string) bool {
	data, err := os.ReadFile(filepath.Join(p.dir, ".last-completed"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == key
}

func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
