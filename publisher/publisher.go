package publisher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"formatconv/contracts"
	"formatconv/logger"
)

// Deliverer pushes a payload somewhere right after it is published.
type Deliverer interface {
	Deliver(ctx context.Context, p contracts.Payload) error
}

// Publisher owns the live references of one session. Publishing revokes
// the previous set before anything new is stored.
type Publisher struct {
	mu        sync.Mutex
	store     Store
	deliverer Deliverer
	live      []Reference
}

func New(store Store, deliverer Deliverer) *Publisher {
	return &Publisher{store: store, deliverer: deliverer}
}

func (p *Publisher) Publish(ctx context.Context, payloads []contracts.Payload) ([]Reference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.revokeLocked(ctx)

	payloads = uniqueNames(payloads)
	refs := make([]Reference, 0, len(payloads))
	for _, pl := range payloads {
		ref, err := p.store.Put(ctx, pl)
		if err != nil {
			p.live = refs
			p.revokeLocked(ctx)
			return nil, fmt.Errorf("publish %s: %w", pl.Filename, err)
		}
		refs = append(refs, ref)
	}
	p.live = refs

	if p.deliverer != nil {
		p.deliver(ctx, payloads)
	}
	return append([]Reference(nil), refs...), nil
}

// deliver hands every payload over independently. Failures are logged
// only; the published references stay available.
func (p *Publisher) deliver(ctx context.Context, payloads []contracts.Payload) {
	var wg sync.WaitGroup
	for _, pl := range payloads {
		wg.Add(1)
		go func(pl contracts.Payload) {
			defer wg.Done()
			if err := p.deliverer.Deliver(ctx, pl); err != nil {
				logger.Warn(ctx, "auto-delivery failed", logger.Fields{"filename": pl.Filename, "error": err.Error()})
			}
		}(pl)
	}
	wg.Wait()
}

// Clear revokes the live references, best effort.
func (p *Publisher) Clear(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeLocked(ctx)
}

func (p *Publisher) References() []Reference {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Reference(nil), p.live...)
}

func (p *Publisher) revokeLocked(ctx context.Context) {
	for _, ref := range p.live {
		if err := p.store.Revoke(ctx, ref.ID); err != nil {
			logger.Warn(ctx, "revoke failed", logger.Fields{"result_id": ref.ID, "error": err.Error()})
		}
	}
	p.live = nil
}

// uniqueNames suffixes repeated filenames: a.png, a (2).png, a (3).png.
func uniqueNames(payloads []contracts.Payload) []contracts.Payload {
	seen := make(map[string]int, len(payloads))
	out := make([]contracts.Payload, len(payloads))
	for i, pl := range payloads {
		key := strings.ToLower(pl.Filename)
		seen[key]++
		if n := seen[key]; n > 1 {
			ext := filepath.Ext(pl.Filename)
			pl.Filename = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(pl.Filename, ext), n, ext)
		}
		out[i] = pl
	}
	return out
}

// DirDeliverer writes payloads into a directory.
type DirDeliverer struct {
	Dir string
}

func (d DirDeliverer) Deliver(ctx context.Context, p contracts.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(d.Dir, filepath.Base(p.Filename))
	if err := os.WriteFile(path, p.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info(ctx, "result written", logger.Fields{"path": path, "bytes": len(p.Data)})
	return nil
}
