package stockanalysis

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// fakePage is an in-memory Page. Selectors listed in clickable can be
// clicked natively, selectors in scriptable can be found by scripts.
type fakePage struct {
	mutex sync.Mutex

	html       string
	navigateTo []string
	navErr     error
	blockNav   bool

	clickable  map[string]bool
	scriptable map[string]bool
	// blockClicks makes native clicks on unknown selectors wait for the
	// context like chromedp does for elements that never become visible
	blockClicks bool
	onClick     func(selector string)

	calls []string
}

func (p *fakePage) record(call string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Navigate(ctx context.Context, url, readySelector string) error {
	p.record("navigate " + url)
	p.navigateTo = append(p.navigateTo, url)
	if p.blockNav {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.navErr
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	return p.html, nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.record("click " + selector)
	if p.clickable[selector] {
		if p.onClick != nil {
			p.onClick(selector)
		}
		return nil
	}
	if p.blockClicks {
		<-ctx.Done()
		return ctx.Err()
	}
	return errors.New("node not found")
}

func (p *fakePage) Evaluate(ctx context.Context, script string, res any) error {
	p.record("evaluate")
	for selector := range p.scriptable {
		quoted := `"` + strings.ReplaceAll(selector, `"`, `\"`) + `"`
		if !strings.Contains(script, quoted) {
			continue
		}
		if p.onClick != nil {
			p.onClick(selector)
		}
		if found, ok := res.(*bool); ok {
			*found = true
		}
		return nil
	}
	if found, ok := res.(*bool); ok {
		*found = false
	}
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}
