package chromedp_browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

// styleFunction runs with `this` bound to the resolved DOM node. Text nodes
// take the style of their parent element.
const styleFunction = `function() {
	let el = this;
	if (el.nodeType !== Node.ELEMENT_NODE) el = el.parentElement;
	if (!el) return null;
	const s = window.getComputedStyle(el);
	return {
		color: s.color,
		backgroundColor: s.backgroundColor,
		fontSize: s.fontSize,
		fontWeight: s.fontWeight,
		visible: s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0'
	};
}`

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	styles map[entity.NodeID]entity.Style
}

func newChromeTab(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) *chromeTab {
	return &chromeTab{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		styles: make(map[entity.NodeID]entity.Style),
	}
}

// bind derives a context from the tab that is also cancelled with ctx.
func (t *chromeTab) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(t.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (t *chromeTab) Navigate(ctx context.Context, url string, timeout time.Duration) (*entity.NavigationOutcome, error) {
	out := &entity.NavigationOutcome{RequestedURL: url}

	bound, release := t.bind(ctx)
	defer release()
	runCtx, cancel := context.WithTimeout(bound, timeout)
	defer cancel()

	var frameID cdp.FrameID
	if c := chromedp.FromContext(t.ctx); c != nil && c.Target != nil {
		frameID = cdp.FrameID(c.Target.TargetID)
	}

	var mu sync.Mutex
	var redirects []int
	chromedp.ListenTarget(runCtx, func(ev any) {
		e, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || e.Type != network.ResourceTypeDocument || e.RedirectResponse == nil {
			return
		}
		if frameID != "" && e.FrameID != frameID {
			return
		}
		mu.Lock()
		redirects = append(redirects, int(e.RedirectResponse.Status))
		mu.Unlock()
	})

	t.resetStyles()
	start := time.Now()
	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	out.Duration = time.Since(start)

	mu.Lock()
	out.StatusChain = append(out.StatusChain, redirects...)
	mu.Unlock()

	if err != nil {
		switch {
		case ctx.Err() != nil:
			out.State = entity.NavigationError
			return out, ctx.Err()
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			out.State = entity.NavigationTimeout
			return out, fmt.Errorf("%w: %s after %s", repository.ErrNavigationTimeout, url, timeout)
		}
		out.State = entity.NavigationError
		return out, fmt.Errorf("%w: %s: %v", repository.ErrNavigationFailed, url, err)
	}
	if resp != nil {
		out.StatusChain = append(out.StatusChain, int(resp.Status))
	}

	var location string
	if err := chromedp.Run(runCtx, chromedp.Location(&location)); err != nil {
		out.State = entity.NavigationError
		return out, fmt.Errorf("%w: read location of %s: %v", repository.ErrNavigationFailed, url, err)
	}
	out.FinalURL = location
	out.State = entity.NavigationLoaded

	t.logger.Debug("Page loaded", "url", url, "final_url", location, "status_chain", out.StatusChain, "duration", out.Duration)
	return out, nil
}

func (t *chromeTab) ExtractTree(ctx context.Context) (*entity.AXTree, error) {
	runCtx, release := t.bind(ctx)
	defer release()

	var (
		axNodes  []*accessibility.Node
		html     string
		tabindex map[int64]string
	)
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		axNodes, err = accessibility.GetFullAXTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("get full AX tree: %w", err)
		}
		doc, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		html, err = dom.GetOuterHTML().WithNodeID(doc.NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("get outer HTML: %w", err)
		}
		tabindex, err = collectTabindex(ctx, doc.NodeID)
		return err
	}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", repository.ErrExtractionFailed, err)
	}

	meta, err := ParseDocumentMeta(html)
	if err != nil {
		// The AX tree alone is still auditable.
		t.logger.Warn("Failed to parse document HTML", "error", err)
	}
	tree, err := BuildTree(axNodes, meta, tabindex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrExtractionFailed, err)
	}
	return tree, nil
}

// collectTabindex maps backend node ids to their tabindex attribute, which the
// AX tree does not expose.
func collectTabindex(ctx context.Context, root cdp.NodeID) (map[int64]string, error) {
	ids, err := dom.QuerySelectorAll(root, "[tabindex]").Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("query tabindex: %w", err)
	}
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		n, err := dom.DescribeNode().WithNodeID(id).Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe node %d: %w", id, err)
		}
		out[int64(n.BackendNodeID)] = n.AttributeValue("tabindex")
	}
	return out, nil
}

func (t *chromeTab) ComputedStyle(ctx context.Context, tree *entity.AXTree, id entity.NodeID) (entity.Style, error) {
	t.mu.Lock()
	if s, ok := t.styles[id]; ok {
		t.mu.Unlock()
		return s, nil
	}
	t.mu.Unlock()

	n := tree.Node(id)
	if n == nil {
		return entity.Style{}, fmt.Errorf("%w: node %d not in tree", repository.ErrExtractionFailed, id)
	}
	if n.BackendID == 0 {
		return entity.Style{}, fmt.Errorf("%w: node %d has no DOM node", repository.ErrExtractionFailed, id)
	}

	runCtx, release := t.bind(ctx)
	defer release()

	var raw struct {
		Color           string `json:"color"`
		BackgroundColor string `json:"backgroundColor"`
		FontSize        string `json:"fontSize"`
		FontWeight      string `json:"fontWeight"`
		Visible         bool   `json:"visible"`
	}
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(cdp.BackendNodeID(n.BackendID)).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		res, exc, err := runtime.CallFunctionOn(styleFunction).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("call style function: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("style function threw: %s", exc.Text)
		}
		if res == nil || len(res.Value) == 0 || string(res.Value) == "null" {
			return errors.New("node has no element to style")
		}
		return json.Unmarshal(res.Value, &raw)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return entity.Style{}, ctx.Err()
		}
		return entity.Style{}, fmt.Errorf("%w: style of node %d: %v", repository.ErrExtractionFailed, id, err)
	}

	s := entity.Style{
		Color:           raw.Color,
		BackgroundColor: raw.BackgroundColor,
		FontSize:        raw.FontSize,
		FontWeight:      raw.FontWeight,
		Visible:         raw.Visible,
	}
	t.mu.Lock()
	t.styles[id] = s
	t.mu.Unlock()
	return s, nil
}

func (t *chromeTab) resetStyles() {
	t.mu.Lock()
	t.styles = make(map[entity.NodeID]entity.Style)
	t.mu.Unlock()
}

func (t *chromeTab) Close() error {
	err := chromedp.Cancel(t.ctx)
	t.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
