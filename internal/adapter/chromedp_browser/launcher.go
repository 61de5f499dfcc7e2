package chromedp_browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/user/a11y-audit-service/internal/entity"
)

const defaultUserAgent = `Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36`

// ChromePathEnv names a Chrome binary when no exec path is configured.
const ChromePathEnv = "CHROME_PATH"

const (
	defaultWindowWidth  = 1920
	defaultWindowHeight = 1080
)

// Launcher starts browser processes for the pool.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is one running browser process.
type Browser interface {
	PID() int
	Args() []string
	NewTab(ctx context.Context) (Tab, error)
	// Alive reports whether the process is still usable.
	Alive() bool
	Close() error
}

// Tab is a single page target. Its methods back a PageSession.
type Tab interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (*entity.NavigationOutcome, error)
	ExtractTree(ctx context.Context) (*entity.AXTree, error)
	ComputedStyle(ctx context.Context, tree *entity.AXTree, id entity.NodeID) (entity.Style, error)
	Close() error
}

// ChromeLauncher launches headless Chrome through chromedp.
type ChromeLauncher struct {
	execPath      string
	userAgent     string
	headless      bool
	width, height int
	disableImages bool
	logger        *slog.Logger
}

type LauncherOption func(*ChromeLauncher)

func WithExecPath(path string) LauncherOption {
	return func(l *ChromeLauncher) { l.execPath = path }
}

func WithUserAgent(ua string) LauncherOption {
	return func(l *ChromeLauncher) { l.userAgent = ua }
}

// WithHeadful shows the browser window, which is handy when debugging a page locally.
func WithHeadful() LauncherOption {
	return func(l *ChromeLauncher) { l.headless = false }
}

// WithWindowSize sets the viewport every page is laid out in. Non-positive
// values keep the default.
func WithWindowSize(width, height int) LauncherOption {
	return func(l *ChromeLauncher) {
		if width > 0 && height > 0 {
			l.width, l.height = width, height
		}
	}
}

// WithDisableImages stops image loading. Contrast over background images
// can no longer be judged.
func WithDisableImages() LauncherOption {
	return func(l *ChromeLauncher) { l.disableImages = true }
}

func WithLauncherLogger(logger *slog.Logger) LauncherOption {
	return func(l *ChromeLauncher) { l.logger = logger }
}

func NewChromeLauncher(opts ...LauncherOption) *ChromeLauncher {
	l := &ChromeLauncher{
		userAgent: defaultUserAgent,
		headless:  true,
		width:     defaultWindowWidth,
		height:    defaultWindowHeight,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

func (l *ChromeLauncher) args() []string {
	args := []string{
		"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage",
		"--user-agent=" + l.userAgent,
		fmt.Sprintf("--window-size=%d,%d", l.width, l.height),
	}
	if l.headless {
		args = append(args, "--headless")
	}
	if l.disableImages {
		args = append(args, "--blink-settings=imagesEnabled=false")
	}
	return args
}

// resolveExecPath picks the configured binary, then $CHROME_PATH. An empty
// result leaves the lookup to chromedp.
func (l *ChromeLauncher) resolveExecPath() (string, error) {
	path := l.execPath
	if path == "" {
		path = os.Getenv(ChromePathEnv)
	}
	if path == "" {
		return "", nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("chrome executable: %w", err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("chrome executable %s is not an executable file", path)
	}
	return path, nil
}

// Launch starts a browser process. The process outlives ctx; it ends on Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(l.userAgent),
		chromedp.WindowSize(l.width, l.height),
	)
	if l.disableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	execPath, err := l.resolveExecPath()
	if err != nil {
		return nil, err
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logf(slog.LevelDebug)),
		chromedp.WithErrorf(l.logf(slog.LevelWarn)),
	)

	// The first Run starts the process.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start chrome: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, ctx.Err()
	}

	b := &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		args:        l.args(),
		logger:      l.logger,
	}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Browser != nil {
		b.proc = c.Browser.Process()
	}
	l.logger.Info("Browser launched", "pid", b.PID())
	return b, nil
}

func (l *ChromeLauncher) logf(level slog.Level) func(string, ...any) {
	return func(format string, args ...any) {
		l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...), "component", "chromedp")
	}
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	proc        *os.Process
	args        []string
	logger      *slog.Logger
	closeOnce   sync.Once
	closeErr    error
}

func (b *chromeBrowser) PID() int {
	if b.proc == nil {
		return 0
	}
	return b.proc.Pid
}

func (b *chromeBrowser) Args() []string { return b.args }

func (b *chromeBrowser) Alive() bool {
	if b.ctx.Err() != nil {
		return false
	}
	if b.proc == nil {
		return true
	}
	return b.proc.Signal(syscall.Signal(0)) == nil
}

func (b *chromeBrowser) NewTab(ctx context.Context) (Tab, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	// Running with no actions creates the target.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return newChromeTab(tabCtx, cancel, b.logger), nil
}

func (b *chromeBrowser) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = chromedp.Cancel(b.ctx)
		b.cancel()
		b.allocCancel()
	})
	return b.closeErr
}
