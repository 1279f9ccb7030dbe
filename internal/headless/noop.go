package headless

import (
	"context"
	"errors"

	"github.com/briefdesk/harvester/internal/scrape"
)

// ErrDisabled is returned by the noop launcher.
var ErrDisabled = errors.New("headless rendering disabled")

// NoopLauncher refuses to launch. Wired when rendering is turned off so
// rendered sources fail with a clear per-source error instead of a panic.
type NoopLauncher struct{}

// Launch implements scrape.BrowserLauncher.
func (NoopLauncher) Launch(context.Context) (scrape.Browser, error) {
	return nil, ErrDisabled
}
