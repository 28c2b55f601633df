package platform

import (
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

type Clipboard interface {
	// Set copies text and, for a positive ttl, clears it again after ttl
	// unless something else has been copied in the meantime.
	Set(text string, ttl time.Duration) error
	// Wait blocks until every pending clear has run.
	Wait()
}

type SystemClipboard struct {
	read  func() (string, error)
	write func(string) error
	wg    sync.WaitGroup
}

func NewClipboard() *SystemClipboard {
	return &SystemClipboard{read: clipboard.ReadAll, write: clipboard.WriteAll}
}

// Available reports whether the platform has a usable clipboard.
func Available() bool { return !clipboard.Unsupported }

func (c *SystemClipboard) Set(text string, ttl time.Duration) error {
	if err := c.write(text); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	c.wg.Add(1)
	time.AfterFunc(ttl, func() {
		defer c.wg.Done()
		if cur, err := c.read(); err == nil && cur == text {
			_ = c.write("")
		}
	})
	return nil
}

func (c *SystemClipboard) Wait() { c.wg.Wait() }
