//go:build linux

package indicator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

func openLine(cfg Config) (outputLine, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("cansat-altimeter"),
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Line, opts...)
	if err != nil {
		return nil, fmt.Errorf("indicator: request %s line %d: %w", cfg.Chip, cfg.Line, err)
	}
	return line, nil
}
