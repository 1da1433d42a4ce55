//go:build !linux

package indicator

import "fmt"

func openLine(cfg Config) (outputLine, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}
