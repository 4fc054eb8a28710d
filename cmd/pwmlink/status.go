package main

import (
	"fmt"
	"io"

	"github.com/pwmlink/pwmlink-go/pkg/log"
	"github.com/pwmlink/pwmlink-go/pkg/supervisor"
)

// statusLine renders a setpoint change for the operator.
func statusLine(c supervisor.Change) string {
	switch {
	case c.Tag == log.TagStop:
		return "!!! STOP !!!"
	case c.Source == log.SourceRelay:
		return fmt.Sprintf("PWM: %d (%s from %s)", c.Value, c.Tag, shortPeer(c.PeerID))
	default:
		return fmt.Sprintf("PWM: %d (%s)", c.Value, c.Tag)
	}
}

func shortPeer(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "peer"
	}
	return id
}

// printStatus returns an OnChange callback writing status lines to w.
func printStatus(w io.Writer) func(supervisor.Change) {
	return func(c supervisor.Change) {
		fmt.Fprintln(w, statusLine(c))
	}
}
