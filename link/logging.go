package link

/*------------------------------------------------------------------
 *
 * Purpose: Structured logging setup, built on github.com/charmbracelet/log.
 *
 *------------------------------------------------------------------*/

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger builds the logger used throughout the session. Passing nil
// for w defaults to stderr, matching where dw_printf wrote.
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
		TimeFormat:      "15:04:05",
		Prefix:          "sonicbridge",
	})
}
