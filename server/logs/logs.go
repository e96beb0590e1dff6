/******************************************************************************
 *
 *  Description :
 *    Package exposes info, warning and error loggers.
 *
 *****************************************************************************/
package logs

import (
	"log"
	"os"
)

var (
	// Info is the logger for informational messages.
	Info *log.Logger
	// Warn is the logger for warnings.
	Warn *log.Logger
	// Err is the logger for errors.
	Err *log.Logger
)

func init() {
	// Default initialization so the loggers are safe to use from tests
	// which do not call Init.
	Init(os.Stdout, log.LstdFlags)
}

// Init initializes the loggers with the given output and flags.
func Init(out *os.File, flags int) {
	Info = log.New(out, "I", flags|log.Lshortfile)
	Warn = log.New(out, "W", flags|log.Lshortfile)
	Err = log.New(out, "E", flags|log.Lshortfile)
}
