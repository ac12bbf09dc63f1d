package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates the CLI logger. Timestamps are only shown at debug
// level, where the flow operation timings are interesting.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: level <= log.DebugLevel,
		TimeFormat:      "15:04:05.000",
		Level:           level,
		Prefix:          appName,
	})
}

// Operations on flow documents reported by flowOp.
const (
	opLoad     = "load"
	opSave     = "save"
	opRender   = "render"
	opValidate = "validate"
)

// flowOp times one operation on a flow document and logs its outcome
// together with the size of the flow it touched.
type flowOp struct {
	logger *log.Logger
	name   string
	path   string
	start  time.Time
}

func (c *CLI) beginOp(name, path string) *flowOp {
	return &flowOp{logger: c.Logger, name: name, path: path, start: time.Now()}
}

// finish logs the operation. Loads and saves are logged at debug level,
// renders and validations at info. Failures are logged as warnings.
func (op *flowOp) finish(nodes, edges int, err error) {
	took := time.Since(op.start).Round(time.Millisecond)
	if err != nil {
		op.logger.Warn("flow "+op.name+" failed", "path", op.path, "took", took, "err", err)
		return
	}
	level := log.InfoLevel
	if op.name == opLoad || op.name == opSave {
		level = log.DebugLevel
	}
	op.logger.Log(level, "flow "+op.name, "path", op.path, "nodes", nodes, "edges", edges, "took", took)
}
