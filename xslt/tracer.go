package xslt

import (
	"io"
	"log/slog"
)

// Tracer observes a transformation run. Start and Done bracket the run,
// Enter and Leave bracket every instruction.
type Tracer interface {
	Start()
	Enter(instr, node, mode string, depth int)
	Leave(instr, node, mode string, depth int)
	Done(err error)
}

func NoopTracer() Tracer {
	return discardTracer{}
}

type discardTracer struct{}

func (discardTracer) Start() {}

func (discardTracer) Enter(_, _, _ string, _ int) {}

func (discardTracer) Leave(_, _, _ string, _ int) {}

func (discardTracer) Done(_ error) {}

type logTracer struct {
	logger *slog.Logger
}

func TraceTo(w io.Writer) Tracer {
	opts := slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return logTracer{
		logger: slog.New(slog.NewTextHandler(w, &opts)),
	}
}

func (t logTracer) Start() {
	t.logger.Info("transformation started")
}

func (t logTracer) Enter(instr, node, mode string, depth int) {
	t.logger.Debug("enter instruction", "instruction", instr, "node", node, "mode", mode, "depth", depth)
}

func (t logTracer) Leave(instr, node, mode string, depth int) {
	t.logger.Debug("leave instruction", "instruction", instr, "node", node, "mode", mode, "depth", depth)
}

func (t logTracer) Done(err error) {
	if err != nil {
		t.logger.Error("transformation failed", "err", err.Error())
		return
	}
	t.logger.Info("transformation done")
}
