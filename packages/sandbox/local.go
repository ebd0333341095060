package sandbox

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/calc"
	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// LocalRunner calculates in the calling process, without a worker. usercode
// runs with the host's privileges, so it is only for trusted sheets.
type LocalRunner struct {
	Calculator *calc.Calculator
	Logger     logrus.FieldLogger
}

func NewLocalRunner(sheets calc.SheetSource, logger logrus.FieldLogger) *LocalRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LocalRunner{Calculator: calc.NewCalculator(sheets, logger), Logger: logger}
}

func (r *LocalRunner) Calculate(ctx context.Context, req Request) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ws, err := grid.Decode(req.Name, req.Worksheet)
	if err != nil {
		return Result{}, fmt.Errorf("decode request worksheet: %w", err)
	}
	res := r.Calculator.Calculate(ctx, ws, req.Usercode, calc.Options{Timeout: timeout})
	data, err := ws.MarshalJSON()
	if err != nil {
		return Result{}, err
	}

	result, err := resultFrom(req, Message{Worksheet: data, TimedOut: res.TimedOut})
	if err != nil {
		return Result{}, err
	}
	result.Elapsed = res.Elapsed
	r.Logger.WithFields(logrus.Fields{"sheet": req.Name, "elapsed": res.Elapsed}).Debug("calculated in process")
	return result, nil
}
