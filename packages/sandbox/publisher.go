package sandbox

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/grid"
	"github.com/vogtb/go-spreadsheet/packages/store"
)

// SheetStore is the part of the store a Publisher needs
type SheetStore interface {
	Load(ctx context.Context, id int64) (store.Sheet, error)
	Publish(ctx context.Context, id, baseVersion int64, contents []byte) (bool, error)
}

// Runner runs one calculation
type Runner interface {
	Calculate(ctx context.Context, req Request) (Result, error)
}

// Outcome is a finished recalculation
type Outcome struct {
	Result
	// Applied is false when the sheet was edited while the run was going
	Applied bool
}

// Publisher recalculates stored sheets and swaps the results in. runs are
// never cancelled: a result is applied if its sheet is still at the
// version the run started from, so of two runs on one version the last to
// finish wins.
type Publisher struct {
	Store  SheetStore
	Runner Runner
	Logger logrus.FieldLogger
}

func NewPublisher(st SheetStore, runner Runner, logger logrus.FieldLogger) *Publisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Publisher{Store: st, Runner: runner, Logger: logger}
}

// Recalculate runs the sheet's usercode against its current contents and
// publishes the result
func (p *Publisher) Recalculate(ctx context.Context, id int64) (Outcome, error) {
	sheet, err := p.Store.Load(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	result, err := p.Runner.Calculate(ctx, Request{
		SheetID:   sheet.ID,
		Version:   sheet.Version,
		Name:      sheet.Name,
		Worksheet: sheet.Contents,
		Usercode:  sheet.Usercode,
		Timeout:   sheet.Timeout,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("recalculate %s: %w", sheet.Name, err)
	}

	applied, err := p.Store.Publish(ctx, sheet.ID, sheet.Version, result.Worksheet)
	if err != nil {
		return Outcome{}, err
	}
	p.Logger.WithFields(logrus.Fields{
		"sheet":   sheet.Name,
		"version": sheet.Version,
		"applied": applied,
		"elapsed": result.Elapsed,
	}).Info("recalculated")
	return Outcome{Result: result, Applied: applied}, nil
}

// StoreSheets serves run_worksheet from the store
type StoreSheets struct {
	Store interface {
		LoadByName(ctx context.Context, name string) (store.Sheet, error)
	}
}

func (s StoreSheets) LoadSheet(ctx context.Context, name string) (*grid.Worksheet, string, error) {
	sheet, err := s.Store.LoadByName(ctx, name)
	if err != nil {
		return nil, "", err
	}
	ws, err := grid.Decode(sheet.Name, sheet.Contents)
	if err != nil {
		return nil, "", err
	}
	return ws, sheet.Usercode, nil
}
