package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/calc"
	"github.com/vogtb/go-spreadsheet/packages/clipboard"
	"github.com/vogtb/go-spreadsheet/packages/grid"
	"github.com/vogtb/go-spreadsheet/packages/importer"
	"github.com/vogtb/go-spreadsheet/packages/sandbox"
	"github.com/vogtb/go-spreadsheet/packages/store"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// InvalidArgument indicates client specified an invalid argument.
	InvalidArgument AppErrorCode = 3

	// DeadlineExceeded means the operation expired before completion. for a
	// calculation the timed out result is still published.
	DeadlineExceeded AppErrorCode = 4

	// NotFound means some requested entity (e.g., worksheet) was not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means an attempt to create an entity failed because one
	// already exists.
	AlreadyExists AppErrorCode = 6

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

func (c AppErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid argument"
	case DeadlineExceeded:
		return "deadline exceeded"
	case NotFound:
		return "not found"
	case AlreadyExists:
		return "already exists"
	case FailedPrecondition:
		return "failed precondition"
	}
	return "internal"
}

// AppError represents errors at the application level (not
// spreadsheet formula errors)
type AppError struct {
	Code    AppErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// appError classifies err
func appError(err error) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return err
	}
	code := Internal
	var (
		importErr *importer.ImportError
		workerErr *sandbox.WorkerError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = NotFound
	case errors.Is(err, store.ErrExists):
		code = AlreadyExists
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, sandbox.ErrTimeout):
		code = DeadlineExceeded
	case errors.As(err, &importErr):
		code = InvalidArgument
	case errors.As(err, &workerErr):
		code = FailedPrecondition
	}
	return &AppError{Code: code, Message: err.Error(), Err: err}
}

// Spreadsheet ties stored sheets to the calculation runtime: edits go to
// the store, calculations run in a sandbox and their results are published
// back
type Spreadsheet struct {
	storage   *Storage
	publisher *sandbox.Publisher
	config    Config
	logger    logrus.FieldLogger
}

// NewSpreadsheet opens the sheets in cfg.DBPath. calculations run in
// sandboxed workers unless cfg.Unsandboxed is set.
func NewSpreadsheet(cfg Config, logger logrus.FieldLogger) (*Spreadsheet, error) {
	storage, err := OpenStorage(cfg.DBPath)
	if err != nil {
		return nil, appError(err)
	}
	return newSpreadsheet(cfg, storage, nil, logger), nil
}

// newSpreadsheet builds a Spreadsheet. a nil runner picks one from cfg.
func newSpreadsheet(cfg Config, storage *Storage, runner sandbox.Runner, logger logrus.FieldLogger) *Spreadsheet {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if runner == nil {
		sheets := sandbox.StoreSheets{Store: storage.sheets}
		if cfg.Unsandboxed {
			local := sandbox.NewLocalRunner(sheets, logger)
			if cfg.Workers > 0 {
				local.Calculator.Workers = cfg.Workers
			}
			runner = local
		} else {
			runner = sandbox.NewHost(cfg.HostConfig(), sheets, logger)
		}
	}
	return &Spreadsheet{
		storage:   storage,
		publisher: sandbox.NewPublisher(storage.sheets, runner, logger),
		config:    cfg,
		logger:    logger,
	}
}

func (s *Spreadsheet) Close() error {
	return s.storage.Close()
}

// CreateSheet adds an empty sheet with the default usercode
func (s *Spreadsheet) CreateSheet(ctx context.Context, name string) (store.Sheet, error) {
	if strings.TrimSpace(name) == "" {
		return store.Sheet{}, NewApplicationError(InvalidArgument, "sheet name is empty")
	}
	sheet, err := s.storage.sheets.Create(ctx, name, calc.DefaultUsercode, s.config.Timeout)
	if err != nil {
		return store.Sheet{}, appError(err)
	}
	s.logger.WithField("sheet", name).Info("sheet created")
	return sheet, nil
}

// ListSheets returns every sheet without its contents
func (s *Spreadsheet) ListSheets(ctx context.Context) ([]store.Sheet, error) {
	sheets, err := s.storage.sheets.List(ctx)
	return sheets, appError(err)
}

// Sheet returns the stored sheet called name
func (s *Spreadsheet) Sheet(ctx context.Context, name string) (store.Sheet, error) {
	sheet, err := s.storage.sheets.LoadByName(ctx, name)
	return sheet, appError(err)
}

// Worksheet returns the cells of the sheet called name
func (s *Spreadsheet) Worksheet(ctx context.Context, name string) (*grid.Worksheet, error) {
	_, ws, err := s.load(ctx, name)
	return ws, err
}

func (s *Spreadsheet) load(ctx context.Context, name string) (store.Sheet, *grid.Worksheet, error) {
	sheet, err := s.storage.sheets.LoadByName(ctx, name)
	if err != nil {
		return store.Sheet{}, nil, appError(err)
	}
	ws, err := grid.Decode(sheet.Name, sheet.Contents)
	if err != nil {
		return store.Sheet{}, nil, appError(fmt.Errorf("decode sheet %s: %w", name, err))
	}
	return sheet, ws, nil
}

func (s *Spreadsheet) save(ctx context.Context, sheet store.Sheet, ws *grid.Worksheet) error {
	data, err := ws.MarshalJSON()
	if err != nil {
		return appError(err)
	}
	version, err := s.storage.sheets.SaveContents(ctx, sheet.ID, data)
	if err != nil {
		return appError(err)
	}
	s.logger.WithFields(logrus.Fields{"sheet": sheet.Name, "version": version}).Debug("sheet saved")
	return nil
}

// Get returns the cell at address, which is empty if nothing was ever set
func (s *Spreadsheet) Get(ctx context.Context, name, address string) (*grid.Cell, error) {
	loc, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	_, ws, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if cell, ok := ws.Lookup(loc); ok {
		return cell, nil
	}
	return grid.NewCell(), nil
}

// Set stores formula in the cell at address. an empty formula removes the
// cell.
func (s *Spreadsheet) Set(ctx context.Context, name, address, formula string) error {
	loc, err := parseAddress(address)
	if err != nil {
		return err
	}
	sheet, ws, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if formula == "" {
		ws.Delete(loc)
	} else {
		ws.Get(loc).SetFormula(formula)
	}
	return s.save(ctx, sheet, ws)
}

// SetUsercode replaces the usercode of the sheet
func (s *Spreadsheet) SetUsercode(ctx context.Context, name, usercode string) error {
	sheet, err := s.Sheet(ctx, name)
	if err != nil {
		return err
	}
	_, err = s.storage.sheets.SetUsercode(ctx, sheet.ID, usercode)
	return appError(err)
}

// Calculate recalculates the sheet and publishes the result. a timed out
// calculation is still published and reported as DeadlineExceeded
// alongside its outcome.
func (s *Spreadsheet) Calculate(ctx context.Context, name string) (sandbox.Outcome, error) {
	sheet, err := s.Sheet(ctx, name)
	if err != nil {
		return sandbox.Outcome{}, err
	}
	outcome, err := s.publisher.Recalculate(ctx, sheet.ID)
	if err != nil {
		return sandbox.Outcome{}, appError(err)
	}
	if err := outcome.Err(); err != nil {
		return outcome, appError(err)
	}
	return outcome, nil
}

// Copy puts the cells of rng, "A1:B2" or a single cell, on the clipboard
func (s *Spreadsheet) Copy(ctx context.Context, name, rng string) error {
	start, end, err := parseRange(rng)
	if err != nil {
		return err
	}
	_, ws, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	return appError(s.storage.clipboard.Copy(ws, start, end))
}

// Cut puts the cells of rng on the clipboard and removes them from the
// sheet
func (s *Spreadsheet) Cut(ctx context.Context, name, rng string) error {
	start, end, err := parseRange(rng)
	if err != nil {
		return err
	}
	sheet, ws, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if err := s.storage.clipboard.Cut(ws, start, end); err != nil {
		return appError(err)
	}
	return s.save(ctx, sheet, ws)
}

// Paste writes the clipboard into the sheet. rng is either the top-left
// cell of one copy or a range to fill with copies.
func (s *Spreadsheet) Paste(ctx context.Context, name, rng string) error {
	start, end, err := parseRange(rng)
	if err != nil {
		return err
	}
	sheet, ws, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if err := s.storage.clipboard.PasteTo(ws, start, end); err != nil {
		if errors.Is(err, clipboard.ErrEmpty) {
			return NewApplicationError(FailedPrecondition, err.Error())
		}
		return appError(err)
	}
	return s.save(ctx, sheet, ws)
}

// ImportCSV writes the records of r into the sheet from the cell at
// address onwards, creating the sheet if needed
func (s *Spreadsheet) ImportCSV(ctx context.Context, name, address string, r io.Reader, opts importer.CSVOptions) error {
	loc, err := parseAddress(address)
	if err != nil {
		return err
	}
	if err := s.ensureSheet(ctx, name); err != nil {
		return err
	}
	sheet, ws, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if err := importer.FromCSV(ws, r, loc.Col, loc.Row, opts); err != nil {
		return appError(err)
	}
	return s.save(ctx, sheet, ws)
}

// ImportExcel replaces the cells of the sheet with those of an xlsx
// worksheet, creating the sheet if needed. an empty excelSheet takes the
// first worksheet of the file.
func (s *Spreadsheet) ImportExcel(ctx context.Context, name string, r io.Reader, excelSheet string) error {
	imported, err := importer.FromExcel(r, excelSheet)
	if err != nil {
		return appError(err)
	}
	if err := s.ensureSheet(ctx, name); err != nil {
		return err
	}
	sheet, err := s.Sheet(ctx, name)
	if err != nil {
		return err
	}
	imported.Name = sheet.Name
	return s.save(ctx, sheet, imported)
}

func (s *Spreadsheet) ensureSheet(ctx context.Context, name string) error {
	_, err := s.CreateSheet(ctx, name)
	var ae *AppError
	if errors.As(err, &ae) && ae.Code == AlreadyExists {
		return nil
	}
	return err
}

// ExportCSV writes the values of the sheet as CSV
func (s *Spreadsheet) ExportCSV(ctx context.Context, name string, w io.Writer) error {
	_, ws, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	return appError(importer.ToCSV(ws, w))
}

// ExportExcel writes the values of the sheet as an xlsx workbook
func (s *Spreadsheet) ExportExcel(ctx context.Context, name string, w io.Writer) error {
	_, ws, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	return appError(importer.ToExcel(ws, w))
}

func parseAddress(address string) (grid.Location, error) {
	loc, ok := grid.CellNameToCoordinates(strings.TrimSpace(address))
	if !ok {
		return grid.Location{}, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid address: %s", address))
	}
	return loc, nil
}

// parseRange accepts "A1:B2" or a single cell, which is both corners
func parseRange(rng string) (grid.Location, grid.Location, error) {
	rng = strings.TrimSpace(rng)
	if !strings.Contains(rng, ":") {
		loc, err := parseAddress(rng)
		return loc, loc, err
	}
	start, end, ok := grid.CellRangeToCoordinates(rng)
	if !ok {
		return grid.Location{}, grid.Location{}, NewApplicationError(InvalidArgument, fmt.Sprintf("Invalid range: %s", rng))
	}
	return start, end, nil
}
