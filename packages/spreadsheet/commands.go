package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vogtb/go-spreadsheet/packages/grid"
	"github.com/vogtb/go-spreadsheet/packages/importer"
	"github.com/vogtb/go-spreadsheet/packages/sandbox"
)

func usageError(fs *flag.FlagSet, synopsis string) error {
	fmt.Fprintf(fs.Output(), "usage: spreadsheet %s\n", synopsis)
	fs.PrintDefaults()
	return errReported
}

// withSpreadsheet opens the configured sheets for the length of fn
func withSpreadsheet(cfg Config, e env, fn func(s *Spreadsheet) error) error {
	logger, err := cfg.NewLogger(e.stderr)
	if err != nil {
		return err
	}
	s, err := NewSpreadsheet(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func sheetFlag(fs *flag.FlagSet) *string {
	return fs.String("sheet", "", "sheet name")
}

func runCreate(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return usageError(fs, "create NAME")
	}
	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		sheet, err := s.CreateSheet(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "created %s (id %d)\n", sheet.Name, sheet.ID)
		return nil
	})
}

func runList(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		sheets, err := s.ListSheets(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tTIMEOUT\tUPDATED")
		for _, sheet := range sheets {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", sheet.Name, sheet.Version, sheet.Timeout, sheet.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func runSet(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	sheet := sheetFlag(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *sheet == "" || fs.NArg() != 2 {
		return usageError(fs, "set -sheet S CELL FORMULA")
	}
	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		return s.Set(ctx, *sheet, fs.Arg(0), fs.Arg(1))
	})
}

func runGet(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	sheet := sheetFlag(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *sheet == "" || fs.NArg() != 1 {
		return usageError(fs, "get -sheet S CELL")
	}
	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		cell, err := s.Get(ctx, *sheet, fs.Arg(0))
		if err != nil {
			return err
		}
		if msg := cell.Error(); msg != "" {
			fmt.Fprintln(e.stdout, msg)
			return nil
		}
		fmt.Fprintln(e.stdout, cell.FormattedValue())
		return nil
	})
}

func runUsercode(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	sheet := sheetFlag(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *sheet == "" || fs.NArg() != 1 {
		return usageError(fs, "usercode -sheet S FILE")
	}
	var (
		code []byte
		err  error
	)
	if fs.Arg(0) == "-" {
		code, err = io.ReadAll(e.stdin)
	} else {
		code, err = os.ReadFile(fs.Arg(0))
	}
	if err != nil {
		return fmt.Errorf("read usercode: %w", err)
	}
	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		return s.SetUsercode(ctx, *sheet, string(code))
	})
}

func runCalc(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	sheet := sheetFlag(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *sheet == "" || fs.NArg() != 0 {
		return usageError(fs, "calc -sheet S")
	}
	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		outcome, calcErr := s.Calculate(ctx, *sheet)
		var ae *AppError
		if calcErr != nil && !(errors.As(calcErr, &ae) && ae.Code == DeadlineExceeded) {
			return calcErr
		}
		if err := printConsole(e, outcome.Worksheet); err != nil {
			return err
		}
		if !outcome.Applied {
			fmt.Fprintln(e.stderr, "sheet changed during the calculation, result discarded")
		}
		if calcErr != nil {
			return calcErr
		}
		if ue := outcome.UsercodeError; ue != nil {
			fmt.Fprintf(e.stderr, "usercode error: %s (line %d)\n", ue.Message, ue.Line)
			return errReported
		}
		return nil
	})
}

// printConsole writes a calculated sheet's console, errors to stderr
func printConsole(e env, data []byte) error {
	ws, err := grid.Decode("result", data)
	if err != nil {
		return err
	}
	for _, entry := range ws.ConsoleText() {
		w := e.stdout
		if entry.Type == grid.ConsoleError {
			w = e.stderr
		}
		text := entry.Text
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		fmt.Fprint(w, text)
	}
	return nil
}

func runImport(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	sheet := sheetFlag(fs)
	at := fs.String("at", "A1", "top-left cell of a csv import")
	excelEncoding := fs.Bool("excel-encoding", false, "read csv as windows-1252")
	excelSheet := fs.String("excel-sheet", "", "worksheet of an xlsx import (default: the first)")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *sheet == "" || fs.NArg() != 1 {
		return usageError(fs, "import -sheet S FILE")
	}
	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			return s.ImportCSV(ctx, *sheet, *at, f, importer.CSVOptions{ExcelEncoding: *excelEncoding})
		case ".xlsx", ".xlsm":
			return s.ImportExcel(ctx, *sheet, f, *excelSheet)
		}
		return NewApplicationError(InvalidArgument, fmt.Sprintf("cannot import %s: not a .csv or .xlsx file", path))
	})
}

func runExport(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	sheet := sheetFlag(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *sheet == "" || fs.NArg() != 1 {
		return usageError(fs, "export -sheet S FILE")
	}
	path := fs.Arg(0)
	var export func(s *Spreadsheet, w io.Writer) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		export = func(s *Spreadsheet, w io.Writer) error { return s.ExportCSV(ctx, *sheet, w) }
	case ".xlsx":
		export = func(s *Spreadsheet, w io.Writer) error { return s.ExportExcel(ctx, *sheet, w) }
	default:
		return NewApplicationError(InvalidArgument, fmt.Sprintf("cannot export to %s: not a .csv or .xlsx file", path))
	}

	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := export(s, f); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		return f.Close()
	})
}

func runPaste(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	cfg.RegisterFlags(fs)
	sheet := sheetFlag(fs)
	from := fs.String("from", "", "cells to copy, A1:B2 or a single cell")
	to := fs.String("to", "", "top-left cell of the copy, or a range to fill with copies")
	toSheet := fs.String("to-sheet", "", "sheet to paste into (default: -sheet)")
	cut := fs.Bool("cut", false, "move the cells instead of copying them")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *sheet == "" || *from == "" || *to == "" || fs.NArg() != 0 {
		return usageError(fs, "paste -sheet S -from RANGE -to RANGE")
	}
	if *toSheet == "" {
		*toSheet = *sheet
	}
	return withSpreadsheet(cfg, e, func(s *Spreadsheet) error {
		take := s.Copy
		if *cut {
			take = s.Cut
		}
		if err := take(ctx, *sheet, *from); err != nil {
			return err
		}
		return s.Paste(ctx, *toSheet, *to)
	})
}

func runJail(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return usageError(fs, "jail DIR")
	}
	if err := sandbox.PrepareJail(fs.Arg(0)); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "prepared %s; bind mount /lib and /usr/lib read-only into it and copy the worker binary in\n", fs.Arg(0))
	return nil
}

// runWorker is started by the host, one process per calculation. it prints
// its port on stdout, so logs go to stderr.
func runWorker(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error {
	var limits sandbox.Limits
	fs.Uint64Var(&limits.AddressSpace, "max-memory", 0, "address space limit in bytes")
	fs.Uint64Var(&limits.OpenFiles, "max-files", 0, "open file limit")
	fs.Uint64Var(&limits.CPUSeconds, "max-cpu", 0, "cpu time limit in seconds")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent cell evaluations")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	hash := e.getenv(sandbox.TokenHashEnv)
	if hash == "" {
		return fmt.Errorf("worker: %s is not set", sandbox.TokenHashEnv)
	}
	logger, err := cfg.NewLogger(e.stderr)
	if err != nil {
		return err
	}
	if err := sandbox.ApplyLimits(limits); err != nil {
		return err
	}
	return sandbox.ServeWorker(ctx, sandbox.WorkerConfig{
		TokenHash: []byte(hash),
		Workers:   cfg.Workers,
		Stdout:    e.stdout,
		Logger:    logger,
	})
}
