package main

import (
	"github.com/vogtb/go-spreadsheet/packages/clipboard"
	"github.com/vogtb/go-spreadsheet/packages/store"
)

// Storage holds the state a Spreadsheet keeps between operations
type Storage struct {
	sheets    *store.Store
	clipboard *clipboard.Clipboard
}

// OpenStorage opens the sheet database at path with an empty clipboard
func OpenStorage(path string) (*Storage, error) {
	sheets, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &Storage{sheets: sheets, clipboard: clipboard.New()}, nil
}

func (s *Storage) Close() error {
	return s.sheets.Close()
}
