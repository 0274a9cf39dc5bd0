package util

import (
	"encoding/csv"
	"os"
)

// WriteCSV dumps rows to a freshly created file at path.
func WriteCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer f.Close()

	w := csv.NewWriter(f)

	return w.WriteAll(rows)
}
