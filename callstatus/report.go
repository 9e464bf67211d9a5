package callstatus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// WriteTo writes one line per entry of each tally:
//
//	prefix,method,code,count
//
// The method is the full method name without the leading slash.
//
// Parameters:
//   - w: Destination
//   - tallies: Tallies to write, in order; nil entries are skipped
//
// Returns:
//   - error: Write failure
func WriteTo(w io.Writer, tallies ...*Tally) error {
	bw := bufio.NewWriter(w)
	for _, t := range tallies {
		if t == nil {
			continue
		}
		for _, e := range t.Entries() {
			line := strings.Join([]string{
				t.prefix,
				strings.TrimPrefix(string(e.Method), "/"),
				e.Code.String(),
				strconv.FormatInt(e.Count, 10),
			}, ",")
			if _, err := bw.WriteString(line + "\n"); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// WriteReport appends the tallies to the file at path, creating it if needed.
//
// Parameters:
//   - path: Report file path
//   - tallies: Tallies to write, in order
//
// Returns:
//   - error: Open, write or close failure
func WriteReport(path string, tallies ...*Tally) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("bigtable: open call status report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("bigtable: close call status report: %w", cerr)
		}
	}()

	if err := WriteTo(f, tallies...); err != nil {
		return fmt.Errorf("bigtable: write call status report: %w", err)
	}

	return nil
}
