package archive

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/q0"
)

const (
	// timestamp column of archiver exports
	dateColumn = "Date"
	dateLayout = "2006-01-02-15:04:05"
	// timestamp column of MyaPlot exports
	timeColumn = "time"
	timeLayout = "2006-01-02 15:04:05"
)

// ReadCSV parses an archiver or MyaPlot CSV export into a buffer. Per-heater
// columns are summed; a file that already carries the summed columns is read
// as is. Signals whose column is missing are left out of the buffer.
// Timestamps are read as UTC.
func ReadCSV(r io.Reader, cols Columns) (*q0.Buffer, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read CSV")
	}
	return parseRecords(records, cols)
}

type column struct {
	name   string
	idx    int
	signal q0.Signal
}

type heaterSum struct {
	signal q0.Signal
	cols   []column
}

func parseRecords(records [][]string, cols Columns) (*q0.Buffer, error) {
	if len(records) == 0 {
		return nil, pkgerrors.Wrap(q0.ErrInputData, "no header row")
	}

	header := map[string]int{}
	for i, name := range records[0] {
		header[strings.TrimSpace(name)] = i
	}

	timeIdx, layout, err := timestampColumn(header)
	if err != nil {
		return nil, err
	}

	var plain []column
	for _, pv := range cols.PVs() {
		s, ok := cols.Signals[pv]
		if !ok {
			continue
		}
		idx, ok := header[pv]
		if !ok {
			logrus.WithField("column", pv).Warn("column not found in CSV")
			continue
		}
		plain = append(plain, column{name: pv, idx: idx, signal: s})
	}

	var sums []heaterSum
	for _, h := range []struct {
		signal q0.Signal
		summed string
		pvs    []string
	}{
		{q0.SignalElecHeatDes, ColElecHeatDes, cols.HeaterDes},
		{q0.SignalElecHeatAct, ColElecHeatAct, cols.HeaterAct},
	} {
		sum, err := heaterColumns(header, h.signal, h.summed, h.pvs)
		if err != nil {
			return nil, err
		}
		sums = append(sums, sum)
	}

	signals := make([]q0.Signal, 0, len(plain)+len(sums))
	for _, c := range plain {
		signals = append(signals, c.signal)
	}
	for _, s := range sums {
		signals = append(signals, s.signal)
	}
	b := q0.NewBuffer(signals...)

	unparseable := map[string]int{}
	for n, rec := range records[1:] {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if timeIdx >= len(rec) {
			return nil, pkgerrors.Wrapf(q0.ErrInputData, "row %d has no timestamp", n+2)
		}
		t, err := time.ParseInLocation(layout, strings.TrimSpace(rec[timeIdx]), time.UTC)
		if err != nil {
			return nil, pkgerrors.Wrapf(q0.ErrInputData, "row %d: %v", n+2, err)
		}

		values := make(map[q0.Signal]float64, len(signals))
		for _, c := range plain {
			values[c.signal] = cell(rec, c, unparseable)
		}
		for _, s := range sums {
			total := 0.0
			for _, c := range s.cols {
				total += cell(rec, c, unparseable)
			}
			values[s.signal] = total
		}

		if err := b.Append(t, values); err != nil {
			return nil, pkgerrors.Wrapf(err, "row %d", n+2)
		}
	}

	names := make([]string, 0, len(unparseable))
	for name := range unparseable {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logrus.WithFields(logrus.Fields{
			"column": name,
			"cells":  unparseable[name],
		}).Warn("could not parse cells, marked invalid")
	}

	return b, nil
}

func timestampColumn(header map[string]int) (int, string, error) {
	if idx, ok := header[dateColumn]; ok {
		return idx, dateLayout, nil
	}
	if idx, ok := header[timeColumn]; ok {
		return idx, timeLayout, nil
	}
	return 0, "", pkgerrors.Wrapf(q0.ErrInputData, "no %q or %q timestamp column", dateColumn, timeColumn)
}

// heaterColumns prefers an already summed column and falls back to the
// individual heater PVs, all of which must be present.
func heaterColumns(header map[string]int, s q0.Signal, summed string, pvs []string) (heaterSum, error) {
	if idx, ok := header[summed]; ok {
		return heaterSum{signal: s, cols: []column{{name: summed, idx: idx, signal: s}}}, nil
	}

	sum := heaterSum{signal: s}
	for _, pv := range pvs {
		idx, ok := header[pv]
		if !ok {
			return heaterSum{}, pkgerrors.Wrapf(q0.ErrInputData, "heater column %s not found", pv)
		}
		sum.cols = append(sum.cols, column{name: pv, idx: idx, signal: s})
	}
	if len(sum.cols) == 0 {
		return heaterSum{}, pkgerrors.Wrapf(q0.ErrInputData, "no %q column", summed)
	}
	return sum, nil
}

// cell parses one value. Anything that is not a number is invalid and
// counted against its column.
func cell(rec []string, c column, unparseable map[string]int) float64 {
	if c.idx >= len(rec) {
		unparseable[c.name]++
		return q0.Invalid
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[c.idx]), 64)
	if err != nil || !q0.IsValid(v) {
		unparseable[c.name]++
		return q0.Invalid
	}
	return v
}

// WriteCSV writes b as a collapsed archiver CSV: a Date column, one column
// per signal and the summed heater columns. Invalid values are written as
// empty cells.
func WriteCSV(w io.Writer, b *q0.Buffer, cols Columns) error {
	cw := csv.NewWriter(w)

	signals := b.Signals()
	header := make([]string, 0, len(signals)+1)
	header = append(header, dateColumn)
	for _, s := range signals {
		header = append(header, cols.columnOf(s))
	}
	if err := cw.Write(header); err != nil {
		return pkgerrors.Wrap(err, "failed to write CSV header")
	}

	times := b.Times()
	row := make([]string, len(header))
	for i, t := range times {
		row[0] = t.UTC().Format(dateLayout)
		for j, s := range signals {
			v := b.Column(s)[i]
			if q0.IsValid(v) {
				row[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				row[j+1] = ""
			}
		}
		if err := cw.Write(row); err != nil {
			return pkgerrors.Wrapf(err, "failed to write CSV row %d", i)
		}
	}

	cw.Flush()
	return pkgerrors.Wrap(cw.Error(), "failed to flush CSV")
}
