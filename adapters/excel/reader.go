package excel

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"rctmle/domain/core"
	"rctmle/domain/trial"
	"rctmle/internal"
)

// Columns names the dataset columns a reader maps onto the design.
// Covariates lists the adjustment columns in order; every other field is
// a single column name. Level is used for ordinal outcomes, Time/Event
// for survival outcomes.
type Columns struct {
	Arm        string
	Time       string
	Event      string
	Level      string
	Covariates []string
}

// DefaultColumns returns the conventional column names.
func DefaultColumns() Columns {
	return Columns{Arm: "arm", Time: "time", Event: "event", Level: "outcome"}
}

// TrialReader reads a two-arm trial dataset from an Excel or CSV file.
type TrialReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	cols     Columns
	logger   *internal.Logger

	// MaxGridPoints caps the survival time grid; continuous or fine-grained
	// times are coarsened onto quantile cut points when the number of
	// distinct values exceeds it. Zero keeps every distinct time.
	MaxGridPoints int
}

// NewTrialReader creates a reader for the given file; type is inferred
// from the extension.
func NewTrialReader(filePath string, cols Columns, logger *internal.Logger) *TrialReader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &TrialReader{filePath: filePath, fileType: fileType, cols: cols, logger: logger}
}

// ReadSurvival reads the file as a survival trial: arm, time, event and
// covariate columns. Times are mapped (coarsening if necessary) onto a
// strictly increasing grid of 1-based indices.
func (r *TrialReader) ReadSurvival() (*trial.DesignData, error) {
	rows, header, err := r.read()
	if err != nil {
		return nil, err
	}

	arm, err := intColumn(rows, header, r.cols.Arm)
	if err != nil {
		return nil, err
	}
	rawTime, err := floatColumn(rows, header, r.cols.Time)
	if err != nil {
		return nil, err
	}
	event, err := intColumn(rows, header, r.cols.Event)
	if err != nil {
		return nil, err
	}
	cov, err := r.covariates(rows, header)
	if err != nil {
		return nil, err
	}

	grid, index := coarsenTimes(rawTime, r.MaxGridPoints)
	r.logger.Info("reader: %d observations on a %d-point grid from %s", len(arm), len(grid), r.filePath)
	return trial.NewSurvivalData(arm, cov, index, event, grid)
}

// ReadOrdinal reads the file as an ordinal trial: arm, outcome level and
// covariate columns. Levels must already be coded 1..L; L is taken as the
// maximum observed level.
func (r *TrialReader) ReadOrdinal() (*trial.DesignData, error) {
	rows, header, err := r.read()
	if err != nil {
		return nil, err
	}

	arm, err := intColumn(rows, header, r.cols.Arm)
	if err != nil {
		return nil, err
	}
	level, err := intColumn(rows, header, r.cols.Level)
	if err != nil {
		return nil, err
	}
	cov, err := r.covariates(rows, header)
	if err != nil {
		return nil, err
	}

	numLevels := 0
	for _, l := range level {
		if l > numLevels {
			numLevels = l
		}
	}
	r.logger.Info("reader: %d observations on %d ordered levels from %s", len(arm), numLevels, r.filePath)
	return trial.NewOrdinalData(arm, cov, level, numLevels)
}

func (r *TrialReader) read() ([][]string, map[string]int, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, nil, core.NewDataError("file", fmt.Sprintf("%s not found", r.filePath))
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	case "xlsx":
		rows, err = r.readExcel()
	default:
		return nil, nil, core.NewDataError("file", fmt.Sprintf("unsupported type %s", r.fileType))
	}
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, core.NewDataError("file", "need a header row and at least one data row")
	}

	header := make(map[string]int, len(rows[0]))
	for j, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = j
	}
	return rows[1:], header, nil
}

func (r *TrialReader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("read Sheet1: %w", err)
	}
	return rows, nil
}

func (r *TrialReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer file.Close()

	return csv.NewReader(file).ReadAll()
}

func (r *TrialReader) covariates(rows [][]string, header map[string]int) ([][]float64, error) {
	if len(r.cols.Covariates) == 0 {
		return nil, nil
	}
	cov := make([][]float64, len(rows))
	for i := range cov {
		cov[i] = make([]float64, len(r.cols.Covariates))
	}
	for j, name := range r.cols.Covariates {
		col, err := floatColumn(rows, header, name)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			cov[i][j] = col[i]
		}
	}
	return cov, nil
}

func intColumn(rows [][]string, header map[string]int, name string) ([]int, error) {
	raw, err := floatColumn(rows, header, name)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(raw))
	for i, v := range raw {
		if v != math.Trunc(v) {
			return nil, core.NewDataError(name, fmt.Sprintf("row %d: %g is not an integer", i+1, v))
		}
		out[i] = int(v)
	}
	return out, nil
}

func floatColumn(rows [][]string, header map[string]int, name string) ([]float64, error) {
	j, ok := header[strings.ToLower(name)]
	if !ok {
		return nil, core.NewDataError(name, "column not found")
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if j >= len(row) || strings.TrimSpace(row[j]) == "" {
			return nil, core.NewDataError(name, fmt.Sprintf("row %d: empty cell", i+1))
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
		if err != nil {
			return nil, core.NewDataError(name, fmt.Sprintf("row %d: %v", i+1, err))
		}
		out[i] = v
	}
	return out, nil
}

// coarsenTimes maps raw follow-up times onto a strictly increasing grid and
// 1-based indices into it. When maxPoints > 0 and the number of distinct
// times exceeds it, cut points are placed at evenly spaced quantiles and
// each time maps to the first cut point at or above it.
func coarsenTimes(raw []float64, maxPoints int) (trial.TimeGrid, []int) {
	distinct := distinctSorted(raw)
	grid := distinct
	if maxPoints > 0 && len(distinct) > maxPoints {
		grid = quantileCuts(raw, maxPoints)
	}

	index := make([]int, len(raw))
	for i, v := range raw {
		// First grid point >= v; values beyond the last cut collapse onto it.
		pos := sort.SearchFloat64s(grid, v)
		if pos == len(grid) {
			pos = len(grid) - 1
		}
		index[i] = pos + 1
	}
	return trial.TimeGrid(grid), index
}

func distinctSorted(raw []float64) []float64 {
	sorted := append([]float64(nil), raw...)
	sort.Float64s(sorted)
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return append([]float64(nil), out...)
}

func quantileCuts(raw []float64, k int) []float64 {
	sorted := append([]float64(nil), raw...)
	sort.Float64s(sorted)
	cuts := make([]float64, 0, k)
	for j := 1; j <= k; j++ {
		q := float64(j) / float64(k)
		idx := int(math.Ceil(q*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		v := sorted[idx]
		if len(cuts) == 0 || v > cuts[len(cuts)-1] {
			cuts = append(cuts, v)
		}
	}
	return cuts
}
