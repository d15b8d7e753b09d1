package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
	"github.com/banshee-data/nodesweep/internal/setup"
)

// Artifact file names written beside the rendered images.
const (
	MinMaxFile = "param_min_max.json"
	ParamFile  = "param_data.json"
	LabelFile  = "normalized_data_labels.csv"
)

func (d *Driver) writeArtifacts(dir string, minMax []setup.MinMaxRecord, res *Result) error {
	var buf bytes.Buffer
	if err := setup.WriteMinMax(&buf, minMax); err != nil {
		return fmt.Errorf("encode min/max: %w", err)
	}
	if err := d.writeArtifact(dir, MinMaxFile, buf.Bytes(), res); err != nil {
		return err
	}

	data, err := EncodeParamData(res.Samples)
	if err != nil {
		return err
	}
	if err := d.writeArtifact(dir, ParamFile, data, res); err != nil {
		return err
	}
	monitoring.Logf("Wrote parameter data to: %s", filepath.Join(dir, ParamFile))

	labels := make([][]float64, len(res.Samples))
	for i, s := range res.Samples {
		labels[i] = s.Labels
	}
	data, err = EncodeLabels(labels)
	if err != nil {
		return err
	}
	if err := d.writeArtifact(dir, LabelFile, data, res); err != nil {
		return err
	}
	monitoring.Logf("Wrote labels to: %s", filepath.Join(dir, LabelFile))
	return nil
}

func (d *Driver) writeArtifact(dir, name string, data []byte, res *Result) error {
	path := filepath.Join(dir, name)
	if err := d.fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	res.Artifacts = append(res.Artifacts, path)
	return nil
}

// EncodeParamData encodes the per-sample snapshots as a JSON object keyed
// by sample index.
func EncodeParamData(samples []SampleRecord) ([]byte, error) {
	out := make(map[string]graph.Snapshot, len(samples))
	for _, s := range samples {
		out[strconv.Itoa(s.Index)] = s.Snapshot
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode parameter data: %w", err)
	}
	return data, nil
}

// EncodeLabels writes one comma-separated row of labels per sample. Rows
// may differ in length.
func EncodeLabels(rows [][]float64) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("encode labels: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeLabels parses a label table written by EncodeLabels.
func DecodeLabels(data []byte) ([][]float64, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	out := make([][]float64, len(recs))
	for i, rec := range recs {
		row := make([]float64, 0, len(rec))
		for _, f := range rec {
			if f == "" {
				continue
			}
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("decode labels row %d: %w", i, err)
			}
			row = append(row, v)
		}
		out[i] = row
	}
	return out, nil
}
