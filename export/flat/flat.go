// Package flat exports kernel rows as CSV or JSON for spreadsheet and
// script consumption, replacing the profiler's own query interface.
package flat

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/zeebo/errs/v2"

	"github.com/GindaChen/nsys-ai/analyze"
	"github.com/GindaChen/nsys-ai/trace"
)

// Row is one kernel execution with its scope context.
type Row struct {
	Name       string  `json:"name"`
	StartNS    int64   `json:"start_ns"`
	EndNS      int64   `json:"end_ns"`
	DurationMS float64 `json:"duration_ms"`
	DurationUS float64 `json:"duration_us"`
	Stream     int64   `json:"stream"`
	Device     int64   `json:"device"`
	ScopePath  string  `json:"scope_path"`
}

// Rows builds flat kernel rows for a device and window. When
// withPaths is set, each row carries the " > " joined scope path from
// the reconstructed tree, keyed by kernel start time.
func Rows(ctx context.Context, src analyze.EventSource, device int64, window trace.TimeRange, withPaths bool) ([]Row, error) {
	kernels, err := src.Kernels(ctx, device, window)
	if err != nil {
		return nil, err
	}

	paths := make(map[trace.Time]string)
	if withPaths {
		roots, err := analyze.BuildTree(ctx, src, device, window)
		if err != nil {
			return nil, err
		}
		collectPaths(roots, "", paths)
	}

	rows := make([]Row, 0, len(kernels))
	for _, k := range kernels {
		rows = append(rows, Row{
			Name:       k.Name,
			StartNS:    int64(k.Start),
			EndNS:      int64(k.Finish),
			DurationMS: k.Duration().Millis(),
			DurationUS: float64(k.Duration()) / 1e3,
			Stream:     k.Stream,
			Device:     device,
			ScopePath:  paths[k.Start],
		})
	}
	return rows, nil
}

func collectPaths(nodes []*trace.Node, path string, result map[trace.Time]string) {
	for _, node := range nodes {
		if node.Kind == trace.KindKernel {
			result[node.Start] = path
			continue
		}
		childPath := node.Name
		if path != "" {
			childPath = path + " > " + node.Name
		}
		collectPaths(node.Children, childPath, result)
	}
}

var csvHeader = []string{
	"name", "start_ns", "end_ns", "duration_ms", "duration_us",
	"stream", "device", "scope_path",
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	out := csv.NewWriter(w)
	if err := out.Write(csvHeader); err != nil {
		return errs.Wrap(err)
	}
	for _, r := range rows {
		record := []string{
			r.Name,
			strconv.FormatInt(r.StartNS, 10),
			strconv.FormatInt(r.EndNS, 10),
			strconv.FormatFloat(r.DurationMS, 'f', 3, 64),
			strconv.FormatFloat(r.DurationUS, 'f', 1, 64),
			strconv.FormatInt(r.Stream, 10),
			strconv.FormatInt(r.Device, 10),
			r.ScopePath,
		}
		if err := out.Write(record); err != nil {
			return errs.Wrap(err)
		}
	}
	out.Flush()
	return errs.Wrap(out.Error())
}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errs.Wrap(enc.Encode(rows))
}
