package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/zeebo/clingy"
	"github.com/zeebo/errs/v2"
	"go.uber.org/multierr"

	"github.com/GindaChen/nsys-ai/analyze"
	"github.com/GindaChen/nsys-ai/export/flat"
	"github.com/GindaChen/nsys-ai/export/tef"
	"github.com/GindaChen/nsys-ai/profile"
	"github.com/GindaChen/nsys-ai/trace"
)

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

// profileParams are the flags and argument shared by every command
// that analyzes one device: the profile path, the target GPU, and an
// optional trim window given in seconds.
type profileParams struct {
	path      string
	gpu       int64
	trimStart string
	trimEnd   string
}

func (p *profileParams) setup(params clingy.Parameters) {
	p.gpu = params.Flag("gpu", "target GPU device id", int64(0),
		clingy.Transform(parseInt64)).(int64)
	p.trimStart = params.Flag("trim-start", "window start in seconds", "").(string)
	p.trimEnd = params.Flag("trim-end", "window end in seconds", "").(string)
	p.path = params.Arg("profile", "path to an Nsight Systems sqlite export").(string)
}

// window resolves the trim flags against the profile's full time
// range. Trim values are seconds, stored as nanoseconds.
func (p *profileParams) window(prof *profile.Profile) (trace.TimeRange, error) {
	window := prof.Meta.TimeRange
	if p.trimStart != "" {
		seconds, err := strconv.ParseFloat(p.trimStart, 64)
		if err != nil {
			return window, errs.Errorf("bad --trim-start %q: %w", p.trimStart, err)
		}
		window.Start = trace.Time(seconds * 1e9)
	}
	if p.trimEnd != "" {
		seconds, err := strconv.ParseFloat(p.trimEnd, 64)
		if err != nil {
			return window, errs.Errorf("bad --trim-end %q: %w", p.trimEnd, err)
		}
		window.Finish = trace.Time(seconds * 1e9)
	}
	if window.Finish < window.Start {
		return window, errs.Errorf("trim window ends before it starts")
	}
	return window, nil
}

func (p *profileParams) run(ctx context.Context, fn func(*profile.Profile, trace.TimeRange) error) (err error) {
	prof, err := profile.Open(ctx, p.path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, prof.Close()) }()

	known := false
	for _, device := range prof.Meta.Devices {
		if device == p.gpu {
			known = true
			break
		}
	}
	if !known {
		return errs.Errorf("no GPU %d in profile; devices: %s", p.gpu, prof.DeviceList())
	}

	window, err := p.window(prof)
	if err != nil {
		return err
	}
	return fn(prof, window)
}

type cmdInfo struct {
	path string
}

func (c *cmdInfo) Setup(params clingy.Parameters) {
	c.path = params.Arg("profile", "path to an Nsight Systems sqlite export").(string)
}

func (c *cmdInfo) Execute(ctx context.Context) (err error) {
	prof, err := profile.Open(ctx, c.path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, prof.Close()) }()

	formatMeta(clingy.Stdout(ctx), prof)
	return nil
}

type cmdSummary struct {
	profileParams
}

func (c *cmdSummary) Setup(params clingy.Parameters) { c.setup(params) }

func (c *cmdSummary) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) error {
		summary, err := analyze.Summarize(ctx, prof, c.gpu, window)
		if err != nil {
			return err
		}
		formatSummary(clingy.Stdout(ctx), summary, prof.Meta.GPUs[c.gpu])
		return nil
	})
}

type cmdTree struct {
	profileParams
}

func (c *cmdTree) Setup(params clingy.Parameters) { c.setup(params) }

func (c *cmdTree) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) error {
		roots, err := analyze.BuildTree(ctx, prof, c.gpu, window)
		if err != nil {
			return err
		}
		if len(roots) == 0 {
			fmt.Fprintln(clingy.Stdout(ctx), "no annotated GPU work in window")
			return nil
		}
		formatTree(clingy.Stdout(ctx), roots, 0)
		return nil
	})
}

type cmdConvergence struct {
	profileParams
}

func (c *cmdConvergence) Setup(params clingy.Parameters) { c.setup(params) }

func (c *cmdConvergence) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) error {
		roots, err := analyze.BuildTree(ctx, prof, c.gpu, window)
		if err != nil {
			return err
		}
		formatConvergence(clingy.Stdout(ctx),
			analyze.Convergence(roots), analyze.RefinementTargets(roots))
		return nil
	})
}

type cmdOverlap struct {
	profileParams
}

func (c *cmdOverlap) Setup(params clingy.Parameters) { c.setup(params) }

func (c *cmdOverlap) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) error {
		report, err := analyze.Overlap(ctx, prof, c.gpu, window)
		if err != nil {
			return err
		}
		formatOverlap(clingy.Stdout(ctx), report)
		return nil
	})
}

type cmdCollectives struct {
	profileParams
}

func (c *cmdCollectives) Setup(params clingy.Parameters) { c.setup(params) }

func (c *cmdCollectives) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) error {
		stats, err := analyze.CollectiveBreakdown(ctx, prof, c.gpu, window)
		if err != nil {
			return err
		}
		formatCollectives(clingy.Stdout(ctx), stats)
		return nil
	})
}

type cmdIterations struct {
	profileParams
	marker string
}

func (c *cmdIterations) Setup(params clingy.Parameters) {
	c.marker = params.Flag("marker", "annotation text marking each iteration",
		analyze.DefaultIterationMarker).(string)
	c.setup(params)
}

func (c *cmdIterations) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) error {
		iterations, err := analyze.DetectIterations(ctx, prof, c.gpu, window, c.marker)
		if err != nil {
			return err
		}
		formatIterations(clingy.Stdout(ctx), iterations)
		return nil
	})
}

type cmdSearch struct {
	profileParams
	query string
	kind  string
	under string
}

func (c *cmdSearch) Setup(params clingy.Parameters) {
	c.kind = params.Flag("kind", "what to search: kernel or scope", "kernel").(string)
	c.under = params.Flag("under", "restrict kernel matches to scopes matching this text", "").(string)
	c.setup(params)
	c.query = params.Arg("query", "case-insensitive substring to find").(string)
}

func (c *cmdSearch) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) error {
		out := clingy.Stdout(ctx)
		switch {
		case c.under != "":
			matches, err := analyze.SearchHierarchy(ctx, prof, c.gpu, c.under, c.query, window)
			if err != nil {
				return err
			}
			formatHierarchyMatches(out, matches)
		case c.kind == "scope":
			matches, err := analyze.SearchScopes(ctx, prof, prof.Meta.Devices,
				c.query, window, analyze.DefaultSearchLimit)
			if err != nil {
				return err
			}
			formatScopeMatches(out, matches)
		case c.kind == "kernel":
			matches, err := analyze.SearchKernels(ctx, prof, prof.Meta.Devices,
				c.query, window, analyze.DefaultSearchLimit)
			if err != nil {
				return err
			}
			formatKernelMatches(out, matches)
		default:
			return errs.Errorf("unknown search kind %q", c.kind)
		}
		return nil
	})
}

type cmdExport struct {
	profileParams
	out string
}

func (c *cmdExport) Setup(params clingy.Parameters) {
	c.out = params.Flag("out", "output path (default trace_gpu<N>.json)", "").(string)
	c.setup(params)
}

func (c *cmdExport) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) (err error) {
		file, err := tef.Convert(ctx, prof, c.gpu, window)
		if err != nil {
			return err
		}
		if len(file.TraceEvents) == 0 {
			fmt.Fprintf(clingy.Stdout(ctx), "GPU %d: no kernels, skipped\n", c.gpu)
			return nil
		}

		path := c.out
		if path == "" {
			path = fmt.Sprintf("trace_gpu%d.json", c.gpu)
		}
		out, err := os.Create(path)
		if err != nil {
			return errs.Wrap(err)
		}
		defer func() { err = multierr.Append(err, out.Close()) }()

		if err := tef.Write(out, file); err != nil {
			return err
		}
		fmt.Fprintf(clingy.Stdout(ctx), "GPU %d: %d events -> %s\n",
			c.gpu, len(file.TraceEvents), path)
		return nil
	})
}

type cmdExportFlat struct {
	profileParams
	format string
	out    string
	paths  bool
}

func (c *cmdExportFlat) Setup(params clingy.Parameters) {
	c.format = params.Flag("format", "output format: csv or json", "csv").(string)
	c.out = params.Flag("out", "output path (default stdout)", "").(string)
	c.paths = params.Flag("paths", "annotate rows with scope paths", true,
		clingy.Transform(strconv.ParseBool), clingy.Boolean).(bool)
	c.setup(params)
}

func (c *cmdExportFlat) Execute(ctx context.Context) error {
	return c.run(ctx, func(prof *profile.Profile, window trace.TimeRange) (err error) {
		rows, err := flat.Rows(ctx, prof, c.gpu, window, c.paths)
		if err != nil {
			return err
		}

		out := clingy.Stdout(ctx)
		if c.out != "" {
			f, err := os.Create(c.out)
			if err != nil {
				return errs.Wrap(err)
			}
			defer func() { err = multierr.Append(err, f.Close()) }()
			out = f
		}

		switch c.format {
		case "csv":
			return flat.WriteCSV(out, rows)
		case "json":
			return flat.WriteJSON(out, rows)
		default:
			return errs.Errorf("unknown format %q", c.format)
		}
	})
}
