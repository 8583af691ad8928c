// Package profile opens Nsight Systems SQLite exports and answers
// typed queries over them: kernels, launch calls, annotation scopes,
// and hardware metadata. The database is opened read-only and never
// written; concurrent readers are safe.
package profile

import (
	"context"
	"database/sql"

	"github.com/zeebo/errs/v2"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/GindaChen/nsys-ai/trace"
)

// GPUInfo is hardware metadata for one device.
type GPUInfo struct {
	Device      int64
	Name        string
	PCIBus      string
	SMCount     int64
	MemoryBytes int64
	KernelCount int64
	Streams     []int64
}

// Meta is what discovery finds in a profile.
type Meta struct {
	Devices         []int64
	Streams         map[int64][]int64
	TimeRange       trace.TimeRange
	KernelCount     int64
	AnnotationCount int64
	Tables          []string
	GPUs            map[int64]GPUInfo
}

// Profile is a handle to an opened export.
type Profile struct {
	Path string
	Meta Meta

	db *sql.DB
}

// Open opens an Nsight Systems SQLite export and discovers its
// metadata up front.
func Open(ctx context.Context, path string) (*Profile, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errs.Errorf("open profile %q: %w", path, err)
	}

	p := &Profile{Path: path, db: db}
	if err := p.discover(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return p, nil
}

func (p *Profile) Close() error {
	return p.db.Close()
}

func (p *Profile) discover(ctx context.Context) error {
	tables, err := p.tableNames(ctx)
	if err != nil {
		return err
	}
	p.Meta.Tables = tables
	if !contains(tables, "CUPTI_ACTIVITY_KIND_KERNEL") {
		return errs.Errorf("%q is not an Nsight Systems export: no kernel table", p.Path)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT deviceId, streamId FROM CUPTI_ACTIVITY_KIND_KERNEL
		 ORDER BY deviceId, streamId`)
	if err != nil {
		return errs.Wrap(err)
	}
	defer rows.Close()

	p.Meta.Streams = make(map[int64][]int64)
	for rows.Next() {
		var device, stream int64
		if err := rows.Scan(&device, &stream); err != nil {
			return errs.Wrap(err)
		}
		if _, seen := p.Meta.Streams[device]; !seen {
			p.Meta.Devices = append(p.Meta.Devices, device)
		}
		p.Meta.Streams[device] = append(p.Meta.Streams[device], stream)
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(err)
	}

	var start, finish sql.NullInt64
	err = p.db.QueryRowContext(ctx,
		`SELECT MIN(start), MAX([end]) FROM CUPTI_ACTIVITY_KIND_KERNEL`).
		Scan(&start, &finish)
	if err != nil {
		return errs.Wrap(err)
	}
	p.Meta.TimeRange = trace.TimeRange{
		Start:  trace.Time(start.Int64),
		Finish: trace.Time(finish.Int64),
	}

	err = p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM CUPTI_ACTIVITY_KIND_KERNEL`).
		Scan(&p.Meta.KernelCount)
	if err != nil {
		return errs.Wrap(err)
	}
	if contains(tables, "NVTX_EVENTS") {
		err = p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM NVTX_EVENTS`).
			Scan(&p.Meta.AnnotationCount)
		if err != nil {
			return errs.Wrap(err)
		}
	}

	return p.discoverGPUs(ctx, tables)
}

func (p *Profile) tableNames(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.Wrap(err)
		}
		tables = append(tables, name)
	}
	return tables, errs.Wrap(rows.Err())
}

func (p *Profile) discoverGPUs(ctx context.Context, tables []string) error {
	kcounts := make(map[int64]int64)
	rows, err := p.db.QueryContext(ctx,
		`SELECT deviceId, COUNT(*) FROM CUPTI_ACTIVITY_KIND_KERNEL GROUP BY deviceId`)
	if err != nil {
		return errs.Wrap(err)
	}
	for rows.Next() {
		var device, count int64
		if err := rows.Scan(&device, &count); err != nil {
			rows.Close()
			return errs.Wrap(err)
		}
		kcounts[device] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errs.Wrap(err)
	}

	hw := make(map[int64]GPUInfo)
	if contains(tables, "TARGET_INFO_GPU") && contains(tables, "TARGET_INFO_CUDA_DEVICE") {
		rows, err := p.db.QueryContext(ctx, `
			SELECT c.cudaId, IFNULL(g.name, ''), IFNULL(g.busLocation, ''),
			       IFNULL(g.smCount, 0), IFNULL(g.totalMemory, 0)
			FROM TARGET_INFO_GPU g
			JOIN TARGET_INFO_CUDA_DEVICE c ON g.id = c.gpuId
			GROUP BY c.cudaId`)
		if err != nil {
			return errs.Wrap(err)
		}
		for rows.Next() {
			var info GPUInfo
			err := rows.Scan(&info.Device, &info.Name, &info.PCIBus,
				&info.SMCount, &info.MemoryBytes)
			if err != nil {
				rows.Close()
				return errs.Wrap(err)
			}
			hw[info.Device] = info
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errs.Wrap(err)
		}
	}

	p.Meta.GPUs = make(map[int64]GPUInfo, len(p.Meta.Devices))
	for _, device := range p.Meta.Devices {
		info := hw[device]
		info.Device = device
		info.KernelCount = kcounts[device]
		info.Streams = p.Meta.Streams[device]
		p.Meta.GPUs[device] = info
	}
	return nil
}

func (p *Profile) knownDevice(device int64) bool {
	for _, d := range p.Meta.Devices {
		if d == device {
			return true
		}
	}
	return false
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// validateWindow rejects malformed windows before any query runs.
func validateWindow(w trace.TimeRange) error {
	if w.Finish < w.Start {
		return errs.Errorf("malformed time window: end %d before start %d", w.Finish, w.Start)
	}
	return nil
}
