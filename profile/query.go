package profile

import (
	"context"
	"strconv"
	"strings"

	"github.com/zeebo/errs/v2"

	"github.com/GindaChen/nsys-ai/trace"
)

// Window bounds are inclusive on both ends in every query below, to
// stay byte-compatible with the exports the original queries produce.

// Kernels returns all kernels on a device inside the window, ordered
// by start.
func (p *Profile) Kernels(ctx context.Context, device int64, window trace.TimeRange) ([]trace.KernelEvent, error) {
	if err := validateWindow(window); err != nil {
		return nil, err
	}
	if !p.knownDevice(device) {
		return nil, errs.Errorf("unknown device %d", device)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT k.start, k.[end], k.streamId, k.correlationId, s.value
		FROM CUPTI_ACTIVITY_KIND_KERNEL k
		JOIN StringIds s ON k.shortName = s.id
		WHERE k.deviceId = ? AND k.start >= ? AND k.[end] <= ?
		ORDER BY k.start`,
		device, int64(window.Start), int64(window.Finish))
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer rows.Close()

	var kernels []trace.KernelEvent
	for rows.Next() {
		k := trace.KernelEvent{Device: device}
		if err := rows.Scan(&k.Start, &k.Finish, &k.Stream, &k.Correlation, &k.Name); err != nil {
			return nil, errs.Wrap(err)
		}
		kernels = append(kernels, k)
	}
	return kernels, errs.Wrap(rows.Err())
}

// KernelMap returns correlation id -> kernel for every kernel on the
// device, unfiltered by window.
func (p *Profile) KernelMap(ctx context.Context, device int64) (map[int64]trace.KernelEvent, error) {
	if !p.knownDevice(device) {
		return nil, errs.Errorf("unknown device %d", device)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT k.start, k.[end], k.streamId, k.correlationId, s.value, d.value
		FROM CUPTI_ACTIVITY_KIND_KERNEL k
		JOIN StringIds s ON k.shortName = s.id
		JOIN StringIds d ON k.demangledName = d.id
		WHERE k.deviceId = ?
		ORDER BY k.start`, device)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer rows.Close()

	kmap := make(map[int64]trace.KernelEvent)
	for rows.Next() {
		k := trace.KernelEvent{Device: device}
		if err := rows.Scan(&k.Start, &k.Finish, &k.Stream, &k.Correlation, &k.Name, &k.Demangled); err != nil {
			return nil, errs.Wrap(err)
		}
		kmap[k.Correlation] = k
	}
	return kmap, errs.Wrap(rows.Err())
}

// LaunchThreads returns every CPU thread that launched at least one
// kernel onto the device.
func (p *Profile) LaunchThreads(ctx context.Context, device int64) ([]int64, error) {
	if !p.knownDevice(device) {
		return nil, errs.Errorf("unknown device %d", device)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT r.globalTid
		FROM CUPTI_ACTIVITY_KIND_RUNTIME r
		JOIN CUPTI_ACTIVITY_KIND_KERNEL k ON r.correlationId = k.correlationId
		WHERE k.deviceId = ?
		ORDER BY r.globalTid`, device)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer rows.Close()

	var threads []int64
	for rows.Next() {
		var tid int64
		if err := rows.Scan(&tid); err != nil {
			return nil, errs.Wrap(err)
		}
		threads = append(threads, tid)
	}
	return threads, errs.Wrap(rows.Err())
}

// Launches returns runtime launch calls for each thread inside the
// window, ordered by start.
func (p *Profile) Launches(ctx context.Context, threads []int64, window trace.TimeRange) (map[int64][]trace.LaunchCall, error) {
	if err := validateWindow(window); err != nil {
		return nil, err
	}

	index := make(map[int64][]trace.LaunchCall, len(threads))
	for _, tid := range threads {
		rows, err := p.db.QueryContext(ctx, `
			SELECT start, [end], correlationId FROM CUPTI_ACTIVITY_KIND_RUNTIME
			WHERE globalTid = ? AND start >= ? AND [end] <= ?
			ORDER BY start`,
			tid, int64(window.Start), int64(window.Finish))
		if err != nil {
			return nil, errs.Wrap(err)
		}
		for rows.Next() {
			call := trace.LaunchCall{Thread: tid}
			if err := rows.Scan(&call.Start, &call.Finish, &call.Correlation); err != nil {
				rows.Close()
				return nil, errs.Wrap(err)
			}
			index[tid] = append(index[tid], call)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, errs.Wrap(err)
		}
	}
	return index, nil
}

// Scopes returns annotation ranges for the threads whose start falls
// inside the window, ordered by start. Zero-length and unnamed ranges
// are excluded at the query.
func (p *Profile) Scopes(ctx context.Context, threads []int64, window trace.TimeRange) ([]trace.AnnotationRange, error) {
	if err := validateWindow(window); err != nil {
		return nil, err
	}
	if len(threads) == 0 || !contains(p.Meta.Tables, "NVTX_EVENTS") {
		return nil, nil
	}

	placeholders := make([]string, len(threads))
	args := make([]any, 0, len(threads)+2)
	args = append(args, int64(window.Start), int64(window.Finish))
	for i, tid := range threads {
		placeholders[i] = "?"
		args = append(args, tid)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT text, globalTid, start, [end] FROM NVTX_EVENTS
		WHERE text IS NOT NULL AND [end] > start
		  AND start >= ? AND start <= ?
		  AND globalTid IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY start`, args...)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer rows.Close()

	var scopes []trace.AnnotationRange
	for rows.Next() {
		var scope trace.AnnotationRange
		if err := rows.Scan(&scope.Text, &scope.Thread, &scope.Start, &scope.Finish); err != nil {
			return nil, errs.Wrap(err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, errs.Wrap(rows.Err())
}

// DeviceList formats the discovered devices for error messages.
func (p *Profile) DeviceList() string {
	parts := make([]string, len(p.Meta.Devices))
	for i, d := range p.Meta.Devices {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, ", ")
}
