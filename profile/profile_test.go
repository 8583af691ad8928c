package profile

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/GindaChen/nsys-ai/trace"
)

// writeFixture builds a tiny Nsight-shaped export: two kernels on
// device 0, one on device 1, launched from two threads, with nested
// annotations on thread 100.
func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.sqlite")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE StringIds (id INTEGER PRIMARY KEY, value TEXT)`,
		`CREATE TABLE CUPTI_ACTIVITY_KIND_KERNEL (
			start INTEGER, [end] INTEGER, deviceId INTEGER, streamId INTEGER,
			correlationId INTEGER, shortName INTEGER, demangledName INTEGER)`,
		`CREATE TABLE CUPTI_ACTIVITY_KIND_RUNTIME (
			start INTEGER, [end] INTEGER, correlationId INTEGER, globalTid INTEGER)`,
		`CREATE TABLE NVTX_EVENTS (
			text TEXT, globalTid INTEGER, start INTEGER, [end] INTEGER)`,

		`INSERT INTO StringIds VALUES (1, 'gemm'), (2, 'ncclAllReduce_sum'),
			(3, 'void gemm<float>(float*)'), (4, 'ncclAllReduce(sum)')`,

		`INSERT INTO CUPTI_ACTIVITY_KIND_KERNEL VALUES
			(1000, 1100, 0, 21, 11, 1, 3),
			(1200, 1400, 0, 56, 12, 2, 4),
			(1000, 1050, 1, 21, 13, 1, 3)`,

		`INSERT INTO CUPTI_ACTIVITY_KIND_RUNTIME VALUES
			(100, 110, 11, 100),
			(120, 130, 12, 100),
			(100, 110, 13, 200)`,

		`INSERT INTO NVTX_EVENTS VALUES
			('step', 100, 90, 200),
			('forward', 100, 95, 150),
			(NULL, 100, 96, 97),
			('empty', 100, 98, 98)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%v: %s", err, stmt)
		}
	}
	return path
}

func openFixture(t *testing.T) *Profile {
	t.Helper()
	prof, err := Open(context.Background(), writeFixture(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { prof.Close() })
	return prof
}

func TestDiscover(t *testing.T) {
	prof := openFixture(t)

	meta := prof.Meta
	if len(meta.Devices) != 2 || meta.Devices[0] != 0 || meta.Devices[1] != 1 {
		t.Errorf("Devices = %v, want [0 1]", meta.Devices)
	}
	if meta.KernelCount != 3 || meta.AnnotationCount != 4 {
		t.Errorf("counts = %d/%d, want 3/4", meta.KernelCount, meta.AnnotationCount)
	}
	if meta.TimeRange != (trace.TimeRange{Start: 1000, Finish: 1400}) {
		t.Errorf("TimeRange = %+v, want [1000,1400]", meta.TimeRange)
	}
	if streams := meta.Streams[0]; len(streams) != 2 || streams[0] != 21 || streams[1] != 56 {
		t.Errorf("device 0 streams = %v, want [21 56]", streams)
	}
	if info := meta.GPUs[0]; info.KernelCount != 2 {
		t.Errorf("device 0 kernel count = %d, want 2", info.KernelCount)
	}
}

func TestKernels(t *testing.T) {
	ctx := context.Background()
	prof := openFixture(t)

	kernels, err := prof.Kernels(ctx, 0, trace.EntireTrace)
	if err != nil {
		t.Fatal(err)
	}
	if len(kernels) != 2 {
		t.Fatalf("got %d kernels, want 2", len(kernels))
	}
	if kernels[0].Name != "gemm" || kernels[0].Stream != 21 || kernels[0].Correlation != 11 {
		t.Errorf("kernels[0] = %+v", kernels[0])
	}
	if kernels[1].TimeRange != (trace.TimeRange{Start: 1200, Finish: 1400}) {
		t.Errorf("kernels[1] range = %+v, want [1200,1400]", kernels[1].TimeRange)
	}

	// Window bounds are inclusive and require full containment.
	trimmed, err := prof.Kernels(ctx, 0, trace.TimeRange{Start: 1000, Finish: 1100})
	if err != nil {
		t.Fatal(err)
	}
	if len(trimmed) != 1 || trimmed[0].Name != "gemm" {
		t.Errorf("trimmed = %+v, want only gemm", trimmed)
	}
}

func TestKernelMap(t *testing.T) {
	prof := openFixture(t)

	kmap, err := prof.KernelMap(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(kmap) != 2 {
		t.Fatalf("got %d entries, want 2", len(kmap))
	}
	if kmap[11].Demangled != "void gemm<float>(float*)" {
		t.Errorf("demangled = %q", kmap[11].Demangled)
	}
	if _, ok := kmap[13]; ok {
		t.Error("device 1 kernel leaked into device 0 map")
	}
}

func TestLaunchThreads(t *testing.T) {
	prof := openFixture(t)

	threads, err := prof.LaunchThreads(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 || threads[0] != 100 {
		t.Errorf("threads = %v, want [100]", threads)
	}
}

func TestLaunchesAndScopes(t *testing.T) {
	ctx := context.Background()
	prof := openFixture(t)

	launches, err := prof.Launches(ctx, []int64{100}, trace.EntireTrace)
	if err != nil {
		t.Fatal(err)
	}
	if len(launches[100]) != 2 {
		t.Fatalf("got %d launches, want 2", len(launches[100]))
	}
	if launches[100][0].Correlation != 11 || launches[100][1].Correlation != 12 {
		t.Errorf("launches = %+v", launches[100])
	}

	scopes, err := prof.Scopes(ctx, []int64{100}, trace.EntireTrace)
	if err != nil {
		t.Fatal(err)
	}
	// NULL text and zero-length ranges are filtered by the query.
	if len(scopes) != 2 {
		t.Fatalf("got %d scopes, want 2", len(scopes))
	}
	if scopes[0].Text != "step" || scopes[1].Text != "forward" {
		t.Errorf("scopes = %+v", scopes)
	}
}

func TestParameterErrors(t *testing.T) {
	ctx := context.Background()
	prof := openFixture(t)

	if _, err := prof.Kernels(ctx, 0, trace.TimeRange{Start: 10, Finish: 5}); err == nil {
		t.Error("malformed window must be rejected")
	}
	if _, err := prof.Kernels(ctx, 42, trace.EntireTrace); err == nil {
		t.Error("unknown device must be rejected")
	}
	if _, err := prof.KernelMap(ctx, 42); err == nil {
		t.Error("unknown device must be rejected in KernelMap")
	}
}

func TestOpenNotAProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE unrelated (x INTEGER)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := Open(context.Background(), path); err == nil {
		t.Error("expected an error for a database without kernel tables")
	}
}
