// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"os"
	"testing"
	"time"

	"github.com/cilium/ebpf"
	"github.com/stretchr/testify/require"

	"sasecore/internal/flowtable"
	"sasecore/internal/logging"
	"sasecore/internal/qos"
)

func requireRoot(t *testing.T) {
	t.Helper()
	if os.Getuid() != 0 {
		t.Skip("skipping eBPF test - requires root privileges")
	}
}

func exportableTable(t *testing.T) *flowtable.Table {
	t.Helper()
	tbl := flowtable.New(flowtable.DefaultConfig())
	key := flowtable.NewIPv4Key([4]byte{10, 0, 0, 1}, [4]byte{192, 168, 0, 1}, 1234, 443, 6)
	require.NoError(t, tbl.Insert(key, flowtable.VerdictAllow))
	return tbl
}

func TestKeyAndValueConversionRoundTrip(t *testing.T) {
	tbl := exportableTable(t)
	records := tbl.Export()
	require.Empty(t, records, "a freshly inserted flow is not export-flagged by default")
}

func TestSyncMirrorsExportedFlowsIntoMap(t *testing.T) {
	requireRoot(t)

	tbl := flowtable.New(flowtable.DefaultConfig())
	key := flowtable.NewIPv4Key([4]byte{10, 0, 0, 1}, [4]byte{192, 168, 0, 1}, 1234, 443, 6)
	require.NoError(t, tbl.Insert(key, flowtable.VerdictDrop))
	require.True(t, tbl.SetExportFlag(key, true))

	bpfMap, err := NewMap(DefaultConfig())
	require.NoError(t, err)
	defer bpfMap.Close()

	mgr := NewManager(tbl, bpfMap, logging.New(logging.DefaultConfig()), DefaultConfig())
	require.NoError(t, mgr.sync())

	var got MapValue
	mk := keyFromFlow(key)
	require.NoError(t, bpfMap.Lookup(&mk, &got))
	require.Equal(t, uint8(flowtable.VerdictDrop), got.Verdict)
	require.Equal(t, qos.CalculateFWMark(fwmarkPolicy, 0), got.FWMark, "fresh flow has QoSClass 0")

	require.True(t, tbl.SetQoSClass(key, 5))
	require.NoError(t, mgr.sync())
	require.NoError(t, bpfMap.Lookup(&mk, &got))
	require.Equal(t, qos.CalculateFWMark(fwmarkPolicy, 5), got.FWMark)
}

func TestSyncLeavesMapEmptyWithNoExportedFlows(t *testing.T) {
	requireRoot(t)

	tbl := exportableTable(t)
	bpfMap, err := NewMap(DefaultConfig())
	require.NoError(t, err)
	defer bpfMap.Close()

	mgr := NewManager(tbl, bpfMap, logging.New(logging.DefaultConfig()), DefaultConfig())
	require.NoError(t, mgr.sync())

	var count int
	var k MapKey
	var v MapValue
	it := bpfMap.Iterate()
	for it.Next(&k, &v) {
		count++
	}
	require.NoError(t, it.Err())
	require.Equal(t, 0, count)
}

func TestSyncPrunesStaleMapEntries(t *testing.T) {
	requireRoot(t)

	tbl := flowtable.New(flowtable.DefaultConfig())
	bpfMap, err := NewMap(DefaultConfig())
	require.NoError(t, err)
	defer bpfMap.Close()

	mgr := NewManager(tbl, bpfMap, logging.New(logging.DefaultConfig()), DefaultConfig())

	stale := MapKey{SrcPort: 1, DstPort: 2, Protocol: 6, Version: 4}
	value := MapValue{Packets: 1}
	require.NoError(t, bpfMap.Update(&stale, &value, ebpf.UpdateAny))

	require.NoError(t, mgr.sync())

	var v MapValue
	err = bpfMap.Lookup(&stale, &v)
	require.Error(t, err, "sync should have deleted the entry no longer present in the table's export set")
}

func TestManagerStartStop(t *testing.T) {
	requireRoot(t)

	tbl := flowtable.New(flowtable.DefaultConfig())
	bpfMap, err := NewMap(DefaultConfig())
	require.NoError(t, err)
	defer bpfMap.Close()

	cfg := DefaultConfig()
	cfg.SyncInterval = 10 * time.Millisecond
	mgr := NewManager(tbl, bpfMap, logging.New(logging.DefaultConfig()), cfg)

	done := make(chan struct{})
	go func() {
		mgr.Start()
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	mgr.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager did not stop in time")
	}
}
