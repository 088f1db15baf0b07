package exporter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/luongdev/rtcfeatures/pkg/features"
	"github.com/luongdev/rtcfeatures/pkg/stats"
	"github.com/luongdev/rtcfeatures/pkg/store"
)

func sampleResult() *store.Result {
	return &store.Result{
		DumpID:       "d1",
		ConnectionID: "PC_0",
		Records: []features.FeatureRecord{
			{Index: 0, Timestamp: 1000, Format: stats.FormatSafari, RTT: features.Some(100.0), IsUsingRelay: features.Some(false)},
			{Index: 1, Timestamp: 2000, Error: features.ErrUnknownFormat.Error()},
		},
	}
}

func TestJSONLExporter(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONLExporter(&buf)
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Export(context.Background(), sampleResult()))
	require.NoError(t, e.Stop(context.Background()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	first := gjson.Parse(lines[0])
	assert.Equal(t, "d1", first.Get("dumpId").String())
	assert.Equal(t, "PC_0", first.Get("connectionId").String())
	assert.Equal(t, "safari", first.Get("format").String())
	assert.Equal(t, 100.0, first.Get("rtt").Float())
	assert.False(t, first.Get("isUsingRelay").Bool())
	assert.Equal(t, gjson.Null, first.Get("outboundPacketLoss").Type)
	assert.False(t, first.Get("error").Exists())

	second := gjson.Parse(lines[1])
	assert.Equal(t, int64(1), second.Get("index").Int())
	assert.Equal(t, "unknown format", second.Get("error").String())
}

func TestStoreExporter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(time.Minute)
	e := NewStoreExporter(s, time.Minute)

	require.NoError(t, e.Export(ctx, sampleResult()))
	got, err := s.Get(ctx, "d1", "PC_0")
	require.NoError(t, err)
	assert.Len(t, got.Records, 2)
}

type failingExporter struct {
	startErr error
	stopped  bool
}

func (f *failingExporter) Name() string { return "failing" }

func (f *failingExporter) Export(context.Context, *store.Result) error {
	return errors.New("export failed")
}

func (f *failingExporter) Start(context.Context) error { return f.startErr }

func (f *failingExporter) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func TestMultiExporter(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	m := Multi(&failingExporter{}, NewJSONLExporter(&buf))

	require.NoError(t, m.Start(ctx))
	err := m.Export(ctx, sampleResult())
	assert.ErrorContains(t, err, "export failed")
	// the healthy exporter still received the result
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.NoError(t, m.Stop(ctx))
	assert.Equal(t, "multi", m.Name())
}

func TestMultiExporterStartRollback(t *testing.T) {
	ctx := context.Background()
	first := &failingExporter{}
	second := &failingExporter{startErr: errors.New("no sink")}

	err := Multi(first, second).Start(ctx)
	assert.ErrorContains(t, err, "no sink")
	assert.True(t, first.stopped)
	assert.False(t, second.stopped)
}
