package sysinfo

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	h := Detect(context.Background())

	assert.Equal(t, runtime.GOOS, h.OS)
	assert.Equal(t, runtime.GOARCH, h.Arch)
	assert.Positive(t, h.CPUThreads)
	assert.NotEmpty(t, h.CPUModel)
}

func TestDetectCancelledContextStillFillsRuntimeFields(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := Detect(ctx)
	assert.Equal(t, runtime.GOOS, h.OS)
	assert.Positive(t, h.CPUThreads)
}

func TestFormatRAM(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{16 << 30, "16.0 GiB"},
		{3 << 40, "3.0 TiB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRAM(tt.in))
		})
	}
}

func TestRows(t *testing.T) {
	rows := Host{Hostname: "box", CPUThreads: 8, RAMTotalBytes: 8 << 30}.Rows()
	assert.Len(t, rows, 7)
	assert.Equal(t, []string{"Hostname", "box"}, rows[0])
	assert.Equal(t, []string{"RAM", "8.0 GiB"}, rows[6])
}
