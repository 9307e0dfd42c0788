package xrotate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/toolhub/pkg/observability/xrotate"
)

func TestNewLumberjack_Validation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.log")

	tests := []struct {
		name string
		file string
		opts []xrotate.Option
		want error
	}{
		{"空文件名", "", nil, xrotate.ErrEmptyFilename},
		{"大小为 0", file, []xrotate.Option{xrotate.WithMaxSize(0)}, xrotate.ErrInvalidMaxSize},
		{"大小超限", file, []xrotate.Option{xrotate.WithMaxSize(20000)}, xrotate.ErrInvalidMaxSize},
		{"备份数为负", file, []xrotate.Option{xrotate.WithMaxBackups(-1)}, xrotate.ErrInvalidMaxBackups},
		{"天数为负", file, []xrotate.Option{xrotate.WithMaxAge(-1)}, xrotate.ErrInvalidMaxAge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := xrotate.NewLumberjack(tt.file, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLumberjack_WriteRotateClose(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nested", "app.log")

	r, err := xrotate.NewLumberjack(file,
		xrotate.WithMaxSize(1),
		xrotate.WithMaxBackups(2),
		xrotate.WithCompress(false),
		xrotate.WithLocalTime(true),
	)
	require.NoError(t, err)

	n, err := r.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	require.NoError(t, r.Rotate())
	entries, err := os.ReadDir(filepath.Dir(file))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "轮转后应有当前文件和一个备份")

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Close(), xrotate.ErrClosed)
	_, err = r.Write([]byte("x"))
	assert.ErrorIs(t, err, xrotate.ErrClosed)
	assert.ErrorIs(t, r.Rotate(), xrotate.ErrClosed)
}
