package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/toolhub/internal/catalog/catalogtest"
	"github.com/omeyang/toolhub/internal/catalog/sqlite"
)

// writeConfig 生成使用临时 SQLite 与种子数据的配置文件
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	tools, cats := catalogtest.Fixture()
	seed, err := json.Marshal(sqlite.SeedData{Tools: tools, Categories: cats})
	require.NoError(t, err)
	seedPath := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seedPath, seed, 0o600))

	cfg := strings.Join([]string{
		"site:",
		"  base_url: https://toolhub.example/",
		"store:",
		"  driver: sqlite",
		"  sqlite:",
		"    path: " + filepath.Join(dir, "toolhub.db"),
		"    seed_file: " + seedPath,
		"log:",
		"  level: error",
		"telemetry:",
		"  enabled: false",
		"",
	}, "\n")
	path := filepath.Join(dir, "toolhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := createApp()
	cmd.Writer = &out
	err := cmd.Run(context.Background(), append([]string{"toolhub"}, args...))
	return out.String(), err
}

func TestRobotsCommand(t *testing.T) {
	out, err := runApp(t, "-c", writeConfig(t), "robots")
	require.NoError(t, err)
	assert.Contains(t, out, "User-agent: GPTBot\nDisallow: /")
	assert.Contains(t, out, "Sitemap: https://toolhub.example/sitemap.xml\n")
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "toolhub "+versionString()+"\n", out)
}

func TestSitemapCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runApp(t, "-c", cfg, "sitemap")
	require.NoError(t, err)
	assert.Contains(t, out, "<loc>https://toolhub.example/ai/writebot</loc>")

	target := filepath.Join(t.TempDir(), "sitemap.xml")
	out, err = runApp(t, "-c", cfg, "sitemap", "-o", target)
	require.NoError(t, err)
	assert.Empty(t, out)
	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<urlset")
}

func TestWarmCommand(t *testing.T) {
	out, err := runApp(t, "-c", writeConfig(t), "warm")
	require.NoError(t, err)

	var res warmResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Positive(t, res.Report.Requested)
	assert.Equal(t, res.Report.Requested, res.Report.Loaded+res.Report.Skipped)
	assert.Zero(t, res.Report.Failed)
	assert.Positive(t, res.Cache.Len)
}

func TestRunExitCodes(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 0, run(ctx, []string{"toolhub", "-c", writeConfig(t), "robots"}))
	assert.Equal(t, 2, run(ctx, []string{"toolhub", "robots", "extra"}))
	assert.Equal(t, 1, run(ctx, []string{"toolhub", "-c", filepath.Join(t.TempDir(), "missing.yaml"), "robots"}))
}

func TestIsCLIUsageError(t *testing.T) {
	assert.True(t, isCLIUsageError(assertErr("flag provided but not defined: -x")))
	assert.False(t, isCLIUsageError(assertErr("connection refused")))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
