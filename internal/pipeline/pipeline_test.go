package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kothari1/NuFleet-AI-SOP/internal/config"
	"github.com/kothari1/NuFleet-AI-SOP/internal/gemini"
	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

const cannedResponse = `Title & Objective:
Pump Filter Replacement

Safety Warnings:
- Wear gloves
- Lock out power before opening the housing

Tools & Materials:
- 10mm wrench
- Replacement filter cartridge

Steps:
1. Shut off the pump and verify zero pressure
2. Remove the housing cover
3. Swap the filter cartridge and reseal

Process Flow:
` + "```mermaid\nflowchart TD\n    A[Shut off] --> B[Remove cover] --> C[Swap filter]\n```"

type stubClient struct {
	uploads   []string
	generated []*sop.Request
	response  string
	uploadErr error
	genErr    error
}

func (c *stubClient) UploadFile(ctx context.Context, path, mimeType string) (*gemini.FileInfo, error) {
	c.uploads = append(c.uploads, path)
	if c.uploadErr != nil {
		return nil, c.uploadErr
	}
	return &gemini.FileInfo{
		Name:     "files/stub",
		URI:      "https://generativelanguage.googleapis.com/v1beta/files/stub",
		State:    "ACTIVE",
		MIMEType: mimeType,
	}, nil
}

func (c *stubClient) Generate(ctx context.Context, req *sop.Request) (string, error) {
	c.generated = append(c.generated, req)
	if c.genErr != nil {
		return "", c.genErr
	}
	return c.response, nil
}

type stubSampler struct {
	snapshots   []time.Duration
	snapshotErr error
}

func (s *stubSampler) Probe(videoPath string) (*sop.VideoAsset, error) {
	return &sop.VideoAsset{
		Path:      videoPath,
		Duration:  90 * time.Second,
		FrameRate: 30,
		Width:     1920,
		Height:    1080,
	}, nil
}

func (s *stubSampler) Sample(ctx context.Context, asset *sop.VideoAsset, n int, dir string) (*sop.FramePlan, error) {
	plan := &sop.FramePlan{}
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", i))
		if err := os.WriteFile(path, fakeJPEG(), 0644); err != nil {
			return nil, err
		}
		plan.Frames = append(plan.Frames, sop.Frame{
			Timestamp: time.Duration(i+1) * 10 * time.Second,
			Path:      path,
		})
	}
	return plan, nil
}

func (s *stubSampler) SnapshotAt(ctx context.Context, asset *sop.VideoAsset, ts time.Duration, dir string, maxWidth int) (string, error) {
	s.snapshots = append(s.snapshots, ts)
	if s.snapshotErr != nil {
		return "", s.snapshotErr
	}
	return filepath.Join(dir, "snapshot.jpg"), nil
}

// fakeJPEG returns bytes with a JPEG magic number, enough for code that only
// reads paths.
func fakeJPEG() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.OutputDir = t.TempDir()
	cfg.MaxFrames = 3
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	client := &stubClient{response: cannedResponse}
	frames := &stubSampler{}
	proc := New(cfg, client, frames, testLogger())

	res, err := proc.Run(context.Background(), "/videos/pump_service.mp4", "older units have a second clamp")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "Pump Filter Replacement", res.Document.Title)
	assert.Len(t, res.Document.Steps, 3)
	assert.Len(t, res.Document.Warnings, 2)
	assert.Len(t, res.Document.Tools, 2)
	assert.Contains(t, res.Document.Flowchart, "flowchart TD")
	assert.Empty(t, res.RenderIssues)

	// Video uploaded by default, and the request carries its URI.
	require.Len(t, client.uploads, 1)
	require.Len(t, client.generated, 1)
	req := client.generated[0]
	assert.Contains(t, req.VideoFileURI, "files/stub")
	assert.Equal(t, "video/mp4", req.VideoMIMEType)
	assert.Len(t, req.Frames, 3)
	assert.Contains(t, req.Prompt, "older units have a second clamp")

	// All four artifacts land in the run directory.
	runDir := filepath.Join(cfg.OutputDir, "pump_service")
	assert.Equal(t, filepath.Join(runDir, "sop.md"), res.MarkdownPath)
	assert.Equal(t, filepath.Join(runDir, "sop.pdf"), res.PDFPath)
	for _, name := range []string{"sop.md", "sop.pdf", "response.txt", "run.json"} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoError(t, err, name)
	}

	md, err := os.ReadFile(res.MarkdownPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Pump Filter Replacement")
	assert.Contains(t, string(md), "Shut off the pump")

	pdf, err := os.ReadFile(res.PDFPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))

	raw, err := os.ReadFile(filepath.Join(runDir, "response.txt"))
	require.NoError(t, err)
	assert.Equal(t, cannedResponse, string(raw))
}

func TestRunSkipsUploadWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadVideo = false
	client := &stubClient{response: cannedResponse}
	proc := New(cfg, client, &stubSampler{}, testLogger())

	res, err := proc.Run(context.Background(), "/videos/pump.mp4", "")
	require.NoError(t, err)

	assert.Empty(t, client.uploads)
	assert.Empty(t, client.generated[0].VideoFileURI)
	assert.Len(t, res.Document.Steps, 3)
}

func TestRunSurfacesModelError(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadVideo = false
	client := &stubClient{genErr: sop.RequestErrorf("invalid API key")}
	proc := New(cfg, client, &stubSampler{}, testLogger())

	_, err := proc.Run(context.Background(), "/videos/pump.mp4", "")
	require.Error(t, err)
	assert.True(t, sop.IsKind(err, sop.KindRequest))
}

func TestRunSurfacesUploadError(t *testing.T) {
	cfg := testConfig(t)
	client := &stubClient{uploadErr: sop.TransientErrorf("upload timed out")}
	proc := New(cfg, client, &stubSampler{}, testLogger())

	_, err := proc.Run(context.Background(), "/videos/pump.mp4", "")
	require.Error(t, err)
	assert.True(t, sop.IsKind(err, sop.KindTransient))
	assert.Empty(t, client.generated)
}

func TestRunSnapshotFailureDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadVideo = false
	tagged := strings.Replace(cannedResponse,
		"1. Shut off the pump and verify zero pressure",
		"1. Shut off the pump [TIMESTAMP: 00:15] and verify zero pressure [TIMESTAMP: 00:15]", 1)
	client := &stubClient{response: tagged}
	frames := &stubSampler{snapshotErr: fmt.Errorf("ffmpeg exited 1")}
	proc := New(cfg, client, frames, testLogger())

	res, err := proc.Run(context.Background(), "/videos/pump.mp4", "")
	require.NoError(t, err)

	// One attempt per distinct timestamp, and the step keeps its text.
	assert.Equal(t, []time.Duration{15 * time.Second}, frames.snapshots)
	assert.Contains(t, res.Document.Steps[0].Text, "Shut off the pump")

	md, err := os.ReadFile(res.MarkdownPath)
	require.NoError(t, err)
	assert.NotContains(t, string(md), "snapshot")
}

func TestRunDiagramIssuesReported(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadVideo = false
	broken := strings.Replace(cannedResponse,
		"flowchart TD\n    A[Shut off] --> B[Remove cover] --> C[Swap filter]",
		"flowchart TD\n    A[Shut off --> B[Remove cover", 1)
	client := &stubClient{response: broken}
	proc := New(cfg, client, &stubSampler{}, testLogger())

	res, err := proc.Run(context.Background(), "/videos/pump.mp4", "")
	require.NoError(t, err)

	// Markdown and PDF both flag the same diagram; issues are deduped.
	require.Len(t, res.RenderIssues, 1)
	assert.Contains(t, res.RenderIssues[0], "unclosed")

	md, err := os.ReadFile(res.MarkdownPath)
	require.NoError(t, err)
	assert.NotContains(t, string(md), "```mermaid")
}

func TestResultString(t *testing.T) {
	res := &Result{
		RunID:        "abc-123",
		Document:     &sop.Document{Steps: make([]sop.Step, 3)},
		MarkdownPath: "/out/pump/sop.md",
		PDFPath:      "/out/pump/sop.pdf",
	}
	assert.Equal(t, "run abc-123: 3 steps -> /out/pump/sop.md, /out/pump/sop.pdf", res.String())
}

func TestVideoMIMEType(t *testing.T) {
	assert.Equal(t, "video/mp4", videoMIMEType("a.mp4"))
	assert.Equal(t, "video/quicktime", videoMIMEType("b.MOV"))
	assert.Equal(t, "video/x-matroska", videoMIMEType("c.mkv"))
	assert.Equal(t, "video/webm", videoMIMEType("d.webm"))
	assert.Equal(t, "video/mp4", videoMIMEType("noext"))
}
