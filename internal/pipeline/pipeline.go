// Package pipeline drives one video through the linear flow: probe, sample
// frames, build the prompt, call the model, parse, render, store artifacts.
// One invocation, one video, no state shared across runs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kothari1/NuFleet-AI-SOP/internal/config"
	"github.com/kothari1/NuFleet-AI-SOP/internal/gemini"
	"github.com/kothari1/NuFleet-AI-SOP/internal/parser"
	"github.com/kothari1/NuFleet-AI-SOP/internal/prompt"
	"github.com/kothari1/NuFleet-AI-SOP/internal/render"
	"github.com/kothari1/NuFleet-AI-SOP/internal/sampler"
	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
	"github.com/kothari1/NuFleet-AI-SOP/internal/storage"
)

// ModelClient is the adapter contract toward the hosted model.
type ModelClient interface {
	UploadFile(ctx context.Context, path, mimeType string) (*gemini.FileInfo, error)
	Generate(ctx context.Context, req *sop.Request) (string, error)
}

// FrameSampler abstracts the ffmpeg calls so the pipeline can be exercised
// without a video file.
type FrameSampler interface {
	Probe(videoPath string) (*sop.VideoAsset, error)
	Sample(ctx context.Context, asset *sop.VideoAsset, n int, dir string) (*sop.FramePlan, error)
	SnapshotAt(ctx context.Context, asset *sop.VideoAsset, ts time.Duration, dir string, maxWidth int) (string, error)
}

// FFmpegSampler is the production FrameSampler.
type FFmpegSampler struct{}

func (FFmpegSampler) Probe(videoPath string) (*sop.VideoAsset, error) {
	return sampler.Probe(videoPath)
}

func (FFmpegSampler) Sample(ctx context.Context, asset *sop.VideoAsset, n int, dir string) (*sop.FramePlan, error) {
	return sampler.Sample(ctx, asset, n, dir)
}

func (FFmpegSampler) SnapshotAt(ctx context.Context, asset *sop.VideoAsset, ts time.Duration, dir string, maxWidth int) (string, error) {
	return sampler.SnapshotAt(ctx, asset, ts, dir, maxWidth)
}

// Processor runs the pipeline.
type Processor struct {
	cfg    *config.Config
	client ModelClient
	frames FrameSampler
	parser *parser.Parser
	prompt prompt.Builder
	logger *slog.Logger
}

// New builds a processor. frames may be nil, in which case the ffmpeg
// sampler is used.
func New(cfg *config.Config, client ModelClient, frames FrameSampler, logger *slog.Logger) *Processor {
	if frames == nil {
		frames = FFmpegSampler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:    cfg,
		client: client,
		frames: frames,
		parser: parser.New(cfg.SectionHeadings),
		prompt: prompt.Builder{MaxBytes: cfg.MaxPromptBytes},
		logger: logger,
	}
}

// Result points at the run's artifacts.
type Result struct {
	RunID        string
	Document     *sop.Document
	MarkdownPath string
	PDFPath      string
	RenderIssues []string
}

// Run processes one video end to end. Decode and request errors abort and
// surface verbatim; render errors only cost individual diagrams.
func (p *Processor) Run(ctx context.Context, videoPath, userContext string) (*Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	p.logger.Info("processing video", "run", runID, "video", videoPath)

	asset, err := p.frames.Probe(videoPath)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("probed video", "duration", asset.Duration, "fps", asset.FrameRate)

	videoName := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	store, err := storage.NewStore(p.cfg.OutputDir, videoName)
	if err != nil {
		return nil, err
	}

	plan, err := p.frames.Sample(ctx, asset, p.cfg.MaxFrames, store.FramesDir())
	if err != nil {
		return nil, err
	}
	p.logger.Info("sampled frames", "count", len(plan.Frames))

	req := &sop.Request{
		Prompt: p.prompt.Build(userContext),
		Frames: plan.Frames,
	}

	if p.cfg.UploadVideo {
		mime := videoMIMEType(videoPath)
		info, err := p.client.UploadFile(ctx, videoPath, mime)
		if err != nil {
			return nil, err
		}
		req.VideoFileURI = info.URI
		req.VideoMIMEType = mime
		p.logger.Info("uploaded video", "uri", info.URI)
	}

	raw, err := p.client.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := store.SaveRawResponse(raw); err != nil {
		p.logger.Warn("could not save raw response", "error", err)
	}

	doc := p.parser.Parse(raw)
	p.logger.Info("parsed response",
		"steps", len(doc.Steps), "warnings", len(doc.Warnings), "tools", len(doc.Tools))

	renderer := &render.Renderer{
		Snapshots: p.resolveSnapshots(ctx, asset, doc, store.FramesDir()),
		BaseDir:   store.Dir(),
		Logger:    p.logger,
	}

	md, mdIssues := renderer.Markdown(doc)
	mdPath, err := store.SaveMarkdown(md)
	if err != nil {
		return nil, err
	}

	pdfIssues, err := renderer.PDF(doc, store.PDFPath())
	if err != nil {
		return nil, err
	}

	issues := mergeIssues(mdIssues, pdfIssues)
	info := storage.RunInfo{
		ID:           runID,
		Model:        p.cfg.Model,
		VideoPath:    videoPath,
		VideoLength:  asset.Duration,
		Frames:       len(plan.Frames),
		Started:      started,
		Finished:     time.Now(),
		RenderIssues: issues,
	}
	if err := store.SaveRunInfo(info); err != nil {
		p.logger.Warn("could not save run info", "error", err)
	}

	return &Result{
		RunID:        runID,
		Document:     doc,
		MarkdownPath: mdPath,
		PDFPath:      store.PDFPath(),
		RenderIssues: issues,
	}, nil
}

// resolveSnapshots extracts one frame per distinct timestamp the model
// tagged. Each timestamp is attempted exactly once; a snapshot that cannot
// be decoded is skipped and the step keeps its text.
func (p *Processor) resolveSnapshots(ctx context.Context, asset *sop.VideoAsset, doc *sop.Document, dir string) map[time.Duration]string {
	snapshots := make(map[time.Duration]string)
	attempted := make(map[time.Duration]bool)
	for _, step := range doc.Steps {
		for _, ts := range step.Timestamps {
			if attempted[ts] {
				continue
			}
			attempted[ts] = true
			path, err := p.frames.SnapshotAt(ctx, asset, ts, dir, p.cfg.SnapshotWidth)
			if err != nil {
				p.logger.Warn("skipping snapshot", "timestamp", sop.FormatTimecode(ts), "error", err)
				continue
			}
			snapshots[ts] = path
		}
	}
	return snapshots
}

// mergeIssues flattens and dedupes the render issues from both outputs,
// since both validate the same diagrams.
func mergeIssues(groups ...[]error) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, err := range group {
			msg := err.Error()
			if !seen[msg] {
				seen[msg] = true
				out = append(out, msg)
			}
		}
	}
	return out
}

func videoMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	case ".webm":
		return "video/webm"
	default:
		return "video/mp4"
	}
}

var _ ModelClient = (*gemini.Client)(nil)

// String gives run results a compact printable form for the CLI.
func (r *Result) String() string {
	return fmt.Sprintf("run %s: %d steps -> %s, %s", r.RunID, len(r.Document.Steps), r.MarkdownPath, r.PDFPath)
}
