// Package sampler probes the input video and pulls a bounded set of frames
// out of it with ffmpeg.
package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

// Probe opens the video with ffprobe and returns its metadata. Anything that
// prevents decoding (missing file, unreadable container, zero duration) is a
// decode error, fatal to the request.
func Probe(videoPath string) (*sop.VideoAsset, error) {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return nil, sop.DecodeErrorf("video file does not exist at path %q", videoPath)
	}

	raw, err := ffmpeg.Probe(videoPath)
	if err != nil {
		return nil, &sop.Error{Kind: sop.KindDecode, Message: fmt.Sprintf("ffprobe failed for %q", videoPath), Err: err}
	}

	asset, err := parseProbe([]byte(raw))
	if err != nil {
		return nil, err
	}
	asset.Path = videoPath
	return asset, nil
}

// probeOutput mirrors the pieces of ffprobe's JSON we care about.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		RFrameRate string `json:"r_frame_rate"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
	} `json:"streams"`
}

func parseProbe(raw []byte) (*sop.VideoAsset, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &sop.Error{Kind: sop.KindDecode, Message: "unreadable ffprobe output", Err: err}
	}

	seconds, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil || seconds <= 0 {
		return nil, sop.DecodeErrorf("video has no usable duration (%q)", out.Format.Duration)
	}

	asset := &sop.VideoAsset{Duration: time.Duration(seconds * float64(time.Second))}
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		asset.Width = s.Width
		asset.Height = s.Height
		asset.FrameRate = parseFrameRate(s.RFrameRate)
		break
	}
	return asset, nil
}

// parseFrameRate handles ffprobe's rational "30/1" form.
func parseFrameRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		f, _ := strconv.ParseFloat(r, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// Plan returns n evenly spaced timestamps across duration. Each timestamp is
// the midpoint of its interval, so the first and last frames stay clear of
// the container edges. Timestamps are strictly increasing.
func Plan(duration time.Duration, n int) ([]time.Duration, error) {
	if n < 1 {
		return nil, fmt.Errorf("frame count must be at least 1, got %d", n)
	}
	step := duration / time.Duration(n)
	if step <= 0 {
		return nil, sop.DecodeErrorf("video too short to sample %d frames", n)
	}

	timestamps := make([]time.Duration, n)
	for i := 0; i < n; i++ {
		timestamps[i] = step/2 + time.Duration(i)*step
	}
	return timestamps, nil
}

// Sample decodes the frame nearest each planned timestamp into dir and
// returns the resulting plan.
func Sample(ctx context.Context, asset *sop.VideoAsset, n int, dir string) (*sop.FramePlan, error) {
	timestamps, err := Plan(asset.Duration, n)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create frame directory %q: %w", dir, err)
	}

	plan := &sop.FramePlan{}
	for i, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		framePath := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", i+1))
		if err := extractFrame(asset.Path, ts, framePath, 0); err != nil {
			return nil, err
		}
		plan.Frames = append(plan.Frames, sop.Frame{Timestamp: ts, Path: framePath})
	}

	if err := plan.Validate(n); err != nil {
		return nil, err
	}
	return plan, nil
}

// SnapshotAt decodes a single frame at the given timestamp, scaled down to
// maxWidth, for embedding in the rendered document. A timestamp past the end
// of the video is a decode error.
func SnapshotAt(ctx context.Context, asset *sop.VideoAsset, ts time.Duration, dir string, maxWidth int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ts < 0 || ts > asset.Duration {
		return "", sop.DecodeErrorf("timestamp %s outside video duration %s", sop.FormatTimecode(ts), asset.Duration)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot directory %q: %w", dir, err)
	}

	snapPath := filepath.Join(dir, fmt.Sprintf("snapshot_%s.jpg", strings.ReplaceAll(sop.FormatTimecode(ts), ":", "-")))
	if err := extractFrame(asset.Path, ts, snapPath, maxWidth); err != nil {
		return "", err
	}
	return snapPath, nil
}

// extractFrame seeks to ts and writes one JPEG. maxWidth > 0 adds a
// downscale filter; height follows the aspect ratio.
func extractFrame(videoPath string, ts time.Duration, outPath string, maxWidth int) error {
	outArgs := ffmpeg.KwArgs{
		"vframes": 1,
		"q:v":     2,
	}
	if maxWidth > 0 {
		outArgs["vf"] = fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)
	}

	err := ffmpeg.Input(videoPath, ffmpeg.KwArgs{"ss": fmt.Sprintf("%.3f", ts.Seconds())}).
		Output(outPath, outArgs).
		OverWriteOutput().
		Run()
	if err != nil {
		return &sop.Error{
			Kind:    sop.KindDecode,
			Message: fmt.Sprintf("failed to decode frame at %s from %q", sop.FormatTimecode(ts), videoPath),
			Err:     err,
		}
	}
	return nil
}
