package sop

import (
	"fmt"
	"time"
)

// VideoAsset holds the probed metadata for an input video. It is only valid
// for the lifetime of a single run.
type VideoAsset struct {
	Path      string
	Duration  time.Duration
	FrameRate float64
	Width     int
	Height    int
}

// Frame is one sampled frame: the timestamp it was taken at and the JPEG
// written to disk.
type Frame struct {
	Timestamp time.Duration `json:"timestamp"`
	Path      string        `json:"path"`
}

// FramePlan is an ordered set of sampled frames. Timestamps are strictly
// increasing and the count is bounded by the configured maximum.
type FramePlan struct {
	Frames []Frame
}

// Validate checks the plan invariants.
func (p *FramePlan) Validate(maxFrames int) error {
	if len(p.Frames) == 0 {
		return fmt.Errorf("frame plan is empty")
	}
	if maxFrames > 0 && len(p.Frames) > maxFrames {
		return fmt.Errorf("frame plan has %d frames, maximum is %d", len(p.Frames), maxFrames)
	}
	for i := 1; i < len(p.Frames); i++ {
		if p.Frames[i].Timestamp <= p.Frames[i-1].Timestamp {
			return fmt.Errorf("frame timestamps not strictly increasing at index %d", i)
		}
	}
	return nil
}

// Request is the immutable payload sent to the model: the assembled prompt,
// the sampled frames, and optionally a reference to the full video uploaded
// via the Files API.
type Request struct {
	Prompt        string
	Frames        []Frame
	VideoFileURI  string
	VideoMIMEType string
}

// Step is one instruction in the generated procedure. Timestamps reference
// moments in the source video that the model tagged for a snapshot. Diagram
// holds mermaid source when the model emitted one inside the step.
type Step struct {
	Text       string
	Timestamps []time.Duration
	Diagram    string
}

// Document is the structured SOP parsed from the model's raw text.
type Document struct {
	Title           string
	Steps           []Step
	Warnings        []string
	Tools           []string
	Troubleshooting []string
	Tips            []string

	// Flowchart is the document-level process flow mermaid source, if any.
	Flowchart string
}

// Empty reports whether parsing produced no content at all.
func (d *Document) Empty() bool {
	return len(d.Steps) == 0 && len(d.Warnings) == 0 && len(d.Tools) == 0 &&
		len(d.Troubleshooting) == 0 && len(d.Tips) == 0 && d.Flowchart == "" && d.Title == ""
}

// FormatTimecode renders a duration as MM:SS, or HH:MM:SS past the hour.
func FormatTimecode(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// ParseTimecode parses MM:SS or HH:MM:SS.
func ParseTimecode(tc string) (time.Duration, error) {
	var h, m, s int
	if _, err := fmt.Sscanf(tc, "%d:%d:%d", &h, &m, &s); err != nil {
		h = 0
		if _, err := fmt.Sscanf(tc, "%d:%d", &m, &s); err != nil {
			return 0, fmt.Errorf("invalid timecode %q", tc)
		}
	}
	if m > 59 || s > 59 || h < 0 || m < 0 || s < 0 {
		return 0, fmt.Errorf("invalid timecode %q", tc)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, nil
}
