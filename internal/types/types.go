package types

// VideoAsset describes a probed source video.
type VideoAsset struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	HasAudio bool    `json:"has_audio"`
}

type Transcript struct {
	Language string          `json:"language"`
	Text     string          `json:"text"`
	Segments []TranscriptCue `json:"segments"`
}

// TranscriptCue is a timestamped span of spoken text, in seconds from the
// start of the source video.
type TranscriptCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// RawCandidate is a candidate window as returned by the analysis
// collaborator, before validation. Timing fields are optional on the wire.
type RawCandidate struct {
	StartTime       *float64 `json:"start_time"`
	EndTime         *float64 `json:"end_time"`
	Duration        *float64 `json:"duration"`
	Topic           string   `json:"topic"`
	Hook            string   `json:"hook"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	EngagementScore float64  `json:"engagement_score"`
	ContentType     string   `json:"content_type"`
	NaturalBoundary string   `json:"natural_boundary"`
}

type SegmentSource string

const (
	SourceAnalysis SegmentSource = "analysis"
	SourceFallback SegmentSource = "fallback"
)

// CandidateSegment is a validated output window.
type CandidateSegment struct {
	StartTime       float64       `json:"start_time"`
	EndTime         float64       `json:"end_time"`
	Duration        float64       `json:"duration"`
	Title           string        `json:"title"`
	Topic           string        `json:"topic"`
	Hook            string        `json:"hook"`
	Description     string        `json:"description"`
	EngagementScore float64       `json:"engagement_score"`
	ContentType     string        `json:"content_type"`
	NaturalBoundary string        `json:"natural_boundary,omitempty"`
	Source          SegmentSource `json:"source"`
}

// SubtitleCue is a cue relative to the start of the segment it belongs to.
type SubtitleCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type OutputArtifact struct {
	Filename string  `json:"filename"`
	Path     string  `json:"path"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Topic    string  `json:"topic"`
	Size     int64   `json:"byte_size"`
}

// GenerationResult is the batch result surface. Success means the batch ran
// to the end; individual segment failures are listed in Errors.
type GenerationResult struct {
	Success       bool             `json:"success"`
	ShortsCreated int              `json:"shorts_created"`
	OutputFiles   []OutputArtifact `json:"output_files"`
	Errors        []string         `json:"errors"`
}

type Manifest struct {
	Input          string          `json:"input"`
	Language       string          `json:"language"`
	SegmentSource  SegmentSource   `json:"segment_source"`
	Shorts         []ManifestShort `json:"shorts"`
	Errors         []string        `json:"errors,omitempty"`
	PublishedKeys  []string        `json:"published_keys,omitempty"`
	GeneratedAtUTC string          `json:"generated_at_utc"`
}

// ManifestShort describes one written short. InfoScore, HookScore and PaceWPM
// are speech heuristics over its captions and are informational only.
// Degraded is set when the captions or encode step fell back to a later
// strategy.
type ManifestShort struct {
	Index           int            `json:"index"`
	File            string         `json:"file"`
	Title           string         `json:"title"`
	Topic           string         `json:"topic"`
	StartSec        float64        `json:"start_sec"`
	EndSec          float64        `json:"end_sec"`
	EngagementScore float64        `json:"engagement_score"`
	InfoScore       float64        `json:"info_score"`
	HookScore       float64        `json:"hook_score"`
	PaceWPM         float64        `json:"pace_wpm"`
	Subtitles       int            `json:"subtitles"`
	SubtitleBackend string         `json:"subtitle_backend"`
	EncodeProfile   string         `json:"encode_profile"`
	Degraded        bool           `json:"degraded"`
	Crop            string         `json:"crop"`
	ReframeFrames   map[string]int `json:"reframe_frames"`
	Bytes           int64          `json:"bytes"`
}
