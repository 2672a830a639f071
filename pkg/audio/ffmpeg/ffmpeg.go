// Package ffmpeg implements audio.Processor on top of the ffmpeg and ffprobe
// command line tools.
//
// Every write goes to a temporary file next to the requested output and is
// renamed into place only after ffmpeg exits cleanly, so a failed operation
// never leaves a partial file behind. Filter graphs are built by pure
// functions so tests can verify the exact arguments without invoking ffmpeg.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Unmesh28/voice-ad-sub002/pkg/audio"
)

// Runner executes an external command and returns its stdout and stderr.
// It exists so tests can intercept toolchain invocations.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return out.Bytes(), errBuf.Bytes(), err
}

// Option is a functional option for configuring the Processor.
type Option func(*Processor)

// WithFFmpegPath overrides the ffmpeg binary location.
func WithFFmpegPath(path string) Option {
	return func(p *Processor) { p.ffmpeg = path }
}

// WithFFprobePath overrides the ffprobe binary location.
func WithFFprobePath(path string) Option {
	return func(p *Processor) { p.ffprobe = path }
}

// WithRunner replaces the command runner. Used by tests.
func WithRunner(r Runner) Option {
	return func(p *Processor) { p.run = r }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(p *Processor) { p.log = log }
}

// Processor implements audio.Processor via ffmpeg child processes.
type Processor struct {
	ffmpeg  string
	ffprobe string
	run     Runner
	log     *slog.Logger
}

var _ audio.Processor = (*Processor)(nil)

// New creates a Processor with default binary names resolved from PATH.
func New(opts ...Option) *Processor {
	p := &Processor{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		run:     execRunner{},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// GetDuration probes the container duration in seconds.
func (p *Processor) GetDuration(ctx context.Context, path string) (float64, error) {
	out, stderr, err := p.run.Run(ctx, p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: probe %s: %w: %s", path, err, firstLine(stderr))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: probe %s: parse duration: %w", path, err)
	}
	return d, nil
}

// Trim writes path cut to duration seconds.
func (p *Processor) Trim(ctx context.Context, path string, duration float64, out string) error {
	return p.render(ctx, out, trimArgs(path, duration))
}

// trimArgs builds the argument list for a re-encoding trim. Stream copy is
// avoided: mp3 frame boundaries make it miss the 10 ms tolerance.
func trimArgs(path string, duration float64) []string {
	return []string{
		"-i", path,
		"-t", formatSeconds(duration),
		"-acodec", "libmp3lame", "-q:a", "2",
	}
}

// ExtendByLoop concatenates copies of the input with 50 ms crossfades until
// the target duration is covered, then trims to it.
func (p *Processor) ExtendByLoop(ctx context.Context, path string, duration float64, out string) error {
	src, err := p.GetDuration(ctx, path)
	if err != nil {
		return err
	}
	if src <= 0 {
		return fmt.Errorf("ffmpeg: loop %s: source has no duration", path)
	}
	copies := int(math.Ceil(duration / src))
	if copies < 1 {
		copies = 1
	}
	return p.render(ctx, out, loopArgs(path, copies, duration))
}

// loopCrossfade is the join length hiding the loop seam.
const loopCrossfade = 0.05

// loopArgs builds the argument list joining copies of path with acrossfade
// and trimming the chain to duration.
func loopArgs(path string, copies int, duration float64) []string {
	args := make([]string, 0, copies*2+6)
	for i := 0; i < copies; i++ {
		args = append(args, "-i", path)
	}

	var filter strings.Builder
	if copies == 1 {
		filter.WriteString("[0:a]atrim=duration=" + formatSeconds(duration) + "[out]")
	} else {
		prev := "[0:a]"
		for i := 1; i < copies; i++ {
			label := fmt.Sprintf("[x%d]", i)
			fmt.Fprintf(&filter, "%s[%d:a]acrossfade=d=%s:c1=tri:c2=tri%s;",
				prev, i, formatSeconds(loopCrossfade), label)
			prev = label
		}
		fmt.Fprintf(&filter, "%satrim=duration=%s[out]", prev, formatSeconds(duration))
	}

	return append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-acodec", "libmp3lame", "-q:a", "2",
	)
}

// stretchRatioSlack tolerates float error in requests computed as src divided
// by a clamp bound, which can land a hair outside the bound.
const stretchRatioSlack = 1e-9

// StretchToDuration time-scales path to duration using atempo (speed only, no
// pitch shift). Speed ratios outside the clamp fail with
// audio.ErrScalingRefused.
func (p *Processor) StretchToDuration(ctx context.Context, path string, duration float64, out string) error {
	src, err := p.GetDuration(ctx, path)
	if err != nil {
		return err
	}
	if src <= 0 || duration <= 0 {
		return fmt.Errorf("ffmpeg: stretch %s: non-positive duration", path)
	}
	ratio := src / duration
	if ratio < audio.StretchRatioMin-stretchRatioSlack || ratio > audio.StretchRatioMax+stretchRatioSlack {
		return fmt.Errorf("ffmpeg: stretch %s: ratio %.3f: %w", path, ratio, audio.ErrScalingRefused)
	}
	return p.render(ctx, out, stretchArgs(path, ratio))
}

// stretchArgs builds the atempo argument list. tempo is the playback speed
// factor (output duration = source / tempo).
func stretchArgs(path string, tempo float64) []string {
	return []string{
		"-i", path,
		"-filter:a", "atempo=" + formatRatio(tempo),
		"-acodec", "libmp3lame", "-q:a", "2",
	}
}

// ApplyVolumeCurve bakes the gain segments into the file. Segments must be
// ordered and non-overlapping; boundaries ramp over 20 ms.
func (p *Processor) ApplyVolumeCurve(ctx context.Context, path string, segments []audio.VolumeSegment, totalDuration float64, out string) error {
	if len(segments) == 0 {
		return p.Trim(ctx, path, totalDuration, out)
	}
	return p.render(ctx, out, volumeCurveArgs(path, segments, totalDuration))
}

// boundaryRamp is the gain interpolation window at segment edges.
const boundaryRamp = 0.02

// volumeCurveArgs builds a frame-evaluated volume expression implementing the
// piecewise-constant curve with linear 20 ms ramps at each boundary.
func volumeCurveArgs(path string, segments []audio.VolumeSegment, totalDuration float64) []string {
	return []string{
		"-i", path,
		"-t", formatSeconds(totalDuration),
		"-filter:a", "volume='" + volumeExpr(segments) + "':eval=frame",
		"-acodec", "libmp3lame", "-q:a", "2",
	}
}

// volumeExpr renders the nested if() expression for the curve. Each segment
// contributes a ramp down at its start and a ramp back up at its end.
func volumeExpr(segments []audio.VolumeSegment) string {
	// Innermost value: unity gain outside all segments.
	expr := "1"
	// Build from the last segment outward so the first segment is the
	// outermost condition.
	for i := len(segments) - 1; i >= 0; i-- {
		s := segments[i]
		mult := formatRatio(s.Multiplier)
		in := fmt.Sprintf("lerp(1\\,%s\\,min((t-%s)/%s\\,1))",
			mult, formatSeconds(s.Start), formatSeconds(boundaryRamp))
		outRamp := fmt.Sprintf("lerp(%s\\,1\\,min((t-%s)/%s\\,1))",
			mult, formatSeconds(s.End), formatSeconds(boundaryRamp))
		expr = fmt.Sprintf("if(between(t\\,%s\\,%s)\\,%s\\,if(between(t\\,%s\\,%s)\\,%s\\,%s))",
			formatSeconds(s.Start), formatSeconds(s.End), in,
			formatSeconds(s.End), formatSeconds(s.End+boundaryRamp), outRamp,
			expr)
	}
	return expr
}

// MeasureLoudness runs an ebur128 loudnorm analysis pass and returns the
// integrated loudness in LUFS.
func (p *Processor) MeasureLoudness(ctx context.Context, path string) (float64, error) {
	_, stderr, err := p.run.Run(ctx, p.ffmpeg,
		"-hide_banner", "-nostats",
		"-i", path,
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11:print_format=json",
		"-f", "null", "-")
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: measure %s: %w: %s", path, err, firstLine(stderr))
	}
	lufs, err := parseLoudnorm(stderr)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: measure %s: %w", path, err)
	}
	return lufs, nil
}

// parseLoudnorm extracts input_i from the JSON block loudnorm prints at the
// end of stderr.
func parseLoudnorm(stderr []byte) (float64, error) {
	start := bytes.LastIndexByte(stderr, '{')
	end := bytes.LastIndexByte(stderr, '}')
	if start < 0 || end <= start {
		return 0, errors.New("no loudnorm JSON in output")
	}
	var report struct {
		InputI string `json:"input_i"`
	}
	if err := json.Unmarshal(stderr[start:end+1], &report); err != nil {
		return 0, fmt.Errorf("parse loudnorm JSON: %w", err)
	}
	lufs, err := strconv.ParseFloat(report.InputI, 64)
	if err != nil {
		return 0, fmt.Errorf("parse input_i: %w", err)
	}
	return lufs, nil
}

// Mix combines voice and music per opts.
func (p *Processor) Mix(ctx context.Context, opts audio.MixOptions, out string) error {
	if opts.MusicPath == "" {
		return errors.New("ffmpeg: mix: music path is required")
	}
	return p.render(ctx, out, mixArgs(opts))
}

// mixArgs builds the full filter graph for a mix: voice delay and fades,
// per-input volumes, optional sidechain ducking, optional loudness
// normalization, and the max-duration cut.
func mixArgs(opts audio.MixOptions) []string {
	var args []string
	var filter strings.Builder

	hasVoice := opts.VoicePath != ""
	if hasVoice {
		args = append(args, "-i", opts.VoicePath)
	}
	args = append(args, "-i", opts.MusicPath)

	musicIn := "0:a"
	if hasVoice {
		musicIn = "1:a"

		fadeIn := clamp(opts.FadeIn, 0.02, 0.15)
		curve := opts.FadeCurve
		if curve == "" {
			curve = audio.FadeQsin
		}
		delayMs := int(math.Round(opts.VoiceDelay * 1000))
		fmt.Fprintf(&filter, "[0:a]adelay=%d|%d,afade=t=in:st=%s:d=%s:curve=%s,volume=%s[v];",
			delayMs, delayMs,
			formatSeconds(opts.VoiceDelay), formatSeconds(fadeIn), curve,
			formatRatio(defaultVolume(opts.VoiceVolume)))
	}

	fmt.Fprintf(&filter, "[%s]volume=%s[m]", musicIn, formatRatio(defaultVolume(opts.MusicVolume)))

	mixed := "[m]"
	if hasVoice {
		if opts.AudioDucking {
			amount := opts.DuckingAmount
			if amount <= 0 {
				amount = 0.3
			}
			// Deeper ducking maps to a higher compression ratio.
			ratio := clamp(1/amount, 2, 20)
			fmt.Fprintf(&filter, ";[m][v]sidechaincompress=threshold=0.02:ratio=%s:attack=20:release=300[duck]",
				formatRatio(ratio))
			fmt.Fprintf(&filter, ";[duck][v]amix=inputs=2:duration=longest:dropout_transition=0[mix]")
		} else {
			fmt.Fprintf(&filter, ";[m][v]amix=inputs=2:duration=longest:dropout_transition=0[mix]")
		}
		mixed = "[mix]"
	}

	post := mixed
	if opts.MaxDuration > 0 {
		fadeOut := clamp(opts.FadeOut, 0.5, 3.0)
		fmt.Fprintf(&filter, ";%safade=t=out:st=%s:d=%s,atrim=duration=%s[cut]",
			post,
			formatSeconds(opts.MaxDuration-fadeOut),
			formatSeconds(fadeOut),
			formatSeconds(opts.MaxDuration))
		post = "[cut]"
	}
	if opts.NormalizeLoudness {
		target := opts.LoudnessTargetLUFS
		if target == 0 {
			target = -16
		}
		tp := opts.LoudnessTruePeak
		if tp == 0 {
			tp = -1.5
		}
		fmt.Fprintf(&filter, ";%sloudnorm=I=%s:TP=%s:LRA=11[norm]",
			post, formatSeconds(target), formatSeconds(tp))
		post = "[norm]"
	}

	return append(args,
		"-filter_complex", filter.String(),
		"-map", post,
		"-acodec", "libmp3lame", "-q:a", "2",
	)
}

// Master applies the preset chain and normalizes to the loudness preset.
func (p *Processor) Master(ctx context.Context, path string, preset audio.MasterPreset, loudness audio.LoudnessPreset, out string) error {
	if !preset.IsValid() {
		return fmt.Errorf("ffmpeg: master %s: unknown preset %q", path, preset)
	}
	return p.render(ctx, out, masterArgs(path, preset, loudness))
}

// masterArgs builds the EQ / compression / limiter chain for the preset.
func masterArgs(path string, preset audio.MasterPreset, loudness audio.LoudnessPreset) []string {
	var chain string
	switch preset {
	case audio.MasterVoiceEnhanced:
		// Presence lift around 3 kHz, gentle high-pass, firmer compression.
		chain = "highpass=f=80,equalizer=f=3000:t=q:w=1:g=3,acompressor=threshold=0.1:ratio=3:attack=10:release=200,"
	case audio.MasterMusicEnhanced:
		// Low-shelf warmth and air, light glue compression.
		chain = "bass=g=2:f=120,treble=g=1.5:f=9000,acompressor=threshold=0.15:ratio=2:attack=20:release=400,"
	default:
		chain = "acompressor=threshold=0.12:ratio=2.5:attack=15:release=300,"
	}
	chain += fmt.Sprintf("alimiter=limit=0.95,loudnorm=I=%s:TP=-1.5:LRA=11",
		formatSeconds(loudness.TargetLUFS()))

	return []string{
		"-i", path,
		"-af", chain,
		"-acodec", "libmp3lame", "-q:a", "2",
	}
}

// pcmSampleRate is the mono decode rate used for analysis.
const pcmSampleRate = 16000

// DecodePCM decodes the file into mono 16-bit samples at 16 kHz.
func (p *Processor) DecodePCM(ctx context.Context, path string) ([]int16, int, error) {
	out, stderr, err := p.run.Run(ctx, p.ffmpeg,
		"-hide_banner", "-nostats",
		"-i", path,
		"-f", "s16le", "-ac", "1", "-ar", strconv.Itoa(pcmSampleRate),
		"-")
	if err != nil {
		return nil, 0, fmt.Errorf("ffmpeg: decode %s: %w: %s", path, err, firstLine(stderr))
	}
	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2:]))
	}
	return samples, pcmSampleRate, nil
}

// render runs ffmpeg writing to a temporary file and renames it into place on
// success. The temporary file is removed on any failure.
func (p *Processor) render(ctx context.Context, out string, args []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(out), ".render-*"+filepath.Ext(out))
	if err != nil {
		return fmt.Errorf("ffmpeg: render %s: temp file: %w", out, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	full := append([]string{"-y", "-hide_banner", "-nostats"}, args...)
	full = append(full, tmpPath)
	if _, stderr, err := p.run.Run(ctx, p.ffmpeg, full...); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg: render %s: %w: %s", out, err, firstLine(stderr))
	}
	if err := os.Rename(tmpPath, out); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg: render %s: %w", out, err)
	}
	p.log.Debug("rendered", "out", out, "args", len(args))
	return nil
}

// formatSeconds renders a float without exponent notation and without
// trailing zeros.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatRatio renders gain and tempo factors with stable precision.
func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func defaultVolume(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
