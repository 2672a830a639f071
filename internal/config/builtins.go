package config

import (
	"github.com/Unmesh28/voice-ad-sub002/pkg/audio"
	"github.com/Unmesh28/voice-ad-sub002/pkg/audio/ffmpeg"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	llmopenai "github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm/openai"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
	ttmelevenlabs "github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm/elevenlabs"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
	ttselevenlabs "github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts/elevenlabs"
)

// registerBuiltins wires the provider implementations shipped with this
// module into r under their canonical names.
func registerBuiltins(r *Registry) {
	r.RegisterLLM("openai", func(entry ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.Model != "" {
			opts = append(opts, llmopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, opts...)
	})

	r.RegisterTTS("elevenlabs", func(entry ProviderEntry) (tts.Provider, error) {
		var opts []ttselevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, ttselevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttselevenlabs.WithBaseURL(entry.BaseURL))
		}
		if format, ok := entry.Options["output_format"].(string); ok && format != "" {
			opts = append(opts, ttselevenlabs.WithOutputFormat(format))
		}
		return ttselevenlabs.New(entry.APIKey, opts...)
	})

	r.RegisterTTM("elevenlabs", func(entry ProviderEntry) (ttm.Provider, error) {
		var opts []ttmelevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, ttmelevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttmelevenlabs.WithBaseURL(entry.BaseURL))
		}
		return ttmelevenlabs.New(entry.APIKey, opts...)
	})

	r.RegisterAudio("ffmpeg", func(entry ProviderEntry) (audio.Processor, error) {
		var opts []ffmpeg.Option
		if path, ok := entry.Options["ffmpeg_path"].(string); ok && path != "" {
			opts = append(opts, ffmpeg.WithFFmpegPath(path))
		}
		if path, ok := entry.Options["ffprobe_path"].(string); ok && path != "" {
			opts = append(opts, ffmpeg.WithFFprobePath(path))
		}
		return ffmpeg.New(opts...), nil
	})
}
