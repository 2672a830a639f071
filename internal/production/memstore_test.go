package production

import (
	"context"
	"errors"
	"testing"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

func newProduction(t *testing.T, s *MemStore) string {
	t.Helper()
	id, err := s.Create(context.Background(), &Production{
		OwnerID: "owner-1",
		Settings: Settings{
			Prompt:         "summer sale for a coffee roaster",
			VoiceID:        "voice-7",
			TargetDuration: 30,
			VoiceVolume:    1.0,
			MusicVolume:    0.3,
			TargetLUFS:     -16,
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func TestMemStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)

	p, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Status != StatusPending || p.Progress != 0 {
		t.Errorf("new production = %s/%d, want PENDING/0", p.Status, p.Progress)
	}
	if p.OwnerID != "owner-1" || p.Settings.TargetDuration != 30 {
		t.Errorf("settings not persisted: %+v", p)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemStoreAdvanceRaisesProgressFloor(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)

	if err := s.Advance(ctx, id, StatusScript); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	p, _ := s.Get(ctx, id)
	if p.Status != StatusScript || p.Progress != StatusScript.ProgressFloor() {
		t.Errorf("after advance = %s/%d, want SCRIPT/%d", p.Status, p.Progress, StatusScript.ProgressFloor())
	}

	// A progress report above the next floor survives the advance.
	if err := s.SetProgress(ctx, id, 30); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	if err := s.Advance(ctx, id, StatusVoice); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	p, _ = s.Get(ctx, id)
	if p.Progress != 30 {
		t.Errorf("progress after advance = %d, want 30 kept", p.Progress)
	}

	// Backwards transitions are rejected without mutating state.
	if err := s.Advance(ctx, id, StatusScript); err == nil {
		t.Fatal("Advance backwards succeeded")
	}
	p, _ = s.Get(ctx, id)
	if p.Status != StatusVoice {
		t.Errorf("status after rejected advance = %s, want VOICE", p.Status)
	}
}

func TestMemStoreProgressNeverDecreases(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)

	s.SetProgress(ctx, id, 40)
	s.SetProgress(ctx, id, 10)
	p, _ := s.Get(ctx, id)
	if p.Progress != 40 {
		t.Errorf("progress = %d, want 40", p.Progress)
	}

	s.SetProgress(ctx, id, 250)
	p, _ = s.Get(ctx, id)
	if p.Progress != 100 {
		t.Errorf("clamped progress = %d, want 100", p.Progress)
	}
}

func TestMemStoreFailRecordsError(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)

	s.Advance(ctx, id, StatusVoice)
	if err := s.Fail(ctx, id, faults.KindAuth, "tts key rejected"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	p, _ := s.Get(ctx, id)
	if p.Status != StatusFailed || p.ErrorKind != faults.KindAuth || p.ErrorMessage != "tts key rejected" {
		t.Errorf("failed production = %+v", p)
	}

	// Terminal productions reject further transitions.
	if err := s.Advance(ctx, id, StatusMusic); err == nil {
		t.Error("Advance on failed production succeeded")
	}
}

func TestMemStoreCancel(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)

	if err := s.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	p, _ := s.Get(ctx, id)
	if p.Status != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", p.Status)
	}

	// Cancel after terminal is a no-op.
	if err := s.Cancel(ctx, id); err != nil {
		t.Errorf("second Cancel: %v", err)
	}
	if err := s.Cancel(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemStoreWarnings(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)

	s.AddWarning(ctx, id, "analysis failed, using synthetic grid")
	s.AddWarning(ctx, id, "stretch refused, keeping original duration")

	p, _ := s.Get(ctx, id)
	if len(p.Warnings) != 2 || p.Warnings[0] != "analysis failed, using synthetic grid" {
		t.Errorf("warnings = %v", p.Warnings)
	}
}

func TestMemStoreScriptRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)

	scriptID, err := s.SaveScript(ctx, &Script{
		ProductionID: id,
		Text:         "Wake up to something better.",
		Blueprint: types.AdBlueprint{
			Script:  "Wake up to something better.",
			Context: types.AdContext{DurationSeconds: 30, AdCategory: "retail"},
			Music:   types.MusicPlan{TargetBPM: 104, Genre: "indie pop"},
		},
	})
	if err != nil {
		t.Fatalf("SaveScript: %v", err)
	}

	p, _ := s.Get(ctx, id)
	if p.ScriptID != scriptID {
		t.Errorf("ScriptID = %q, want %q", p.ScriptID, scriptID)
	}

	script, err := s.GetScript(ctx, id)
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if script.Blueprint.Music.TargetBPM != 104 {
		t.Errorf("blueprint BPM = %v, want 104", script.Blueprint.Music.TargetBPM)
	}

	if _, err := s.SaveScript(ctx, &Script{ProductionID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveScript(missing production) = %v, want ErrNotFound", err)
	}
}

func TestMemStoreAssetsLinkByKind(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)

	voiceID, err := s.SaveAsset(ctx, &Asset{
		ProductionID: id, Kind: AssetVoice,
		Path: "/uploads/audio/voice_1.mp3", DurationSeconds: 12.4,
	})
	if err != nil {
		t.Fatalf("SaveAsset voice: %v", err)
	}
	musicID, _ := s.SaveAsset(ctx, &Asset{
		ProductionID: id, Kind: AssetMusic, Variant: "looped",
		Path: "/uploads/music/looped_1.mp3",
	})
	mixID, _ := s.SaveAsset(ctx, &Asset{
		ProductionID: id, Kind: AssetMix,
		Path: "/uploads/productions/production_1.mp3",
	})

	p, _ := s.Get(ctx, id)
	if p.VoiceAssetID != voiceID || p.MusicAssetID != musicID || p.FinalMixID != mixID {
		t.Errorf("asset refs = %q/%q/%q, want %q/%q/%q",
			p.VoiceAssetID, p.MusicAssetID, p.FinalMixID, voiceID, musicID, mixID)
	}

	assets, err := s.ListAssets(ctx, id)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 3 || assets[0].Kind != AssetVoice || assets[1].Variant != "looped" {
		t.Errorf("assets = %+v", assets)
	}

	if _, err := s.ListAssets(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListAssets(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemStoreSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	id := newProduction(t, s)
	s.AddWarning(ctx, id, "first")

	p, _ := s.Get(ctx, id)
	p.Status = StatusFailed
	p.Warnings[0] = "mutated"

	again, _ := s.Get(ctx, id)
	if again.Status != StatusPending || again.Warnings[0] != "first" {
		t.Errorf("store state mutated through snapshot: %s %v", again.Status, again.Warnings)
	}
}
