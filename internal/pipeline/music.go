package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Unmesh28/voice-ad-sub002/internal/production"
	"github.com/Unmesh28/voice-ad-sub002/internal/queue"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
)

// handleMusic runs the music stage: render the bed from the blueprint's
// composition prompt and hand over to the mixing stage.
func (o *Orchestrator) handleMusic(ctx context.Context, job *queue.Job) ([]byte, error) {
	payload, err := decodePayload[musicPayload](job)
	if err != nil {
		return nil, err
	}
	prodID := payload.ProductionID

	if err := o.checkCancel(ctx, prodID); err != nil {
		if errors.Is(err, errCancelled) {
			return o.finishCancelled(prodID)
		}
		return nil, err
	}

	bed, err := o.compose(ctx, payload.Prompt, payload.DurationSeconds)
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.resetStuck(prodID + "/" + string(job.Queue))

	bedPath := filepath.Join(o.uploadDir, "music", "bed_"+uuid.NewString()+".mp3")
	if err := writeFileAtomic(bedPath, bed); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	assetID, err := o.productions.SaveAsset(ctx, &production.Asset{
		ProductionID:    prodID,
		Kind:            production.AssetMusic,
		Variant:         "bed",
		Path:            bedPath,
		PublicURL:       o.publicURL(bedPath),
		DurationSeconds: payload.DurationSeconds,
	})
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	if err := o.productions.Advance(ctx, prodID, production.StatusMusic); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.progress(ctx, prodID, production.StatusMusic, 60, "music bed rendered")

	if err := o.enqueue(ctx, queue.KindAudioMixing, mixPayload{
		ProductionID: prodID,
		BedPath:      bedPath,
	}); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	return json.Marshal(map[string]string{"musicAssetId": assetID})
}

func (o *Orchestrator) compose(ctx context.Context, prompt string, durationSeconds float64) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, o.timeouts.TTM)
	defer cancel()

	var bed []byte
	err := o.ttmBreaker.Execute(func() error {
		var callErr error
		bed, callErr = o.ttm.Compose(cctx, ttm.Request{
			Prompt:          prompt,
			DurationSeconds: durationSeconds,
		})
		return callErr
	})
	if err != nil {
		return nil, mapProviderError("compose music", err)
	}
	return bed, nil
}
