package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Unmesh28/voice-ad-sub002/internal/faults"
	"github.com/Unmesh28/voice-ad-sub002/internal/production"
	"github.com/Unmesh28/voice-ad-sub002/internal/queue"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/types"
)

// handleScript runs the script stage: ask the LLM for an ad-production
// blueprint, falling back to the deterministic one when the provider cannot
// deliver, then persist the script and hand over to the voice stage.
func (o *Orchestrator) handleScript(ctx context.Context, job *queue.Job) ([]byte, error) {
	payload, err := decodePayload[stagePayload](job)
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

	prod, err := o.productions.Get(ctx, prodID)
	if err != nil {
		return nil, err
	}

	bp, err := o.generateBlueprint(ctx, prod)
	if err != nil {
		kind := faults.KindOf(err)
		switch kind {
		case faults.KindQuota, faults.KindValidation:
			// The LLM stage degrades instead of failing: a deterministic
			// blueprint keeps the production moving.
			o.warn(ctx, prodID, production.StatusScript,
				"llm blueprint unavailable ("+string(kind)+"), using fallback blueprint")
			fb := fallbackBlueprint(prod.Settings.Prompt, prod.Settings.Tone, prod.Settings.TargetDuration)
			bp = &fb
		default:
			return nil, o.stageFailure(ctx, job, prodID, err)
		}
	}
	o.resetStuck(prodID + "/" + string(job.Queue))

	scriptID, err := o.productions.SaveScript(ctx, &production.Script{
		ProductionID: prodID,
		Text:         bp.Script,
		Blueprint:    *bp,
	})
	if err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	if err := o.productions.Advance(ctx, prodID, production.StatusScript); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}
	o.progress(ctx, prodID, production.StatusScript, 20, "script ready")

	if err := o.enqueue(ctx, queue.KindTTSGeneration, stagePayload{ProductionID: prodID}); err != nil {
		return nil, o.stageFailure(ctx, job, prodID, err)
	}

	return json.Marshal(map[string]string{"scriptId": scriptID})
}

// generateBlueprint calls the LLM through its breaker and stage ceiling and
// normalises the outcome into the pipeline taxonomy.
func (o *Orchestrator) generateBlueprint(ctx context.Context, prod *production.Production) (*types.AdBlueprint, error) {
	cctx, cancel := context.WithTimeout(ctx, o.timeouts.LLM)
	defer cancel()

	var bp *types.AdBlueprint
	err := o.llmBreaker.Execute(func() error {
		var callErr error
		bp, callErr = o.llm.GenerateBlueprint(cctx, llm.BlueprintRequest{
			Prompt:          prod.Settings.Prompt,
			DurationSeconds: prod.Settings.TargetDuration,
			Tone:            prod.Settings.Tone,
		})
		return callErr
	})
	if err != nil {
		return nil, mapProviderError("generate blueprint", err)
	}
	return bp, nil
}
