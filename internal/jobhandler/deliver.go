package jobhandler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/fetch"
)

// deliver returns the produced artifact per the payload's output_mode
// (spec §4.8 step 5 / §6 "Job response").
func (h *Handler) deliver(ctx context.Context, payload *Payload, requestID, outputFile string) (Response, error) {
	if payload.effectiveOutputMode() == "base64" {
		res, err := fetch.DeliverBase64(filepath.Base(outputFile), outputFile)
		if err != nil {
			return Response{}, errs.Wrap(errs.KindUpload, "delivering base64 output", err)
		}
		return Response{Base64: res.Data, Size: res.Bytes}, nil
	}

	if h.deps.Uploader == nil {
		return Response{}, errs.New(errs.KindUpload, "output_mode=object requires an configured Uploader")
	}

	ext := filepath.Ext(outputFile)
	objectName := fmt.Sprintf("%s_%d-%s%s", requestID, time.Now().Unix(), uuid.NewString(), ext)
	objectKey := payload.effectiveObjectPrefix() + "/" + objectName

	res, err := h.deps.Uploader.DeliverObjectAtKey(ctx, objectKey, outputFile)
	if err != nil {
		return Response{}, errs.Wrap(errs.KindUpload, "delivering object output", err)
	}

	resp := Response{
		ObjectURL: fmt.Sprintf("object://%s/%s", res.Bucket, res.Key),
		Size:      res.Bytes,
	}
	if res.SignedURL != "" {
		resp.SignedURL = res.SignedURL
	}
	return resp, nil
}
