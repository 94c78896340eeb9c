package jobhandler

import (
	"encoding/json"
	"fmt"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
)

// ImageRef is one entry of the payload's list-form "images" field.
type ImageRef struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Payload is the Job Handler's input shape (spec §6, "Job payload").
type Payload struct {
	VersionID    string            `json:"version_id"`
	Workflow     json.RawMessage   `json:"workflow,omitempty"`
	WorkflowURL  string            `json:"workflow_url,omitempty"`
	InputImages  map[string]string `json:"input_images,omitempty"`
	Images       []ImageRef        `json:"images,omitempty"`
	OutputMode   string            `json:"output_mode,omitempty"`
	ObjectBucket string            `json:"object_bucket,omitempty"`
	ObjectPrefix string            `json:"object_prefix,omitempty"`
	ModelsDir    string            `json:"models_dir,omitempty"`
	Verbose      bool              `json:"verbose,omitempty"`

	// OutputJSONPath selects which produced artifact to deliver when a graph's
	// outputs node emits more than one (spec §4.8 step 4 only names "the
	// primary produced artifact" as the default). The expression runs against
	// the Engine history entry's outputs, e.g.
	// "$.outputs['9'].images[0]" to pin a specific save node by id.
	OutputJSONPath string `json:"output_jsonpath,omitempty"`
}

// ParsePayload decodes and structurally validates a job payload.
func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errs.Wrap(errs.KindUsage, "parsing job payload", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the payload's required fields (spec §6: version_id is
// required; exactly one of workflow|workflow_url).
func (p *Payload) Validate() error {
	if p.VersionID == "" {
		return errs.New(errs.KindUsage, "version_id is required")
	}
	hasWorkflow := len(p.Workflow) > 0
	hasURL := p.WorkflowURL != ""
	if hasWorkflow == hasURL {
		return errs.New(errs.KindUsage, "exactly one of workflow or workflow_url is required")
	}
	switch p.OutputMode {
	case "", "base64", "object":
	default:
		return errs.New(errs.KindUsage, fmt.Sprintf("invalid output_mode %q", p.OutputMode))
	}
	if p.effectiveOutputMode() == "object" && p.ObjectBucket == "" {
		return errs.New(errs.KindUsage, "object_bucket is required for output_mode=object")
	}
	return nil
}

func (p *Payload) effectiveOutputMode() string {
	if p.OutputMode == "" {
		return "object"
	}
	return p.OutputMode
}

func (p *Payload) effectiveObjectPrefix() string {
	if p.ObjectPrefix != "" {
		return p.ObjectPrefix
	}
	return "engine/outputs"
}

// MergedImages combines input_images (map form) and images (list form),
// per spec §4.8 step 2: "Both forms may appear; merge."
func (p *Payload) MergedImages() map[string]string {
	merged := make(map[string]string, len(p.InputImages)+len(p.Images))
	for name, url := range p.InputImages {
		merged[name] = url
	}
	for _, img := range p.Images {
		merged[img.Name] = img.Image
	}
	return merged
}

// Response is the Job Handler's output shape (spec §6, "Job response").
type Response struct {
	ObjectURL string     `json:"object_url,omitempty"`
	SignedURL string     `json:"signed_url,omitempty"`
	Base64    string     `json:"base64,omitempty"`
	Size      int64      `json:"size"`
	Error     *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the Job Handler's error response shape.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse builds a Response carrying a failure, per spec §6.
func ErrorResponse(err error) Response {
	return Response{Error: &ErrorBody{Kind: string(errs.KindOf(err)), Message: errs.Line(err)}}
}
