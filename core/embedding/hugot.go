package embedding

import (
	"context"
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/ragger/helper"
)

// DefaultHugotModel is the sentence transformer used by the default
// pipeline, DefaultHugotDimension the width of its embeddings.
const (
	DefaultHugotModel     = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultHugotDimension = 384

	// DefaultHugotOnnxPath is where sentence transformer repositories
	// keep their onnx export.
	DefaultHugotOnnxPath = "onnx/model.onnx"
)

// HugotProvider runs a local ONNX feature extraction model in process.
// No network calls happen after the model is downloaded.
type HugotProvider struct {
	session *hugot.Session
	run     func(texts []string) ([][]float32, error)
	model   string
}

// NewHugotProvider downloads the model if needed and prepares a feature
// extraction pipeline. The onnx file path is relative to the model
// repository, for most sentence transformers this is "onnx/model.onnx".
func NewHugotProvider(modelName string, onnxFilePath string) (*HugotProvider, error) {
	modelPath, err := helper.PrepareModel(modelName, onnxFilePath)
	if err != nil {
		return nil, helper.NewError("preparing embedding model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewError("creating hugot session", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedding-provider-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, helper.NewError("creating feature extraction pipeline", fmt.Errorf("%w (cleanup error: %v)", err, destroyErr))
		}
		return nil, helper.NewError("creating feature extraction pipeline", err)
	}

	run := func(texts []string) ([][]float32, error) {
		result, err := sentencePipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return result.Embeddings, nil
	}

	return &HugotProvider{session: session, run: run, model: modelName}, nil
}

// Embed runs the feature extraction pipeline over all texts at once.
func (p *HugotProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	embeddings, err := p.run(texts)
	if err != nil {
		return nil, &ProviderError{Operation: "run pipeline", Err: err}
	}
	if len(embeddings) != len(texts) {
		return nil, &ProviderError{
			Operation: "run pipeline",
			Err:       fmt.Errorf("expected %v embeddings, got %v", len(texts), len(embeddings)),
		}
	}
	return embeddings, nil
}

// ModelID returns the model repository name.
func (p *HugotProvider) ModelID() string {
	return p.model
}

// Close destroys the hugot session.
func (p *HugotProvider) Close() error {
	return p.session.Destroy()
}
