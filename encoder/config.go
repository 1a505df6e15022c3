package encoder

import (
	"encoding/json"
	"fmt"
	"os"
)

// BertConfig is the subset of a model's config.json the encoder needs.
type BertConfig struct {
	ModelType             string  `json:"model_type"`
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	IntermediateSize      int     `json:"intermediate_size"`
	HiddenAct             string  `json:"hidden_act"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	TypeVocabSize         int     `json:"type_vocab_size"`
	LayerNormEps          float64 `json:"layer_norm_eps"`
}

// LoadBertConfig reads and validates config.json.
func LoadBertConfig(path string) (*BertConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	var cfg BertConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: config.json: %w", ErrInvalidModel, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills defaults and checks the architecture is one the encoder runs.
func (c *BertConfig) Validate() error {
	if c.LayerNormEps == 0 {
		c.LayerNormEps = 1e-12
	}
	if c.HiddenAct == "" {
		c.HiddenAct = "gelu"
	}
	if c.TypeVocabSize == 0 {
		c.TypeVocabSize = 2
	}
	switch {
	case c.HiddenSize <= 0:
		return fmt.Errorf("%w: hidden_size must be positive", ErrInvalidModel)
	case c.NumAttentionHeads <= 0 || c.HiddenSize%c.NumAttentionHeads != 0:
		return fmt.Errorf("%w: hidden_size %d not divisible by %d heads", ErrInvalidModel, c.HiddenSize, c.NumAttentionHeads)
	case c.NumHiddenLayers < 0:
		return fmt.Errorf("%w: num_hidden_layers must not be negative", ErrInvalidModel)
	case c.IntermediateSize <= 0:
		return fmt.Errorf("%w: intermediate_size must be positive", ErrInvalidModel)
	case c.MaxPositionEmbeddings <= 0:
		return fmt.Errorf("%w: max_position_embeddings must be positive", ErrInvalidModel)
	}
	if activation(c.HiddenAct) == nil {
		return fmt.Errorf("%w: unsupported hidden_act %q", ErrInvalidModel, c.HiddenAct)
	}
	return nil
}
