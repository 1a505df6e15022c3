// Package encoder is the in-process sentence embedding backend.
//
// It runs BERT-family sentence-transformers models on the CPU in pure Go:
//
//   - Hub downloads config.json, tokenizer.json (or vocab.txt) and
//     model.safetensors from a Hugging Face compatible registry and caches
//     them on disk. HF_ENDPOINT and HF_TOKEN are honored.
//   - Tokenizer implements BERT basic tokenization and WordPiece.
//   - Model executes the transformer encoder in float32.
//   - Encoder mean-pools the final hidden states over the attention mask
//     and L2 normalizes them, matching sentence-transformers pooling.
//
// Registry keeps several loaded models under aliases for comparisons while
// one of them serves as the default.
//
// Only safetensors weights are supported. A repository that ships only
// pytorch_model.bin fails with ErrLegacyWeights.
package encoder
