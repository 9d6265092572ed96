package cmd

import (
	"docsentry/internal/authenticity"
	"docsentry/internal/embedding"
	"docsentry/internal/extract"
	"docsentry/internal/knowledge"
	"docsentry/internal/llm"
)

func newExtractor() *extract.Auto {
	return extract.NewAuto(cfg.Extract.TesseractPath, cfg.TesseractArgList(), cfg.Extract.PdfToTextPath)
}

func newLLMClient() *llm.OllamaClient {
	return llm.NewOllamaClient(cfg.Ollama.URL, cfg.Ollama.TextModel)
}

// newKnowledgeBase builds the knowledge base handle; callers Initialize and Close it
func newKnowledgeBase() (*knowledge.Base, error) {
	embedder := embedding.NewOllamaClient(cfg.Ollama.URL, cfg.Ollama.EmbedModel, cfg.Ollama.MaxRetries)
	return knowledge.New(knowledge.Options{
		Dimension:    cfg.Knowledge.Dimension,
		ChunkWords:   cfg.Knowledge.ChunkWords,
		OverlapWords: cfg.Knowledge.OverlapWords,
		TopK:         cfg.Knowledge.TopK,
		SnippetChars: cfg.Knowledge.SnippetChars,
		Timeout:      cfg.Ollama.Timeout,
		VectorsPath:  cfg.KnowledgeVectorsPath(),
		MetadataPath: cfg.KnowledgeMetadataPath(),
	}, embedder, newLLMClient())
}

func newAuthenticityIndex() (*authenticity.Index, error) {
	return authenticity.New(authenticity.Options{
		Neighbors:    cfg.Authenticity.Neighbors,
		Threshold:    cfg.Authenticity.Threshold,
		VectorsPath:  cfg.AuthenticityVectorsPath(),
		MetadataPath: cfg.AuthenticityMetadataPath(),
	}, newExtractor())
}
