package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/DocentAI/docent-mvp/engine/domain"
	"github.com/DocentAI/docent-mvp/engine/provider"
	"github.com/DocentAI/docent-mvp/engine/quota"
	"github.com/DocentAI/docent-mvp/pkg/fn"
)

// Prompt size caps. Chunks beyond MaxChunks are dropped, each kept chunk is
// clipped to MaxCharsPerChunk, and the joined material is clipped again to
// MaxSourceChars.
const (
	MaxChunks        = 5
	MaxCharsPerChunk = 2000
	MaxSourceChars   = 8000
)

// Synthesis modes.
const (
	ModeQA     = "qa"
	ModeReport = "report"
)

// SynthRequest is one chat turn's synthesis input. OrgID attributes the
// quota charge; empty means unmetered. Mode defaults to ModeQA; ModeReport
// routes through the legal/report classifier. Style picks a report preset.
type SynthRequest struct {
	Question   string
	Chunks     []domain.RetrievalResult
	OrgID      string
	Mode       string
	Style      string
	PreparedBy string
}

// Citation names one distinct source document behind an answer.
type Citation struct {
	DocID    string `json:"document_id"`
	DocTitle string `json:"document_title"`
}

// Answer is the structured synthesis output.
type Answer struct {
	Text        string                   `json:"text"`
	Citations   []Citation               `json:"citations"`
	CitedChunks []domain.RetrievalResult `json:"cited_chunks"`
	Confidence  float64                  `json:"confidence"`
}

// Synthesizer builds a strictly grounded prompt from retrieved chunks and
// calls the generation provider, charging the organization's quota first.
type Synthesizer struct {
	gen        provider.Generator
	ledger     quota.Ledger
	classifier Classifier
	logger     *slog.Logger
}

// NewSynthesizer creates a Synthesizer. A nil classifier falls back to the
// keyword tables.
func NewSynthesizer(gen provider.Generator, ledger quota.Ledger, classifier Classifier, logger *slog.Logger) *Synthesizer {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{gen: gen, ledger: ledger, classifier: classifier, logger: logger}
}

// Synthesize produces a grounded Markdown answer for one chat turn. An empty
// chunk set short-circuits to a fixed insufficient-information answer with
// no provider call and no quota charge. Quota is consumed before the
// generation call; an exceeded budget prevents the call entirely.
func (s *Synthesizer) Synthesize(ctx context.Context, req SynthRequest) (*Answer, error) {
	if len(req.Chunks) == 0 {
		return &Answer{Text: insufficientAnswer, Confidence: 0}, nil
	}

	material, kept := sourceMaterial(req.Chunks)
	genReq, promptPath := s.buildPrompt(req, material)

	cost := quota.EstimateTokens(req.Question + material)
	if err := s.ledger.Consume(ctx, req.OrgID, cost); err != nil {
		return nil, err
	}

	text, err := s.gen.Generate(ctx, genReq)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "##") {
		// Normalization, not a correctness guarantee.
		text = "## Answer\n\n" + text
	}

	answer := &Answer{
		Text:        text,
		Citations:   citations(kept),
		CitedChunks: kept,
		Confidence:  confidence(kept),
	}
	s.logger.Info("rag synthesize done",
		"prompt", promptPath,
		"chunks", len(kept),
		"cost", cost,
	)
	return answer, nil
}

// buildPrompt selects the prompt path: legal enumeration, legal analysis, or
// a styled report when the caller asked for report mode; plain grounded Q&A
// otherwise.
func (s *Synthesizer) buildPrompt(req SynthRequest, material string) (provider.GenRequest, string) {
	if req.Mode != ModeReport {
		return provider.GenRequest{
			System:      qaSystemPrompt,
			User:        qaUserPrompt(req.Question, req.Chunks),
			Temperature: 0,
		}, "qa"
	}

	title := req.Chunks[0].DocTitle
	isLegal := s.classifier.IsLegalDocument(title)

	switch {
	case isLegal && s.classifier.QuestionMode(req.Question) == ModeEnumeration:
		return provider.GenRequest{
			System:      enumerationSystemPrompt,
			User:        fmt.Sprintf("REFERENCE MATERIAL:\n%s\n\n%s", material, enumerationTaskPrompt),
			Temperature: 0.2,
		}, "legal-enumeration"
	case isLegal:
		return provider.GenRequest{
			System:      legalSystemPrompt,
			User:        fmt.Sprintf("REFERENCE MATERIAL:\n%s\n\nTASK:\nAnalyse this law as a statutory instrument.", material),
			Temperature: 0.2,
		}, "legal-analysis"
	default:
		style, ok := StylePresets[req.Style]
		if !ok {
			style = StylePresets["executive"]
		}
		preparedBy := req.PreparedBy
		if preparedBy == "" {
			preparedBy = "System Generated"
		}
		user := fmt.Sprintf(`REFERENCE POINTS:
%s

TASK:
Create a professional, non-legal report.

STYLE:
- Tone: %s
- Depth: %s
- Focus: %s

MANDATORY TEMPLATE:
%s

Prepared By:
%s`, material, style.Tone, style.Depth, style.Focus, reportTemplate, preparedBy)
		return provider.GenRequest{System: reportingSystemPrompt, User: user, Temperature: 0.2}, "report"
	}
}

// sourceMaterial joins the capped chunk texts and returns the chunks that
// actually contributed.
func sourceMaterial(chunks []domain.RetrievalResult) (string, []domain.RetrievalResult) {
	var kept []domain.RetrievalResult
	var parts []string
	for _, c := range chunks {
		if len(kept) == MaxChunks {
			break
		}
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		if len(text) > MaxCharsPerChunk {
			text = text[:MaxCharsPerChunk]
		}
		kept = append(kept, c)
		parts = append(parts, text)
	}
	material := strings.Join(parts, "\n\n")
	if len(material) > MaxSourceChars {
		material = material[:MaxSourceChars]
	}
	return material, kept
}

func qaUserPrompt(question string, chunks []domain.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("SOURCES:\n")
	n := len(chunks)
	if n > MaxChunks {
		n = MaxChunks
	}
	for i, c := range chunks[:n] {
		text := strings.TrimSpace(c.Text)
		if len(text) > MaxCharsPerChunk {
			text = text[:MaxCharsPerChunk]
		}
		fmt.Fprintf(&b, "[S%d]\n%s\n\n", i+1, text)
	}
	fmt.Fprintf(&b, "QUESTION:\n%s\n\n", question)
	b.WriteString("INSTRUCTIONS:\n- Structure the answer clearly\n- Prefer lists over prose\n- If listing items (e.g. sections), list them cleanly\n")
	return b.String()
}

// citations groups the cited chunks into distinct source documents,
// preserving retrieval order.
func citations(chunks []domain.RetrievalResult) []Citation {
	distinct := fn.UniqueBy(chunks, func(c domain.RetrievalResult) string { return c.DocID })
	return fn.Map(distinct, func(c domain.RetrievalResult) Citation {
		return Citation{DocID: c.DocID, DocTitle: c.DocTitle}
	})
}

// confidence is the mean of 1/(1+score) over the cited chunks, rounded to
// two decimals. Zero for an empty set.
func confidence(chunks []domain.RetrievalResult) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += 1 / (1 + float64(c.Score))
	}
	return math.Round(sum/float64(len(chunks))*100) / 100
}
