package rag

import "strings"

// Question modes returned by a Classifier.
const (
	ModeEnumeration = "enumeration"
	ModeAnalysis    = "analysis"
)

// Classifier decides whether retrieved material is a formal legal document
// and whether a question asks for statutory enumeration. Both checks are
// heuristic; the interface keeps them swappable without touching the
// synthesizer.
type Classifier interface {
	IsLegalDocument(title string) bool
	QuestionMode(question string) string
}

// KeywordClassifier matches fixed keyword and phrase tables.
type KeywordClassifier struct{}

var legalTitleMarkers = []string{
	" act",
	" bill",
	" statute",
	" constitution",
	" regulations",
	" ordinance",
	" code of law",
}

var enumerationTriggers = []string{
	"sections of",
	"list the sections",
	"arrangement of sections",
	"parts of the act",
	"list the parts",
	"structure of the act",
	"what are the sections",
	"what are the parts",
}

// IsLegalDocument reports whether the title names a statute-like document.
func (KeywordClassifier) IsLegalDocument(title string) bool {
	if title == "" {
		return false
	}
	title = strings.ToLower(title)
	for _, marker := range legalTitleMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

// QuestionMode reports whether the question asks for enumeration of
// statutory structure, or plain analysis.
func (KeywordClassifier) QuestionMode(question string) string {
	q := strings.ToLower(question)
	for _, trigger := range enumerationTriggers {
		if strings.Contains(q, trigger) {
			return ModeEnumeration
		}
	}
	return ModeAnalysis
}
