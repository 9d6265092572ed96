// Package features encodes identity-document text as fixed-length vectors for authenticity scoring.
//
// Axis order is part of the persisted index format: vectors trained by one build are compared
// against vectors produced by another, so the layout below must not change.
package features

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Dimension is the length of every feature vector
const Dimension = 100

// DocType tags the kind of identity document being scored
type DocType string

const (
	PAN     DocType = "PAN"
	Aadhaar DocType = "AADHAAR"
)

var (
	panNumberRe     = regexp.MustCompile(`[A-Z]{5}[0-9]{4}[A-Z]`)
	aadhaarNumberRe = regexp.MustCompile(`\d{4}\s\d{4}\s\d{4}`)
	dateRe          = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	personNameRe    = regexp.MustCompile(`[A-Z][a-z]+ [A-Z][a-z]+`)

	panKeywords     = []string{"PERMANENT ACCOUNT NUMBER", "INCOME TAX DEPARTMENT", "GOVT. OF INDIA"}
	aadhaarKeywords = []string{"UIDAI", "UNIQUE IDENTIFICATION", "AADHAAR"}
	kinshipPrefixes = []string{"S/O", "D/O", "W/O", "C/O"}
)

// ParseDocType normalises a user-supplied tag. PAN and AADHAAR (also AADHAR) are recognised;
// anything else is returned upper-cased and contributes only generic statistics.
func ParseDocType(s string) (DocType, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	switch t {
	case "":
		return "", fmt.Errorf("document type must not be empty")
	case "AADHAR":
		return Aadhaar, nil
	}
	return DocType(t), nil
}

// Known reports whether t has type-specific indicators
func (t DocType) Known() bool {
	return t == PAN || t == Aadhaar
}

// Extract builds the feature vector for text. It is a pure function of its arguments.
func Extract(text string, docType DocType) []float32 {
	f := make([]float32, 0, Dimension)
	upper := strings.ToUpper(text)

	switch docType {
	case PAN:
		f = append(f, flag(panNumberRe.MatchString(text)))
		for _, kw := range panKeywords {
			f = append(f, flag(strings.Contains(upper, kw)))
		}
		f = append(f, flag(dateRe.MatchString(text)))
		f = append(f, flag(personNameRe.MatchString(text)))
	case Aadhaar:
		f = append(f, flag(aadhaarNumberRe.MatchString(text)))
		for _, kw := range aadhaarKeywords {
			f = append(f, flag(strings.Contains(upper, kw)))
		}
		f = append(f, flag(dateRe.MatchString(text)))
		f = append(f, flag(containsAny(upper, kinshipPrefixes)))
	}

	n := utf8.RuneCountInString(text)
	var uppers, digits int
	for _, r := range text {
		if unicode.IsUpper(r) {
			uppers++
		}
		if unicode.IsDigit(r) {
			digits++
		}
	}
	denom := float32(max(n, 1))

	f = append(f,
		min(float32(n)/1000, 1),
		min(float32(len(strings.Fields(text)))/100, 1),
		float32(uppers)/denom,
		float32(digits)/denom,
	)

	if len(f) > Dimension {
		return f[:Dimension]
	}
	for len(f) < Dimension {
		f = append(f, 0)
	}
	return f
}

// Describe lists the indicator names that fired for docType, for display and metadata
func Describe(vec []float32, docType DocType) []string {
	var names []string
	switch docType {
	case PAN:
		names = append([]string{"pan_number"}, keywordNames(panKeywords)...)
		names = append(names, "date", "person_name")
	case Aadhaar:
		names = append([]string{"aadhaar_number"}, keywordNames(aadhaarKeywords)...)
		names = append(names, "date", "kinship_prefix")
	default:
		return nil
	}

	var fired []string
	for i, name := range names {
		if i < len(vec) && vec[i] == 1 {
			fired = append(fired, name)
		}
	}
	return fired
}

func keywordNames(kws []string) []string {
	out := make([]string, len(kws))
	for i, kw := range kws {
		out[i] = "keyword:" + strings.ToLower(kw)
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
