// Package models defines the catalog types shown by the client and the small
// enums persisted in the preference store.
package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind  = errors.New("unknown item kind")
	ErrUnknownTheme = errors.New("unknown theme")
)

type Category struct {
	ID   int64
	Name string
}

type SubCategory struct {
	ID         int64
	CategoryID int64
	Name       string
}

type Note struct {
	ID            string
	SubCategoryID int64
	Title         string
	Body          string
	IsPremium     bool
}

type FAQ struct {
	ID            string
	SubCategoryID int64
	Question      string
	Answer        string
	IsPremium     bool
}

// MCQ is a four-option multiple-choice question. Correct is one of "A".."D".
type MCQ struct {
	ID            string
	SubCategoryID int64
	Question      string
	Options       [4]string
	Correct       string
	Explanation   string
	IsPremium     bool
}

// Check reports whether answer (case-insensitive letter) is the correct option.
func (m MCQ) Check(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), m.Correct)
}

// Audio is an audio summary. Its ID doubles as the download content id.
type Audio struct {
	ID              string
	SubCategoryID   int64
	Title           string
	URL             string
	DurationSeconds int64
	IsPremium       bool
}

// ItemKind names a bookmarkable item type.
type ItemKind string

const (
	KindNote  ItemKind = "note"
	KindFAQ   ItemKind = "faq"
	KindMCQ   ItemKind = "mcq"
	KindAudio ItemKind = "audio"
)

func ParseItemKind(s string) (ItemKind, error) {
	switch k := ItemKind(strings.ToLower(s)); k {
	case KindNote, KindFAQ, KindMCQ, KindAudio:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(s)); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTheme, s)
}
