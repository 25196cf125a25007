// Package programs defines saved editor programs and editor settings.
package programs

import (
	"context"
	"time"
)

// DefaultName is given to programs saved without a name.
const DefaultName = "Untitled"

// Program is a saved snippet of source code.
type Program struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SaveInput creates a program, or updates the program with ID when it
// exists. Nil fields keep their current value on update.
type SaveInput struct {
	ID       string  `json:"id,omitempty"`
	Name     *string `json:"name,omitempty"`
	Language *string `json:"language,omitempty"`
	Code     *string `json:"code,omitempty"`
}

// Patch changes the non-nil fields of an existing program.
type Patch struct {
	Name     *string `json:"name,omitempty"`
	Language *string `json:"language,omitempty"`
	Code     *string `json:"code,omitempty"`
}

// Settings are editor preferences keyed by option name.
type Settings map[string]any

// DefaultSettings returns a fresh copy of the editor defaults.
func DefaultSettings() Settings {
	return Settings{
		"theme":         "system",
		"fontFamily":    `"Fira Code", ui-monospace, SFMono-Regular, Menlo, monospace`,
		"fontSize":      14,
		"fontLigatures": true,

		"wordWrap":       "on",
		"wordWrapColumn": 80,
		"wrappingIndent": "same",
		"lineNumbers":    "on",
		"rulers":         "80,120",

		"tabSize":      2,
		"insertSpaces": true,

		"minimap":                 true,
		"minimapRenderCharacters": true,
		"minimapSide":             "right",
		"renderWhitespace":        "selection",
		"renderLineHighlight":     "line",
		"renderIndentGuides":      true,
		"folding":                 true,
		"stickyScroll":            true,
		"smoothScrolling":         true,
		"scrollBeyondLastLine":    false,

		"cursorStyle":    "line",
		"cursorBlinking": "smooth",
		"mouseWheelZoom": false,

		"bracketPairColorization": true,
		"autoClosingBrackets":     "languageDefined",
		"formatOnPaste":           true,
		"formatOnType":            false,
	}
}

// Store persists programs and settings.
type Store interface {
	// ListPrograms returns programs, most recently created first.
	ListPrograms(ctx context.Context) ([]Program, error)

	// SaveProgram upserts and returns the program id.
	SaveProgram(ctx context.Context, in SaveInput) (string, error)

	// UpdateProgram reports false when no program has id.
	UpdateProgram(ctx context.Context, id string, p Patch) (bool, error)

	// DeleteProgram reports whether a program was removed.
	DeleteProgram(ctx context.Context, id string) (bool, error)

	// DeletePrograms removes every listed program and returns how many existed.
	DeletePrograms(ctx context.Context, ids []string) (int, error)

	// LoadSettings returns the saved settings merged over the defaults.
	LoadSettings(ctx context.Context) (Settings, error)

	// SaveSettings stores settings, replacing what was saved before.
	SaveSettings(ctx context.Context, s Settings) error

	// ResetSettings forgets saved settings and returns the defaults.
	ResetSettings(ctx context.Context) (Settings, error)

	Close() error
}
