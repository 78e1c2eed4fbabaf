package generator

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

const defaultSystemPrompt = `You are {{or .Persona.Name "an unnamed MC"}}, an MC with a {{or .Persona.Style "freestyle"}} style, in a live rap battle against {{or .Opponent.Name "your rival"}}.`

const defaultTurnPrompt = `YOUR CHARACTER:
- Name: {{or .Persona.Name "unknown"}}
- Style: {{or .Persona.Style "unknown"}}
- Rival: {{or .Persona.RivalName "unknown"}}
- Rival history: {{or .Persona.RivalHistory "unknown"}}
- Rivalry reason: {{or .Persona.RivalryReason "unknown"}}

BATTLE RULES:
- Write EXACTLY {{.Verses}} rhyming lines
- Be creative, aggressive and clever
- Reference your rival{{with .Persona.RivalName}} ({{.}}){{end}}
- Use metaphors and wordplay
- Stay in your {{or .Persona.Style "own"}} style

{{if .PriorContent}}YOUR RIVAL'S LAST VERSE:
"{{.PriorContent}}"

ANSWER IT:{{else}}OPEN THE BATTLE (Round {{.Round}}):{{end}}

Reply with ONLY the {{.Verses}} lines, one per line, without numbering or extra formatting.`

var defaultFallback = []string{
	"My verses got lost on the way,",
	"but my flow never fades,",
	"I'll bring it next round",
	"and show who really gets played!",
}

// Prompts holds the compiled prompt templates and the fallback turn.
type Prompts struct {
	system   *template.Template
	turn     *template.Template
	Fallback []string
}

type promptFile struct {
	System   string   `yaml:"system"`
	Turn     string   `yaml:"turn"`
	Fallback []string `yaml:"fallback"`
}

type promptData struct {
	Persona      Persona
	Opponent     Persona
	PriorContent string
	Round        int
	Verses       int
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() *Prompts {
	p, err := compilePrompts(promptFile{})
	if err != nil {
		panic(fmt.Sprintf("built-in prompts: %v", err))
	}
	return p
}

// LoadPrompts reads prompt overrides from a YAML file. Fields the file
// omits keep their built-in values; an empty path yields DefaultPrompts.
//
// Postcondition: Returns compiled prompts, or an error naming the file.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts %q: %w", path, err)
	}
	var f promptFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing prompts %q: %w", path, err)
	}
	p, err := compilePrompts(f)
	if err != nil {
		return nil, fmt.Errorf("compiling prompts %q: %w", path, err)
	}
	return p, nil
}

func compilePrompts(f promptFile) (*Prompts, error) {
	if strings.TrimSpace(f.System) == "" {
		f.System = defaultSystemPrompt
	}
	if strings.TrimSpace(f.Turn) == "" {
		f.Turn = defaultTurnPrompt
	}
	if len(f.Fallback) == 0 {
		f.Fallback = defaultFallback
	}

	system, err := template.New("system").Option("missingkey=error").Parse(f.System)
	if err != nil {
		return nil, fmt.Errorf("system template: %w", err)
	}
	turn, err := template.New("turn").Option("missingkey=error").Parse(f.Turn)
	if err != nil {
		return nil, fmt.Errorf("turn template: %w", err)
	}
	return &Prompts{
		system:   system,
		turn:     turn,
		Fallback: append([]string(nil), f.Fallback...),
	}, nil
}

// Render produces the system and user prompts for req.
func (p *Prompts) Render(req Request, verses int) (system, user string, err error) {
	data := promptData{
		Persona:      ParsePersona(req.Payload),
		Opponent:     ParsePersona(req.OpponentPayload),
		PriorContent: strings.Join(req.PriorContent, "\n"),
		Round:        req.Round,
		Verses:       verses,
	}
	var buf bytes.Buffer
	if err := p.system.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("rendering system prompt: %w", err)
	}
	system = buf.String()
	buf.Reset()
	if err := p.turn.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("rendering turn prompt: %w", err)
	}
	return system, buf.String(), nil
}
