package bot

import "strings"

// DirectiveKind classifies an inbound message.
type DirectiveKind int

const (
	// DirectiveNone means the message does not address the bot. Unknown
	// prefix commands also land here so the channel stays quiet.
	DirectiveNone DirectiveKind = iota
	// DirectiveCommand is a recognized command invocation.
	DirectiveCommand
	// DirectivePrompt is a mention carrying freeform text for inference.
	DirectivePrompt
)

// Directive is the parsed form of an inbound message.
type Directive struct {
	Kind    DirectiveKind
	Command string   // lowercase command name, without prefix
	Args    []string // whitespace-split arguments
	ArgText string   // raw argument text, trimmed
	Prompt  string   // freeform text for DirectivePrompt
	Mention bool     // addressed via mention rather than prefix
}

// Router turns raw message text into directives. Known reports whether a
// command name is registered; unknown prefix invocations are ignored while
// unknown mention invocations fall through to freeform prompts.
type Router struct {
	Prefix string
	BotID  string
	Known  func(name string) bool
}

// Parse classifies one message. The prefix wins over mentions, so a
// prefix command may mention the bot in its arguments without being
// rerouted to freeform.
func (r *Router) Parse(text string) Directive {
	trimmed := strings.TrimSpace(text)

	if r.Prefix != "" && strings.HasPrefix(trimmed, r.Prefix) {
		body := trimmed[len(r.Prefix):]
		fields := strings.Fields(body)
		if len(fields) == 0 {
			return Directive{Kind: DirectiveNone}
		}
		name := strings.ToLower(fields[0])
		if r.Known == nil || !r.Known(name) {
			return Directive{Kind: DirectiveNone}
		}
		argText := strings.TrimSpace(strings.TrimPrefix(body, fields[0]))
		return Directive{
			Kind:    DirectiveCommand,
			Command: name,
			Args:    fields[1:],
			ArgText: argText,
		}
	}

	if r.BotID != "" {
		plain := "<@" + r.BotID + ">"
		nick := "<@!" + r.BotID + ">"
		switch {
		case strings.HasPrefix(trimmed, plain):
			return r.parseMention(strings.TrimSpace(trimmed[len(plain):]))
		case strings.HasPrefix(trimmed, nick):
			return r.parseMention(strings.TrimSpace(trimmed[len(nick):]))
		case strings.Contains(trimmed, plain) || strings.Contains(trimmed, nick):
			// Mentioned mid-sentence; the whole message is the prompt.
			rest := strings.ReplaceAll(trimmed, nick, " ")
			rest = strings.ReplaceAll(rest, plain, " ")
			return Directive{Kind: DirectivePrompt, Prompt: strings.TrimSpace(rest), Mention: true}
		}
	}

	return Directive{Kind: DirectiveNone}
}

func (r *Router) parseMention(rest string) Directive {
	fields := strings.Fields(rest)
	if len(fields) > 0 {
		name := strings.ToLower(fields[0])
		if r.Known != nil && r.Known(name) {
			argText := strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
			return Directive{
				Kind:    DirectiveCommand,
				Command: name,
				Args:    fields[1:],
				ArgText: argText,
				Mention: true,
			}
		}
	}
	return Directive{Kind: DirectivePrompt, Prompt: rest, Mention: true}
}
