package bot

import (
	"reflect"
	"testing"
)

func testRouter() *Router {
	known := map[string]bool{"ask": true, "ping": true, "setmodel": true}
	return &Router{
		Prefix: "!",
		BotID:  "bot-1",
		Known:  func(name string) bool { return known[name] },
	}
}

func TestRouterParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Directive
	}{
		{
			name: "plain chatter",
			text: "just talking here",
			want: Directive{Kind: DirectiveNone},
		},
		{
			name: "prefix command",
			text: "!ask what is Go?",
			want: Directive{Kind: DirectiveCommand, Command: "ask", Args: []string{"what", "is", "Go?"}, ArgText: "what is Go?"},
		},
		{
			name: "prefix command is case-insensitive",
			text: "!PING",
			want: Directive{Kind: DirectiveCommand, Command: "ping", Args: []string{}, ArgText: ""},
		},
		{
			name: "prefix command mentioning the bot stays a command",
			text: "!ask tell <@bot-1> about Go",
			want: Directive{Kind: DirectiveCommand, Command: "ask", Args: []string{"tell", "<@bot-1>", "about", "Go"}, ArgText: "tell <@bot-1> about Go"},
		},
		{
			name: "unknown prefix command stays quiet",
			text: "!frobnicate now",
			want: Directive{Kind: DirectiveNone},
		},
		{
			name: "bare prefix stays quiet",
			text: "!",
			want: Directive{Kind: DirectiveNone},
		},
		{
			name: "mention with known command",
			text: "<@bot-1> setmodel mistral",
			want: Directive{Kind: DirectiveCommand, Command: "setmodel", Args: []string{"mistral"}, ArgText: "mistral", Mention: true},
		},
		{
			name: "nickname mention form",
			text: "<@!bot-1> ping",
			want: Directive{Kind: DirectiveCommand, Command: "ping", Args: []string{}, ArgText: "", Mention: true},
		},
		{
			name: "mention with freeform text",
			text: "<@bot-1> what do you think about this?",
			want: Directive{Kind: DirectivePrompt, Prompt: "what do you think about this?", Mention: true},
		},
		{
			name: "trailing mention",
			text: "can you help <@bot-1>",
			want: Directive{Kind: DirectivePrompt, Prompt: "can you help", Mention: true},
		},
		{
			name: "empty mention",
			text: "<@bot-1>",
			want: Directive{Kind: DirectivePrompt, Prompt: "", Mention: true},
		},
		{
			name: "mention of someone else",
			text: "<@other-user> hello",
			want: Directive{Kind: DirectiveNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testRouter().Parse(tt.text)
			if got.Kind != tt.want.Kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			if got.Command != tt.want.Command {
				t.Errorf("Command = %q, want %q", got.Command, tt.want.Command)
			}
			if tt.want.Args != nil && !reflect.DeepEqual(got.Args, tt.want.Args) {
				t.Errorf("Args = %v, want %v", got.Args, tt.want.Args)
			}
			if got.ArgText != tt.want.ArgText {
				t.Errorf("ArgText = %q, want %q", got.ArgText, tt.want.ArgText)
			}
			if got.Prompt != tt.want.Prompt {
				t.Errorf("Prompt = %q, want %q", got.Prompt, tt.want.Prompt)
			}
			if got.Mention != tt.want.Mention {
				t.Errorf("Mention = %v, want %v", got.Mention, tt.want.Mention)
			}
		})
	}
}

func TestRouterParse_NoBotID(t *testing.T) {
	r := &Router{Prefix: "!", Known: func(string) bool { return true }}
	got := r.Parse("<@bot-1> hello")
	if got.Kind != DirectiveNone {
		t.Errorf("Kind = %v, want DirectiveNone without a bot ID", got.Kind)
	}
}
