package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"switchboard/internal/models"
	"switchboard/internal/ollama"
	"switchboard/internal/perm"
	"switchboard/internal/store"
)

// Denial and status texts sent back to chat.
const (
	busyNotice         = "I'm still processing your previous request. Please wait."
	deniedGeneric      = "You don't have permission to use this command."
	deniedSetModel     = "You don't have permission to change the model."
	deniedModels       = "You don't have permission to manage allowed models."
	deniedRoles        = "You don't have permission to manage role permissions."
	deniedBotName      = "You don't have permission to change the bot's name."
	deniedRandom       = "You don't have permission to manage random replies."
	deniedSystem       = "You don't have permission to manage system instructions."
	deniedPagination   = "You don't have permission to manage pagination settings."
	deniedResetPerms   = "Only the server owner can reset permissions."
	genericErrorNotice = "An error occurred while processing your request."
)

// Reply is a command handler's outcome. Paginate routes the text through
// the pagination engine on delivery; plain replies go out as a single
// send (chunked only if over the platform limit).
type Reply struct {
	Text     string
	Paginate bool
}

// Auditor records notable events. The daemon backs it with the audit
// database when one is configured.
type Auditor func(event string, m Message, content, response string)

// Inference is the slice of the Ollama client the command layer uses.
type Inference interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Commands executes the directed-command surface. Each handler checks its
// permission, applies the change, persists the community record, and
// returns the reply text. The busy gate and delivery live in the
// dispatcher, not here.
type Commands struct {
	store     *store.Store
	inference Inference
	adapter   Adapter
	prefix    string
	audit     Auditor

	table map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, m Message, d Directive, cc *store.Community) Reply

// CommandsOpts holds parameters for creating a Commands.
type CommandsOpts struct {
	Store     *store.Store
	Inference Inference
	Adapter   Adapter
	Prefix    string
	Audit     Auditor // optional
}

// NewCommands creates a Commands.
func NewCommands(opts CommandsOpts) (*Commands, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: commands: store is required")
	}
	if opts.Inference == nil {
		return nil, fmt.Errorf("bot: commands: inference is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: commands: adapter is required")
	}
	audit := opts.Audit
	if audit == nil {
		audit = func(string, Message, string, string) {}
	}
	c := &Commands{
		store:     opts.Store,
		inference: opts.Inference,
		adapter:   opts.Adapter,
		prefix:    opts.Prefix,
		audit:     audit,
	}
	c.table = map[string]handlerFunc{
		"ask":              c.cmdAsk,
		"models":           c.cmdModels,
		"setmodel":         c.cmdSetModel,
		"search":           c.cmdSearch,
		"reference":        c.cmdReference,
		"allowmodel":       c.cmdAllowModel,
		"disallowmodel":    c.cmdDisallowModel,
		"allowallmodels":   c.cmdAllowAllModels,
		"addrole":          c.cmdAddRole,
		"removerole":       c.cmdRemoveRole,
		"listroles":        c.cmdListRoles,
		"resetpermissions": c.cmdResetPermissions,
		"setbotname":       c.cmdSetBotName,
		"resetbotname":     c.cmdResetBotName,
		"randomreplies":    c.cmdRandomReplies,
		"system":           c.cmdSystem,
		"pagination":       c.cmdPagination,
		"help":             c.cmdHelp,
		"license":          c.cmdLicense,
		"ping":             c.cmdPing,
	}
	return c, nil
}

// Known reports whether name is a registered command. The router uses it
// to decide between command dispatch and freeform fallthrough.
func (c *Commands) Known(name string) bool {
	_, ok := c.table[name]
	return ok
}

// Execute runs one parsed command and returns its reply.
func (c *Commands) Execute(ctx context.Context, m Message, d Directive) Reply {
	cc, err := c.store.Get(m.CommunityID)
	if err != nil {
		log.Printf("bot: load community %s: %v", m.CommunityID, err)
		return Reply{}
	}
	h, ok := c.table[d.Command]
	if !ok {
		// Router already filtered unknown names; keep quiet regardless.
		return Reply{}
	}
	c.audit(models.AuditCommand, m, strings.TrimSpace(d.Command+" "+d.ArgText), "")
	return h(ctx, m, d, cc)
}

// save persists a mutated community record. On failure the in-memory
// state is already updated, so the command still took effect for this
// process; the caller gets a warning suffix to append to its reply.
func (c *Commands) save(cc *store.Community) string {
	if err := c.store.Save(cc); err != nil {
		log.Printf("bot: save community %s: %v", cc.ID, err)
		return fmt.Sprintf("\nWarning: settings could not be saved to disk: %v", err)
	}
	return ""
}

func (c *Commands) generate(ctx context.Context, cc *store.Community, prompt string) (string, error) {
	return c.inference.Generate(ctx, ollama.GenerateRequest{
		Model:  cc.DefaultModel,
		Prompt: prompt,
		System: cc.SystemInstructions,
	})
}

// errorReply converts an inference failure into the user-facing error
// text and records it.
func (c *Commands) errorReply(m Message, what string, err error) Reply {
	var se *ollama.StatusError
	text := fmt.Sprintf("Error: %v", err)
	if errors.As(err, &se) {
		text = fmt.Sprintf("Error: Received status code %d from Ollama API", se.Code)
	}
	c.audit(models.AuditError, m, what, text)
	return Reply{Text: text}
}

func (c *Commands) denied(m Message, what, text string) Reply {
	c.audit(models.AuditPermissionDenied, m, what, text)
	return Reply{Text: text}
}

// ---- reply-eligible commands ----

func (c *Commands) cmdAsk(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanReplyTo(m.Actor, cc.Permissions[store.PermReplyTo]) {
		return c.denied(m, "ask", deniedGeneric)
	}
	if d.ArgText == "" {
		return Reply{Text: fmt.Sprintf("Usage: `%sask <question>`", c.prefix)}
	}
	c.typing(ctx, m)
	answer, err := c.generate(ctx, cc, d.ArgText)
	if err != nil {
		return c.errorReply(m, "ask", err)
	}
	c.audit(models.AuditReply, m, d.ArgText, answer)
	return Reply{Text: answer, Paginate: true}
}

func (c *Commands) cmdPing(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	return Reply{Text: "Pong!"}
}

func (c *Commands) cmdModels(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	names, err := c.inference.ListModels(ctx)
	if err != nil {
		return c.errorReply(m, "models", err)
	}
	if len(names) == 0 {
		return Reply{Text: "No models found. Pull models using 'ollama pull model_name'"}
	}

	var header string
	if len(cc.AllowedModels) > 0 {
		header = fmt.Sprintf("Available models (only %d allowed):\n", len(cc.AllowedModels))
	} else {
		header = "Available models (all allowed):\n"
	}
	lines := make([]string, 0, len(names))
	for _, name := range names {
		switch {
		case !cc.ModelAllowed(name):
			lines = append(lines, fmt.Sprintf("- %s (not allowed)", name))
		case name == cc.DefaultModel:
			lines = append(lines, fmt.Sprintf("- %s (current)", name))
		default:
			lines = append(lines, "- "+name)
		}
	}
	return Reply{Text: header + strings.Join(lines, "\n"), Paginate: true}
}

func (c *Commands) cmdSetModel(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanSetModel(m.Actor, cc.Permissions[store.PermSetModel]) {
		return c.denied(m, "setmodel", deniedSetModel)
	}
	if d.ArgText == "" {
		return Reply{Text: fmt.Sprintf("Usage: `%ssetmodel <model_name>`", c.prefix)}
	}
	name := d.ArgText

	names, err := c.inference.ListModels(ctx)
	if err != nil {
		return c.errorReply(m, "setmodel", err)
	}
	if !contains(names, name) {
		return Reply{Text: fmt.Sprintf("Model '%s' not found. Available models: %s", name, strings.Join(names, ", "))}
	}
	if !cc.ModelAllowed(name) {
		return Reply{Text: fmt.Sprintf("Model '%s' is not in the allowed models list.", name)}
	}

	cc.DefaultModel = name
	warn := c.save(cc)
	c.audit(models.AuditConfigChange, m, "setmodel "+name, "")
	return Reply{Text: fmt.Sprintf("Default model set to %s", name) + warn}
}

func (c *Commands) cmdSearch(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanReplyTo(m.Actor, cc.Permissions[store.PermReplyTo]) {
		return c.denied(m, "search", deniedGeneric)
	}
	if d.ArgText == "" {
		return Reply{Text: fmt.Sprintf("Usage: `%ssearch <query>`", c.prefix)}
	}
	query := d.ArgText

	history, err := c.adapter.History(ctx, m.ChannelID, 100)
	if err != nil {
		return c.errorReply(m, "search", err)
	}

	var hits []HistoryMessage
	lower := strings.ToLower(query)
	for _, h := range history {
		if h.ID == m.MessageID {
			continue
		}
		if strings.Contains(strings.ToLower(h.Text), lower) {
			hits = append(hits, h)
		}
	}
	if len(hits) == 0 {
		return Reply{Text: fmt.Sprintf("No messages found containing '%s'", query)}
	}

	shown := hits
	if len(shown) > 5 {
		shown = shown[:5]
	}
	var lines []string
	for i, h := range shown {
		content := h.Text
		if len(content) > 100 {
			content = content[:100] + "..."
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s: %s", i+1, h.Timestamp.Format("2006-01-02 15:04"), h.UserName, content))
		lines = append(lines, fmt.Sprintf("   Message ID: %s", h.ID))
	}
	text := fmt.Sprintf("Found %d messages containing '%s':\n\n%s", len(hits), query, strings.Join(lines, "\n"))
	if len(hits) > 5 {
		text += fmt.Sprintf("\n\n(Showing 5 of %d results)", len(hits))
	}
	return Reply{Text: text, Paginate: true}
}

func (c *Commands) cmdReference(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanReplyTo(m.Actor, cc.Permissions[store.PermReplyTo]) {
		return c.denied(m, "reference", deniedGeneric)
	}
	if len(d.Args) == 0 {
		return Reply{Text: fmt.Sprintf("Usage: `%sreference <message_id> [prompt]`", c.prefix)}
	}
	fetcher, ok := c.adapter.(MessageFetcher)
	if !ok {
		return Reply{Text: "Referencing messages is not supported on this platform."}
	}

	msgID := d.Args[0]
	ref, err := fetcher.FetchMessage(ctx, m.ChannelID, msgID)
	if err != nil {
		return Reply{Text: fmt.Sprintf("Message with ID %s not found in this channel.", msgID)}
	}

	question := strings.TrimSpace(strings.TrimPrefix(d.ArgText, msgID))
	quoted := fmt.Sprintf("Referenced message from %s at %s:\n%q",
		ref.UserName, ref.Timestamp.Format("2006-01-02 15:04"), ref.Text)
	prompt := quoted + "\n\nPlease analyze or summarize this message."
	if question != "" {
		prompt = quoted + "\n\nUser question: " + question
	}

	c.typing(ctx, m)
	answer, err := c.generate(ctx, cc, prompt)
	if err != nil {
		return c.errorReply(m, "reference", err)
	}
	c.audit(models.AuditReply, m, prompt, answer)
	text := fmt.Sprintf("**Referencing message from %s:**\n> %s\n\n%s", ref.UserName, ref.Text, answer)
	return Reply{Text: text, Paginate: true}
}

// ---- model allow-list management ----

func (c *Commands) cmdAllowModel(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "allowmodel", deniedModels)
	}
	if len(d.Args) == 0 {
		return Reply{Text: fmt.Sprintf("Usage: `%sallowmodel <model_name> [model_name...]`", c.prefix)}
	}

	available, err := c.inference.ListModels(ctx)
	if err != nil {
		return c.errorReply(m, "allowmodel", err)
	}

	var added, already, notFound []string
	for _, name := range d.Args {
		switch {
		case !contains(available, name):
			notFound = append(notFound, name)
		case contains(cc.AllowedModels, name):
			already = append(already, name)
		default:
			cc.AllowedModels = append(cc.AllowedModels, name)
			added = append(added, name)
		}
	}

	var warn string
	if len(added) > 0 {
		warn = c.save(cc)
		c.audit(models.AuditConfigChange, m, "allowmodel "+strings.Join(added, " "), "")
	}

	var parts []string
	if len(added) == 1 {
		parts = append(parts, fmt.Sprintf("Model '%s' added to allowed models list.", added[0]))
	} else if len(added) > 1 {
		parts = append(parts, fmt.Sprintf("Models added to allowed list: %s", strings.Join(added, ", ")))
	}
	if len(already) == 1 {
		parts = append(parts, fmt.Sprintf("Model '%s' was already in the allowed models list.", already[0]))
	} else if len(already) > 1 {
		parts = append(parts, fmt.Sprintf("Models already in allowed list: %s", strings.Join(already, ", ")))
	}
	if len(notFound) == 1 {
		parts = append(parts, fmt.Sprintf("Model '%s' not found. Available models: %s", notFound[0], strings.Join(available, ", ")))
	} else if len(notFound) > 1 {
		parts = append(parts, fmt.Sprintf("Models not found: %s. Available models: %s", strings.Join(notFound, ", "), strings.Join(available, ", ")))
	}
	return Reply{Text: strings.Join(parts, "\n") + warn}
}

func (c *Commands) cmdDisallowModel(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "disallowmodel", deniedModels)
	}
	if len(d.Args) == 0 {
		return Reply{Text: fmt.Sprintf("Usage: `%sdisallowmodel <model_name> [model_name...]`", c.prefix)}
	}

	var removed, notListed []string
	for _, name := range d.Args {
		if i := index(cc.AllowedModels, name); i >= 0 {
			cc.AllowedModels = append(cc.AllowedModels[:i], cc.AllowedModels[i+1:]...)
			removed = append(removed, name)
		} else {
			notListed = append(notListed, name)
		}
	}

	var warn string
	if len(removed) > 0 {
		warn = c.save(cc)
		c.audit(models.AuditConfigChange, m, "disallowmodel "+strings.Join(removed, " "), "")
	}

	var parts []string
	if len(removed) == 1 {
		parts = append(parts, fmt.Sprintf("Model '%s' removed from allowed models list.", removed[0]))
	} else if len(removed) > 1 {
		parts = append(parts, fmt.Sprintf("Models removed from allowed list: %s", strings.Join(removed, ", ")))
	}
	if len(notListed) == 1 {
		parts = append(parts, fmt.Sprintf("Model '%s' was not in the allowed models list.", notListed[0]))
	} else if len(notListed) > 1 {
		parts = append(parts, fmt.Sprintf("Models not in allowed list: %s", strings.Join(notListed, ", ")))
	}
	return Reply{Text: strings.Join(parts, "\n") + warn}
}

func (c *Commands) cmdAllowAllModels(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "allowallmodels", deniedModels)
	}
	cc.AllowedModels = nil
	warn := c.save(cc)
	c.audit(models.AuditConfigChange, m, "allowallmodels", "")
	return Reply{Text: "All models are now allowed." + warn}
}

// ---- role permission management ----

// resolveRole matches a role argument against the community's role list:
// "@" prefix stripped, exact case-insensitive match first, then substring.
func resolveRole(roles []Role, name string) (Role, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	for _, r := range roles {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	lower := strings.ToLower(name)
	for _, r := range roles {
		if strings.Contains(strings.ToLower(r.Name), lower) {
			return r, true
		}
	}
	return Role{}, false
}

// splitRoleArgs splits the raw argument text after the permission type
// into role names. Commas separate names that contain spaces.
func splitRoleArgs(argText, permType string) []string {
	rest := strings.TrimSpace(strings.TrimPrefix(argText, permType))
	if rest == "" {
		return nil
	}
	if strings.Contains(rest, ",") {
		var names []string
		for _, part := range strings.Split(rest, ",") {
			if part = strings.TrimSpace(part); part != "" {
				names = append(names, part)
			}
		}
		return names
	}
	return []string{rest}
}

func invalidPermType() string {
	return fmt.Sprintf("Invalid permission type. Valid types: %s", strings.Join(store.PermissionKinds, ", "))
}

func validPermType(name string) bool {
	for _, k := range store.PermissionKinds {
		if k == name {
			return true
		}
	}
	return false
}

func (c *Commands) communityRoles(ctx context.Context, communityID string) ([]Role, error) {
	dir, ok := c.adapter.(RoleDirectory)
	if !ok {
		return nil, fmt.Errorf("bot: role management is not supported on this platform")
	}
	return dir.Roles(ctx, communityID)
}

func (c *Commands) cmdAddRole(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "addrole", deniedRoles)
	}
	if len(d.Args) < 2 {
		return Reply{Text: fmt.Sprintf("Usage: `%saddrole <permission_type> <role> [, role...]`", c.prefix)}
	}
	permType := d.Args[0]
	if !validPermType(permType) {
		return Reply{Text: invalidPermType()}
	}
	roles, err := c.communityRoles(ctx, m.CommunityID)
	if err != nil {
		return Reply{Text: "Role management is not supported on this platform."}
	}

	var added, already, notFound []string
	for _, name := range splitRoleArgs(d.ArgText, permType) {
		role, ok := resolveRole(roles, name)
		if !ok {
			notFound = append(notFound, name)
			continue
		}
		if contains(cc.Permissions[permType], role.ID) {
			already = append(already, role.Name)
			continue
		}
		cc.Permissions[permType] = append(cc.Permissions[permType], role.ID)
		added = append(added, role.Name)
	}

	var warn string
	if len(added) > 0 {
		warn = c.save(cc)
		c.audit(models.AuditConfigChange, m, fmt.Sprintf("addrole %s %s", permType, strings.Join(added, ", ")), "")
	}

	var parts []string
	if len(added) == 1 {
		parts = append(parts, fmt.Sprintf("Role '%s' added to %s permission.", added[0], permType))
	} else if len(added) > 1 {
		parts = append(parts, fmt.Sprintf("Roles added to %s permission: %s", permType, strings.Join(added, ", ")))
	}
	if len(already) == 1 {
		parts = append(parts, fmt.Sprintf("Role '%s' already had %s permission.", already[0], permType))
	} else if len(already) > 1 {
		parts = append(parts, fmt.Sprintf("Roles that already had %s permission: %s", permType, strings.Join(already, ", ")))
	}
	if len(notFound) == 1 {
		parts = append(parts, fmt.Sprintf("Role '%s' not found.", notFound[0]))
	} else if len(notFound) > 1 {
		parts = append(parts, fmt.Sprintf("Roles not found: %s", strings.Join(notFound, ", ")))
	}
	return Reply{Text: strings.Join(parts, "\n") + warn}
}

func (c *Commands) cmdRemoveRole(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "removerole", deniedRoles)
	}
	if len(d.Args) < 2 {
		return Reply{Text: fmt.Sprintf("Usage: `%sremoverole <permission_type> <role> [, role...]`", c.prefix)}
	}
	permType := d.Args[0]
	if !validPermType(permType) {
		return Reply{Text: invalidPermType()}
	}
	roles, err := c.communityRoles(ctx, m.CommunityID)
	if err != nil {
		return Reply{Text: "Role management is not supported on this platform."}
	}

	var removed, notHeld, notFound []string
	for _, name := range splitRoleArgs(d.ArgText, permType) {
		role, ok := resolveRole(roles, name)
		if !ok {
			notFound = append(notFound, name)
			continue
		}
		if i := index(cc.Permissions[permType], role.ID); i >= 0 {
			cc.Permissions[permType] = append(cc.Permissions[permType][:i], cc.Permissions[permType][i+1:]...)
			removed = append(removed, role.Name)
		} else {
			notHeld = append(notHeld, role.Name)
		}
	}

	var warn string
	if len(removed) > 0 {
		warn = c.save(cc)
		c.audit(models.AuditConfigChange, m, fmt.Sprintf("removerole %s %s", permType, strings.Join(removed, ", ")), "")
	}

	var parts []string
	if len(removed) == 1 {
		parts = append(parts, fmt.Sprintf("Role '%s' removed from %s permission.", removed[0], permType))
	} else if len(removed) > 1 {
		parts = append(parts, fmt.Sprintf("Roles removed from %s permission: %s", permType, strings.Join(removed, ", ")))
	}
	if len(notHeld) == 1 {
		parts = append(parts, fmt.Sprintf("Role '%s' did not have %s permission.", notHeld[0], permType))
	} else if len(notHeld) > 1 {
		parts = append(parts, fmt.Sprintf("Roles that did not have %s permission: %s", permType, strings.Join(notHeld, ", ")))
	}
	if len(notFound) == 1 {
		parts = append(parts, fmt.Sprintf("Role '%s' not found.", notFound[0]))
	} else if len(notFound) > 1 {
		parts = append(parts, fmt.Sprintf("Roles not found: %s", strings.Join(notFound, ", ")))
	}
	return Reply{Text: strings.Join(parts, "\n") + warn}
}

// describeEmptyPerm explains the default behavior of a permission type
// with no roles assigned.
func describeEmptyPerm(permType string) string {
	switch permType {
	case store.PermSetModel, store.PermManageConfig:
		return fmt.Sprintf("**%s** permission: No roles assigned (only server owner and administrators)", permType)
	case store.PermReplyTo:
		return fmt.Sprintf("**%s** permission: No roles assigned (replies to everyone)", permType)
	default:
		return fmt.Sprintf("**%s** permission: No roles assigned", permType)
	}
}

func (c *Commands) cmdListRoles(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	var only string
	if len(d.Args) > 0 {
		only = d.Args[0]
		if !validPermType(only) {
			return Reply{Text: invalidPermType()}
		}
	}

	roleNames := map[string]string{}
	if dir, ok := c.adapter.(RoleDirectory); ok {
		if roles, err := dir.Roles(ctx, m.CommunityID); err == nil {
			for _, r := range roles {
				roleNames[r.ID] = r.Name
			}
		}
	}

	kinds := store.PermissionKinds
	if only != "" {
		kinds = []string{only}
	}
	var lines []string
	for _, kind := range kinds {
		var names []string
		for _, id := range cc.Permissions[kind] {
			if name, ok := roleNames[id]; ok {
				names = append(names, name)
			} else {
				names = append(names, id)
			}
		}
		if len(names) > 0 {
			lines = append(lines, fmt.Sprintf("**%s** permission roles: %s", kind, strings.Join(names, ", ")))
		} else {
			lines = append(lines, describeEmptyPerm(kind))
		}
	}
	return Reply{Text: strings.Join(lines, "\n"), Paginate: true}
}

func (c *Commands) cmdResetPermissions(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !m.Actor.IsOwner {
		return c.denied(m, "resetpermissions", deniedResetPerms)
	}

	var msg string
	if len(d.Args) > 0 {
		permType := d.Args[0]
		if !validPermType(permType) {
			return Reply{Text: invalidPermType()}
		}
		cc.Permissions[permType] = nil
		switch permType {
		case store.PermSetModel, store.PermManageConfig:
			msg = fmt.Sprintf("Reset %s permission to default (only server owner and administrators).", permType)
		case store.PermReplyTo:
			msg = fmt.Sprintf("Reset %s permission to default (replies to everyone).", permType)
		}
	} else {
		cc.Permissions = map[string][]string{
			store.PermSetModel:     nil,
			store.PermManageConfig: nil,
			store.PermReplyTo:      nil,
		}
		msg = "Reset all permissions to default."
	}
	warn := c.save(cc)
	c.audit(models.AuditConfigChange, m, "resetpermissions "+d.ArgText, "")
	return Reply{Text: msg + warn}
}

// ---- bot identity ----

func (c *Commands) cmdSetBotName(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "setbotname", deniedBotName)
	}
	if d.ArgText == "" {
		return Reply{Text: fmt.Sprintf("Usage: `%ssetbotname <name>`", c.prefix)}
	}
	renamer, ok := c.adapter.(Renamer)
	if !ok {
		return Reply{Text: "Renaming the bot is not supported on this platform."}
	}
	if err := renamer.SetDisplayName(ctx, m.CommunityID, d.ArgText); err != nil {
		return Reply{Text: fmt.Sprintf("Error: %v", err)}
	}
	cc.BotDisplayName = d.ArgText
	warn := c.save(cc)
	c.audit(models.AuditConfigChange, m, "setbotname "+d.ArgText, "")
	return Reply{Text: fmt.Sprintf("Bot nickname changed to '%s'", d.ArgText) + warn}
}

func (c *Commands) cmdResetBotName(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "resetbotname", deniedBotName)
	}
	renamer, ok := c.adapter.(Renamer)
	if !ok {
		return Reply{Text: "Renaming the bot is not supported on this platform."}
	}
	if err := renamer.SetDisplayName(ctx, m.CommunityID, ""); err != nil {
		return Reply{Text: fmt.Sprintf("Error: %v", err)}
	}
	cc.BotDisplayName = ""
	warn := c.save(cc)
	c.audit(models.AuditConfigChange, m, "resetbotname", "")
	return Reply{Text: "Bot nickname reset to default" + warn}
}

// ---- feature toggles ----

func (c *Commands) cmdRandomReplies(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "randomreplies", deniedRandom)
	}
	if len(d.Args) == 0 {
		return Reply{Text: "Please provide a parameter (enable/disable/status/probability/cooldown)."}
	}

	var msg string
	switch strings.ToLower(d.Args[0]) {
	case "enable":
		cc.RandomReply.Enabled = true
		msg = "Random replies enabled." + c.save(cc)
	case "disable":
		cc.RandomReply.Enabled = false
		msg = "Random replies disabled." + c.save(cc)
	case "status":
		status := "disabled"
		if cc.RandomReply.Enabled {
			status = "enabled"
		}
		msg = fmt.Sprintf("Random replies are currently %s.\nProbability: %g%%\nCooldown: %d seconds",
			status, cc.RandomReply.Probability*100, cc.RandomReply.CooldownSec)
	case "probability":
		if len(d.Args) < 2 {
			return Reply{Text: "Please provide a probability value between 0.0 and 1.0."}
		}
		prob, err := strconv.ParseFloat(d.Args[1], 64)
		if err != nil {
			msg = "Invalid probability value. Please provide a number between 0.0 and 1.0."
		} else if prob < 0 || prob > 1 {
			msg = "Probability must be between 0.0 and 1.0."
		} else {
			cc.RandomReply.Probability = prob
			msg = fmt.Sprintf("Random reply probability set to %g%%.", prob*100) + c.save(cc)
		}
	case "cooldown":
		if len(d.Args) < 2 {
			return Reply{Text: "Please provide a cooldown value in seconds."}
		}
		cooldown, err := strconv.Atoi(d.Args[1])
		if err != nil {
			msg = "Invalid cooldown value. Please provide a positive number."
		} else if cooldown < 0 {
			msg = "Cooldown must be a positive number."
		} else {
			cc.RandomReply.CooldownSec = cooldown
			msg = fmt.Sprintf("Random reply cooldown set to %d seconds.", cooldown) + c.save(cc)
		}
	default:
		msg = "Invalid parameter. Valid parameters: enable, disable, status, probability, cooldown."
	}
	c.audit(models.AuditConfigChange, m, "randomreplies "+d.ArgText, "")
	return Reply{Text: msg}
}

func (c *Commands) cmdSystem(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "system", deniedSystem)
	}
	switch strings.ToLower(d.ArgText) {
	case "show":
		if cc.SystemInstructions == "" {
			return Reply{Text: "No system instructions are currently set."}
		}
		return Reply{Text: fmt.Sprintf("Current system instructions:\n\n```\n%s\n```", cc.SystemInstructions), Paginate: true}
	case "reset":
		cc.SystemInstructions = ""
		warn := c.save(cc)
		c.audit(models.AuditConfigChange, m, "system reset", "")
		return Reply{Text: "System instructions have been reset." + warn}
	case "":
		return Reply{Text: "Please provide instructions or use 'show' to view current instructions or 'reset' to clear them."}
	default:
		cc.SystemInstructions = d.ArgText
		warn := c.save(cc)
		c.audit(models.AuditConfigChange, m, "system <set>", "")
		return Reply{Text: "System instructions have been set." + warn}
	}
}

func (c *Commands) cmdPagination(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	if !perm.CanManageConfig(m.Actor, cc.Permissions[store.PermManageConfig]) {
		return c.denied(m, "pagination", deniedPagination)
	}
	if len(d.Args) == 0 {
		return Reply{Text: "Please provide a parameter (enable/disable/status/pagesize)."}
	}

	var msg string
	switch strings.ToLower(d.Args[0]) {
	case "enable":
		cc.Pagination.Enabled = true
		msg = "Paginated responses enabled." + c.save(cc)
	case "disable":
		cc.Pagination.Enabled = false
		msg = "Paginated responses disabled." + c.save(cc)
	case "status":
		status := "disabled"
		if cc.Pagination.Enabled {
			status = "enabled"
		}
		msg = fmt.Sprintf("Paginated responses are currently %s.\nPage size: %d characters", status, cc.Pagination.PageSize)
	case "pagesize":
		if len(d.Args) < 2 {
			return Reply{Text: "Please provide a page size value in characters."}
		}
		size, err := strconv.Atoi(d.Args[1])
		if err != nil {
			msg = fmt.Sprintf("Invalid page size value. Please provide a number between %d and %d.", store.MinPageSize, store.MaxPageSize)
		} else if size < store.MinPageSize || size > store.MaxPageSize {
			msg = fmt.Sprintf("Page size must be between %d and %d characters.", store.MinPageSize, store.MaxPageSize)
		} else {
			cc.Pagination.PageSize = size
			msg = fmt.Sprintf("Page size set to %d characters.", size) + c.save(cc)
		}
	default:
		msg = "Invalid parameter. Valid parameters: enable, disable, status, pagesize."
	}
	c.audit(models.AuditConfigChange, m, "pagination "+d.ArgText, "")
	return Reply{Text: msg}
}

// ---- informational ----

func (c *Commands) cmdHelp(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	p := c.prefix
	text := "**Switchboard Commands**\n\n" +
		"**Basic:**\n" +
		fmt.Sprintf("`%sask <question>` - Ask a question to the AI model\n", p) +
		fmt.Sprintf("`%ssearch <query>` - Search recent channel messages\n", p) +
		fmt.Sprintf("`%sreference <message_id> [prompt]` - Ask about a referenced message\n", p) +
		fmt.Sprintf("`%smodels` - List available models\n", p) +
		fmt.Sprintf("`%ssetmodel <model_name>` - Change the current model (requires permission)\n", p) +
		fmt.Sprintf("`%sping` - Check if the bot is online. Replies with 'Pong!'\n", p) +
		"\n**Model management** (manage_config):\n" +
		fmt.Sprintf("`%sallowmodel <name...>` - Add models to the allowed list\n", p) +
		fmt.Sprintf("`%sdisallowmodel <name...>` - Remove models from the allowed list\n", p) +
		fmt.Sprintf("`%sallowallmodels` - Allow all models\n", p) +
		"\n**Permissions:**\n" +
		fmt.Sprintf("`%saddrole <permission_type> <role>` - Grant a role a permission\n", p) +
		fmt.Sprintf("`%sremoverole <permission_type> <role>` - Revoke a role's permission\n", p) +
		fmt.Sprintf("`%slistroles [permission_type]` - List permission role assignments\n", p) +
		fmt.Sprintf("`%sresetpermissions [permission_type]` - Reset permissions (owner only)\n", p) +
		"\n**Behavior** (manage_config):\n" +
		fmt.Sprintf("`%ssetbotname <name>` / `%sresetbotname` - Change or reset the bot's display name\n", p, p) +
		fmt.Sprintf("`%srandomreplies <enable|disable|status|probability X|cooldown X>`\n", p) +
		fmt.Sprintf("`%ssystem <text|show|reset>` - Manage system instructions\n", p) +
		fmt.Sprintf("`%spagination <enable|disable|status|pagesize X>`\n", p) +
		"\n**Other:**\n" +
		fmt.Sprintf("`%shelp` - This message\n", p) +
		fmt.Sprintf("`%slicense` - Show the license\n", p) +
		"\nYou can also mention the bot with a freeform question."
	return Reply{Text: text, Paginate: true}
}

func (c *Commands) cmdLicense(ctx context.Context, m Message, d Directive, cc *store.Community) Reply {
	return Reply{Text: licenseText, Paginate: true}
}

// typing shows a typing indicator when the platform supports one. Errors
// are ignored; the indicator is cosmetic.
func (c *Commands) typing(ctx context.Context, m Message) {
	if t, ok := c.adapter.(Typer); ok {
		t.Typing(ctx, m.ChannelID)
	}
}

func contains(list []string, s string) bool {
	return index(list, s) >= 0
}

func index(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// Names returns the registered command names, sorted. The panel shows
// this list.
func (c *Commands) Names() []string {
	names := make([]string, 0, len(c.table))
	for name := range c.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
