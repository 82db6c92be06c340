// Package identity maps raw commit signatures and account handles to
// organization member logins.
package identity

import (
	"strings"
	"unicode"
)

const noReplyDomain = "users.noreply.github.com"

// Signature is the raw identity observed on a commit.
type Signature struct {
	Name  string
	Email string
	// Login is the account GitHub linked to the commit, if any.
	Login string
}

// Member is one known organization member.
type Member struct {
	Login string
	Name  string
	Email string
}

// Config configures resolution beyond the member directory.
type Config struct {
	// Aliases maps alternate emails or display names to member logins.
	Aliases map[string]string
	// FullNames maps member logins to known full names.
	FullNames map[string]string
	// BotSuffixes mark automation accounts, "[bot]" by default.
	BotSuffixes []string
}

// Resolver resolves signatures against a fixed member set. It is safe for
// concurrent use once built.
type Resolver struct {
	logins      map[string]string
	aliases     map[string]string
	normalized  map[string]string
	ambiguous   map[string]struct{}
	botSuffixes []string
}

// NewResolver indexes members for resolution.
func NewResolver(members []Member, cfg Config) *Resolver {
	r := &Resolver{
		logins:      make(map[string]string, len(members)),
		aliases:     make(map[string]string),
		normalized:  make(map[string]string),
		ambiguous:   make(map[string]struct{}),
		botSuffixes: make([]string, 0, len(cfg.BotSuffixes)),
	}
	for _, suffix := range cfg.BotSuffixes {
		if trimmed := strings.ToLower(strings.TrimSpace(suffix)); trimmed != "" {
			r.botSuffixes = append(r.botSuffixes, trimmed)
		}
	}
	if len(r.botSuffixes) == 0 {
		r.botSuffixes = []string{"[bot]"}
	}

	for _, member := range members {
		login := strings.TrimSpace(member.Login)
		if login == "" {
			continue
		}
		r.logins[strings.ToLower(login)] = login
	}

	for _, member := range members {
		login, ok := r.logins[strings.ToLower(strings.TrimSpace(member.Login))]
		if !ok {
			continue
		}
		if email := strings.ToLower(strings.TrimSpace(member.Email)); email != "" {
			r.aliases[email] = login
		}
		r.addNormalized(login, login)
		r.addNormalized(member.Name, login)
	}

	for login, fullName := range cfg.FullNames {
		if canonical, ok := r.logins[strings.ToLower(strings.TrimSpace(login))]; ok {
			r.addNormalized(fullName, canonical)
		}
	}
	for alias, login := range cfg.Aliases {
		canonical, ok := r.logins[strings.ToLower(strings.TrimSpace(login))]
		key := strings.ToLower(strings.TrimSpace(alias))
		if !ok || key == "" {
			continue
		}
		r.aliases[key] = canonical
	}

	return r
}

// Resolve maps a commit signature to a member login. The second result is
// false for bots and for signatures that match no member.
//
// Rules, first match wins: linked account login; email local-part (or the
// login part of a noreply address) equal to a login; configured or public
// email alias; configured name alias; normalized display name equal to a
// normalized login or full name.
func (r *Resolver) Resolve(sig Signature) (string, bool) {
	if r == nil || r.isBotSignature(sig) {
		return "", false
	}

	if login, ok := r.ResolveLogin(sig.Login); ok {
		return login, true
	}

	email := strings.ToLower(strings.TrimSpace(sig.Email))
	if local := emailLogin(email); local != "" {
		if login, ok := r.logins[local]; ok {
			return login, true
		}
	}
	if email != "" {
		if login, ok := r.aliases[email]; ok {
			return login, true
		}
	}

	name := strings.ToLower(strings.TrimSpace(sig.Name))
	if name != "" {
		if login, ok := r.aliases[name]; ok {
			return login, true
		}
	}

	key := Normalize(sig.Name)
	if key == "" {
		return "", false
	}
	if _, ambiguous := r.ambiguous[key]; ambiguous {
		return "", false
	}
	login, ok := r.normalized[key]
	return login, ok
}

// ResolveLogin maps an account handle from an issue or pull request to a
// member login, matching case-insensitively.
func (r *Resolver) ResolveLogin(handle string) (string, bool) {
	trimmed := strings.TrimSpace(handle)
	if r == nil || trimmed == "" || r.IsBot(trimmed) {
		return "", false
	}
	login, ok := r.logins[strings.ToLower(trimmed)]
	return login, ok
}

// IsBot reports whether value carries a bot suffix.
func (r *Resolver) IsBot(value string) bool {
	lowered := strings.ToLower(strings.TrimSpace(value))
	if lowered == "" {
		return false
	}
	for _, suffix := range r.botSuffixes {
		if strings.HasSuffix(lowered, suffix) {
			return true
		}
	}
	return false
}

// Members returns the number of indexed members.
func (r *Resolver) Members() int {
	if r == nil {
		return 0
	}
	return len(r.logins)
}

// Normalize lowercases value and drops everything but letters and digits.
func Normalize(value string) string {
	builder := strings.Builder{}
	for _, char := range strings.ToLower(value) {
		if unicode.IsLetter(char) || unicode.IsDigit(char) {
			builder.WriteRune(char)
		}
	}
	return builder.String()
}

func (r *Resolver) addNormalized(value, login string) {
	key := Normalize(value)
	if key == "" {
		return
	}
	if existing, ok := r.normalized[key]; ok && existing != login {
		r.ambiguous[key] = struct{}{}
		return
	}
	r.normalized[key] = login
}

func (r *Resolver) isBotSignature(sig Signature) bool {
	if r.IsBot(sig.Login) || r.IsBot(sig.Name) {
		return true
	}
	return r.IsBot(emailLogin(strings.ToLower(strings.TrimSpace(sig.Email))))
}

// emailLogin returns the candidate login of an email: the local-part, or
// for noreply addresses of the form id+login the part after '+'.
func emailLogin(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" {
		return ""
	}
	if domain == noReplyDomain {
		if _, login, hasID := strings.Cut(local, "+"); hasID {
			return login
		}
	}
	return local
}
