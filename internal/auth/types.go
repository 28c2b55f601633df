package auth

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	DefaultTheme             = "dark"
	DefaultAutoLogoutMinutes = 30
	vaultFileName            = "passwords.enc"
)

type Settings struct {
	Theme             string `json:"theme"`
	AutoLogoutMinutes int    `json:"auto_logout_minutes"`
	VaultPath         string `json:"vault_path"`
}

// UnmarshalJSON also accepts the auto_logout / password_file names used by
// older registries.
func (s *Settings) UnmarshalJSON(b []byte) error {
	type plain Settings
	var aux struct {
		plain
		AutoLogout   *int   `json:"auto_logout"`
		PasswordFile string `json:"password_file"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*s = Settings(aux.plain)
	if s.AutoLogoutMinutes == 0 && aux.AutoLogout != nil {
		s.AutoLogoutMinutes = *aux.AutoLogout
	}
	if s.VaultPath == "" {
		s.VaultPath = aux.PasswordFile
	}
	return nil
}

// SettingsPatch carries the fields to change; nil fields are left alone.
type SettingsPatch struct {
	Theme             *string
	AutoLogoutMinutes *int
	VaultPath         *string
}

func (p SettingsPatch) apply(s *Settings) {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.AutoLogoutMinutes != nil {
		s.AutoLogoutMinutes = *p.AutoLogoutMinutes
	}
	if p.VaultPath != nil {
		s.VaultPath = *p.VaultPath
	}
}

type Profile struct {
	ID           string       `json:"id"`
	Salt         string       `json:"salt"`
	PasswordHash string       `json:"password_hash"`
	Email        string       `json:"email"`
	IsAdmin      bool         `json:"is_admin"`
	Settings     Settings     `json:"settings"`
	Reset        *resetTicket `json:"reset,omitempty"`
}

func (p *Profile) UnmarshalJSON(b []byte) error {
	type plain Profile
	var aux struct {
		plain
		Password string `json:"password"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = Profile(aux.plain)
	if p.PasswordHash == "" {
		p.PasswordHash = aux.Password
	}
	return nil
}

// resetTicket is a pending password reset. Only the SHA-256 of the token is
// kept.
type resetTicket struct {
	TokenHash string    `json:"token_hash"`
	Expires   time.Time `json:"expires"`
}

type registryDocument struct {
	Profiles map[string]*Profile `json:"profiles"`
	EmailMap map[string]string   `json:"email_map"`
}

func newRegistryDocument() *registryDocument {
	return &registryDocument{Profiles: map[string]*Profile{}, EmailMap: map[string]string{}}
}

func (d *registryDocument) clone() *registryDocument {
	out := &registryDocument{
		Profiles: make(map[string]*Profile, len(d.Profiles)),
		EmailMap: make(map[string]string, len(d.EmailMap)),
	}
	for name, p := range d.Profiles {
		cp := *p
		if p.Reset != nil {
			r := *p.Reset
			cp.Reset = &r
		}
		out.Profiles[name] = &cp
	}
	for email, id := range d.EmailMap {
		out.EmailMap[email] = id
	}
	return out
}

// repair drops email mappings that point at no profile, fills in missing
// maps and normalizes stored emails, which older registries kept as typed.
// When two mappings collide after normalization, the one whose profile email
// matches wins, then the lowest original key. It reports whether anything
// changed.
func (d *registryDocument) repair() bool {
	changed := false
	if d.Profiles == nil {
		d.Profiles = map[string]*Profile{}
		changed = true
	}
	if d.EmailMap == nil {
		d.EmailMap = map[string]string{}
		changed = true
	}
	owners := make(map[string]string, len(d.Profiles)) // id -> normalized profile email
	for name, p := range d.Profiles {
		if p == nil {
			delete(d.Profiles, name)
			changed = true
			continue
		}
		if e := normalizeEmail(p.Email); e != p.Email {
			p.Email = e
			changed = true
		}
		owners[p.ID] = p.Email
	}

	keys := make([]string, 0, len(d.EmailMap))
	for email := range d.EmailMap {
		keys = append(keys, email)
	}
	sort.Strings(keys)
	emails := make(map[string]string, len(keys))
	for _, email := range keys {
		id := d.EmailMap[email]
		owner, ok := owners[id]
		if !ok {
			changed = true
			continue
		}
		norm := normalizeEmail(email)
		if norm != email {
			changed = true
		}
		if prev, taken := emails[norm]; taken {
			changed = true
			if owners[prev] == norm || owner != norm {
				continue
			}
		}
		emails[norm] = id
	}
	d.EmailMap = emails
	return changed
}

func (d *registryDocument) usernameByID(id string) (string, bool) {
	for name, p := range d.Profiles {
		if p.ID == id {
			return name, true
		}
	}
	return "", false
}
