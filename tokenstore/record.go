package tokenstore

import (
	"encoding/json"
	"time"

	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/validation"
)

// SchemaVersion is stamped into every saved record.
const SchemaVersion = "1.0"

// Common holds the fields shared by every record.
type Common struct {
	AccessToken  string              `json:"accessToken"`
	RefreshToken string              `json:"refreshToken,omitempty"`
	IDToken      string              `json:"idToken,omitempty"`
	TokenType    string              `json:"tokenType,omitempty"`
	ExpiresAt    string              `json:"expiresAt"`
	ExpiresIn    int64               `json:"expiresIn,omitempty"`
	CreatedAt    string              `json:"createdAt,omitempty"`
	AccountName  string              `json:"accountName,omitempty"`
	StartURL     string              `json:"startUrl,omitempty"`
	Provider     provider.Kind       `json:"provider"`
	AuthMethod   provider.AuthMethod `json:"authMethod"`

	// Stamped by Save and Update.
	SavedAt    string `json:"savedAt,omitempty"`
	Version    string `json:"version,omitempty"`
	ProviderID string `json:"providerId,omitempty"`

	// Sealed marks a stored document whose secrets are encrypted. Records
	// returned by the store are always opened and never carry it.
	Sealed bool `json:"sealed,omitempty"`
}

// IdCFields are the fields of records obtained through SSO-OIDC.
type IdCFields struct {
	Region       string `json:"region"`
	ClientIDHash string `json:"clientIdHash"`
	ClientID     string `json:"_clientId,omitempty"`
	ClientSecret string `json:"_clientSecret,omitempty"`
}

// SocialFields are the fields of records obtained through the social login proxy.
type SocialFields struct {
	ProfileArn string `json:"profileArn"`
}

// Record is one persisted set of credentials.
type Record struct {
	Common
	IdC    *IdCFields
	Social *SocialFields
}

// wireRecord is the flat on-disk layout.
type wireRecord struct {
	Common
	*IdCFields
	*SocialFields
}

// MarshalJSON writes the common fields plus the variant selected by AuthMethod.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{Common: r.Common}
	switch r.AuthMethod {
	case provider.AuthMethodIdC:
		w.IdCFields = r.IdC
	case provider.AuthMethodSocial:
		w.SocialFields = r.Social
	}
	return json.Marshal(w)
}

// flatRecord holds every field a token document may carry.
type flatRecord struct {
	Common
	IdCFields
	SocialFields
}

// record keeps only the variant selected by AuthMethod.
func (f *flatRecord) record() Record {
	r := Record{Common: f.Common}
	switch f.AuthMethod {
	case provider.AuthMethodIdC:
		idc := f.IdCFields
		r.IdC = &idc
	case provider.AuthMethodSocial:
		social := f.SocialFields
		r.Social = &social
	}
	return r
}

// UnmarshalJSON reads a flat document. Unknown fields are dropped.
func (r *Record) UnmarshalJSON(data []byte) error {
	var f flatRecord
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = f.record()
	return nil
}

// NewIdC builds an IdC record.
func NewIdC(kind provider.Kind, accessToken string, expiresAt time.Time, idc IdCFields) *Record {
	return &Record{
		Common: Common{
			AccessToken: accessToken,
			ExpiresAt:   FormatTime(expiresAt),
			Provider:    kind,
			AuthMethod:  provider.AuthMethodIdC,
		},
		IdC: &idc,
	}
}

// NewSocial builds a social record.
func NewSocial(kind provider.Kind, accessToken string, expiresAt time.Time, profileArn string) *Record {
	return &Record{
		Common: Common{
			AccessToken: accessToken,
			ExpiresAt:   FormatTime(expiresAt),
			Provider:    kind,
			AuthMethod:  provider.AuthMethodSocial,
		},
		Social: &SocialFields{ProfileArn: profileArn},
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	if r.IdC != nil {
		idc := *r.IdC
		c.IdC = &idc
	}
	if r.Social != nil {
		social := *r.Social
		c.Social = &social
	}
	return &c
}

// Expiry parses ExpiresAt. ok is false when it is absent or unparseable.
func (r *Record) Expiry() (t time.Time, ok bool) {
	if r.ExpiresAt == "" {
		return time.Time{}, false
	}
	t, err := validation.ParseTimestamp(r.ExpiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CanRefresh reports whether the record carries a refresh token.
func (r *Record) CanRefresh() bool { return r.RefreshToken != "" }

// Region returns the IdC region, or "" for social records.
func (r *Record) Region() string {
	if r.IdC != nil {
		return r.IdC.Region
	}
	return ""
}

// FormatTime renders t as the ISO-8601 UTC form used in token files.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
