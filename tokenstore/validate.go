package tokenstore

import (
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/validation"
)

// Validate returns every schema violation of r. An empty result means the
// record may be persisted.
func Validate(r *Record) []validation.FieldError {
	return validator(r).Errors()
}

func validator(r *Record) *validation.Validator {
	v := validation.New()
	if r == nil {
		v.AddError("record", "is required")
		return v
	}

	v.Required("accessToken", r.AccessToken).
		Timestamp("expiresAt", r.ExpiresAt).
		Required("provider", string(r.Provider)).
		Required("authMethod", string(r.AuthMethod)).
		OptionalTimestamp("createdAt", r.CreatedAt).
		URL("startUrl", r.StartURL)

	switch r.AuthMethod {
	case provider.AuthMethodIdC:
		idc := r.IdC
		if idc == nil {
			idc = &IdCFields{}
		}
		v.Required("region", idc.Region).
			Pattern("region", idc.Region, validation.RegionPattern).
			Required("clientIdHash", idc.ClientIDHash)
	case provider.AuthMethodSocial:
		social := r.Social
		if social == nil {
			social = &SocialFields{}
		}
		v.Required("profileArn", social.ProfileArn)
	case "":
		// already reported as required
	default:
		v.OneOf("authMethod", string(r.AuthMethod), provider.AuthMethods())
	}
	return v
}
