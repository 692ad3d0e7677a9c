// Package validation collects field-level violations.
//
// Programmatic validation gathers every violation rather than stopping at the
// first one, which is what token record validation needs:
//
//	v := validation.New()
//	v.Required("accessToken", rec.AccessToken)
//	v.Timestamp("expiresAt", rec.ExpiresAt)
//	if err := v.Validate("token record is invalid"); err != nil { ... }
//
// Struct tag validation (go-playground/validator) is used for configuration:
//
//	err := validation.Validate(cfg)
package validation
