package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kbukum/tokenkeeper/lifecycle"
	"github.com/kbukum/tokenkeeper/logger"
	"github.com/kbukum/tokenkeeper/provider"
	"github.com/kbukum/tokenkeeper/tokenstore"
)

// printer writes either JSON or the human rendering of a value.
type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) emit(v any, human func(w io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(p.w)
	return nil
}

// line writes v as one compact JSON line, for streams.
func (p *printer) line(v any) error {
	return json.NewEncoder(p.w).Encode(v)
}

// tokenView is the printable form of a record. Secrets are always redacted.
type tokenView struct {
	ID           string              `json:"id"`
	Location     string              `json:"location,omitempty"`
	Provider     provider.Kind       `json:"provider,omitempty"`
	AuthMethod   provider.AuthMethod `json:"authMethod,omitempty"`
	AccountName  string              `json:"accountName,omitempty"`
	Status       tokenstore.Status   `json:"status,omitempty"`
	ExpiresAt    string              `json:"expiresAt,omitempty"`
	Remaining    string              `json:"remaining,omitempty"`
	Region       string              `json:"region,omitempty"`
	StartURL     string              `json:"startUrl,omitempty"`
	ProfileArn   string              `json:"profileArn,omitempty"`
	AccessToken  string              `json:"accessToken,omitempty"`
	RefreshToken string              `json:"refreshToken,omitempty"`
	SavedAt      string              `json:"savedAt,omitempty"`
	Error        string              `json:"error,omitempty"`
}

func newTokenView(id, location string, r *tokenstore.Record, now time.Time) tokenView {
	v := tokenView{
		ID:           id,
		Location:     location,
		Provider:     r.Provider,
		AuthMethod:   r.AuthMethod,
		AccountName:  r.AccountName,
		Status:       tokenstore.ExpiryStatus(r, now),
		ExpiresAt:    r.ExpiresAt,
		Region:       r.Region(),
		StartURL:     r.StartURL,
		AccessToken:  logger.Redact(r.AccessToken),
		RefreshToken: logger.Redact(r.RefreshToken),
		SavedAt:      r.SavedAt,
	}
	if left, ok := tokenstore.Remaining(r, now); ok {
		v.Remaining = left.Round(time.Second).String()
	}
	if r.Social != nil {
		v.ProfileArn = r.Social.ProfileArn
	}
	return v
}

func entryView(e tokenstore.Entry, now time.Time) tokenView {
	if e.Err != nil {
		return tokenView{ID: e.ID, Location: e.Location, Error: e.Err.Error()}
	}
	return newTokenView(e.ID, e.Location, e.Record, now)
}

func writeTable(w io.Writer, views []tokenView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No tokens stored.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tMETHOD\tACCOUNT\tSTATUS\tEXPIRES")
	for _, v := range views {
		if v.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\tunreadable\t%s\n", v.ID, v.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.Provider, v.AuthMethod, dash(v.AccountName), v.Status, dash(v.ExpiresAt))
	}
	_ = tw.Flush()
}

func writeDetail(w io.Writer, v tokenView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, val string) {
		if val != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", k, val)
		}
	}
	row("ID", v.ID)
	row("Location", v.Location)
	row("Provider", string(v.Provider))
	row("Auth method", string(v.AuthMethod))
	row("Account", v.AccountName)
	row("Status", string(v.Status))
	row("Expires at", v.ExpiresAt)
	row("Remaining", v.Remaining)
	row("Region", v.Region)
	row("Start URL", v.StartURL)
	row("Profile ARN", v.ProfileArn)
	row("Access token", v.AccessToken)
	row("Refresh token", v.RefreshToken)
	row("Saved at", v.SavedAt)
	_ = tw.Flush()
}

// eventView is one watcher event.
type eventView struct {
	Time       string              `json:"time"`
	ID         string              `json:"id"`
	Provider   provider.Kind       `json:"provider,omitempty"`
	AuthMethod provider.AuthMethod `json:"authMethod,omitempty"`
	Status     tokenstore.Status   `json:"status,omitempty"`
	Refreshed  bool                `json:"refreshed"`
	Error      string              `json:"error,omitempty"`
}

func newEventView(e lifecycle.Event) eventView {
	v := eventView{
		Time:       tokenstore.FormatTime(e.Time),
		ID:         e.ID,
		Provider:   e.Provider,
		AuthMethod: e.AuthMethod,
		Status:     e.Status,
		Refreshed:  e.Refreshed,
	}
	if e.Err != nil {
		v.Error = e.Err.Error()
	}
	return v
}

func (v eventView) String() string {
	s := fmt.Sprintf("%s %s %s", v.Time, v.ID, dash(string(v.Status)))
	if v.Refreshed {
		s += " refreshed"
	}
	if v.Error != "" {
		s += " error: " + v.Error
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
