package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const noticeDateLayout = "2 January 2006"

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type protectionNoticeEmailData struct {
	baseEmailData
	OwnerName   string
	CompanyName string
	Kind        string
	DueDate     string
}

// noticeCopy holds the subject format and heading for one notice kind.
type noticeCopy struct {
	subjectFmt string
	heading    string
	subheading string
}

var noticeCopies = map[string]noticeCopy{
	"reminder": {
		subjectFmt: subjectReminderFmt,
		heading:    "Your lead needs attention",
		subheading: "Log a meaningful activity to keep your protection.",
	},
	"grace_started": {
		subjectFmt: subjectGraceStartedFmt,
		heading:    "Grace period started",
		subheading: "Without a meaningful activity the lead will be released.",
	},
	"expired": {
		subjectFmt: subjectExpiredFmt,
		heading:    "Lead protection expired",
		subheading: "The lead has been released and can be reassigned.",
	},
}

func renderProtectionNotice(n ProtectionNotice) (subject, body string, err error) {
	nc, ok := noticeCopies[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notice kind %q", n.Kind)
	}

	data := protectionNoticeEmailData{
		baseEmailData: baseEmailData{
			Title:      nc.heading,
			Heading:    nc.heading,
			Subheading: nc.subheading,
			CTALabel:   "Open lead",
			CTAURL:     n.LeadURL,
		},
		OwnerName:   n.OwnerName,
		CompanyName: n.CompanyName,
		Kind:        n.Kind,
		DueDate:     formatDate(n.DueAt),
	}

	body, err = renderEmailTemplate("protection_notice.html", data)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(nc.subjectFmt, n.CompanyName), body, nil
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(noticeDateLayout)
}
