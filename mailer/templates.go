package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// Kind names one message template.
type Kind string

const (
	KindVerifyEmail       Kind = "verify_email"
	KindRecoverAccount    Kind = "recover_account"
	KindReactivateAccount Kind = "reactivate_account"
)

type templateData struct {
	Email string
	Link  string
	Brand string
}

type messageTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var templates = map[Kind]messageTemplate{
	KindVerifyEmail: {
		subject: "Verify your email address",
		text: texttemplate.Must(texttemplate.New("verify").Parse(
			"Hello,\n\nPlease confirm {{.Email}} for your {{.Brand}} account by opening the link below.\n\n{{.Link}}\n\nIf you did not sign up, ignore this message.\n")),
		html: htmltemplate.Must(htmltemplate.New("verify").Parse(
			`<p>Hello,</p><p>Please confirm <b>{{.Email}}</b> for your {{.Brand}} account.</p><p><a href="{{.Link}}">Verify email</a></p><p>If you did not sign up, ignore this message.</p>`)),
	},
	KindRecoverAccount: {
		subject: "Reset your password",
		text: texttemplate.Must(texttemplate.New("recover").Parse(
			"Hello,\n\nA password reset was requested for {{.Email}}. Open the link below to choose a new password. It expires in 4 hours.\n\n{{.Link}}\n")),
		html: htmltemplate.Must(htmltemplate.New("recover").Parse(
			`<p>Hello,</p><p>A password reset was requested for <b>{{.Email}}</b>. The link expires in 4 hours.</p><p><a href="{{.Link}}">Reset password</a></p>`)),
	},
	KindReactivateAccount: {
		subject: "Reactivate your account",
		text: texttemplate.Must(texttemplate.New("reactivate").Parse(
			"Hello,\n\nOpen the link below within 5 minutes to reactivate your {{.Brand}} account.\n\n{{.Link}}\n")),
		html: htmltemplate.Must(htmltemplate.New("reactivate").Parse(
			`<p>Hello,</p><p>Open the link below within 5 minutes to reactivate your {{.Brand}} account.</p><p><a href="{{.Link}}">Reactivate account</a></p>`)),
	},
}

func render(kind Kind, data templateData) (subject, text, html string, err error) {
	t, ok := templates[kind]
	if !ok {
		return "", "", "", fmt.Errorf("mailer: unknown template %q", kind)
	}
	var tb, hb bytes.Buffer
	if err := t.text.Execute(&tb, data); err != nil {
		return "", "", "", fmt.Errorf("mailer: render %s text: %w", kind, err)
	}
	if err := t.html.Execute(&hb, data); err != nil {
		return "", "", "", fmt.Errorf("mailer: render %s html: %w", kind, err)
	}
	return t.subject, tb.String(), hb.String(), nil
}
