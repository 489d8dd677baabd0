package core

import (
	"bytes"
	"net/mail"
	texttmpl "text/template"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string
		TemplateData interface{}
		TextContent  string
	}

	// ContextData is passed to every email template.
	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Email templates are small enough to live in code; keyed by TemplateName.
var emailTemplates = map[string]*texttmpl.Template{
	"welcome": texttmpl.Must(texttmpl.New("welcome").Parse(`Hi {{.Data.FirstName}},

Welcome to {{.AppName}}! Browse our course catalog and enroll to start learning:
{{.FrontendBaseURL}}/courses
`)),
	"password-reset": texttmpl.Must(texttmpl.New("password-reset").Parse(`Hi,

You requested a password reset for your {{.AppName}} account.
Follow this link to choose a new password:
{{.FrontendBaseURL}}/reset-password?uid={{.Data.UID}}&token={{.Data.Token}}

If you did not request this, you can safely ignore this email.
`)),
	"invitation": texttmpl.Must(texttmpl.New("invitation").Parse(`Hi,

You have been invited to join {{.AppName}}.
Follow this link to set your password and activate your account:
{{.FrontendBaseURL}}/reset-password?uid={{.Data.UID}}&token={{.Data.Token}}
`)),
	"contact-message": texttmpl.Must(texttmpl.New("contact-message").Parse(`New contact message from {{.Data.Name}} <{{.Data.Email}}>:

{{.Data.Message}}
`)),
}

func (m *EmailMessage) getContextData() ContextData {
	return ContextData{
		AppName:         Conf.AppName,
		FrontendBaseURL: Conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}
}

// Render resolves TextContent from BodyStr or the named template.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	tmpl, ok := emailTemplates[m.TemplateName]
	if !ok {
		return nil
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData()); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }
